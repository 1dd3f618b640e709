// Package event provides the typed event bus used by the player.
package event

import "github.com/osa030/phonobox/internal/domain/track"

// Type represents a player event type.
type Type int

const (
	TypePlay           Type = iota // Playback started or resumed
	TypePause                      // Playback paused
	TypeEnded                      // Current track played to completion
	TypeTimeUpdate                 // Playback position advanced
	TypeDurationChange             // Track duration became known or changed
	TypeVolumeChange               // Volume changed
	TypeRateChange                 // Playback rate changed
	TypeTrackChange                // Current track identity changed
	TypeQueueChange                // Queue contents or order changed
	TypeError                      // An operation failed
	TypeStateChange                // Generic state transition (always after the specific event)
	TypeLoading                    // Track assignment in progress
	TypeLoadedData                 // Engine finished loading track data
	TypeSeeking                    // Seek requested
	TypeSeeked                     // Seek completed
)

// String returns the string representation of the event type.
func (t Type) String() string {
	switch t {
	case TypePlay:
		return "play"
	case TypePause:
		return "pause"
	case TypeEnded:
		return "ended"
	case TypeTimeUpdate:
		return "timeupdate"
	case TypeDurationChange:
		return "durationchange"
	case TypeVolumeChange:
		return "volumechange"
	case TypeRateChange:
		return "ratechange"
	case TypeTrackChange:
		return "trackchange"
	case TypeQueueChange:
		return "queuechange"
	case TypeError:
		return "error"
	case TypeStateChange:
		return "statechange"
	case TypeLoading:
		return "loading"
	case TypeLoadedData:
		return "loadeddata"
	case TypeSeeking:
		return "seeking"
	case TypeSeeked:
		return "seeked"
	default:
		return "unknown"
	}
}

// Event represents a player event. Only the fields relevant to the
// event type are populated.
type Event struct {
	Type     Type
	Track    *track.Track // Current track (nil for some events)
	Index    int          // Queue index for track/queue events
	Position float64      // Playback position in seconds
	Duration float64      // Track duration in seconds
	Volume   float64      // Volume in [0,1]
	Rate     float64      // Playback rate
	Err      error        // Error payload for TypeError
}
