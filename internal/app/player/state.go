// Package player provides the playback controller: it orchestrates the
// queue, the playback engine and the persistence manager, owns the
// authoritative player state, and emits typed events for every
// transition.
package player

import (
	"github.com/osa030/phonobox/internal/app/queue"
	"github.com/osa030/phonobox/internal/domain/track"
)

// State is an immutable snapshot of the player exposed to callers.
// Every accessor returns a defensive copy; callers can never mutate
// controller-owned state through it. IsPlaying and IsPaused are never
// both true.
type State struct {
	IsPlaying bool
	IsPaused  bool
	IsLoading bool

	CurrentTime float64 // Seconds
	Duration    float64 // Seconds; 0 when unknown

	Volume       float64 // [0,1]
	PlaybackRate float64 // > 0

	CurrentTrack      *track.Track // nil when nothing is loaded
	CurrentQueueIndex int          // -1 for no current track or ad hoc playback
	QueueLength       int

	RepeatMode  queue.RepeatMode
	IsShuffling bool

	Err *Error // Last failure; nil after a successful validating call
}
