package player

import (
	"context"

	"github.com/osa030/phonobox/internal/domain/track"
)

// Engine is the playback primitive the controller drives. Implementations
// decode and render audio; the controller never touches the transport
// directly. Load must not start playback.
type Engine interface {
	// Load prepares the track for playback without starting it.
	Load(ctx context.Context, t track.Track) error
	// Play starts or resumes transport of the loaded track. The
	// stopped-to-playing transition must be reported through OnPlay.
	Play(ctx context.Context) error
	// Pause suspends transport. Safe with nothing loaded. The
	// playing-to-paused transition must be reported through OnPause;
	// the controller derives its paused state from that callback alone.
	Pause()
	// Seek moves the playback position (seconds).
	Seek(position float64) error
	// SetVolume applies a volume in [0,1]. The applied value must be
	// reported through OnVolumeChange, even with nothing loaded; the
	// controller mirrors, persists and announces volume only from that
	// callback.
	SetVolume(v float64)
	// SetRate applies a playback rate (> 0). The applied value must be
	// reported through OnRateChange, as with SetVolume.
	SetRate(r float64)
	// Position returns the current playback position in seconds.
	Position() float64
	// Duration returns the loaded track duration in seconds, 0 if unknown.
	Duration() float64
	// Attach registers the lifecycle callbacks. Must be called before Load.
	Attach(EngineEvents)
	// Close releases engine resources.
	Close() error
}

// EngineEvents is the callback surface through which the engine reports
// lifecycle transitions back to the controller. Nil callbacks are skipped.
// Callbacks may be invoked from engine-owned goroutines.
type EngineEvents struct {
	OnPlay           func()
	OnPause          func()
	OnEnded          func()
	OnTimeUpdate     func(position float64)
	OnDurationChange func(duration float64)
	OnVolumeChange   func(v float64)
	OnRateChange     func(r float64)
	OnLoadedData     func()
	OnError          func(err error)
}
