// Package beepengine implements the playback engine on gopxl/beep.
package beepengine

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/phonobox/internal/app/player"
	"github.com/osa030/phonobox/internal/domain/track"
)

const tickInterval = 500 * time.Millisecond

// Engine renders audio through the system speaker using beep.
// Load decodes a local file by extension and never starts playback.
type Engine struct {
	mu sync.Mutex

	cb player.EngineEvents

	sampleRate  beep.SampleRate
	initialized bool

	streamer  beep.StreamSeekCloser
	format    beep.Format
	ctrl      *beep.Ctrl
	resampler *beep.Resampler
	volume    *effects.Volume
	baseRatio float64

	vol     float64
	rate    float64
	playing bool

	gen      int // Load generation; guards stale end-of-stream callbacks
	stopTick chan struct{}
}

// New creates an engine with the standard output sample rate.
func New() *Engine {
	return &Engine{
		sampleRate: beep.SampleRate(44100),
		vol:        1.0,
		rate:       1.0,
	}
}

// Attach registers the lifecycle callbacks.
func (e *Engine) Attach(cb player.EngineEvents) {
	e.mu.Lock()
	e.cb = cb
	e.mu.Unlock()
}

// Load decodes the track source and prepares it for playback, paused.
func (e *Engine) Load(_ context.Context, t track.Track) error {
	streamer, format, err := decode(t.Src)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.stopLocked()

	if !e.initialized {
		if err := speaker.Init(e.sampleRate, e.sampleRate.N(time.Second/10)); err != nil {
			e.mu.Unlock()
			_ = streamer.Close()
			return errors.Wrap(err, "failed to initialize speaker")
		}
		e.initialized = true
	}

	e.streamer = streamer
	e.format = format
	e.baseRatio = float64(format.SampleRate) / float64(e.sampleRate)

	e.ctrl = &beep.Ctrl{Streamer: streamer, Paused: true}
	e.resampler = beep.ResampleRatio(4, e.baseRatio*e.rate, e.ctrl)
	e.volume = &effects.Volume{Streamer: e.resampler, Base: 2}
	applyVolume(e.volume, e.vol)

	e.gen++
	gen := e.gen
	speaker.Play(beep.Seq(e.volume, beep.Callback(func() {
		// Run outside the speaker lock; playing the next track from the
		// ended handler would deadlock otherwise.
		go e.onStreamEnd(gen)
	})))

	duration := format.SampleRate.D(streamer.Len()).Seconds()
	cb := e.cb
	e.mu.Unlock()

	if cb.OnDurationChange != nil {
		cb.OnDurationChange(duration)
	}
	if cb.OnLoadedData != nil {
		cb.OnLoadedData()
	}
	return nil
}

// Play resumes transport of the loaded track.
func (e *Engine) Play(_ context.Context) error {
	e.mu.Lock()
	if e.ctrl == nil {
		e.mu.Unlock()
		return errors.New("no track loaded")
	}

	speaker.Lock()
	wasPaused := e.ctrl.Paused
	e.ctrl.Paused = false
	speaker.Unlock()

	e.playing = true
	if e.stopTick == nil {
		e.stopTick = make(chan struct{})
		go e.tick(e.stopTick)
	}
	cb := e.cb
	e.mu.Unlock()

	if wasPaused && cb.OnPlay != nil {
		cb.OnPlay()
	}
	return nil
}

// Pause suspends transport. Safe with nothing loaded.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.ctrl == nil {
		e.mu.Unlock()
		return
	}

	speaker.Lock()
	wasPaused := e.ctrl.Paused
	e.ctrl.Paused = true
	speaker.Unlock()

	e.playing = false
	e.stopTickLocked()
	cb := e.cb
	e.mu.Unlock()

	if !wasPaused && cb.OnPause != nil {
		cb.OnPause()
	}
}

// Seek moves the playback position.
func (e *Engine) Seek(position float64) error {
	e.mu.Lock()
	if e.streamer == nil {
		e.mu.Unlock()
		return errors.New("no track loaded")
	}

	speaker.Lock()
	err := e.streamer.Seek(e.format.SampleRate.N(secondsToDuration(position)))
	speaker.Unlock()
	cb := e.cb
	e.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, "seek failed")
	}
	if cb.OnTimeUpdate != nil {
		cb.OnTimeUpdate(position)
	}
	return nil
}

// SetVolume applies a volume in [0,1]. The applied value is reported
// back even when no track is loaded.
func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	e.vol = v
	if e.volume != nil {
		speaker.Lock()
		applyVolume(e.volume, v)
		speaker.Unlock()
	}
	cb := e.cb
	e.mu.Unlock()

	if cb.OnVolumeChange != nil {
		cb.OnVolumeChange(v)
	}
}

// SetRate applies a playback rate by adjusting the resampling ratio.
func (e *Engine) SetRate(r float64) {
	e.mu.Lock()
	e.rate = r
	if e.resampler != nil {
		speaker.Lock()
		e.resampler.SetRatio(e.baseRatio * r)
		speaker.Unlock()
	}
	cb := e.cb
	e.mu.Unlock()

	if cb.OnRateChange != nil {
		cb.OnRateChange(r)
	}
}

// Position returns the current playback position in seconds.
func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *Engine) positionLocked() float64 {
	if e.streamer == nil {
		return 0
	}
	speaker.Lock()
	pos := e.streamer.Position()
	speaker.Unlock()
	return e.format.SampleRate.D(pos).Seconds()
}

// Duration returns the loaded track duration in seconds.
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamer == nil {
		return 0
	}
	return e.format.SampleRate.D(e.streamer.Len()).Seconds()
}

// Close stops playback and releases the decoder.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.stopLocked()
	e.mu.Unlock()
	return nil
}

// stopLocked tears down the current stream. Must be called with e.mu held.
func (e *Engine) stopLocked() {
	e.gen++ // Invalidate any in-flight end-of-stream callback
	e.stopTickLocked()
	e.playing = false

	if e.initialized {
		speaker.Clear()
	}
	if e.streamer != nil {
		if err := e.streamer.Close(); err != nil {
			zlog.Debug().Err(err).Msg("beepengine: failed to close streamer")
		}
		e.streamer = nil
	}
	e.ctrl = nil
	e.resampler = nil
	e.volume = nil
}

func (e *Engine) stopTickLocked() {
	if e.stopTick != nil {
		close(e.stopTick)
		e.stopTick = nil
	}
}

// tick reports playback position while playing.
func (e *Engine) tick(stop chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if !e.playing {
				e.mu.Unlock()
				return
			}
			pos := e.positionLocked()
			cb := e.cb
			e.mu.Unlock()

			if cb.OnTimeUpdate != nil {
				cb.OnTimeUpdate(pos)
			}
		}
	}
}

func (e *Engine) onStreamEnd(gen int) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.playing = false
	e.stopTickLocked()
	cb := e.cb
	e.mu.Unlock()

	if cb.OnEnded != nil {
		cb.OnEnded()
	}
}

// decode opens a local audio file and selects a decoder by extension.
func decode(src string) (beep.StreamSeekCloser, beep.Format, error) {
	path := strings.TrimPrefix(src, "file://")
	if strings.Contains(path, "://") {
		return nil, beep.Format{}, errors.Wrapf(player.ErrNetwork, "non-local source %s", src)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, errors.Wrapf(err, "failed to open %s", path)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(f)
	default:
		_ = f.Close()
		return nil, beep.Format{}, errors.Wrapf(player.ErrUnsupportedFormat, "extension %q", filepath.Ext(path))
	}
	if err != nil {
		_ = f.Close()
		return nil, beep.Format{}, errors.Wrapf(err, "failed to decode %s", path)
	}
	return streamer, format, nil
}

// applyVolume maps a linear [0,1] volume onto beep's logarithmic scale.
func applyVolume(v *effects.Volume, vol float64) {
	if vol <= 0 {
		v.Silent = true
		v.Volume = 0
		return
	}
	v.Silent = false
	v.Volume = math.Log2(vol)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
