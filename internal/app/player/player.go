package player

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/phonobox/internal/app/event"
	"github.com/osa030/phonobox/internal/app/persist"
	"github.com/osa030/phonobox/internal/app/queue"
	"github.com/osa030/phonobox/internal/domain/track"
	"github.com/osa030/phonobox/internal/infra/store"
)

var optsValidate = validator.New()

// Options configures a player instance. Zero values are filled with
// defaults on construction.
type Options struct {
	PersistState            *bool    `default:"true"`
	PersistenceKey          string   `default:"phonobox_state"`
	EnableMediaSession      bool     // Consumed by the media-session wiring
	EnableKeyboardShortcuts bool     // Consumed by the CLI wiring
	InitialVolume           *float64 `default:"1.0" validate:"omitempty,gte=0,lte=1"`
	PreloadStrategy         string   `default:"metadata" validate:"oneof=none metadata auto"` // Advisory to engines
}

// Player is the playback controller. One instance owns one queue, the
// authoritative player state, and the persistence lifecycle. All
// mutation is serialized behind a single mutex; events are dispatched
// after the mutex is released, in emission order, so observers always
// see fully-updated state and may re-enter the player.
type Player struct {
	mu      sync.Mutex
	engine  Engine
	queue   *queue.Queue
	bus     *event.Bus
	persist *persist.Manager // nil when persistence is disabled
	opts    Options

	current     *track.Track // Loaded track; may be ad hoc (not in the queue)
	isPlaying   bool
	isPaused    bool
	isLoading   bool
	currentTime float64
	duration    float64
	volume      float64
	rate        float64
	repeatMode  queue.RepeatMode
	shuffling   bool
	lastErr     *Error
}

// New creates a player driving the given engine. st may be nil to
// disable persistence regardless of options. When persistence is
// enabled, the stored snapshot is restored: modes, volume, rate and
// queue are applied, and the current track is loaded into the engine
// without starting playback.
func New(engine Engine, st store.Store, opts Options) (*Player, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, errors.Wrap(err, "failed to apply option defaults")
	}
	if err := optsValidate.Struct(opts); err != nil {
		return nil, errors.Wrap(err, "invalid player options")
	}

	p := &Player{
		engine:     engine,
		queue:      queue.New(),
		bus:        event.NewBus(),
		opts:       opts,
		volume:     *opts.InitialVolume,
		rate:       1.0,
		repeatMode: queue.RepeatNone,
	}
	engine.Attach(p.engineEvents())

	if *opts.PersistState && st != nil {
		p.persist = persist.NewManager(st, opts.PersistenceKey, persist.DefaultDebounce)
		p.restore()
	}
	engine.SetVolume(p.volume)

	return p, nil
}

// Events returns the player's event bus.
func (p *Player) Events() *event.Bus {
	return p.bus
}

// GetState returns a defensive snapshot of the player state.
func (p *Player) GetState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

// GetQueue returns a defensive copy of the queued tracks.
func (p *Player) GetQueue() []track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Tracks()
}

// Play resumes the already-loaded track. Fails with a state error when
// nothing is loaded.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return p.fail("play", CodeState, "no track loaded", nil)
	}
	p.lastErr = nil
	p.mu.Unlock()

	if err := p.engine.Play(context.Background()); err != nil {
		return p.fail("play", classify(err), "engine failed to start playback", err)
	}
	return nil
}

// PlayTrack validates, loads and plays the given track. When its ID
// matches an existing queue entry the current index moves there;
// otherwise the track plays ad hoc with index -1.
func (p *Player) PlayTrack(t track.Track) error {
	if err := t.Validate(); err != nil {
		return p.fail("play", CodeValidation, "invalid track", err)
	}
	p.mu.Lock()
	index := p.queue.IndexOf(t.ID)
	p.mu.Unlock()
	return p.startTrack(t, index, "play")
}

// PlayIndex loads and plays the queue entry at index.
func (p *Player) PlayIndex(index int) error {
	p.mu.Lock()
	t, ok := p.queue.Track(index)
	p.mu.Unlock()
	if !ok {
		return p.fail("play", CodeValidation, "queue index out of range", nil)
	}
	return p.startTrack(t, index, "play")
}

// Pause suspends playback. Idempotent and safe with no loaded track.
// State and events follow from the engine's pause callback.
func (p *Player) Pause() {
	p.engine.Pause()
}

// TogglePlayPause dispatches to Play or Pause based on the current state.
func (p *Player) TogglePlayPause() error {
	p.mu.Lock()
	playing := p.isPlaying
	p.mu.Unlock()

	if playing {
		p.Pause()
		return nil
	}
	return p.Play()
}

// Seek moves the playback position. The position must be a finite,
// non-negative number not exceeding a known duration; an unknown
// duration does not block seeking.
func (p *Player) Seek(position float64) error {
	p.mu.Lock()
	if math.IsNaN(position) || math.IsInf(position, 0) || position < 0 {
		p.mu.Unlock()
		return p.fail("seek", CodeValidation, "seek position must be a finite non-negative number", nil)
	}
	if d := p.duration; d > 0 && position > d {
		p.mu.Unlock()
		return p.fail("seek", CodeValidation, "seek position exceeds track duration", nil)
	}
	if p.current == nil {
		p.mu.Unlock()
		return p.fail("seek", CodeState, "no track loaded", nil)
	}
	p.lastErr = nil
	p.mu.Unlock()

	p.emit(event.Event{Type: event.TypeSeeking, Position: position})
	if err := p.engine.Seek(position); err != nil {
		return p.fail("seek", classify(err), "engine seek failed", err)
	}

	p.mu.Lock()
	p.currentTime = position
	p.mu.Unlock()
	p.emit(
		event.Event{Type: event.TypeSeeked, Position: position},
		event.Event{Type: event.TypeStateChange},
	)
	return nil
}

// SetVolume clamps v to [0,1] and applies it. Non-finite input is
// ignored silently. State update and events follow from the engine's
// volume callback.
func (p *Player) SetVolume(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	clamped := math.Min(1, math.Max(0, v))

	p.mu.Lock()
	p.lastErr = nil
	p.mu.Unlock()
	p.engine.SetVolume(clamped)
}

// SetPlaybackRate applies the rate as-is (no clamping). Non-positive or
// non-finite input is ignored silently.
func (p *Player) SetPlaybackRate(r float64) {
	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return
	}

	p.mu.Lock()
	p.lastErr = nil
	p.mu.Unlock()
	p.engine.SetRate(r)
}

// Next advances per the repeat policy. When no valid destination exists
// playback pauses; no track change is emitted. Safe on an empty queue.
func (p *Player) Next() error {
	p.mu.Lock()
	index := p.queue.NextIndex(p.repeatMode)
	var t track.Track
	ok := false
	if index >= 0 {
		t, ok = p.queue.Track(index)
	}
	p.mu.Unlock()

	if !ok {
		p.Pause()
		return nil
	}
	return p.startTrack(t, index, "next")
}

// Previous moves back per the repeat policy and the restart threshold:
// past three seconds into a track it restarts the current track instead.
// Safe on an empty queue.
func (p *Player) Previous() error {
	p.mu.Lock()
	index := p.queue.PreviousIndex(p.repeatMode, p.currentTime)
	var t track.Track
	ok := false
	if index >= 0 {
		t, ok = p.queue.Track(index)
	}
	p.mu.Unlock()

	if !ok {
		p.Pause()
		return nil
	}
	return p.startTrack(t, index, "previous")
}

// AddToQueue validates and appends tracks. Validation is all-or-nothing
// per batch.
func (p *Player) AddToQueue(tracks ...track.Track) error {
	p.mu.Lock()
	if err := p.queue.Add(tracks...); err != nil {
		p.mu.Unlock()
		return p.fail("addToQueue", CodeValidation, "invalid track in batch", err)
	}
	p.lastErr = nil
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.emit(
		event.Event{Type: event.TypeQueueChange},
		event.Event{Type: event.TypeStateChange},
	)
	p.saveNow(snap)
	return nil
}

// RemoveFromQueue removes the entry at index. Removing the current
// entry makes the next track take its place; the engine transport is
// not touched, so audio may keep playing the dequeued track.
func (p *Player) RemoveFromQueue(index int) error {
	p.mu.Lock()
	wasCurrent := index == p.queue.CurrentIndex()
	if _, err := p.queue.Remove(index); err != nil {
		p.mu.Unlock()
		return p.fail("removeFromQueue", CodeValidation, "cannot remove queue entry", err)
	}
	p.lastErr = nil
	if wasCurrent {
		p.current = p.queue.Current()
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.emit(
		event.Event{Type: event.TypeQueueChange},
		event.Event{Type: event.TypeStateChange},
	)
	p.saveNow(snap)
	return nil
}

// ClearQueue empties the queue and clears the current track. The engine
// transport is not touched.
func (p *Player) ClearQueue() {
	p.mu.Lock()
	p.queue.Clear()
	p.current = nil
	p.lastErr = nil
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.emit(
		event.Event{Type: event.TypeQueueChange},
		event.Event{Type: event.TypeStateChange},
	)
	p.saveNow(snap)
}

// ReorderQueue moves one entry; the current index keeps pointing at the
// same track identity.
func (p *Player) ReorderQueue(from, to int) error {
	p.mu.Lock()
	if err := p.queue.Reorder(from, to); err != nil {
		p.mu.Unlock()
		return p.fail("reorderQueue", CodeValidation, "cannot reorder queue", err)
	}
	p.lastErr = nil
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.emit(
		event.Event{Type: event.TypeQueueChange},
		event.Event{Type: event.TypeStateChange},
	)
	p.saveNow(snap)
	return nil
}

// JumpToQueueIndex loads and plays the queue entry at index.
func (p *Player) JumpToQueueIndex(index int) error {
	p.mu.Lock()
	t, ok := p.queue.Track(index)
	p.mu.Unlock()
	if !ok {
		return p.fail("jumpToQueueIndex", CodeValidation, "queue index out of range", nil)
	}
	return p.startTrack(t, index, "jumpToQueueIndex")
}

// SetRepeatMode sets the repeat mode.
func (p *Player) SetRepeatMode(m queue.RepeatMode) error {
	if !m.Valid() {
		return p.fail("setRepeatMode", CodeValidation, "unrecognized repeat mode", nil)
	}

	p.mu.Lock()
	p.lastErr = nil
	p.repeatMode = m
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.emit(event.Event{Type: event.TypeStateChange})
	p.saveNow(snap)
	return nil
}

// ToggleShuffle flips shuffle mode. Turning it on permutes the queue
// around the pinned current slot; turning it off restores the saved
// order. A queue change is emitted only when the queue actually had
// at least two elements to permute or restore.
func (p *Player) ToggleShuffle() {
	p.mu.Lock()
	p.lastErr = nil
	p.shuffling = !p.shuffling
	var permuted bool
	if p.shuffling {
		permuted = p.queue.Shuffle()
	} else {
		permuted = p.queue.Unshuffle()
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if permuted {
		p.emit(event.Event{Type: event.TypeQueueChange})
	}
	p.emit(event.Event{Type: event.TypeStateChange})
	p.saveNow(snap)
}

// Close flushes pending persistence and releases the engine.
func (p *Player) Close() error {
	if p.persist != nil {
		if err := p.persist.Flush(); err != nil {
			zlog.Warn().Err(err).Msg("player: failed to flush snapshot on close")
		}
		p.persist.Close()
	}
	return p.engine.Close()
}

// startTrack loads and plays a track as the new current one.
// Emission order: loading, then trackchange (only when the identity
// changed), then the engine is asked to start; loading is always
// cleared afterward regardless of outcome.
func (p *Player) startTrack(t track.Track, index int, ctxTag string) error {
	p.mu.Lock()
	p.lastErr = nil
	changed := p.current == nil || p.current.ID != t.ID
	tc := t.Clone()
	p.current = &tc
	if err := p.queue.SetCurrentIndex(index); err != nil {
		// Caller resolved the index from this queue; out of range here
		// means ad hoc playback.
		_ = p.queue.SetCurrentIndex(-1)
		index = -1
	}
	p.isLoading = true
	p.currentTime = 0
	p.duration = t.Duration
	cur := tc.Clone()
	p.mu.Unlock()

	evs := []event.Event{{Type: event.TypeLoading, Track: &cur, Index: index}}
	if changed {
		evs = append(evs, event.Event{Type: event.TypeTrackChange, Track: &cur, Index: index})
	}
	p.emit(evs...)

	startErr := p.engine.Load(context.Background(), t)
	if startErr == nil {
		startErr = p.engine.Play(context.Background())
	}

	p.mu.Lock()
	p.isLoading = false
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.emit(event.Event{Type: event.TypeStateChange})
	p.saveNow(snap)

	if startErr != nil {
		return p.fail(ctxTag, classify(startErr), "engine failed to start track", startErr)
	}
	return nil
}

// restore applies the persisted snapshot. All failures are non-fatal.
func (p *Player) restore() {
	snap, err := p.persist.Load(persist.Defaults{
		Volume:       p.volume,
		PlaybackRate: 1.0,
		RepeatMode:   queue.RepeatNone,
	})
	if err != nil {
		zlog.Warn().Err(err).Msg("player: failed to restore persisted state")
		p.reportStorageError("restore", err)
		return
	}
	if snap == nil {
		return
	}

	p.mu.Lock()
	p.volume = snap.Volume
	p.rate = snap.PlaybackRate
	if mode, err := queue.ParseRepeatMode(snap.RepeatMode); err == nil {
		p.repeatMode = mode
	}
	p.shuffling = snap.IsShuffling
	p.currentTime = snap.CurrentTime

	tracks := make([]track.Track, len(snap.Queue))
	for i, pt := range snap.Queue {
		tracks[i] = pt.Track()
	}
	if len(tracks) > 0 {
		if err := p.queue.Add(tracks...); err != nil {
			zlog.Warn().Err(err).Msg("player: dropping restored queue")
		}
	}

	// The stored index disambiguates duplicate IDs; fall back to the
	// first match, and leave no current track when the ID is absent.
	index := -1
	if snap.CurrentTrackID != "" {
		if t, ok := p.queue.Track(snap.CurrentQueueIndex); ok && t.ID == snap.CurrentTrackID {
			index = snap.CurrentQueueIndex
		} else {
			index = p.queue.IndexOf(snap.CurrentTrackID)
		}
	}
	if index < 0 {
		p.currentTime = 0
		p.mu.Unlock()
		return
	}

	_ = p.queue.SetCurrentIndex(index)
	p.current = p.queue.Current()
	cur := p.current.Clone()
	rate := p.rate
	position := p.currentTime
	p.mu.Unlock()

	// Load without starting playback. Engine calls happen outside the
	// lock; their callbacks re-enter the player.
	if err := p.engine.Load(context.Background(), cur); err != nil {
		zlog.Warn().Err(err).Msgf("player: failed to reload track %s", cur.ID)
		return
	}
	if rate != 1.0 {
		p.engine.SetRate(rate)
	}
	if position > 0 {
		if err := p.engine.Seek(position); err != nil {
			zlog.Debug().Err(err).Msg("player: failed to seek restored position")
		}
	}
}

func (p *Player) engineEvents() EngineEvents {
	return EngineEvents{
		OnPlay:           p.handleEnginePlay,
		OnPause:          p.handleEnginePause,
		OnEnded:          p.handleEngineEnded,
		OnTimeUpdate:     p.handleEngineTimeUpdate,
		OnDurationChange: p.handleEngineDurationChange,
		OnVolumeChange:   p.handleEngineVolumeChange,
		OnRateChange:     p.handleEngineRateChange,
		OnLoadedData:     p.handleEngineLoadedData,
		OnError:          p.handleEngineError,
	}
}

func (p *Player) handleEnginePlay() {
	p.mu.Lock()
	p.isPlaying = true
	p.isPaused = false
	p.mu.Unlock()
	p.emit(
		event.Event{Type: event.TypePlay},
		event.Event{Type: event.TypeStateChange},
	)
}

func (p *Player) handleEnginePause() {
	p.mu.Lock()
	p.isPlaying = false
	p.isPaused = true
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.emit(
		event.Event{Type: event.TypePause},
		event.Event{Type: event.TypeStateChange},
	)
	p.saveNow(snap)
}

func (p *Player) handleEngineEnded() {
	p.mu.Lock()
	p.isPlaying = false
	p.isPaused = false
	var cur *track.Track
	if p.current != nil {
		t := p.current.Clone()
		cur = &t
	}
	p.mu.Unlock()
	p.emit(
		event.Event{Type: event.TypeEnded, Track: cur},
		event.Event{Type: event.TypeStateChange},
	)
	// Exhaustion resolves per repeat policy; Next pauses when there is
	// no valid destination.
	_ = p.Next()
}

func (p *Player) handleEngineTimeUpdate(position float64) {
	p.mu.Lock()
	p.currentTime = position
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.emit(event.Event{Type: event.TypeTimeUpdate, Position: position})
	if p.persist != nil {
		p.persist.SaveDebounced(snap)
	}
}

func (p *Player) handleEngineDurationChange(duration float64) {
	p.mu.Lock()
	p.duration = duration
	p.mu.Unlock()
	p.emit(
		event.Event{Type: event.TypeDurationChange, Duration: duration},
		event.Event{Type: event.TypeStateChange},
	)
}

func (p *Player) handleEngineVolumeChange(v float64) {
	p.mu.Lock()
	p.volume = v
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.emit(
		event.Event{Type: event.TypeVolumeChange, Volume: v},
		event.Event{Type: event.TypeStateChange},
	)
	p.saveNow(snap)
}

func (p *Player) handleEngineRateChange(r float64) {
	p.mu.Lock()
	p.rate = r
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.emit(
		event.Event{Type: event.TypeRateChange, Rate: r},
		event.Event{Type: event.TypeStateChange},
	)
	p.saveNow(snap)
}

func (p *Player) handleEngineLoadedData() {
	p.mu.Lock()
	p.isLoading = false
	p.mu.Unlock()
	p.emit(
		event.Event{Type: event.TypeLoadedData},
		event.Event{Type: event.TypeStateChange},
	)
}

func (p *Player) handleEngineError(err error) {
	_ = p.fail("engine", classify(err), "engine reported failure", err)
}

func (p *Player) stateLocked() State {
	s := State{
		IsPlaying:         p.isPlaying,
		IsPaused:          p.isPaused,
		IsLoading:         p.isLoading,
		CurrentTime:       p.currentTime,
		Duration:          p.duration,
		Volume:            p.volume,
		PlaybackRate:      p.rate,
		CurrentQueueIndex: p.queue.CurrentIndex(),
		QueueLength:       p.queue.Len(),
		RepeatMode:        p.repeatMode,
		IsShuffling:       p.shuffling,
		Err:               p.lastErr,
	}
	if p.current != nil {
		t := p.current.Clone()
		s.CurrentTrack = &t
	}
	return s
}

func (p *Player) snapshotLocked() persist.Snapshot {
	snap := persist.Snapshot{
		CurrentTime:       p.currentTime,
		Volume:            p.volume,
		PlaybackRate:      p.rate,
		RepeatMode:        p.repeatMode.String(),
		IsShuffling:       p.shuffling,
		CurrentQueueIndex: p.queue.CurrentIndex(),
	}
	if p.current != nil {
		snap.CurrentTrackID = p.current.ID
	}
	for _, t := range p.queue.Tracks() {
		snap.Queue = append(snap.Queue, persist.FromTrack(t))
	}
	return snap
}

// fail records a player error, emits an error event and returns it.
// Failures never interrupt playback of an already-loaded track.
func (p *Player) fail(ctxTag string, code ErrorCode, msg string, cause error) *Error {
	p.mu.Lock()
	snap := p.stateLocked()
	e := &Error{
		Code:      code,
		Message:   msg,
		Context:   ctxTag,
		Timestamp: time.Now(),
		State:     &snap,
		Cause:     cause,
	}
	p.lastErr = e
	p.mu.Unlock()

	zlog.Warn().Err(cause).Msgf("player: %s failed: %s (%s)", ctxTag, msg, code)
	p.emit(event.Event{Type: event.TypeError, Err: e})
	return e
}

// saveNow persists the snapshot immediately. Store failures are
// non-fatal: logged and reported through the event bus.
func (p *Player) saveNow(snap persist.Snapshot) {
	if p.persist == nil {
		return
	}
	if err := p.persist.Save(snap); err != nil {
		zlog.Warn().Err(err).Msg("player: failed to persist state")
		p.reportStorageError("persist", err)
	}
}

func (p *Player) reportStorageError(ctxTag string, cause error) {
	e := &Error{
		Code:      CodeUnknown,
		Message:   "persistence failure",
		Context:   ctxTag,
		Timestamp: time.Now(),
		Cause:     cause,
	}
	p.emit(event.Event{Type: event.TypeError, Err: e})
}

func (p *Player) emit(events ...event.Event) {
	for _, e := range events {
		p.bus.Emit(e)
	}
}
