package persist

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/phonobox/internal/infra/store"
)

// DefaultDebounce is the coalescing window for high-frequency writes.
const DefaultDebounce = 5 * time.Second

// Manager reads and writes the player snapshot through a key-value
// store. Immediate writes go straight through; debounced writes are
// coalesced so at most one write lands per window and the most recent
// snapshot wins.
type Manager struct {
	mu       sync.Mutex
	store    store.Store
	key      string
	debounce time.Duration
	timer    *time.Timer
	pending  *Snapshot
	closed   bool
}

// NewManager creates a manager writing under the given key.
func NewManager(s store.Store, key string, debounce time.Duration) *Manager {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Manager{
		store:    s,
		key:      key,
		debounce: debounce,
	}
}

// Save writes the snapshot immediately, stamping the schema version.
// A pending debounced write is superseded.
func (m *Manager) Save(snap Snapshot) error {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
	return m.write(snap)
}

// SaveDebounced schedules the snapshot for writing. Each call replaces
// any pending snapshot; the write happens at most once per debounce
// window. The timer is not guaranteed to fire before process
// termination; the data-loss window is bounded by the debounce interval.
func (m *Manager) SaveDebounced(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.pending = &snap
	if m.timer == nil {
		m.timer = time.AfterFunc(m.debounce, m.flushPending)
	}
}

func (m *Manager) flushPending() {
	m.mu.Lock()
	snap := m.pending
	m.pending = nil
	m.timer = nil
	m.mu.Unlock()

	if snap == nil {
		return
	}
	if err := m.write(*snap); err != nil {
		zlog.Warn().Err(err).Msg("persist: debounced write failed")
	}
}

// Flush writes any pending debounced snapshot now.
func (m *Manager) Flush() error {
	m.mu.Lock()
	snap := m.pending
	m.pending = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	if snap == nil {
		return nil
	}
	return m.write(*snap)
}

// Close cancels any pending write.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.pending = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Clear removes the stored snapshot.
func (m *Manager) Clear() error {
	if err := m.store.Delete(m.key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return errors.Wrap(err, "failed to clear snapshot")
	}
	return nil
}

// Load reads and validates the stored snapshot. A missing snapshot
// returns (nil, nil). A schema version mismatch discards the whole
// snapshot and clears the store entry. Individual fields failing
// validation fall back to the supplied defaults; invalid queue entries
// are dropped one by one.
func (m *Manager) Load(def Defaults) (*Snapshot, error) {
	data, err := m.store.Get(m.key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read snapshot")
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "corrupt snapshot")
	}

	version, _ := raw["version"].(string)
	if version != SchemaVersion {
		zlog.Warn().Msgf("persist: discarding snapshot with schema version %q (current %q)", version, SchemaVersion)
		if err := m.Clear(); err != nil {
			zlog.Warn().Err(err).Msg("persist: failed to clear stale snapshot")
		}
		return nil, nil
	}

	var snap Snapshot
	if err := mapstructure.Decode(raw, &snap); err != nil {
		return nil, errors.Wrap(err, "failed to decode snapshot")
	}

	snap.sanitize(def)
	return &snap, nil
}

func (m *Manager) write(snap Snapshot) error {
	snap.Version = SchemaVersion
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}
	if err := m.store.Set(m.key, data); err != nil {
		return errors.Wrap(err, "failed to write snapshot")
	}
	return nil
}
