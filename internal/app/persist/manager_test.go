package persist

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/phonobox/internal/app/queue"
	"github.com/osa030/phonobox/internal/infra/store"
)

var testDefaults = Defaults{
	Volume:       1.0,
	PlaybackRate: 1.0,
	RepeatMode:   queue.RepeatNone,
}

func testSnapshot() Snapshot {
	return Snapshot{
		CurrentTrackID: "a",
		CurrentTime:    42.5,
		Volume:         0.8,
		PlaybackRate:   1.25,
		RepeatMode:     "all",
		IsShuffling:    true,
		Queue: []PersistedTrack{
			{ID: "a", Src: "/a.mp3", Title: "A", Artist: "Artist A"},
			{ID: "b", Src: "/b.mp3", Title: "B"},
		},
		CurrentQueueIndex: 0,
	}
}

func TestManager_SaveLoad(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st, "state", 0)

	require.NoError(t, m.Save(testSnapshot()))

	got, err := m.Load(testDefaults)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, SchemaVersion, got.Version)
	assert.Equal(t, "a", got.CurrentTrackID)
	assert.Equal(t, 42.5, got.CurrentTime)
	assert.Equal(t, 0.8, got.Volume)
	assert.Equal(t, 1.25, got.PlaybackRate)
	assert.Equal(t, "all", got.RepeatMode)
	assert.True(t, got.IsShuffling)
	assert.Len(t, got.Queue, 2)
	assert.Equal(t, 0, got.CurrentQueueIndex)
}

func TestManager_LoadMissing(t *testing.T) {
	m := NewManager(store.NewMemory(), "state", 0)

	got, err := m.Load(testDefaults)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestManager_LoadCorrupt(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.Set("state", []byte("{not json")))

	m := NewManager(st, "state", 0)
	_, err := m.Load(testDefaults)
	assert.Error(t, err)
}

func TestManager_VersionMismatch(t *testing.T) {
	st := store.NewMemory()
	stale := testSnapshot()
	stale.Version = "0"
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, st.Set("state", data))

	m := NewManager(st, "state", 0)
	got, err := m.Load(testDefaults)
	require.NoError(t, err)
	assert.Nil(t, got, "mismatched schema version discards the snapshot")

	_, err = st.Get("state")
	assert.ErrorIs(t, err, store.ErrNotFound, "stale snapshot is cleared from the store")
}

func TestManager_LoadSanitizesFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
		check  func(*testing.T, *Snapshot)
	}{
		{
			name:   "volume out of range falls back",
			mutate: func(s *Snapshot) { s.Volume = 3.5 },
			check: func(t *testing.T, s *Snapshot) {
				assert.Equal(t, 1.0, s.Volume)
				assert.Equal(t, "all", s.RepeatMode, "other fields keep their stored values")
			},
		},
		{
			name:   "negative volume falls back",
			mutate: func(s *Snapshot) { s.Volume = -0.1 },
			check: func(t *testing.T, s *Snapshot) {
				assert.Equal(t, 1.0, s.Volume)
			},
		},
		{
			name:   "non-positive rate falls back",
			mutate: func(s *Snapshot) { s.PlaybackRate = 0 },
			check: func(t *testing.T, s *Snapshot) {
				assert.Equal(t, 1.0, s.PlaybackRate)
			},
		},
		{
			name:   "unknown repeat mode falls back",
			mutate: func(s *Snapshot) { s.RepeatMode = "sideways" },
			check: func(t *testing.T, s *Snapshot) {
				assert.Equal(t, "none", s.RepeatMode)
			},
		},
		{
			name:   "negative position resets",
			mutate: func(s *Snapshot) { s.CurrentTime = -5 },
			check: func(t *testing.T, s *Snapshot) {
				assert.Equal(t, 0.0, s.CurrentTime)
			},
		},
		{
			name:   "index beyond queue resets",
			mutate: func(s *Snapshot) { s.CurrentQueueIndex = 9 },
			check: func(t *testing.T, s *Snapshot) {
				assert.Equal(t, -1, s.CurrentQueueIndex)
			},
		},
		{
			name: "incomplete queue entries dropped individually",
			mutate: func(s *Snapshot) {
				s.Queue = append(s.Queue, PersistedTrack{ID: "c"}) // Missing src and title
			},
			check: func(t *testing.T, s *Snapshot) {
				require.Len(t, s.Queue, 2)
				assert.Equal(t, "a", s.Queue[0].ID)
				assert.Equal(t, "b", s.Queue[1].ID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			m := NewManager(st, "state", 0)

			snap := testSnapshot()
			tt.mutate(&snap)
			require.NoError(t, m.Save(snap))

			got, err := m.Load(testDefaults)
			require.NoError(t, err)
			require.NotNil(t, got)
			tt.check(t, got)
		})
	}
}

func TestManager_SaveDebounced(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st, "state", 20*time.Millisecond)

	first := testSnapshot()
	first.CurrentTime = 1
	second := testSnapshot()
	second.CurrentTime = 2

	m.SaveDebounced(first)
	m.SaveDebounced(second)

	_, err := st.Get("state")
	assert.ErrorIs(t, err, store.ErrNotFound, "nothing lands before the window elapses")

	assert.Eventually(t, func() bool {
		_, err := st.Get("state")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	got, err := m.Load(testDefaults)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2.0, got.CurrentTime, "the latest snapshot wins")
}

func TestManager_FlushWritesPending(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st, "state", time.Hour)

	m.SaveDebounced(testSnapshot())
	require.NoError(t, m.Flush())

	got, err := m.Load(testDefaults)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.CurrentTrackID)
}

func TestManager_ImmediateSaveSupersedesPending(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st, "state", time.Hour)

	pending := testSnapshot()
	pending.CurrentTime = 1
	m.SaveDebounced(pending)

	immediate := testSnapshot()
	immediate.CurrentTime = 2
	require.NoError(t, m.Save(immediate))
	require.NoError(t, m.Flush())

	got, err := m.Load(testDefaults)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2.0, got.CurrentTime, "an immediate save drops the stale pending snapshot")
}

func TestManager_CloseCancelsPending(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st, "state", 10*time.Millisecond)

	m.SaveDebounced(testSnapshot())
	m.Close()

	time.Sleep(30 * time.Millisecond)
	_, err := st.Get("state")
	assert.ErrorIs(t, err, store.ErrNotFound)

	m.SaveDebounced(testSnapshot())
	time.Sleep(30 * time.Millisecond)
	_, err = st.Get("state")
	assert.ErrorIs(t, err, store.ErrNotFound, "a closed manager accepts no further writes")
}

func TestManager_Clear(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st, "state", 0)

	require.NoError(t, m.Save(testSnapshot()))
	require.NoError(t, m.Clear())

	got, err := m.Load(testDefaults)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Clearing an absent snapshot is fine.
	require.NoError(t, m.Clear())
}
