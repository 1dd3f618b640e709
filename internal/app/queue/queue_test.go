package queue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/phonobox/internal/domain/track"
)

func makeTracks(ids ...string) []track.Track {
	tracks := make([]track.Track, len(ids))
	for i, id := range ids {
		tracks[i] = track.Track{ID: id, Src: "/music/" + id + ".mp3", Title: "Title " + id}
	}
	return tracks
}

func filled(t *testing.T, ids ...string) *Queue {
	t.Helper()
	q := New()
	require.NoError(t, q.Add(makeTracks(ids...)...))
	return q
}

func queueIDs(q *Queue) []string {
	tracks := q.Tracks()
	ids := make([]string, len(tracks))
	for i, tr := range tracks {
		ids[i] = tr.ID
	}
	return ids
}

func TestQueue_Add(t *testing.T) {
	t.Run("appends valid tracks", func(t *testing.T) {
		q := New()
		err := q.Add(makeTracks("a", "b")...)
		require.NoError(t, err)
		assert.Equal(t, 2, q.Len())
		assert.Equal(t, -1, q.CurrentIndex())
	})

	t.Run("batch with invalid track appends nothing", func(t *testing.T) {
		q := New()
		batch := makeTracks("a")
		batch = append(batch, track.Track{ID: "b"}) // Missing src and title
		err := q.Add(batch...)
		assert.Error(t, err)
		assert.Equal(t, 0, q.Len())
	})

	t.Run("duplicate IDs permitted", func(t *testing.T) {
		q := New()
		err := q.Add(makeTracks("a", "a")...)
		require.NoError(t, err)
		assert.Equal(t, 2, q.Len())
	})

	t.Run("stores copies", func(t *testing.T) {
		q := New()
		src := track.Track{ID: "a", Src: "/a.mp3", Title: "A", Extra: map[string]any{"k": "v"}}
		require.NoError(t, q.Add(src))
		src.Extra["k"] = "mutated"
		got, ok := q.Track(0)
		require.True(t, ok)
		assert.Equal(t, "v", got.Extra["k"])
	})
}

func TestQueue_Remove(t *testing.T) {
	tests := []struct {
		name        string
		ids         []string
		current     int
		remove      int
		wantErr     bool
		wantCurrent int
		wantLen     int
	}{
		{
			name:        "before current decrements current",
			ids:         []string{"a", "b", "c"},
			current:     2,
			remove:      0,
			wantCurrent: 1,
			wantLen:     2,
		},
		{
			name:        "after current leaves current",
			ids:         []string{"a", "b", "c"},
			current:     0,
			remove:      2,
			wantCurrent: 0,
			wantLen:     2,
		},
		{
			name:        "current mid-queue keeps index (next takes its place)",
			ids:         []string{"a", "b", "c"},
			current:     1,
			remove:      1,
			wantCurrent: 1,
			wantLen:     2,
		},
		{
			name:        "current at tail clamps to new tail",
			ids:         []string{"a", "b", "c"},
			current:     2,
			remove:      2,
			wantCurrent: 1,
			wantLen:     2,
		},
		{
			name:        "last remaining track resets current",
			ids:         []string{"a"},
			current:     0,
			remove:      0,
			wantCurrent: -1,
			wantLen:     0,
		},
		{
			name:    "out of range",
			ids:     []string{"a"},
			current: 0,
			remove:  5,
			wantErr: true,
		},
		{
			name:    "negative index",
			ids:     []string{"a"},
			current: 0,
			remove:  -1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := filled(t, tt.ids...)
			require.NoError(t, q.SetCurrentIndex(tt.current))

			_, err := q.Remove(tt.remove)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIndexOutOfRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCurrent, q.CurrentIndex())
			assert.Equal(t, tt.wantLen, q.Len())
		})
	}

	t.Run("empty queue", func(t *testing.T) {
		q := New()
		_, err := q.Remove(0)
		assert.ErrorIs(t, err, ErrEmptyQueue)
	})
}

func TestQueue_Reorder(t *testing.T) {
	tests := []struct {
		name        string
		current     int
		from, to    int
		wantOrder   []string
		wantCurrent int
	}{
		{
			name:        "move current track follows it",
			current:     0,
			from:        0,
			to:          2,
			wantOrder:   []string{"b", "c", "a"},
			wantCurrent: 2,
		},
		{
			name:        "move from before current past it",
			current:     1,
			from:        0,
			to:          2,
			wantOrder:   []string{"b", "c", "a"},
			wantCurrent: 0,
		},
		{
			name:        "move from after current before it",
			current:     1,
			from:        2,
			to:          0,
			wantOrder:   []string{"c", "a", "b"},
			wantCurrent: 2,
		},
		{
			name:        "move not crossing current",
			current:     0,
			from:        1,
			to:          2,
			wantOrder:   []string{"a", "c", "b"},
			wantCurrent: 0,
		},
		{
			name:        "same position is a no-op",
			current:     1,
			from:        1,
			to:          1,
			wantOrder:   []string{"a", "b", "c"},
			wantCurrent: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := filled(t, "a", "b", "c")
			require.NoError(t, q.SetCurrentIndex(tt.current))

			require.NoError(t, q.Reorder(tt.from, tt.to))
			assert.Equal(t, tt.wantOrder, queueIDs(q))
			assert.Equal(t, tt.wantCurrent, q.CurrentIndex())
		})
	}

	t.Run("out of range", func(t *testing.T) {
		q := filled(t, "a", "b")
		assert.ErrorIs(t, q.Reorder(0, 5), ErrIndexOutOfRange)
		assert.ErrorIs(t, q.Reorder(-1, 0), ErrIndexOutOfRange)
	})
}

func TestQueue_NextIndex(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		current int
		mode    RepeatMode
		want    int
	}{
		{name: "empty queue", ids: nil, current: -1, mode: RepeatNone, want: -1},
		{name: "none advances", ids: []string{"a", "b", "c"}, current: 0, mode: RepeatNone, want: 1},
		{name: "none stops at tail", ids: []string{"a", "b", "c"}, current: 2, mode: RepeatNone, want: -1},
		{name: "none with no current starts at head", ids: []string{"a", "b"}, current: -1, mode: RepeatNone, want: 0},
		{name: "single track none stops", ids: []string{"a"}, current: 0, mode: RepeatNone, want: -1},
		{name: "one stays", ids: []string{"a", "b"}, current: 1, mode: RepeatOne, want: 1},
		{name: "all wraps", ids: []string{"a", "b", "c"}, current: 2, mode: RepeatAll, want: 0},
		{name: "all advances mid-queue", ids: []string{"a", "b", "c"}, current: 0, mode: RepeatAll, want: 1},
		{name: "all with no current starts at head", ids: []string{"a", "b"}, current: -1, mode: RepeatAll, want: 0},
		{name: "single track all wraps onto itself", ids: []string{"a"}, current: 0, mode: RepeatAll, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			if len(tt.ids) > 0 {
				require.NoError(t, q.Add(makeTracks(tt.ids...)...))
			}
			require.NoError(t, q.SetCurrentIndex(tt.current))
			assert.Equal(t, tt.want, q.NextIndex(tt.mode))
		})
	}
}

func TestQueue_PreviousIndex(t *testing.T) {
	tests := []struct {
		name     string
		ids      []string
		current  int
		mode     RepeatMode
		position float64
		want     int
	}{
		{name: "empty queue", ids: nil, current: -1, mode: RepeatNone, position: 0, want: -1},
		{name: "none moves back", ids: []string{"a", "b", "c"}, current: 2, mode: RepeatNone, position: 1.0, want: 1},
		{name: "none stops at head", ids: []string{"a", "b"}, current: 0, mode: RepeatNone, position: 1.0, want: -1},
		{name: "restart past threshold", ids: []string{"a", "b"}, current: 1, mode: RepeatNone, position: 3.1, want: 1},
		{name: "exactly at threshold moves back", ids: []string{"a", "b"}, current: 1, mode: RepeatNone, position: 3.0, want: 0},
		{name: "one stays", ids: []string{"a", "b"}, current: 0, mode: RepeatOne, position: 0, want: 0},
		{name: "all wraps from head", ids: []string{"a", "b", "c"}, current: 0, mode: RepeatAll, position: 0, want: 2},
		{name: "all with no current goes to tail", ids: []string{"a", "b", "c"}, current: -1, mode: RepeatAll, position: 0, want: 2},
		{name: "all past threshold restarts", ids: []string{"a", "b"}, current: 0, mode: RepeatAll, position: 10, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			if len(tt.ids) > 0 {
				require.NoError(t, q.Add(makeTracks(tt.ids...)...))
			}
			require.NoError(t, q.SetCurrentIndex(tt.current))
			assert.Equal(t, tt.want, q.PreviousIndex(tt.mode, tt.position))
		})
	}
}

func TestQueue_Shuffle(t *testing.T) {
	t.Run("too short is a no-op", func(t *testing.T) {
		q := filled(t, "a")
		assert.False(t, q.Shuffle())
		assert.False(t, q.IsShuffled())
	})

	t.Run("current slot is pinned", func(t *testing.T) {
		q := filled(t, "a", "b", "c", "d", "e")
		require.NoError(t, q.SetCurrentIndex(2))
		q.rng = rand.New(rand.NewSource(1))

		require.True(t, q.Shuffle())
		assert.True(t, q.IsShuffled())

		got, ok := q.Track(2)
		require.True(t, ok)
		assert.Equal(t, "c", got.ID)
		assert.Equal(t, 2, q.CurrentIndex())
		assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, queueIDs(q))
	})

	t.Run("produces a permutation without current", func(t *testing.T) {
		q := filled(t, "a", "b", "c", "d")
		q.rng = rand.New(rand.NewSource(1))

		require.True(t, q.Shuffle())
		assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, queueIDs(q))
	})
}

func TestQueue_Unshuffle(t *testing.T) {
	t.Run("restores saved order and rederives current", func(t *testing.T) {
		q := filled(t, "a", "b", "c", "d", "e")
		require.NoError(t, q.SetCurrentIndex(0))
		q.rng = rand.New(rand.NewSource(7))
		require.True(t, q.Shuffle())

		// Simulate playback moving to whatever landed at slot 3.
		require.NoError(t, q.SetCurrentIndex(3))
		movedID := queueIDs(q)[3]

		require.True(t, q.Unshuffle())
		assert.False(t, q.IsShuffled())
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, queueIDs(q))
		assert.Equal(t, q.IndexOf(movedID), q.CurrentIndex())
	})

	t.Run("current removed while shuffled resolves to -1", func(t *testing.T) {
		q := filled(t, "a", "b", "c")
		require.NoError(t, q.SetCurrentIndex(0))
		q.rng = rand.New(rand.NewSource(7))
		require.True(t, q.Shuffle())

		// Drop the current track, then point at a survivor that is later
		// removed too, leaving no current.
		cur := q.CurrentIndex()
		_, err := q.Remove(cur)
		require.NoError(t, err)
		require.NoError(t, q.SetCurrentIndex(-1))

		require.True(t, q.Unshuffle())
		assert.Equal(t, -1, q.CurrentIndex())
	})

	t.Run("no saved order is a no-op", func(t *testing.T) {
		q := filled(t, "a", "b")
		assert.False(t, q.Unshuffle())
	})
}

func TestQueue_Clear(t *testing.T) {
	q := filled(t, "a", "b", "c")
	require.NoError(t, q.SetCurrentIndex(1))
	q.rng = rand.New(rand.NewSource(1))
	require.True(t, q.Shuffle())

	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, -1, q.CurrentIndex())
	assert.False(t, q.IsShuffled())
	assert.Nil(t, q.Current())
}

func TestQueue_IndexOf(t *testing.T) {
	q := filled(t, "a", "b", "c")
	assert.Equal(t, 1, q.IndexOf("b"))
	assert.Equal(t, -1, q.IndexOf("zzz"))
}
