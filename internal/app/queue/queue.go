// Package queue provides the ordered track queue with index bookkeeping,
// shuffle support and navigation.
package queue

import (
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/phonobox/internal/domain/track"
)

// Errors
var (
	ErrIndexOutOfRange = errors.New("queue index out of range")
	ErrEmptyQueue      = errors.New("queue is empty")
)

// RestartThreshold is the playback position (seconds) beyond which a
// previous() call restarts the current track instead of moving back.
// The comparison is strict: at exactly 3.0s the rule does not trigger.
const RestartThreshold = 3.0

// Queue is an ordered sequence of tracks with a current position.
// It is not internally synchronized; the owning player serializes access.
//
// Invariant: current is either -1 (no current track) or a valid index.
type Queue struct {
	tracks   []track.Track
	current  int
	original []track.Track // Pre-shuffle order; non-nil only while shuffled
	rng      *rand.Rand
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		tracks:  make([]track.Track, 0),
		current: -1,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add validates and appends tracks to the tail of the queue.
// Validation is all-or-nothing: if any track in the batch is invalid,
// nothing is appended. Duplicate IDs are permitted.
func (q *Queue) Add(tracks ...track.Track) error {
	for _, t := range tracks {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for _, t := range tracks {
		q.tracks = append(q.tracks, t.Clone())
	}
	return nil
}

// Remove removes the track at index and returns it.
// The current index is adjusted so it keeps addressing the same track
// where possible; removing the current track makes the next track take
// its place, clamping to the new tail (or -1 when the queue empties).
func (q *Queue) Remove(index int) (track.Track, error) {
	if len(q.tracks) == 0 {
		return track.Track{}, ErrEmptyQueue
	}
	if index < 0 || index >= len(q.tracks) {
		return track.Track{}, errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", index, len(q.tracks))
	}

	removed := q.tracks[index]
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)

	switch {
	case index < q.current:
		q.current--
	case index == q.current:
		if len(q.tracks) == 0 {
			q.current = -1
		} else if q.current >= len(q.tracks) {
			q.current = len(q.tracks) - 1
		}
	}
	return removed, nil
}

// Clear empties the queue and resets the current index. Any saved
// pre-shuffle order is dropped with the tracks it described.
func (q *Queue) Clear() {
	q.tracks = q.tracks[:0]
	q.current = -1
	q.original = nil
}

// Reorder moves the track at from to position to. The current index is
// re-derived so it keeps pointing at the same track identity.
func (q *Queue) Reorder(from, to int) error {
	n := len(q.tracks)
	if from < 0 || from >= n || to < 0 || to >= n {
		return errors.Wrapf(ErrIndexOutOfRange, "from %d, to %d, length %d", from, to, n)
	}
	if from == to {
		return nil
	}

	t := q.tracks[from]
	q.tracks = append(q.tracks[:from], q.tracks[from+1:]...)
	q.tracks = append(q.tracks[:to], append([]track.Track{t}, q.tracks[to:]...)...)

	switch {
	case q.current == from:
		q.current = to
	case from < q.current && to >= q.current:
		q.current--
	case from > q.current && to <= q.current:
		q.current++
	}
	return nil
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// Tracks returns a defensive copy of the queued tracks.
func (q *Queue) Tracks() []track.Track {
	result := make([]track.Track, len(q.tracks))
	for i, t := range q.tracks {
		result[i] = t.Clone()
	}
	return result
}

// Track returns a copy of the track at index.
func (q *Queue) Track(index int) (track.Track, bool) {
	if index < 0 || index >= len(q.tracks) {
		return track.Track{}, false
	}
	return q.tracks[index].Clone(), true
}

// CurrentIndex returns the current index, or -1 when no track is current.
func (q *Queue) CurrentIndex() int {
	return q.current
}

// SetCurrentIndex sets the current index. -1 clears the current track.
func (q *Queue) SetCurrentIndex(index int) error {
	if index != -1 && (index < 0 || index >= len(q.tracks)) {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", index, len(q.tracks))
	}
	q.current = index
	return nil
}

// Current returns a copy of the current track, or nil when none.
func (q *Queue) Current() *track.Track {
	if q.current < 0 || q.current >= len(q.tracks) {
		return nil
	}
	t := q.tracks[q.current].Clone()
	return &t
}

// IndexOf returns the index of the first track with the given ID,
// or -1 when absent.
func (q *Queue) IndexOf(id string) int {
	for i, t := range q.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// NextIndex resolves the index next() should move to.
// -1 means there is no valid destination and playback should pause.
func (q *Queue) NextIndex(mode RepeatMode) int {
	n := len(q.tracks)
	if n == 0 {
		return -1
	}
	if mode == RepeatOne {
		return q.current
	}

	if mode == RepeatAll {
		if q.current < 0 {
			return 0
		}
		return (q.current + 1) % n
	}

	// RepeatNone. A negative current index resolves to the head:
	// nothing is playing yet, so next() starts from the top.
	next := q.current + 1
	if next < n {
		return next
	}
	return -1
}

// PreviousIndex resolves the index previous() should move to, given the
// current playback position in seconds.
// -1 means there is no valid destination and playback should pause.
func (q *Queue) PreviousIndex(mode RepeatMode, position float64) int {
	n := len(q.tracks)
	if n == 0 {
		return -1
	}
	if mode == RepeatOne {
		return q.current
	}

	// Past the restart threshold, previous() restarts the current track
	// regardless of repeat mode.
	if position > RestartThreshold {
		return q.current
	}

	if mode == RepeatAll {
		if q.current < 0 {
			return n - 1
		}
		return (q.current - 1 + n) % n
	}

	prev := q.current - 1
	if prev >= 0 {
		return prev
	}
	return -1
}

// Shuffle randomizes the queue order in place using Fisher-Yates.
// The pre-shuffle order is snapshotted before the first shuffle. If a
// current track exists, its slot is pinned: every other element is
// permuted around it so the visible position does not jump.
// Returns false (no-op) for queues shorter than two tracks.
func (q *Queue) Shuffle() bool {
	if len(q.tracks) < 2 {
		return false
	}

	if q.original == nil {
		q.original = make([]track.Track, len(q.tracks))
		copy(q.original, q.tracks)
	}

	positions := make([]int, 0, len(q.tracks))
	for i := range q.tracks {
		if i != q.current {
			positions = append(positions, i)
		}
	}
	for i := len(positions) - 1; i > 0; i-- {
		j := q.rng.Intn(i + 1)
		pi, pj := positions[i], positions[j]
		q.tracks[pi], q.tracks[pj] = q.tracks[pj], q.tracks[pi]
	}
	return true
}

// Unshuffle restores the saved pre-shuffle order, re-derives the current
// index by locating the current track's ID in the restored order (-1 when
// absent, e.g. it was removed while shuffled), then clears the saved
// order. Returns false (no-op) when no order is saved.
func (q *Queue) Unshuffle() bool {
	if len(q.original) == 0 {
		return false
	}

	var currentID string
	if cur := q.Current(); cur != nil {
		currentID = cur.ID
	}

	q.tracks = q.original
	q.original = nil

	q.current = -1
	if currentID != "" {
		q.current = q.IndexOf(currentID)
	}
	return true
}

// IsShuffled reports whether a pre-shuffle order is currently saved.
func (q *Queue) IsShuffled() bool {
	return q.original != nil
}
