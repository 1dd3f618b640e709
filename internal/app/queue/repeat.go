package queue

import "github.com/cockroachdb/errors"

// RepeatMode represents the queue traversal policy at track boundaries.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota // Stop at the end of the queue
	RepeatOne                    // Loop the current track
	RepeatAll                    // Loop the whole queue
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseRepeatMode parses a repeat mode string.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch s {
	case "none":
		return RepeatNone, nil
	case "one":
		return RepeatOne, nil
	case "all":
		return RepeatAll, nil
	default:
		return RepeatNone, errors.Newf("unrecognized repeat mode %q", s)
	}
}

// Valid reports whether m is a recognized repeat mode.
func (m RepeatMode) Valid() bool {
	return m == RepeatNone || m == RepeatOne || m == RepeatAll
}
