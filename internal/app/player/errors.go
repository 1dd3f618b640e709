package player

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Engine error sentinels. Engine implementations wrap these so failures
// can be classified into the error taxonomy.
var (
	ErrUnsupportedFormat = errors.New("unsupported media format")
	ErrNetwork           = errors.New("network failure")
)

// ErrorCode classifies a player failure.
type ErrorCode int

const (
	CodeUnknown           ErrorCode = iota // Persistence/storage failures, unexpected conditions
	CodeValidation                         // Bad caller input: malformed track, out-of-range index/time, invalid mode
	CodeState                              // Operation invalid for the current state
	CodeMediaLoad                          // Playback engine rejected load/start
	CodeNetwork                            // Network-level media failure
	CodeUnsupportedFormat                  // Media format not supported by the engine
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	switch c {
	case CodeValidation:
		return "validation_error"
	case CodeState:
		return "state_error"
	case CodeMediaLoad:
		return "media_load_error"
	case CodeNetwork:
		return "network_error"
	case CodeUnsupportedFormat:
		return "unsupported_format"
	default:
		return "unknown_error"
	}
}

// Error describes a failed player operation. It is emitted on the event
// bus and exposed through the state snapshot. Instances are treated as
// immutable once created.
type Error struct {
	Code      ErrorCode
	Message   string
	Context   string    // Tag identifying the failing operation
	Timestamp time.Time // When the failure occurred
	State     *State    // State snapshot at failure time
	Cause     error     // Underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Code, e.Message, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Context)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// classify maps an engine error to an error code.
func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return CodeUnsupportedFormat
	case errors.Is(err, ErrNetwork):
		return CodeNetwork
	default:
		return CodeMediaLoad
	}
}
