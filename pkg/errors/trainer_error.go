package errors

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// TrainerError is the single error kind returned from the outer boundary of a
// training run. It records the message of the underlying failure together with
// the source file and line where that failure originated.
type TrainerError struct {
	Message string
	File    string
	Line    int
	Err     error
}

func (e *TrainerError) Error() string {
	return fmt.Sprintf("error occurred in source file [%s] line number [%d] error message [%s]",
		e.File, e.Line, e.Message)
}

// Unwrap returns the wrapped cause so errors.Is / errors.As see through it.
func (e *TrainerError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the location fields to a zerolog event.
func (e *TrainerError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("file", e.File).
		Int("line", e.Line).
		Str("message", e.Message).
		Str("type", "TrainerError")
}

// NewTrainerError wraps err into a TrainerError. The origin is taken from the
// innermost stack trace attached to err; errors without one are attributed to
// the caller of NewTrainerError. A nil err yields nil, and an err that already
// is a TrainerError is returned unchanged.
func NewTrainerError(err error) error {
	if err == nil {
		return nil
	}
	var te *TrainerError
	if errors.As(err, &te) {
		return err
	}

	file, line, _, ok := errors.GetOneLineSource(err)
	if !ok {
		_, file, line, _ = runtime.Caller(1)
	}

	return &TrainerError{
		Message: err.Error(),
		File:    filepath.Base(file),
		Line:    line,
		Err:     err,
	}
}
