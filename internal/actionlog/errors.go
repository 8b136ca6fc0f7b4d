package actionlog

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAction is returned when no interception point is registered for an action.
	ErrUnknownAction = errors.New("unknown instance action")
	// ErrNilExchange is returned when Intercept is given a nil request or response.
	ErrNilExchange = errors.New("nil request or response")
	// ErrAlreadyIntercepted is returned when the same request is intercepted twice.
	ErrAlreadyIntercepted = errors.New("request already intercepted")
	// ErrExtraction matches every *ExtractionError.
	ErrExtraction = errors.New("action detail extraction failed")
	// ErrAppend matches every *AppendError.
	ErrAppend = errors.New("action log append failed")
)

// ExtractionError reports a request or response body that lacks a key the
// action's detail rule depends on.
type ExtractionError struct {
	Action Action
	Key    string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s body is missing %q", ErrExtraction, e.Action, e.Key)
}

// Is lets errors.Is(err, ErrExtraction) match.
func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// AppendError wraps a store failure. It is a warning for the caller of the
// audit layer; the underlying operation's result is unaffected.
type AppendError struct {
	Action   Action
	TargetID string
	Err      error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("%s: %s on %s: %v", ErrAppend, e.Action, e.TargetID, e.Err)
}

func (e *AppendError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrAppend) match.
func (e *AppendError) Is(target error) bool { return target == ErrAppend }
