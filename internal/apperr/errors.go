package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrAuth       = errors.New("unauthenticated")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage failure")
	ErrConflict   = errors.New("concurrent modification")
)

// Error carries a client-facing message next to the category sentinel and
// an optional underlying cause that is never shown to clients.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Err }

func Auth(msg string, err error) error { return &Error{Kind: ErrAuth, Message: msg, Err: err} }

func Forbidden(msg string) error { return &Error{Kind: ErrForbidden, Message: msg} }

func Validation(msg string) error { return &Error{Kind: ErrValidation, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Message: msg} }

func Storage(op string, err error) error {
	return &Error{Kind: ErrStorage, Message: op, Err: err}
}

// Kind maps an error onto the category name sent in `error` frames.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrForbidden):
		return "authorization"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStorage), errors.Is(err, ErrConflict):
		return "storage"
	default:
		return "internal"
	}
}

// PublicMessage is the text a client may see. Storage and unknown failures
// collapse into a generic line so no internal detail leaks.
func PublicMessage(err error) string {
	switch Kind(err) {
	case "storage", "internal":
		return "something went wrong, please try again"
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
