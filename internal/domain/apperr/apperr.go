// Package apperr defines the error taxonomy shared by the domain services.
//
// Every error that crosses a service boundary carries a stable Kind so that
// transports can map it to a status code without string matching. The
// original failure is kept in the chain for logging.
package apperr

import (
	"github.com/go-faster/errors"
)

// Kind classifies a domain failure.
type Kind string

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = ""
	// KindValidation marks malformed or missing input.
	KindValidation Kind = "validation"
	// KindNotFound marks a missing user, menu item, cart or order.
	KindNotFound Kind = "not_found"
	// KindConflict marks a request that is well-formed but not allowed in the
	// current state.
	KindConflict Kind = "conflict"
	// KindExternal marks a payment gateway failure or an unverifiable webhook.
	KindExternal Kind = "external_service"
	// KindPersistence marks a storage read or write failure.
	KindPersistence Kind = "persistence"
)

// Error is a classified domain error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New returns a classified error without an underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Persistence is shorthand for Wrap(err, KindPersistence, msg).
func Persistence(err error, msg string) error {
	return Wrap(err, KindPersistence, msg)
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// kinded is implemented by typed domain errors that carry extra fields.
type kinded interface {
	Kind() Kind
}

// KindOf returns the first classification found in the chain of err.
func KindOf(err error) Kind {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Kind != KindUnknown {
				return e.Kind
			}
		case kinded:
			return e.Kind()
		}
		err = errors.Unwrap(err)
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// MessageOf returns the user-facing message of the outermost classified
// error in the chain, or "" when there is none.
func MessageOf(err error) string {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Message
		case kinded:
			return err.Error()
		}
		err = errors.Unwrap(err)
	}
	return ""
}
