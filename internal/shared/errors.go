package shared

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and the HTTP layer.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindAuthRequired
	KindValidation
	KindGeneration
	KindProvider
	KindSearch
	KindStore
	KindTranscription
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "authentication_required"
	case KindValidation:
		return "validation_error"
	case KindGeneration:
		return "generation_error"
	case KindProvider:
		return "provider_error"
	case KindSearch:
		return "search_error"
	case KindStore:
		return "store_error"
	case KindTranscription:
		return "transcription_error"
	case KindNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

// Error is a classified error. Op names the failing operation and Msg is a
// human-readable summary safe to show to the user.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// AuthRequired reports missing or rejected credentials.
func AuthRequired(op string, err error) *Error {
	return E(KindAuthRequired, op, "authentication required", err)
}

// Validation reports missing or malformed caller input.
func Validation(op, msg string) *Error {
	return E(KindValidation, op, msg, nil)
}

// Generation reports a failed or unparsable text-generation call.
func Generation(op string, err error) *Error {
	return E(KindGeneration, op, "text generation failed", err)
}

// Provider reports a failed mail-provider call.
func Provider(op string, err error) *Error {
	return E(KindProvider, op, "mail provider request failed", err)
}

// Store reports an unavailable store or a write conflict.
func Store(op string, err error) *Error {
	return E(KindStore, op, "store unavailable", err)
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}

// IsAuthRequired reports whether err carries KindAuthRequired.
func IsAuthRequired(err error) bool {
	return KindOf(err) == KindAuthRequired
}
