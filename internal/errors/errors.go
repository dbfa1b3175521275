package errors

import (
	"errors"
	"fmt"
)

// Kind tells the event delivery side what to do with a failed handler run.
type Kind int

const (
	// KindTransient failures are left unacknowledged so the transport redelivers them.
	KindTransient Kind = iota
	// KindReferential marks an internal invariant violation: a referenced
	// document is missing. Nothing was written; redelivery will not help.
	KindReferential
	// KindCollision marks a duplicate capability token. Fatal, needs an operator.
	KindCollision
	// KindInvalid marks malformed input documents.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindReferential:
		return "referential"
	case KindCollision:
		return "collision"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error is a classified error carrying a code and optional metadata.
type Error struct {
	Code     Code
	Kind     Kind
	Message  string
	Metadata map[string]string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, code Code, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

// Wrap creates a classified error around cause.
func Wrap(kind Kind, code Code, message string, cause error) *Error {
	return &Error{Code: code, Kind: kind, Message: message, Err: cause}
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *Error) WithMetadata(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Transient wraps a store or transport failure.
func Transient(message string, cause error) *Error {
	return Wrap(KindTransient, CodeStoreUnavailable, message, cause)
}

// Referential reports a missing referenced document.
func Referential(code Code, message string) *Error {
	return New(KindReferential, code, message)
}

// Collision reports a duplicate capability token.
func Collision(message string) *Error {
	return New(KindCollision, CodeIdentityCollision, message)
}

// Invalid reports a malformed document or field path.
func Invalid(code Code, message string) *Error {
	return New(KindInvalid, code, message)
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are treated as transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// GetCode extracts the error code from any error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsPermanent reports whether redelivering the work that produced err cannot
// succeed. A joined error is permanent only when all of its parts are.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		parts := joined.Unwrap()
		if len(parts) == 0 {
			return false
		}
		for _, part := range parts {
			if !IsPermanent(part) {
				return false
			}
		}
		return true
	}
	return KindOf(err) != KindTransient
}
