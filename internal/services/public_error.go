package services

import "errors"

// PublicError pairs a service sentinel with a message that can be shown to shoppers as is.
// Field names the offending input when the error is a validation failure.
type PublicError struct {
	Kind    error
	Field   string
	Message string
}

func (e *PublicError) Error() string {
	if e == nil {
		return ""
	}
	if e.Kind == nil {
		return e.Message
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *PublicError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

func publicError(kind error, field, message string) *PublicError {
	return &PublicError{Kind: kind, Field: field, Message: message}
}

// AsPublicError extracts a PublicError from err.
func AsPublicError(err error) (*PublicError, bool) {
	var pub *PublicError
	if errors.As(err, &pub) {
		return pub, true
	}
	return nil, false
}
