// Package errors defines the error returned for malformed remote execution
// frames.
package errors

import (
	"errors"
	"fmt"
)

// ProtocolError reports a frame that violates the pcx/1 wire format. Peers
// that send one are answered with an error frame and the stream is closed.
type ProtocolError struct {
	Field   string // frame field being decoded, empty when not known
	Message string
	Cause   error
}

func (e *ProtocolError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// IsProtocolError checks if err or anything it wraps is a protocol error
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// WrapProtocolError wraps a decoding failure of field as a protocol error
func WrapProtocolError(err error, field string) *ProtocolError {
	return &ProtocolError{
		Field:   field,
		Message: "malformed",
		Cause:   err,
	}
}

// ProtocolErrorf creates a new protocol error with formatted message
func ProtocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Message: fmt.Sprintf(format, args...)}
}
