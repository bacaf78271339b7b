package protocol

import (
	"errors"
	"fmt"
)

// MalformedFrameError reports a frame that is not a valid request envelope.
type MalformedFrameError struct {
	Reason string
	Err    error
}

func (e *MalformedFrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed frame: %s: %v", e.Reason, e.Err)
	}
	return "malformed frame: " + e.Reason
}

func (e *MalformedFrameError) Unwrap() error {
	return e.Err
}

// UnknownCommandError reports a well-formed request with an unknown cmd tag.
type UnknownCommandError struct {
	Command   string
	RequestID string
}

func (e *UnknownCommandError) Error() string {
	return "unknown command " + e.Command
}

// InvalidPayloadError reports a payload field that is not valid base64.
type InvalidPayloadError struct {
	Field     string
	RequestID string
	Err       error
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid %s payload: %v", e.Field, e.Err)
}

func (e *InvalidPayloadError) Unwrap() error {
	return e.Err
}

// FrameTooLargeError reports a frame exceeding the reader's size limit. The
// reader has already skipped the rest of the frame when this is returned.
type FrameTooLargeError struct {
	Limit int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame exceeds maximum size of %d bytes", e.Limit)
}

// RequestIDOf returns the request id carried by a decode error, if any.
func RequestIDOf(err error) string {
	var unknown *UnknownCommandError
	if errors.As(err, &unknown) {
		return unknown.RequestID
	}
	var invalid *InvalidPayloadError
	if errors.As(err, &invalid) {
		return invalid.RequestID
	}
	return ""
}
