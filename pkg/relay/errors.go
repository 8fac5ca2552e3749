// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// ClientInputError reports a request the relay refuses before any outbound call.
type ClientInputError struct {
	Status  int    // Status is the 4xx code returned to the caller.
	Message string // Message is safe to show to the caller.
	Err     error  // Err retains the parsing cause for logging.
}

// Error implements the error interface for ClientInputError.
func (e *ClientInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying error for errors.Is / errors.As checks.
func (e *ClientInputError) Unwrap() error {
	return e.Err
}

// UpstreamError is a non-2xx answer from the background-removal API.
type UpstreamError struct {
	Status int    // Status is relayed to the caller unchanged.
	Body   string // Body is the upstream error text, possibly empty.
}

// Error implements the error interface for UpstreamError.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.Status)
}

// Message is the text relayed to the caller: the upstream body, or the
// standard reason phrase when the body is empty.
func (e *UpstreamError) Message() string {
	if e.Body != "" {
		return e.Body
	}
	if text := http.StatusText(e.Status); text != "" {
		return text
	}
	return fmt.Sprintf("upstream status %d", e.Status)
}

// TransportError wraps a failure to complete the upstream round trip.
type TransportError struct {
	Cause error
}

// Error implements the error interface for TransportError.
func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream transport: %v", e.Cause)
}

// Unwrap exposes the underlying error for errors.Is / errors.As checks.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// StatusOf maps an error returned by the relay to the status sent downstream.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var clientErr *ClientInputError
	if errors.As(err, &clientErr) {
		return clientErr.Status
	}

	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Status
	}

	return http.StatusInternalServerError
}

func missingFile(cause error) *ClientInputError {
	return &ClientInputError{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("No file uploaded (use field name '%s').", FieldImageFile),
		Err:     cause,
	}
}

func uploadTooLarge(limit int64, cause error) *ClientInputError {
	return &ClientInputError{
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("Upload must not be larger than %d bytes.", limit),
		Err:     cause,
	}
}
