package practicum

import (
	"errors"
	"fmt"
	"net/url"
)

// TransportError indicates the request never produced an HTTP response.
type TransportError struct {
	Err      error
	Endpoint string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResponseCodeError indicates the API answered with a non-200 status.
type ResponseCodeError struct {
	Params     url.Values
	Endpoint   string
	Detail     string // Short excerpt of the response body, if any
	StatusCode int
}

func (e *ResponseCodeError) Error() string {
	msg := fmt.Sprintf("endpoint %s returned HTTP %d (params: %s)", e.Endpoint, e.StatusCode, e.Params.Encode())
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// ShapeError indicates a payload that does not match the documented response.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return "unexpected API response: " + e.Reason
}

// IsTransportError checks if an error is a TransportError.
func IsTransportError(err error) bool {
	var transport *TransportError
	return errors.As(err, &transport)
}

// IsResponseCodeError checks if an error is a ResponseCodeError.
func IsResponseCodeError(err error) bool {
	var code *ResponseCodeError
	return errors.As(err, &code)
}

// IsShapeError checks if an error is a ShapeError.
func IsShapeError(err error) bool {
	var shape *ShapeError
	return errors.As(err, &shape)
}
