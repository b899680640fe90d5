package core

import (
	"errors"
	"fmt"
)

var (
	ErrConnection  = errors.New("gateway unreachable")
	ErrAttach      = errors.New("attach failed")
	ErrJoin        = errors.New("join rejected")
	ErrRequest     = errors.New("request failed")
	ErrNegotiation = errors.New("negotiation failed")
	ErrTeardown    = errors.New("teardown failed")
	ErrClosed      = errors.New("room destroyed")
)

// RequestError is a rejected plugin request. Payload is the gateway's error
// message, or the request itself when no reply was received.
type RequestError struct {
	Payload Message
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	code := e.Payload.Str("error_code")
	if code == "" {
		return fmt.Sprintf("request failed: %s", e.Payload.Str("error"))
	}
	return fmt.Sprintf("request failed: %s %s", code, e.Payload.Str("error"))
}

func (e *RequestError) Is(target error) bool { return target == ErrRequest }

func (e *RequestError) Unwrap() error { return e.Err }

// Code returns the gateway error code, 0 when absent.
func (e *RequestError) Code() int {
	if f, ok := e.Payload["error_code"].(float64); ok {
		return int(f)
	}
	if i, ok := e.Payload["error_code"].(int); ok {
		return i
	}
	return 0
}
