package upstream

import (
	"errors"
	"net/http"
)

// AsError unwraps err to an *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// BadRequest reports invalid caller input.
func BadRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

// BadGateway reports an unusable upstream reply.
func BadGateway(msg, details string) *Error {
	return &Error{Status: http.StatusBadGateway, Message: msg, Details: details}
}
