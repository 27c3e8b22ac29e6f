package transport

import (
	"fmt"
	"net/http"
)

type (
	// ServerError is returned when the server replies with an HTTP status that is not 2xx
	ServerError struct {
		StatusCode int
		Body       string
	}

	// ServerParseError is returned when a response body is not a valid GraphQL JSON response
	ServerParseError struct {
		StatusCode int
		Err        error
	}

	// CloseError is returned to operations still in progress when the websocket closes
	CloseError struct {
		Code   int
		Reason string
	}
)

func (e *ServerError) Error() string {
	return fmt.Sprintf("server responded with status %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *ServerParseError) Error() string {
	return fmt.Sprintf("error decoding response (status %d): %v", e.StatusCode, e.Err)
}

func (e *ServerParseError) Unwrap() error { return e.Err }

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed with code %d", e.Code)
	}
	return fmt.Sprintf("websocket closed with code %d: %s", e.Code, e.Reason)
}
