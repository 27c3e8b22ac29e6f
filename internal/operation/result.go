package operation

// result.go holds what comes back from a transport for an operation

import (
	"errors"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Result is one response to an operation. Queries and mutations get exactly one,
// subscriptions get one per event. A Result may carry partial data and failures.
type Result struct {
	Data       map[string]interface{} `json:"data,omitempty"`
	Errors     gqlerror.List          `json:"errors,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`

	// NetworkError is set when the transport failed (unreachable server, bad status,
	// malformed response, closed websocket)
	NetworkError error `json:"-"`
}

// HasFailures returns true if there was a transport failure or any GraphQL errors
func (r *Result) HasFailures() bool {
	return r.NetworkError != nil || len(r.Errors) > 0
}

// Err returns all the failures as a single error or nil if there were none
func (r *Result) Err() error {
	if !r.HasFailures() {
		return nil
	}
	errs := make([]error, 0, len(r.Errors)+1)
	if r.NetworkError != nil {
		errs = append(errs, r.NetworkError)
	}
	for _, e := range r.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

// Single returns a closed channel holding just r, which is how one-shot results are delivered
func Single(r *Result) <-chan *Result {
	ch := make(chan *Result, 1)
	ch <- r
	close(ch)
	return ch
}
