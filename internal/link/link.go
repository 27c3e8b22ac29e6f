// Package link builds the chain every operation passes through: failures are observed,
// the auth token is attached, then the operation is routed to a transport.
//
// Each stage is middleware wrapping the next Handler, so for the usual chain
//
//	link.Chain(link.Split(http, ws, m), link.ErrorObserver(log, m), link.Auth(resolve))
//
// the error observer sees the results of everything inside it and the auth header
// is in place before the transport is chosen.
package link

import (
	"context"

	"github.com/andrewwphillips/eggclient/internal/operation"
)

type (
	// Handler runs an operation, delivering its result(s) on the returned channel which is
	// closed when there are no more. Implementations must not block before returning.
	Handler interface {
		Execute(ctx context.Context, op *operation.Operation) <-chan *operation.Result
	}

	// HandlerFunc allows an ordinary function to be used as a Handler
	HandlerFunc func(ctx context.Context, op *operation.Operation) <-chan *operation.Result

	// Middleware wraps a Handler to add behaviour before and/or after it runs
	Middleware func(Handler) Handler
)

// Execute calls f(ctx, op)
func (f HandlerFunc) Execute(ctx context.Context, op *operation.Operation) <-chan *operation.Result {
	return f(ctx, op)
}

// Chain wraps the terminal handler in the middleware, the first being outermost
func Chain(terminal Handler, mw ...Middleware) Handler {
	h := terminal
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
