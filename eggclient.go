package eggclient

// eggclient.go provides the Client type for sending GraphQL operations and caching the results

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/andrewwphillips/eggclient/internal/cache"
	"github.com/andrewwphillips/eggclient/internal/link"
	"github.com/andrewwphillips/eggclient/internal/metrics"
	"github.com/andrewwphillips/eggclient/internal/operation"
	"github.com/andrewwphillips/eggclient/internal/transport"
)

// FetchPolicy says whether a query is answered from the cache or the network
type FetchPolicy int

const (
	CacheFirst  FetchPolicy = iota // use the cache if it has all the fields, else the network
	NetworkOnly                    // always use the network (the result is still cached)
	CacheOnly                      // never use the network
)

func (p FetchPolicy) String() string {
	switch p {
	case CacheFirst:
		return "cache-first"
	case NetworkOnly:
		return "network-only"
	case CacheOnly:
		return "cache-only"
	}
	return fmt.Sprintf("FetchPolicy(%d)", int(p))
}

// ErrCacheMiss is returned by a CacheOnly query when the cache can't supply all the fields
var ErrCacheMiss = errors.New("query not satisfied from cache")

type (
	// Client sends operations through its link chain (error logging, auth header, transport
	// selection) and keeps the results in its own normalized cache.
	Client struct {
		opts  options
		log   *zap.Logger
		store *cache.Store
		ws    *transport.WS // nil if there is no persistent transport
		chain link.Handler
	}
)

// New creates a client. The endpoints are checked (but not connected to) here, so an
// error means the configuration is bad and no client is returned.
func New(opts ...func(*options)) (*Client, error) {
	c := &Client{store: cache.New()}
	for _, opt := range opts {
		opt(&c.opts)
	}

	c.log = c.opts.log
	if c.log == nil {
		l, err := zap.NewProduction()
		if err != nil {
			return nil, errors.Wrap(err, "creating logger")
		}
		c.log = l
	}

	if c.opts.httpEndpoint == "" {
		return nil, errors.New("no HTTP endpoint configured")
	}
	h, err := transport.NewHTTP(c.opts.httpEndpoint, c.opts.httpClient)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if c.opts.metrics {
		if m, err = metrics.New(c.opts.registerer); err != nil {
			return nil, errors.Wrap(err, "registering metrics")
		}
	}

	fields := []zap.Field{zap.String("http", h.Endpoint())}
	var ws link.Handler // must stay an untyped nil when there is no websocket
	if c.opts.wsEndpoint != "" && !c.opts.noPersistent {
		wsOptions := append([]func(*transport.WS){transport.Logger(c.log)}, c.opts.ws...)
		if c.ws, err = transport.NewWS(c.opts.wsEndpoint, wsOptions...); err != nil {
			return nil, err
		}
		ws = c.ws
		fields = append(fields, zap.String("ws", c.ws.Endpoint()))
	}
	c.log.Debug("client created", fields...)

	c.chain = link.Chain(link.Split(h, ws, m),
		link.ErrorObserver(c.log, m),
		link.Auth(c.token),
	)
	return c, nil
}

// token returns the token to send: the one given to New, else the one in the cache
func (c *Client) token() string {
	if c.opts.token != "" {
		return c.opts.token
	}
	if v, ok := c.store.Field(cache.RootQuery, fieldToken); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Persistent returns true if subscriptions are sent over a websocket
func (c *Client) Persistent() bool { return c.ws != nil }

// Cache returns the client's normalized cache
func (c *Client) Cache() *Store { return c.store }

// Hydrate merges a serialized snapshot (eg from a server rendered page) into the cache.
// A nil state does nothing.
func (c *Client) Hydrate(state SerializedState) { c.store.Hydrate(state) }

// Restore replaces the whole cache with a copy of state, eg to forget everything on
// logout. A nil state empties the cache.
func (c *Client) Restore(state SerializedState) { c.store.Restore(state) }

// Close closes the websocket, if open
func (c *Client) Close() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

// Execute sends an operation through the link chain. The data of each result is written
// to the cache before the result is delivered. The channel is closed after the last
// result, or when ctx is cancelled.
func (c *Client) Execute(ctx context.Context, op *Operation) <-chan *Result {
	in := c.chain.Execute(ctx, op)
	out := make(chan *Result)
	go func() {
		defer close(out)
		for r := range in {
			if r.Data != nil {
				c.store.Write(op, r.Data)
			}
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Query runs a query using the fetch policy given (or the default if none is).
// The returned error is nil only if there were no failures, but the Result (which may
// hold partial data) is returned whenever the query was sent.
func (c *Client) Query(ctx context.Context, document string, variables map[string]interface{}, policy ...FetchPolicy) (*Result, error) {
	op, err := c.operation(document, variables, operation.Query)
	if err != nil {
		return nil, err
	}
	p := c.opts.fetchPolicy
	if len(policy) > 0 {
		p = policy[0]
	}
	return c.Fetch(ctx, op, p)
}

// Fetch runs a query or mutation. For a query the policy says whether the cache is
// used; mutations always go to the network. Errors are as for Query.
func (c *Client) Fetch(ctx context.Context, op *Operation, policy FetchPolicy) (*Result, error) {
	if op.Kind == operation.Query && policy != NetworkOnly {
		if data, ok := c.store.Read(op); ok {
			return &Result{Data: data}, nil
		}
		if policy == CacheOnly {
			return nil, ErrCacheMiss
		}
	}
	r := c.first(ctx, op)
	return r, r.Err()
}

// Mutate runs a mutation (always over the network). Errors are as for Query.
func (c *Client) Mutate(ctx context.Context, document string, variables map[string]interface{}) (*Result, error) {
	op, err := c.operation(document, variables, operation.Mutation)
	if err != nil {
		return nil, err
	}
	return c.Fetch(ctx, op, NetworkOnly)
}

// Subscribe starts a subscription. An error is only returned if the document is invalid,
// otherwise failures are delivered as results. Cancel ctx to end the subscription.
func (c *Client) Subscribe(ctx context.Context, document string, variables map[string]interface{}) (<-chan *Result, error) {
	op, err := c.operation(document, variables, operation.Subscription)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, op), nil
}

// operation parses the document, checking it is the expected kind
func (c *Client) operation(document string, variables map[string]interface{}, kind Kind) (*Operation, error) {
	op, err := operation.New(document, variables, "")
	if err != nil {
		return nil, err
	}
	if op.Kind != kind {
		return nil, errors.Errorf("expected a %v but the document is a %v", kind, op.Kind)
	}
	return op, nil
}

// first waits for the one result of a query or mutation
func (c *Client) first(ctx context.Context, op *Operation) *Result {
	r, ok := <-c.Execute(ctx, op)
	if !ok {
		err := ctx.Err()
		if err == nil {
			err = errors.New("no result")
		}
		return &Result{NetworkError: errors.Wrap(err, "waiting for result")}
	}
	return r
}
