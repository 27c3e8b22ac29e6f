package eggclient

// options.go handles options that can be used to configure a Client. Options are closures
// that New() runs against an options struct, after which defaults are filled in for
// anything left unset. For example:
//
//   c, err := eggclient.New(eggclient.HTTPEndpoint("http://localhost:4000/graphql"), eggclient.Token(tok))
//
// The websocket options (InitialTimeout, etc) are just passed on to the transport.
// (See internal/transport/options.go.)

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/andrewwphillips/eggclient/internal/transport"
)

// Option is the type of the closures that configure a Client
type Option = func(*options)

type options struct {
	httpEndpoint, wsEndpoint string
	token                    string
	log                      *zap.Logger
	httpClient               *http.Client
	fetchPolicy              FetchPolicy
	noPersistent             bool // don't create the websocket transport even if wsEndpoint is set

	metrics    bool
	registerer prometheus.Registerer

	// websocket transport options
	ws []func(*transport.WS)
}

// HTTPEndpoint sets the URL that queries and mutations (and subscriptions if there is no
// websocket) are posted to. It is required.
func HTTPEndpoint(url string) func(*options) {
	return func(opt *options) {
		opt.httpEndpoint = url
	}
}

// WSEndpoint sets the URL of the websocket used for subscriptions. If not set all
// operations are sent using HTTP.
func WSEndpoint(url string) func(*options) {
	return func(opt *options) {
		opt.wsEndpoint = url
	}
}

// Token sets a token that is sent with every operation instead of the one in the cache
// (typically obtained from the server side session when rendering a page).
func Token(token string) func(*options) {
	return func(opt *options) {
		opt.token = token
	}
}

// Logger sets where failures are logged (the default is zap.NewProduction)
func Logger(l *zap.Logger) func(*options) {
	return func(opt *options) {
		opt.log = l
	}
}

// HTTPClient sets the client used to post requests (the default is http.DefaultClient)
func HTTPClient(c *http.Client) func(*options) {
	return func(opt *options) {
		opt.httpClient = c
	}
}

// DefaultFetchPolicy sets how Query uses the cache when no policy is given in the call
func DefaultFetchPolicy(p FetchPolicy) func(*options) {
	return func(opt *options) {
		opt.fetchPolicy = p
	}
}

// Metrics turns on counting of operations and failures, registering the counters
// with reg (or the default registerer if reg is nil)
func Metrics(reg prometheus.Registerer) func(*options) {
	return func(opt *options) {
		opt.metrics = true
		opt.registerer = reg
	}
}

// Dialer sets the websocket dialer (eg to set TLS config or for testing)
func Dialer(d *websocket.Dialer) func(*options) {
	return func(opt *options) {
		opt.ws = append(opt.ws, transport.Dialer(d))
	}
}

// ConnectHeader adds HTTP headers to the websocket handshake, as well as those of the
// operation that opens the connection (such as x-jwt)
func ConnectHeader(h http.Header) func(*options) {
	return func(opt *options) {
		opt.ws = append(opt.ws, transport.ConnectHeader(h))
	}
}

// InitialTimeout sets the length time to wait for "connection_ack" after the websocket
// is opened. If it is not received in time the operation fails and the WS is closed.
func InitialTimeout(timeout time.Duration) func(*options) {
	return func(opt *options) {
		opt.ws = append(opt.ws, transport.InitialTimeout(timeout))
	}
}

// PingFrequency says how often to send a "ping" message if the server uses the new
// GraphQL websocket protocol (negative to turn pings off)
func PingFrequency(freq time.Duration) func(*options) {
	return func(opt *options) {
		opt.ws = append(opt.ws, transport.PingFrequency(freq))
	}
}

// PongTimeout sets the length time to wait for a "pong" message from the server after
// a "ping" message is sent. If it is not received in time the WS is closed.
func PongTimeout(timeout time.Duration) func(*options) {
	return func(opt *options) {
		opt.ws = append(opt.ws, transport.PongTimeout(timeout))
	}
}

// withoutPersistent is used for request scoped clients which never open a websocket
func withoutPersistent() func(*options) {
	return func(opt *options) {
		opt.noPersistent = true
	}
}
