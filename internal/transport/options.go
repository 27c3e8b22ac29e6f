package transport

// options.go handles setting of websocket transport options

// As in the rest of the module options are closures: NewWS() takes a variadic list of
// func(*WS) and runs each one against the new transport, then fills in defaults for
// anything left at its zero value. For example:
//
//   transport.NewWS("ws://localhost:4000/subscriptions", transport.PingFrequency(time.Minute))
//
// If the same option is given more than once only the last one has any effect.

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultInitialTimeout = 10 * time.Second // how long to wait for connection_ack after sending connection_init
	defaultPingFrequency  = 20 * time.Second // how often to send a ping (new protocol only)
	defaultPongTimeout    = 5 * time.Second  // how long to wait for a pong after sending a ping
)

// SetOptions takes a slice of options (closures) and executes them
func (t *WS) SetOptions(options ...func(*WS)) {
	for _, option := range options {
		option(t)
	}

	// Set any options that still have their unset (zero) value
	if t.initialTimeout == 0 {
		t.initialTimeout = defaultInitialTimeout
	}
	if t.pingFrequency == 0 {
		t.pingFrequency = defaultPingFrequency
	}
	if t.pongTimeout == 0 {
		t.pongTimeout = defaultPongTimeout
	}
	if t.dialer == nil {
		t.dialer = websocket.DefaultDialer
	}
	if t.log == nil {
		t.log = zap.NewNop()
	}
}

// InitialTimeout sets the length of time to wait for "connection_ack" after the websocket
// is opened and "connection_init" has been sent. If the ack is not received in time the
// connection is closed and the operation fails with a network error.
func InitialTimeout(timeout time.Duration) func(*WS) {
	return func(t *WS) {
		t.initialTimeout = timeout // timeout value is "captured" and returned as part of the func
	}
}

// PingFrequency says how often to send a "ping" message when the server speaks the newer
// graphql-transport-ws protocol. A negative value turns client pings off.
func PingFrequency(freq time.Duration) func(*WS) {
	return func(t *WS) {
		t.pingFrequency = freq
	}
}

// PongTimeout sets the length of time to wait for a "pong" after a "ping" is sent.
// If the pong is not received in time the websocket is closed.
func PongTimeout(timeout time.Duration) func(*WS) {
	return func(t *WS) {
		t.pongTimeout = timeout
	}
}

// Dialer sets the websocket dialer (eg to set TLS config or for testing)
func Dialer(d *websocket.Dialer) func(*WS) {
	return func(t *WS) {
		t.dialer = d
	}
}

// ConnectHeader adds HTTP headers sent with the websocket handshake
func ConnectHeader(h http.Header) func(*WS) {
	return func(t *WS) {
		t.header = h
	}
}

// Logger sets where connection level problems are logged
func Logger(l *zap.Logger) func(*WS) {
	return func(t *WS) {
		t.log = l
	}
}
