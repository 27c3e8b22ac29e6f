package transport

// ws.go is the client side of the two commonly used websocket protocols for GraphQL:
// * graphql-transport-ws (newer, from the graphql-ws library) - subscribe/next/error/complete plus ping/pong
// * graphql-ws (older, from Apollo's subscriptions-transport-ws) - start/data/error/complete/stop plus ka
// Both are offered when dialing and the one the server picks is used.

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	"github.com/andrewwphillips/eggclient/internal/jsonutil"
	"github.com/andrewwphillips/eggclient/internal/operation"
)

const (
	protocolNew = "graphql-transport-ws"
	protocolOld = "graphql-ws"

	writeWait = time.Second // time allowed to write a message
)

// ErrClosed is the failure seen by operations in progress when the transport is closed
var ErrClosed = errors.New("websocket transport closed")

type (
	// WS sends operations over a single websocket which is opened when the first operation
	// is executed and reopened (for the next operation) if it is lost. It does not retry
	// operations that were in progress when the connection was lost.
	WS struct {
		endpoint                                   string
		dialer                                     *websocket.Dialer
		header                                     http.Header
		log                                        *zap.Logger
		initialTimeout, pingFrequency, pongTimeout time.Duration

		mu   sync.Mutex // protects conn (and serialises dialing)
		conn *wsConnection
	}

	wsConnection struct {
		*websocket.Conn // handle for WS communications

		t           *WS
		newProtocol bool
		writeMu     sync.Mutex // gorilla allows only one concurrent writer

		mu     sync.Mutex // protects the fields below
		ops    map[string]*wsOperation
		closed bool
		reason error // if set this is reported instead of the read error when the connection ends

		done chan struct{} // closed when the connection has shut down
		pong chan struct{}
	}

	// wsOperation is one operation in progress. Results are queued so that the read loop
	// never waits for a caller that is slow to take them.
	wsOperation struct {
		mu       sync.Mutex
		queue    []*operation.Result
		finished bool          // no more results will be queued
		ready    chan struct{} // signalled when the queue or finished changes

		done chan struct{} // closed when the caller is no longer interested
		once sync.Once
	}

	// wsMessage is a received message - the payload is decoded according to the type
	wsMessage struct {
		Type    string          `json:"type"`
		ID      string          `json:"id,omitempty"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	wsOutMessage struct {
		Type    string      `json:"type"`
		ID      string      `json:"id,omitempty"`
		Payload interface{} `json:"payload,omitempty"`
	}
)

// NewWS checks the endpoint and returns a transport that connects to it when first used
func NewWS(endpoint string, options ...func(*WS)) (*WS, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid websocket endpoint %q", endpoint)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, errors.Errorf("websocket endpoint %q must be an absolute ws(s) URL", endpoint)
	}
	t := &WS{endpoint: u.String()}
	t.SetOptions(options...)
	return t, nil
}

// Endpoint returns the URL of the websocket
func (t *WS) Endpoint() string { return t.endpoint }

// Execute sends the operation over the websocket (connecting first if necessary). The
// returned channel delivers each result as it arrives and is closed when the server
// completes the operation, the connection is lost or ctx is cancelled. On cancellation
// the server is told to stop the operation.
func (t *WS) Execute(ctx context.Context, op *operation.Operation) <-chan *operation.Result {
	c, err := t.connection(ctx, op.Headers)
	if err != nil {
		return operation.Single(&operation.Result{NetworkError: err})
	}

	id := uuid.NewString()
	wop, err := c.register(id)
	if err != nil {
		return operation.Single(&operation.Result{NetworkError: err})
	}
	if err := c.subscribe(id, op); err != nil {
		c.unregister(id, wop)
		return operation.Single(&operation.Result{NetworkError: errors.Wrap(err, "sending operation")})
	}

	out := make(chan *operation.Result)
	go func() {
		defer close(out)
		for {
			r, finished := wop.next()
			switch {
			case r != nil:
				select {
				case out <- r:
				case <-ctx.Done():
					c.cancel(id, wop)
					return
				}
			case finished:
				wop.stop()
				return
			default:
				select {
				case <-wop.ready:
				case <-ctx.Done():
					c.cancel(id, wop)
					return
				}
			}
		}
	}()
	return out
}

// Close closes the websocket (if open). Operations in progress fail with ErrClosed.
func (t *WS) Close() error {
	t.mu.Lock()
	c := t.conn
	t.conn = nil
	t.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.close(ErrClosed)
}

// connection returns the open connection or dials a new one
func (t *WS) connection(ctx context.Context, header http.Header) (*wsConnection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && !t.conn.isClosed() {
		return t.conn, nil
	}
	c, err := t.dial(ctx, header)
	if err != nil {
		return nil, err
	}
	t.conn = c
	return c, nil
}

// dial opens the websocket and does the connection_init/connection_ack handshake
func (t *WS) dial(ctx context.Context, header http.Header) (*wsConnection, error) {
	h := make(http.Header, len(t.header)+len(header))
	for k, v := range t.header {
		h[k] = v
	}
	for k, v := range header {
		h[k] = v
	}
	dialer := *t.dialer
	dialer.Subprotocols = []string{protocolNew, protocolOld}

	conn, resp, err := dialer.DialContext(ctx, t.endpoint, h)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", t.endpoint)
	}

	c := &wsConnection{
		Conn:        conn,
		t:           t,
		newProtocol: conn.Subprotocol() == protocolNew, // else assume it's the "old" (graphql-ws) WS sub-protocol
		ops:         make(map[string]*wsOperation),
		done:        make(chan struct{}),
		pong:        make(chan struct{}, 1),
	}
	if err := c.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	t.log.Debug("websocket connected", zap.String("endpoint", t.endpoint), zap.String("protocol", conn.Subprotocol()))

	go c.readLoop()
	if c.newProtocol && t.pingFrequency > 0 {
		go c.pingLoop(t.pingFrequency, t.pongTimeout)
	}
	return c, nil
}

// init handles the initial (high level) handshake by sending "connection_init" and waiting for the "ack"
func (c *wsConnection) init() error {
	if err := c.write(wsOutMessage{Type: "connection_init"}); err != nil {
		return errors.Wrap(err, "sending connection_init")
	}
	if err := c.SetReadDeadline(time.Now().Add(c.t.initialTimeout)); err != nil {
		return err
	}
	for {
		message, err := c.read()
		if err != nil {
			return errors.Wrap(err, "waiting for connection_ack")
		}
		switch message.Type {
		case "connection_ack":
			return c.SetReadDeadline(time.Time{})
		case "ka":
			continue // old protocol servers may send keep alives at any time
		case "connection_error":
			return errors.Errorf("connection_error from server: %s", string(message.Payload))
		default:
			return errors.Errorf("expected connection_ack, got %q", message.Type)
		}
	}
}

func (c *wsConnection) readLoop() {
	for {
		message, err := c.read()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				err = &CloseError{Code: ce.Code, Reason: ce.Text}
			}
			c.shutdown(err)
			return
		}

		switch message.Type {
		case "next", "data":
			c.deliver(message.ID, decodeResult(message.Payload), false)
		case "error":
			c.deliver(message.ID, decodeErrors(message.Payload), true)
		case "complete":
			c.deliver(message.ID, nil, true)
		case "ping":
			if err := c.write(wsOutMessage{Type: "pong"}); err != nil {
				c.t.log.Warn("websocket error sending pong", zap.Error(err))
			}
		case "pong":
			select {
			case c.pong <- struct{}{}:
			default:
			}
		case "ka", "connection_ack":
			// keep alive
		case "connection_error":
			c.shutdown(errors.Errorf("connection_error from server: %s", string(message.Payload)))
			return
		default:
			c.t.log.Warn("websocket unexpected message type", zap.String("type", message.Type))
		}
	}
}

// deliver queues a result for the operation with the given ID. If last is set the
// operation is finished (r may then be nil).
func (c *wsConnection) deliver(id string, r *operation.Result, last bool) {
	c.mu.Lock()
	wop := c.ops[id]
	if last {
		delete(c.ops, id)
	}
	c.mu.Unlock()

	if wop == nil {
		return // unknown ID or the caller has already gone
	}
	wop.push(r, last)
}

// shutdown fails all operations in progress after the connection is lost
func (c *wsConnection) shutdown(err error) {
	c.mu.Lock()
	if c.reason != nil {
		err = c.reason
	}
	ops := c.ops
	c.ops = nil
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	_ = c.Conn.Close()
	if len(ops) > 0 {
		c.t.log.Warn("websocket connection lost", zap.Error(err), zap.Int("operations", len(ops)))
	}
	for _, wop := range ops {
		wop.push(&operation.Result{NetworkError: err}, true)
	}
}

// close sends a close message then closes the underlying connection, which makes the read loop shut down
func (c *wsConnection) close(reason error) error {
	c.mu.Lock()
	if c.reason == nil {
		c.reason = reason
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.Conn.Close()
}

func (c *wsConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *wsConnection) register(id string) (*wsOperation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("websocket connection is closed")
	}
	wop := &wsOperation{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	c.ops[id] = wop
	return wop, nil
}

// unregister stops delivery to the operation, returning true if it was still in progress
func (c *wsConnection) unregister(id string, wop *wsOperation) bool {
	c.mu.Lock()
	active := c.ops[id] == wop
	if active {
		delete(c.ops, id)
	}
	c.mu.Unlock()
	wop.stop()
	return active
}

// cancel abandons an operation and, if the server has not finished it, tells the server to stop
func (c *wsConnection) cancel(id string, wop *wsOperation) {
	if !c.unregister(id, wop) {
		return
	}
	messageType := "complete"
	if !c.newProtocol {
		messageType = "stop"
	}
	if err := c.write(wsOutMessage{Type: messageType, ID: id}); err != nil {
		c.t.log.Warn("websocket error stopping operation", zap.String("id", id), zap.Error(err))
	}
}

func (c *wsConnection) subscribe(id string, op *operation.Operation) error {
	messageType := "subscribe"
	if !c.newProtocol {
		messageType = "start"
	}
	payload := requestBody(op)
	return c.write(wsOutMessage{Type: messageType, ID: id, Payload: &payload})
}

// pingLoop sends a ping every freq and closes the connection if the pong does not arrive in time
func (c *wsConnection) pingLoop(freq, timeout time.Duration) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		if err := c.write(wsOutMessage{Type: "ping"}); err != nil {
			return // the read loop will see the problem
		}
		timer := time.NewTimer(timeout)
		select {
		case <-c.pong:
			timer.Stop()
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
			c.t.log.Warn("websocket pong not received", zap.Duration("timeout", timeout))
			_ = c.close(errors.Errorf("no pong received within %v", timeout))
			return
		}
	}
}

func (c *wsConnection) write(m wsOutMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.WriteJSON(m)
}

func (c *wsConnection) read() (*wsMessage, error) {
	_, b, err := c.ReadMessage()
	if err != nil {
		return nil, err
	}
	var message wsMessage
	if err := json.Unmarshal(b, &message); err != nil {
		return nil, errors.Wrap(err, "decoding websocket message")
	}
	return &message, nil
}

// push adds a result (if not nil) to the queue without blocking. Nothing is queued once
// the caller has gone.
func (wop *wsOperation) push(r *operation.Result, last bool) {
	select {
	case <-wop.done:
		return
	default:
	}
	wop.mu.Lock()
	if !wop.finished {
		if r != nil {
			wop.queue = append(wop.queue, r)
		}
		wop.finished = last
	}
	wop.mu.Unlock()

	select {
	case wop.ready <- struct{}{}:
	default:
	}
}

// next takes the first queued result. If there is none finished says whether more may come.
func (wop *wsOperation) next() (r *operation.Result, finished bool) {
	wop.mu.Lock()
	defer wop.mu.Unlock()
	if len(wop.queue) > 0 {
		r = wop.queue[0]
		wop.queue[0] = nil
		wop.queue = wop.queue[1:]
		return r, false
	}
	return nil, wop.finished
}

func (wop *wsOperation) stop() {
	wop.once.Do(func() { close(wop.done) })
}

// decodeResult decodes the payload of a next (or data) message
func decodeResult(payload json.RawMessage) *operation.Result {
	var r response
	if err := jsonutil.NewDecoder(bytes.NewReader(payload)).Decode(&r); err != nil {
		return &operation.Result{NetworkError: &ServerParseError{StatusCode: http.StatusOK, Err: err}}
	}
	jsonutil.FixMap(r.Data)
	jsonutil.FixMap(r.Extensions)
	return r.result()
}

// decodeErrors decodes the payload of an error message, which is a list of GraphQL errors in the
// new protocol but a single error object in the old one
func decodeErrors(payload json.RawMessage) *operation.Result {
	var list gqlerror.List
	if err := json.Unmarshal(payload, &list); err == nil {
		return &operation.Result{Errors: list}
	}
	var single gqlerror.Error
	if err := json.Unmarshal(payload, &single); err != nil || single.Message == "" {
		return &operation.Result{Errors: gqlerror.List{gqlerror.Errorf("%s", string(payload))}}
	}
	return &operation.Result{Errors: gqlerror.List{&single}}
}
