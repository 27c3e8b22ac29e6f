package eggclient

// session.go decides whether a client is shared or created afresh for each use

import (
	"fmt"
	"sync"
)

// Mode says how long the clients obtained from a Session live
type Mode int

const (
	// SessionScoped shares one client (and its cache and websocket) for the life of the Session,
	// as in a browser or other long running interactive process.
	SessionScoped Mode = iota
	// RequestScoped creates a new client for every call, as when rendering a page on the
	// server, so that nothing leaks between requests. These clients never use a websocket.
	RequestScoped
)

func (m Mode) String() string {
	switch m {
	case SessionScoped:
		return "session"
	case RequestScoped:
		return "request"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Session holds the current client (if session scoped) along with the options
// used to create clients. Each Session is independent of any other.
type Session struct {
	mode Mode
	opts []func(*options)

	mu     sync.Mutex
	client *Client // only used when session scoped
}

// NewSession creates a session whose clients are created with the given options
func NewSession(mode Mode, opts ...func(*options)) *Session {
	return &Session{mode: mode, opts: opts}
}

// Mode returns how clients obtained from the session are scoped
func (s *Session) Mode() Mode { return s.mode }

// Client returns the client to use, hydrating its cache from state (if not nil).
// When request scoped a new client is always created, using token (if not empty) in place
// of any token in the cache. When session scoped the client is created on the first call
// (which is the only time token is used) and the same client is returned for all later
// calls. An error is returned if the client can't be created.
//
// Hydrating notifies cache watchers (see WatchAuthInfo) before Client returns. The session
// is not locked while they run so they may themselves call Client.
func (s *Session) Client(state SerializedState, token string) (*Client, error) {
	if s.mode == RequestScoped {
		c, err := s.create(token, withoutPersistent())
		if err != nil {
			return nil, err
		}
		c.Hydrate(state)
		return c, nil
	}

	s.mu.Lock()
	if s.client == nil {
		c, err := s.create(token)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.client = c
	}
	c := s.client
	s.mu.Unlock()

	c.Hydrate(state)
	return c, nil
}

// Close closes the shared client (if any). Later calls to Client create a new one.
func (s *Session) Close() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

func (s *Session) create(token string, extra ...func(*options)) (*Client, error) {
	opts := make([]func(*options), 0, len(s.opts)+len(extra)+1)
	opts = append(opts, s.opts...)
	opts = append(opts, extra...)
	if token != "" {
		opts = append(opts, Token(token))
	}
	return New(opts...)
}
