package eggclient

// auth.go provides the read-only view of the login state held in the cache

import (
	"sync"

	"github.com/andrewwphillips/eggclient/internal/cache"
	"github.com/andrewwphillips/eggclient/internal/link"
)

// Fields of the ROOT_QUERY record that are written by the application (never by the client)
const (
	fieldIsLoggedIn = "isLoggedIn"
	fieldToken      = "token"
)

// AuthInfo is the login state as currently recorded in the cache
type AuthInfo struct {
	IsLoggedIn bool
	Token      string
}

// AuthInfo reads the login state from the cache. Missing fields give the zero value.
func (c *Client) AuthInfo() AuthInfo {
	var info AuthInfo
	if v, ok := c.store.Field(cache.RootQuery, fieldIsLoggedIn); ok {
		info.IsLoggedIn, _ = v.(bool)
	}
	if v, ok := c.store.Field(cache.RootQuery, fieldToken); ok {
		info.Token, _ = v.(string)
	}
	return info
}

// WatchAuthInfo calls fn with the new AuthInfo each time it changes. Calls are made one
// at a time in the order the changes happened, so fn must not write to the cache itself.
// Call the returned function to stop watching.
func (c *Client) WatchAuthInfo(fn func(AuthInfo)) (cancel func()) {
	var mu sync.Mutex
	last := c.AuthInfo()
	return c.store.Subscribe(func() {
		mu.Lock()
		info := c.AuthInfo()
		changed := info != last
		last = info
		if changed {
			fn(info)
		}
		mu.Unlock()
	})
}

// TokenSubject returns the user a JWT was issued to (its "sub" or "jti" claim) without
// checking its signature, or "" if it is not a JWT. It is what the client logs in place
// of the token.
func TokenSubject(token string) string {
	return link.TokenSubject(token)
}
