package eggclient_test

// End-to-end tests of the client against fake servers (also see the lower level tests in
// the cache, link and transport packages)

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/posener/wstest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/andrewwphillips/eggclient"
)

type (
	// JsonObject is what json.Unmarshaler produces when it decodes a JSON object
	JsonObject = map[string]interface{}
	JsonList   = []interface{}
)

const (
	heroQuery  = `query Hero { hero { __typename id name } }`
	heroReply  = `{"data":{"hero":{"__typename":"Droid","id":"2001","name":"R2-D2"}}}`
	loginQuery = `mutation Login($email: String!) { login(email: $email) { __typename id token } }`
	loginReply = `{"data":{"login":{"__typename":"Session","id":"s1","token":"jwt-from-server"}}}`
)

// fakeServer replies to each POSTed operation with the reply for its operationName and
// remembers the x-jwt header of each request
type fakeServer struct {
	*httptest.Server
	replies map[string]string

	mu     sync.Mutex
	tokens []string
}

func newFakeServer(t *testing.T, replies map[string]string) *fakeServer {
	s := &fakeServer{replies: replies}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OperationName string
			Query         string
			Variables     map[string]interface{}
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.tokens = append(s.tokens, r.Header.Get("x-jwt"))
		s.mu.Unlock()

		reply, ok := s.replies[req.OperationName]
		if !ok {
			reply = `{"data":null,"errors":[{"message":"unknown operation"}]}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(s.Close)
	return s
}

// calls returns the number of requests received so far
func (s *fakeServer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *fakeServer) lastToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) == 0 {
		return "<none>"
	}
	return s.tokens[len(s.tokens)-1]
}

func newClient(t *testing.T, s *fakeServer, opts ...eggclient.Option) *eggclient.Client {
	t.Helper()
	c, err := eggclient.New(append([]eggclient.Option{
		eggclient.HTTPEndpoint(s.URL),
		eggclient.Logger(zap.NewNop()),
	}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestFetchPolicy(t *testing.T) {
	ctx := context.Background()
	expected := JsonObject{"hero": JsonObject{"__typename": "Droid", "id": "2001", "name": "R2-D2"}}

	data := map[string]struct {
		policies []eggclient.FetchPolicy // used for successive queries
		expCalls int                     // requests sent to the server
		expMiss  bool                    // the first query is a cache miss
	}{
		"cache_first":  {[]eggclient.FetchPolicy{eggclient.CacheFirst, eggclient.CacheFirst}, 1, false},
		"network_only": {[]eggclient.FetchPolicy{eggclient.NetworkOnly, eggclient.NetworkOnly}, 2, false},
		"then_cache":   {[]eggclient.FetchPolicy{eggclient.NetworkOnly, eggclient.CacheOnly}, 1, false},
		"cache_only":   {[]eggclient.FetchPolicy{eggclient.CacheOnly}, 0, true},
	}

	for name, d := range data {
		s := newFakeServer(t, map[string]string{"Hero": heroReply})
		c := newClient(t, s)
		for i, p := range d.policies {
			r, err := c.Query(ctx, heroQuery, nil, p)
			if i == 0 && d.expMiss {
				require.ErrorIs(t, err, eggclient.ErrCacheMiss, name)
				continue
			}
			require.NoError(t, err, name)
			require.Equal(t, expected, r.Data, name)
		}
		require.Equal(t, d.expCalls, s.calls(), name)
	}
}

func TestDefaultFetchPolicy(t *testing.T) {
	s := newFakeServer(t, map[string]string{"Hero": heroReply})
	c := newClient(t, s, eggclient.DefaultFetchPolicy(eggclient.NetworkOnly))
	for i := 0; i < 3; i++ {
		_, err := c.Query(context.Background(), heroQuery, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 3, s.calls())
}

func TestLoginFlow(t *testing.T) {
	ctx := context.Background()
	s := newFakeServer(t, map[string]string{"Hero": heroReply, "Login": loginReply})
	c := newClient(t, s)

	r, err := c.Mutate(ctx, loginQuery, JsonObject{"email": "a@b.c"})
	require.NoError(t, err)
	require.Equal(t, "", s.lastToken(), "no token before logging in")
	snap := c.Cache().Extract()
	require.Equal(t, JsonObject{"__ref": "Session:s1"}, snap[eggclient.RootMutation][`login({"email":"a@b.c"})`])

	// The application (not the client) records the login in the cache...
	token := r.Data["login"].(JsonObject)["token"].(string)
	c.Cache().WriteField(eggclient.RootQuery, "token", token)
	c.Cache().WriteField(eggclient.RootQuery, "isLoggedIn", true)
	require.Equal(t, eggclient.AuthInfo{IsLoggedIn: true, Token: token}, c.AuthInfo())

	// ...and later operations of the same client send it
	_, err = c.Query(ctx, heroQuery, nil, eggclient.NetworkOnly)
	require.NoError(t, err)
	require.Equal(t, "jwt-from-server", s.lastToken())

	c.Cache().WriteField(eggclient.RootQuery, "token", "refreshed")
	_, err = c.Query(ctx, heroQuery, nil, eggclient.NetworkOnly)
	require.NoError(t, err)
	require.Equal(t, "refreshed", s.lastToken())
}

func TestOverrideToken(t *testing.T) {
	s := newFakeServer(t, map[string]string{"Hero": heroReply})
	c := newClient(t, s, eggclient.Token("from-session"))
	c.Cache().WriteField(eggclient.RootQuery, "token", "from-cache")

	_, err := c.Query(context.Background(), heroQuery, nil)
	require.NoError(t, err)
	require.Equal(t, "from-session", s.lastToken())
}

func TestWrongKind(t *testing.T) {
	c := newClient(t, newFakeServer(t, nil))
	_, err := c.Query(context.Background(), loginQuery, nil)
	require.Error(t, err)
	_, err = c.Mutate(context.Background(), heroQuery, nil)
	require.Error(t, err)
	_, err = c.Subscribe(context.Background(), heroQuery, nil)
	require.Error(t, err)
	_, err = c.Query(context.Background(), "{", nil)
	require.Error(t, err)
}

func TestFailuresLoggedAndReturned(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()

	data := map[string]struct {
		endpoint string
		expLog   string
	}{
		"network": {url, "network error"},
		"graphql": {newFakeServer(t, nil).URL, "GraphQL error"},
	}
	for name, d := range data {
		core, logs := observer.New(zapcore.WarnLevel)
		c, err := eggclient.New(eggclient.HTTPEndpoint(d.endpoint), eggclient.Logger(zap.New(core)))
		require.NoError(t, err, name)

		r, err := c.Query(context.Background(), heroQuery, nil)
		require.Error(t, err, name)
		require.NotNil(t, r, name)
		require.True(t, r.HasFailures(), name)
		require.Equal(t, 1, logs.FilterMessage(d.expLog).Len(), name)
	}
}

func TestConstructionFailure(t *testing.T) {
	data := map[string][]eggclient.Option{
		"no_endpoint":  {},
		"bad_http":     {eggclient.HTTPEndpoint("localhost:4000")},
		"bad_ws":       {eggclient.HTTPEndpoint("http://localhost:4000/graphql"), eggclient.WSEndpoint("http://localhost:4000/graphql")},
		"bad_registry": {eggclient.HTTPEndpoint("http://localhost:4000/graphql"), eggclient.Metrics(conflictingRegistry(t))},
	}
	for name, opts := range data {
		c, err := eggclient.New(append(opts, eggclient.Logger(zap.NewNop()))...)
		require.Error(t, err, name)
		require.Nil(t, c, name)

		// A session passes the failure on
		c, err = eggclient.NewSession(eggclient.SessionScoped, append(opts, eggclient.Logger(zap.NewNop()))...).Client(nil, "")
		require.Error(t, err, name)
		require.Nil(t, c, name)

		require.Panics(t, func() { eggclient.MustNew(append(opts, eggclient.Logger(zap.NewNop()))...) }, name)
	}
}

// conflictingRegistry has a collector with the same name as, but different labels to, the client's
func conflictingRegistry(t *testing.T) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eggclient_operations_total",
		Help: "Something else",
	})))
	return reg
}

func TestSessionScoped(t *testing.T) {
	s := newFakeServer(t, map[string]string{"Hero": heroReply})
	session := eggclient.NewSession(eggclient.SessionScoped, eggclient.HTTPEndpoint(s.URL), eggclient.Logger(zap.NewNop()))
	defer session.Close()

	first := eggclient.Snapshot{eggclient.RootQuery: {"list": JsonList{int64(1), int64(2)}}}
	second := eggclient.Snapshot{eggclient.RootQuery: {"list": JsonList{int64(2), int64(3)}, "isLoggedIn": true}}

	c1, err := session.Client(first, "first-token")
	require.NoError(t, err)
	c2, err := session.Client(second, "second-token")
	require.NoError(t, err)
	require.Same(t, c1, c2)

	v, _ := c1.Cache().Field(eggclient.RootQuery, "list")
	require.Equal(t, JsonList{int64(2), int64(3), int64(1)}, v)
	require.True(t, c1.AuthInfo().IsLoggedIn)

	// Only the token of the call that created the client is used
	_, err = c2.Query(context.Background(), heroQuery, nil)
	require.NoError(t, err)
	require.Equal(t, "first-token", s.lastToken())

	// No state leaves the cache as it was
	before := c1.Cache().Extract()
	c3, err := session.Client(nil, "")
	require.NoError(t, err)
	require.Same(t, c1, c3)
	require.True(t, before.Equal(c3.Cache().Extract()))
}

// TestSessionWatcher checks that a watcher called while a session hydrates its client can
// use the session
func TestSessionWatcher(t *testing.T) {
	s := newFakeServer(t, nil)
	session := eggclient.NewSession(eggclient.SessionScoped, eggclient.HTTPEndpoint(s.URL), eggclient.Logger(zap.NewNop()))
	defer session.Close()

	c, err := session.Client(nil, "")
	require.NoError(t, err)
	seen := make(chan bool, 1)
	cancel := c.WatchAuthInfo(func(info eggclient.AuthInfo) {
		again, err := session.Client(nil, "")
		seen <- err == nil && again == c && info.IsLoggedIn
	})
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := session.Client(eggclient.Snapshot{eggclient.RootQuery: {"isLoggedIn": true}}, "")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session locked while watchers run")
	}
	require.True(t, <-seen)
}

func TestRequestScoped(t *testing.T) {
	s := newFakeServer(t, map[string]string{"Hero": heroReply})
	session := eggclient.NewSession(eggclient.RequestScoped,
		eggclient.HTTPEndpoint(s.URL),
		eggclient.WSEndpoint("ws://localhost:4000/graphql"),
		eggclient.Logger(zap.NewNop()),
	)
	state := eggclient.Snapshot{eggclient.RootQuery: {"token": "from-state"}}

	c1, err := session.Client(state, "")
	require.NoError(t, err)
	c2, err := session.Client(nil, "override")
	require.NoError(t, err)
	require.NotSame(t, c1, c2)
	require.NotSame(t, c1.Cache(), c2.Cache())
	require.False(t, c1.Persistent(), "no websocket when request scoped")

	c1.Cache().WriteField(eggclient.RootQuery, "isLoggedIn", true)
	require.False(t, c2.AuthInfo().IsLoggedIn, "clients share nothing")
	require.Equal(t, "from-state", c1.AuthInfo().Token)
	require.Equal(t, "", c2.AuthInfo().Token)

	// Subscriptions degrade to HTTP
	results, err := c2.Subscribe(context.Background(), `subscription Hero { hero { __typename id name } }`, nil)
	require.NoError(t, err)
	var got []*eggclient.Result
	for r := range results {
		got = append(got, r)
	}
	require.Len(t, got, 1)
	require.NoError(t, got[0].Err())
	require.Equal(t, "override", s.lastToken())
}

func TestState(t *testing.T) {
	s := newFakeServer(t, map[string]string{"Hero": heroReply})
	server := newClient(t, s)
	_, err := server.Query(context.Background(), heroQuery, nil)
	require.NoError(t, err)

	// Server side: the cache goes out with the page
	page := eggclient.AddState(server, JsonObject{"props": JsonObject{"title": "home"}})
	b, err := json.Marshal(page)
	require.NoError(t, err)

	// Client side: the cache is merged into the session's client
	var received JsonObject
	require.NoError(t, json.Unmarshal(b, &received))
	state, ok := eggclient.StateFrom(received)
	require.True(t, ok)
	session := eggclient.NewSession(eggclient.SessionScoped, eggclient.HTTPEndpoint(s.URL), eggclient.Logger(zap.NewNop()))
	c, err := session.Client(state, "")
	require.NoError(t, err)
	require.True(t, eggclient.ExtractState(server).Equal(eggclient.ExtractState(c)))

	// The query is now answered from the cache
	calls := s.calls()
	r, err := c.Query(context.Background(), heroQuery, nil)
	require.NoError(t, err)
	require.Equal(t, "R2-D2", r.Data["hero"].(JsonObject)["name"])
	require.Equal(t, calls, s.calls())

	// Pages without props are left alone
	bare := JsonObject{"title": "no props"}
	require.Equal(t, JsonObject{"title": "no props"}, eggclient.AddState(server, bare))
	_, ok = eggclient.StateFrom(bare)
	require.False(t, ok)
}

func TestHydrateAbsent(t *testing.T) {
	c := newClient(t, newFakeServer(t, nil))
	c.Cache().WriteField(eggclient.RootQuery, "list", JsonList{JsonObject{"id": int64(1)}, JsonObject{"id": int64(2)}})
	before, err := json.Marshal(eggclient.ExtractState(c))
	require.NoError(t, err)

	c.Hydrate(nil)
	after, err := json.Marshal(eggclient.ExtractState(c))
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))
}

func TestWatchAuthInfo(t *testing.T) {
	c := newClient(t, newFakeServer(t, nil))
	var mu sync.Mutex
	var seen []eggclient.AuthInfo
	cancel := c.WatchAuthInfo(func(info eggclient.AuthInfo) {
		mu.Lock()
		seen = append(seen, info)
		mu.Unlock()
	})

	c.Cache().WriteField(eggclient.RootQuery, "isLoggedIn", true)
	c.Cache().WriteField(eggclient.RootQuery, "other", "not auth")
	c.Cache().WriteField(eggclient.RootQuery, "token", "abc")
	c.Hydrate(eggclient.Snapshot{eggclient.RootQuery: {"token": "abc"}}) // no change
	cancel()
	c.Cache().WriteField(eggclient.RootQuery, "isLoggedIn", false)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []eggclient.AuthInfo{
		{IsLoggedIn: true},
		{IsLoggedIn: true, Token: "abc"},
	}, seen)
}

// TestWatchAuthInfoOrder checks that, with changes made concurrently, the last AuthInfo
// passed to the watcher is the final one
func TestWatchAuthInfoOrder(t *testing.T) {
	c := newClient(t, newFakeServer(t, nil))
	var mu sync.Mutex
	var last eggclient.AuthInfo
	cancel := c.WatchAuthInfo(func(info eggclient.AuthInfo) {
		mu.Lock()
		last = info
		mu.Unlock()
	})
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Cache().WriteField(eggclient.RootQuery, "token", fmt.Sprintf("t%d", i))
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, c.AuthInfo(), last)
}

func TestRestore(t *testing.T) {
	s := newFakeServer(t, map[string]string{"Hero": heroReply})
	c := newClient(t, s)
	c.Hydrate(eggclient.Snapshot{eggclient.RootQuery: {"isLoggedIn": true, "token": "abc"}})
	_, err := c.Query(context.Background(), heroQuery, nil)
	require.NoError(t, err)

	// Logging out forgets everything
	c.Restore(nil)
	require.Equal(t, eggclient.AuthInfo{}, c.AuthInfo())
	require.Empty(t, eggclient.ExtractState(c))
	_, err = c.Query(context.Background(), heroQuery, nil, eggclient.CacheOnly)
	require.ErrorIs(t, err, eggclient.ErrCacheMiss)

	c.Restore(eggclient.Snapshot{eggclient.RootQuery: {"token": "xyz"}})
	require.Equal(t, "xyz", c.AuthInfo().Token)
}

// countServer is a websocket (graphql-transport-ws) server that sends each subscriber
// two events then completes. Each event includes the X-App header of the handshake.
func countServer(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{Subprotocols: []string{"graphql-transport-ws"}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade error %v", err)
			return
		}
		defer conn.Close()
		app := r.Header.Get("X-App")
		for {
			var message struct{ Type, ID string }
			if err := conn.ReadJSON(&message); err != nil {
				return
			}
			switch message.Type {
			case "connection_init":
				_ = conn.WriteJSON(JsonObject{"type": "connection_ack"})
			case "subscribe":
				for i := 1; i <= 2; i++ {
					_ = conn.WriteJSON(JsonObject{"type": "next", "id": message.ID,
						"payload": JsonObject{"data": JsonObject{"count": i, "app": app}}})
				}
				_ = conn.WriteJSON(JsonObject{"type": "complete", "id": message.ID})
			}
		}
	})
}

func TestSubscribe(t *testing.T) {
	s := newFakeServer(t, map[string]string{"Hero": heroReply})
	reg := prometheus.NewRegistry()
	c := newClient(t, s,
		eggclient.WSEndpoint("ws://example.com/graphql"),
		eggclient.Dialer(wstest.NewDialer(countServer(t))),
		eggclient.ConnectHeader(http.Header{"X-App": []string{"test"}}),
		eggclient.PingFrequency(-1),
		eggclient.Metrics(reg),
	)
	require.True(t, c.Persistent())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results, err := c.Subscribe(ctx, `subscription Count { count }`, nil)
	require.NoError(t, err)
	var counts []interface{}
	for r := range results {
		require.NoError(t, r.Err())
		require.Equal(t, "test", r.Data["app"])
		counts = append(counts, r.Data["count"])
	}
	require.Equal(t, []interface{}{int64(1), int64(2)}, counts)
	require.Equal(t, 0, s.calls(), "subscription not sent over HTTP")

	v, ok := c.Cache().Field(eggclient.RootSubscription, "count")
	require.True(t, ok)
	require.Equal(t, int64(2), v, "latest event is cached")

	// Queries still use HTTP
	_, err = c.Query(ctx, heroQuery, nil)
	require.NoError(t, err)
	require.Equal(t, 1, s.calls())

	count, err := testutil.GatherAndCount(reg, "eggclient_operations_total")
	require.NoError(t, err)
	require.Equal(t, 2, count, "one series each for http and ws")
}
