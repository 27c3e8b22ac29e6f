// Package eggclient is a GraphQL client that caches results in a normalized cache and
// can hand that cache over from a server rendered page to the client that hydrates it.

// Every operation goes through the same chain: failures are logged (then still returned),
// the auth token is put in the "x-jwt" header, and the operation is sent over HTTP or, for
// subscriptions when a websocket endpoint is configured, over a websocket. For example:

//	c, err := eggclient.New(eggclient.HTTPEndpoint("http://localhost:4000/graphql"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	r, err := c.Query(ctx, `{ hero { name } }`, nil)

// The token is the one given with the Token option or else the "token" field of the cache's
// ROOT_QUERY record, which the application writes (along with "isLoggedIn") after logging in:

//	c.Cache().WriteField(eggclient.RootQuery, "token", tok)
//	c.Cache().WriteField(eggclient.RootQuery, "isLoggedIn", true)

// Use a Session to get a client: in a browser or other interactive process use a session
// scoped Session so the client (and its cache and websocket) is shared; when rendering pages
// on a server use a request scoped Session so each request gets its own client. The cache of
// a server side client is sent with the page (see AddState) then merged into the cache of
// the client side client (see StateFrom and Session.Client).

package eggclient

// TODO:
// persisted queries (send the hash of the query and fall back to the full query)
// batching of HTTP requests
// cache eviction and garbage collection of unreachable records
