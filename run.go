package eggclient

// run.go provides MustNew for quickly creating a client, eg in main() or tests

// MustNew creates a client with the given options, panicking if it can't be created.
// It only takes options (closures) so the usual way to call it is just with the endpoints:
//  c := eggclient.MustNew(eggclient.HTTPEndpoint("http://localhost:4000/graphql"),
//                         eggclient.WSEndpoint("ws://localhost:4000/graphql"))
func MustNew(opts ...func(*options)) *Client {
	c, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return c
}
