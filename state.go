package eggclient

// state.go handles passing the cache from a server rendered page to the client that hydrates it

import (
	"github.com/andrewwphillips/eggclient/internal/cache"
)

// StatePropName is the property of a page's props holding the serialized cache. Its
// value is shared with (and so must match) whatever renders and hydrates pages.
const StatePropName = "__APOLLO_STATE__"

// SerializedState is a cache snapshot in the form embedded in a page
type SerializedState = Snapshot

// ExtractState returns a copy of the client's whole cache
func ExtractState(c *Client) SerializedState {
	return c.store.Extract()
}

// AddState stores the client's cache in page["props"][StatePropName]. If the page has no
// props (or props is not an object) the page is returned unchanged.
func AddState(c *Client, page map[string]interface{}) map[string]interface{} {
	if props, ok := page["props"].(map[string]interface{}); ok {
		props[StatePropName] = ExtractState(c)
	}
	return page
}

// StateFrom finds the serialized cache in a page's props. The value may be a snapshot
// or the result of decoding the page from JSON.
func StateFrom(page map[string]interface{}) (SerializedState, bool) {
	props, ok := page["props"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	return cache.FromValue(props[StatePropName])
}
