package eggclient

// types.go makes the types of the internal packages that appear in the API available to users

import (
	"github.com/andrewwphillips/eggclient/internal/cache"
	"github.com/andrewwphillips/eggclient/internal/operation"
	"github.com/andrewwphillips/eggclient/internal/transport"
)

type (
	// Operation is one query, mutation or subscription (see NewOperation)
	Operation = operation.Operation

	// Kind is the type of an operation (Query, Mutation or Subscription)
	Kind = operation.Kind

	// Result is what comes back for an operation. Data may be partial if there are failures,
	// which are either GraphQL errors from the server (Errors) or a transport failure (NetworkError).
	Result = operation.Result

	// Store is the normalized cache of a client
	Store = cache.Store

	// Snapshot is a copy of the content of a Store
	Snapshot = cache.Snapshot

	// ServerError is the NetworkError when the server returns a status that is not 2xx
	ServerError = transport.ServerError

	// ServerParseError is the NetworkError when a response can't be decoded
	ServerParseError = transport.ServerParseError

	// CloseError is the NetworkError of a subscription when the websocket is closed by the server
	CloseError = transport.CloseError
)

const (
	Query        = operation.Query
	Mutation     = operation.Mutation
	Subscription = operation.Subscription
)

// Names of the root records of the cache
const (
	RootQuery        = cache.RootQuery
	RootMutation     = cache.RootMutation
	RootSubscription = cache.RootSubscription
)

// NewOperation parses a document for use with Client.Execute. The operation to run is
// the one called operationName, or the only one in the document if operationName is "".
func NewOperation(document string, variables map[string]interface{}, operationName string) (*Operation, error) {
	return operation.New(document, variables, operationName)
}
