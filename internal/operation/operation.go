// Package operation describes a single GraphQL request (query, mutation or
// subscription) as it travels through the client's link chain, and the
// result(s) that come back.
package operation

// operation.go parses a request document and classifies the operation it contains

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Kind says what sort of GraphQL operation a request is
type Kind int

const (
	Query Kind = iota
	Mutation
	Subscription
)

func (k Kind) String() string {
	switch k {
	case Query:
		return "query"
	case Mutation:
		return "mutation"
	case Subscription:
		return "subscription"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type (
	// Operation is created per call and consumed once by the link chain.
	// Headers is the only part the links are expected to modify.
	Operation struct {
		Kind       Kind
		Name       string // operationName sent to the server (may be empty)
		Query      string // the document text
		Variables  map[string]interface{}
		Extensions map[string]interface{}
		Headers    http.Header

		Document   *ast.QueryDocument
		Definition *ast.OperationDefinition
	}
)

// New parses the document and selects the operation to run, which is the one called
// operationName or, if operationName is empty, the only operation in the document.
func New(document string, variables map[string]interface{}, operationName string) (*Operation, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "operation", Input: document})
	if err != nil {
		return nil, errors.Wrap(err, "parsing operation document")
	}

	var def *ast.OperationDefinition
	switch {
	case operationName != "":
		def = doc.Operations.ForName(operationName)
		if def == nil {
			return nil, errors.Errorf("operation %q not found in document", operationName)
		}
	case len(doc.Operations) == 1:
		def = doc.Operations[0]
	case len(doc.Operations) == 0:
		return nil, errors.New("document contains no operations")
	default:
		return nil, errors.New("document contains several operations but no operation name was given")
	}

	kind, err := Classify(def)
	if err != nil {
		return nil, err
	}
	return &Operation{
		Kind:       kind,
		Name:       def.Name,
		Query:      document,
		Variables:  variables,
		Headers:    make(http.Header),
		Document:   doc,
		Definition: def,
	}, nil
}

// Classify maps the operation type keyword of a definition onto a Kind
func Classify(def *ast.OperationDefinition) (Kind, error) {
	switch def.Operation {
	case ast.Query, "": // shorthand "{ ... }" has no keyword
		return Query, nil
	case ast.Mutation:
		return Mutation, nil
	case ast.Subscription:
		return Subscription, nil
	}
	return Query, errors.Errorf("unknown operation type %q", def.Operation)
}

// Fragment finds a named fragment in the operation's document (nil if there isn't one)
func (op *Operation) Fragment(name string) *ast.FragmentDefinition {
	if op.Document == nil {
		return nil
	}
	return op.Document.Fragments.ForName(name)
}
