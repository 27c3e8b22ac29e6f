package cache

// normalize.go writes operation results into the cache, splitting nested objects out into
// their own records so that every object is stored once and referenced by key

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/andrewwphillips/eggclient/internal/operation"
)

// RootKey returns the key of the record holding the root fields for the kind of operation
func RootKey(kind operation.Kind) string {
	switch kind {
	case operation.Mutation:
		return RootMutation
	case operation.Subscription:
		return RootSubscription
	}
	return RootQuery
}

// Write normalizes the data of a result for op and stores it. Fields already in the cache
// that are not part of the result are kept.
func (s *Store) Write(op *operation.Operation, data map[string]interface{}) {
	if op == nil || op.Definition == nil || data == nil {
		return
	}
	w := normalizer{op: op, out: make(Snapshot)}
	w.object(RootKey(op.Kind), op.Definition.SelectionSet, data)

	s.mu.Lock()
	for key, rec := range w.out {
		old, ok := s.data[key]
		if !ok {
			s.data[key] = rec
			continue
		}
		for k, v := range rec {
			old[k] = v
		}
	}
	s.mu.Unlock()
	s.notify()
}

type normalizer struct {
	op  *operation.Operation
	out Snapshot
}

func (w *normalizer) object(key string, set ast.SelectionSet, obj map[string]interface{}) {
	rec, ok := w.out[key]
	if !ok {
		rec = make(Record)
		w.out[key] = rec
	}
	typename, _ := obj[typenameKey].(string)
	for _, f := range collectFields(w.op, set, typename) {
		v, ok := obj[responseKey(f.field)]
		if !ok {
			continue
		}
		sk := storeKey(w.op, f.field)
		rec[sk] = w.value(key+"."+sk, f.field, v)
	}
}

func (w *normalizer) value(path string, field *ast.Field, v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(field.SelectionSet) == 0 {
			return copyValue(val) // eg a JSON custom scalar
		}
		key, ok := Identify(val)
		if !ok {
			key = path
		}
		w.object(key, field.SelectionSet, val)
		return Ref(key)
	case []interface{}:
		r := make([]interface{}, len(val))
		for i, e := range val {
			r[i] = w.value(path+"."+strconv.Itoa(i), field, e)
		}
		return r
	}
	return v
}

// Identify returns the cache key of an object from its __typename and id (or _id) fields
func Identify(obj map[string]interface{}) (string, bool) {
	typename, ok := obj[typenameKey].(string)
	if !ok || typename == "" {
		return "", false
	}
	id, ok := obj["id"]
	if !ok || id == nil {
		if id, ok = obj["_id"]; !ok || id == nil {
			return "", false
		}
	}
	return fmt.Sprintf("%s:%v", typename, id), true
}

type collectedField struct {
	field *ast.Field

	// conditional is set for fields of a fragment whose type condition may not apply
	// to the object, so it is not an error if they are missing
	conditional bool
}

// collectFields flattens the selection set (including inline fragments and fragment spreads)
// into the list of fields that apply to an object of type typename
func collectFields(op *operation.Operation, set ast.SelectionSet, typename string) []collectedField {
	var r []collectedField
	var walk func(set ast.SelectionSet, conditional bool)
	walk = func(set ast.SelectionSet, conditional bool) {
		for _, s := range set {
			switch sel := s.(type) {
			case *ast.Field:
				r = append(r, collectedField{field: sel, conditional: conditional})
			case *ast.InlineFragment:
				walk(sel.SelectionSet, conditional || !typeMatches(sel.TypeCondition, typename))
			case *ast.FragmentSpread:
				if def := op.Fragment(sel.Name); def != nil {
					walk(def.SelectionSet, conditional || !typeMatches(def.TypeCondition, typename))
				}
			}
		}
	}
	walk(set, false)
	return r
}

func typeMatches(condition, typename string) bool {
	return condition == "" || condition == typename
}

func responseKey(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// storeKey is the field name plus, if the field has arguments, their values as JSON
// (with sorted keys) so that the same field with different arguments is stored separately.
func storeKey(op *operation.Operation, f *ast.Field) string {
	if len(f.Arguments) == 0 {
		return f.Name
	}
	args := make(map[string]interface{}, len(f.Arguments))
	for _, a := range f.Arguments {
		if a.Value == nil {
			continue
		}
		v, err := a.Value.Value(op.Variables)
		if err != nil {
			v = a.Value.Raw
		}
		args[a.Name] = v
	}
	b, err := json.Marshal(args)
	if err != nil {
		return f.Name
	}
	return f.Name + "(" + string(b) + ")"
}
