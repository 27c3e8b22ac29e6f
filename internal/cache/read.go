package cache

// read.go rebuilds the data for an operation from the normalized records

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/andrewwphillips/eggclient/internal/operation"
)

// Read returns the data for op built from the cache. The boolean is false if anything the
// operation selects is missing, in which case the data should not be used.
func (s *Store) Read(op *operation.Operation) (map[string]interface{}, bool) {
	if op == nil || op.Definition == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := reader{op: op, data: s.data}
	return r.object(RootKey(op.Kind), op.Definition.SelectionSet)
}

type reader struct {
	op   *operation.Operation
	data Snapshot
}

func (r *reader) object(key string, set ast.SelectionSet) (map[string]interface{}, bool) {
	rec, ok := r.data[key]
	if !ok {
		return nil, false
	}
	typename, _ := rec[typenameKey].(string)
	out := make(map[string]interface{})
	for _, f := range collectFields(r.op, set, typename) {
		v, ok := rec[storeKey(r.op, f.field)]
		if !ok {
			if f.field.Name == typenameKey && typename != "" {
				out[responseKey(f.field)] = typename
				continue
			}
			if f.conditional {
				continue
			}
			return nil, false
		}
		val, ok := r.value(f.field, v)
		if !ok {
			return nil, false
		}
		out[responseKey(f.field)] = val
	}
	return out, true
}

func (r *reader) value(field *ast.Field, v interface{}) (interface{}, bool) {
	if key, ok := RefKey(v); ok {
		obj, ok := r.object(key, field.SelectionSet)
		if !ok {
			return nil, false
		}
		return obj, true
	}
	if list, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(list))
		for i, e := range list {
			val, ok := r.value(field, e)
			if !ok {
				return nil, false
			}
			out[i] = val
		}
		return out, true
	}
	return copyValue(v), true
}
