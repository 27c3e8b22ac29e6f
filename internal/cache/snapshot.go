// Package cache implements the client's normalized cache: a flat map from object
// identity key to a record of field values, where every reference from one object to
// another is stored as {"__ref": key} rather than as a nested copy.
package cache

// snapshot.go has the snapshot types and helpers for copying and comparing them

import (
	"encoding/json"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/andrewwphillips/eggclient/internal/jsonutil"
)

const (
	// RootQuery is the record that holds root query fields and also client-local fields
	// (such as isLoggedIn and token) that are not fetched from the network.
	RootQuery        = "ROOT_QUERY"
	RootMutation     = "ROOT_MUTATION"
	RootSubscription = "ROOT_SUBSCRIPTION"

	refKey      = "__ref"
	typenameKey = "__typename"
)

type (
	// Record is the flat set of fields for one object
	Record map[string]interface{}

	// Snapshot is the whole content of a cache, keyed on object identity.
	// A nil Snapshot means "no snapshot" which is different to an empty one.
	Snapshot map[string]Record
)

// Ref makes the value stored in a record for a reference to another object
func Ref(key string) map[string]interface{} {
	return map[string]interface{}{refKey: key}
}

// RefKey returns the key of the referenced object if v is a reference
func RefKey(v interface{}) (string, bool) {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return "", false
	}
	key, ok := m[refKey].(string)
	return key, ok
}

// Copy returns a deep copy of the snapshot (nil stays nil)
func (s Snapshot) Copy() Snapshot {
	if s == nil {
		return nil
	}
	r := make(Snapshot, len(s))
	for k, rec := range s {
		r[k] = Record(copyValue(map[string]interface{}(rec)).(map[string]interface{}))
	}
	return r
}

// Equal compares snapshots structurally, treating values as their JSON would be decoded
// (so int(1) and int64(1) are the same)
func (s Snapshot) Equal(other Snapshot) bool {
	return cmp.Equal(toMap(s.Copy()), toMap(other.Copy()))
}

// UnmarshalJSON decodes a snapshot, keeping integers distinct from floats so that
// snapshots decoded from JSON compare equal to the ones they were encoded from.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var m map[string]interface{}
	if err := jsonutil.Decode(b, &m); err != nil {
		return err
	}
	if m == nil {
		*s = nil
		return nil
	}
	r := make(Snapshot, len(m))
	for k, rec := range m {
		fields, ok := rec.(map[string]interface{})
		if !ok {
			return errors.Errorf("cache entry %q is not an object", k)
		}
		r[k] = Record(fields)
	}
	*s = r
	return nil
}

// FromValue converts a generic decoded JSON object (as found in a page payload) into a
// snapshot. Entries that are not objects are ignored. The returned snapshot holds
// values in decoded JSON form and shares nothing with v.
func FromValue(v interface{}) (Snapshot, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case Snapshot:
		return m.Copy(), true
	case map[string]Record:
		return Snapshot(m).Copy(), true
	case json.RawMessage:
		var s Snapshot
		if err := json.Unmarshal(m, &s); err != nil {
			return nil, false
		}
		return s, s != nil
	case map[string]interface{}:
		s := make(Snapshot, len(m))
		for k, rec := range m {
			switch r := rec.(type) {
			case map[string]interface{}:
				s[k] = Record(copyValue(r).(map[string]interface{}))
			case Record:
				s[k] = Record(copyValue(r).(map[string]interface{}))
			}
		}
		return s, true
	}
	return nil, false
}

func toMap(s Snapshot) map[string]map[string]interface{} {
	if s == nil {
		return nil
	}
	m := make(map[string]map[string]interface{}, len(s))
	for k, rec := range s {
		m[k] = rec
	}
	return m
}

// copyValue deep copies decoded JSON values (maps, slices and scalars). Other Go values
// (such as int or a struct in a snapshot built in Go) are converted to the form that
// decoding their JSON gives (see jsonutil.Normalize) so that they compare as expected.
func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		r := make(map[string]interface{}, len(val))
		for k, e := range val {
			r[k] = copyValue(e)
		}
		return r
	case Record:
		return copyValue(map[string]interface{}(val))
	case []interface{}:
		r := make([]interface{}, len(val))
		for i, e := range val {
			r[i] = copyValue(e)
		}
		return r
	}
	return jsonutil.Normalize(v)
}
