package cache

// merge.go combines a cache snapshot with a serialized snapshot being hydrated into it

import (
	"github.com/google/go-cmp/cmp"
)

// Merge returns the deep merge of the existing snapshot with the incoming one. Neither
// parameter is modified and the result shares no maps or slices with them.
//
// Objects are merged key by key, recursively. For any other value present in both,
// the incoming value wins, except for arrays: the merged array is the incoming array
// followed by every element of the existing array that is not structurally equal to
// some element of the incoming array. This stops list fields filled in both by the
// server render and by earlier client activity from ending up with duplicate rows.
//
// If incoming is nil the result is (a copy of) existing; if existing is nil it is a copy
// of incoming.
func Merge(existing, incoming Snapshot) Snapshot {
	if incoming == nil {
		return existing.Copy()
	}
	if existing == nil {
		return incoming.Copy()
	}

	r := existing.Copy()
	for key, rec := range incoming.Copy() {
		if old, ok := r[key]; ok {
			r[key] = Record(mergeObjects(old, rec))
		} else {
			r[key] = rec
		}
	}
	return r
}

// mergeObjects merges src into dst (dst is modified and must not be shared). Both must
// hold values already converted by copyValue.
func mergeObjects(dst, src map[string]interface{}) map[string]interface{} {
	for k, v := range src {
		if old, ok := dst[k]; ok {
			dst[k] = mergeValues(old, v)
		} else {
			dst[k] = copyValue(v)
		}
	}
	return dst
}

func mergeValues(existing, incoming interface{}) interface{} {
	if in, ex := asObject(incoming), asObject(existing); in != nil && ex != nil {
		return mergeObjects(ex, in)
	}
	inList, ok1 := incoming.([]interface{})
	exList, ok2 := existing.([]interface{})
	if ok1 && ok2 {
		return mergeArrays(exList, inList)
	}
	return copyValue(incoming) // scalar, null or mismatched types
}

// mergeArrays puts the incoming elements first then the existing ones not already there
func mergeArrays(existing, incoming []interface{}) []interface{} {
	r := make([]interface{}, 0, len(incoming)+len(existing))
	for _, v := range incoming {
		r = append(r, copyValue(v))
	}
	for _, v := range existing {
		if !containsEqual(incoming, v) {
			r = append(r, copyValue(v))
		}
	}
	return r
}

func containsEqual(list []interface{}, v interface{}) bool {
	for _, e := range list {
		if cmp.Equal(e, v) {
			return true
		}
	}
	return false
}

// asObject returns a JSON object value as a map (nil if it is not an object)
func asObject(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		return m
	case Record:
		return m
	}
	return nil
}
