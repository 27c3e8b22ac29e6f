// Package jsonutil decodes JSON into generic Go values without losing the
// distinction between integers and floating point numbers.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// NewDecoder returns a decoder that decodes numbers as json.Number (see Fix)
func NewDecoder(r io.Reader) *json.Decoder {
	decoder := json.NewDecoder(r)
	decoder.UseNumber() // allows us to distinguish ints from floats (see Fix() below)
	return decoder
}

// Decode unmarshals a JSON object into a map, converting numbers with Fix
func Decode(b []byte, m *map[string]interface{}) error {
	if err := NewDecoder(bytes.NewReader(b)).Decode(m); err != nil {
		return err
	}
	FixMap(*m)
	return nil
}

// Fix goes through the structure created by a decoder that used UseNumber(), converting any
// json.Number values to either an int64 or a float64, and returns the converted value.
func Fix(val interface{}) interface{} {
	switch v := val.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String() // out of range for float64 - keep the text
	case map[string]interface{}:
		FixMap(v)
	case []interface{}:
		for i := range v {
			v[i] = Fix(v[i])
		}
	}
	return val
}

// FixMap converts numbers in place (recursively) in a decoded JSON object
func FixMap(m map[string]interface{}) {
	for key, val := range m {
		m[key] = Fix(val)
	}
}

// Normalize returns a scalar in the form Fix produces: integers of any size as int64 and
// floating point numbers as float64. Any other value that is not a plain decoded JSON value
// (eg a struct or a typed slice) is converted by way of its JSON encoding, or to its text
// if it can't be encoded. Maps and []interface{} are returned unchanged (see the callers).
func Normalize(val interface{}) interface{} {
	switch v := val.(type) {
	case nil, bool, string, int64, float64, map[string]interface{}, []interface{}:
		return v
	case json.Number:
		return Fix(v)
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return Fix(json.Number(strconv.FormatUint(uint64(v), 10)))
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return Fix(json.Number(strconv.FormatUint(v, 10)))
	case float32:
		return float64(v)
	}

	b, err := json.Marshal(val)
	if err != nil {
		return fmt.Sprintf("%v", val)
	}
	var r interface{}
	if err := NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return string(b)
	}
	return Fix(r)
}
