package jwtx

import (
	"encoding/json"
	"math"
)

// Claims is the opaque payload map carried by a token. Beyond iat/exp and an
// optional iss, the signer and verifier only agree on the fields they both
// name; everything else passes through untouched.
type Claims map[string]any

// Has reports whether a key is present, regardless of its value.
func (c Claims) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// String returns the named claim as a string, or "" when absent or not a
// string.
func (c Claims) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Bool returns the named claim as a bool, or false when absent.
func (c Claims) Bool(key string) bool {
	b, _ := c[key].(bool)
	return b
}

// Int returns the named claim as an integer. Claims that round-tripped
// through JSON decode numbers as float64, so integral floats are accepted;
// anything else reports false.
func (c Claims) Int(key string) (int64, bool) {
	switch v := c[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Subject returns the sub claim when it is an integer. Identity tokens bind
// sub to a numeric user id; a non-integer sub reports false.
func (c Claims) Subject() (int64, bool) {
	return c.Int("sub")
}

// Map returns the named claim as a nested claims map, or nil.
func (c Claims) Map(key string) Claims {
	m, _ := c[key].(map[string]any)
	return Claims(m)
}
