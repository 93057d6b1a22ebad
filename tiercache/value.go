// Package tiercache defines the shared data model for the multi-tier cache:
// the opaque value representation, TTL strategies, the error taxonomy, and
// statistics snapshots. Sub-packages (tier, tierchain, manager, invalidation,
// streaming, metrics) build on top of these types.
package tiercache

import "encoding/json"

// Key is a non-empty byte string. It is treated as opaque except where glob
// patterns apply (Manager.RemovePattern, invalidation.NewRemovePattern). No maximum length is enforced.
type Key = string

// Value is the opaque, self-describing payload the cache round-trips without
// interpreting. Concretely it is a structured document with string keys and
// primitive or nested values, matching the JSON object shape every tier
// backend (local or Redis) ultimately stores as bytes.
type Value map[string]any

// Encode serializes a Value to its wire representation. Every tier stores
// this representation verbatim; the manager is the only component that
// decodes it.
func Encode(v Value) ([]byte, error) {
	return json.Marshal(v)
}

// Decode parses a wire representation back into a Value. A decode failure is
// a data-corruption error (see ErrDecodeFailed) and causes the caller to
// remove the offending key from the tier that produced it.
func Decode(b []byte) (Value, error) {
	var v Value
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeTyped serializes an arbitrary typed producer result for the typed
// GetOrCompute variant. It performs the same symmetric encode the untyped
// path performs on a Value, just over a concrete Go type.
func EncodeTyped[T any](v T) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeTyped deserializes bytes produced by EncodeTyped back into T.
func DecodeTyped[T any](b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}
