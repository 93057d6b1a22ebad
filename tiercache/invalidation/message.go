// Package invalidation implements the cross-process coherence plane (§4.6):
// a Publisher that serializes invalidation messages onto a broadcast
// channel, a Subscriber that applies received messages to the local tier
// chain with self-echo suppression and reconnect backoff, and an optional
// audit log.
package invalidation

import (
	"encoding/json"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
)

// Message is the tagged union described in §3 ("Invalidation message") and
// wire-encoded per §6's self-describing structured text format. Which of
// Key/Keys/Pattern/Value are populated depends on Kind: Remove sets Key,
// Update sets Key and Value, RemovePattern sets Pattern, RemoveBulk sets Keys.
type Message struct {
	Kind    tiercache.InvalidationKind `json:"kind"`
	Key     string                     `json:"key,omitempty"`
	Keys    []string                   `json:"keys,omitempty"`
	Pattern string                     `json:"pattern,omitempty"`
	Value   tiercache.Value            `json:"value,omitempty"`
	TTLMs   *int64                     `json:"ttl_ms,omitempty"`
	TsMs    int64                      `json:"ts_ms"`
	Origin  string                     `json:"origin"`
}

// wireMessage mirrors §6's external field names (kind as a string enum)
// rather than Message's internal numeric Kind, since the broadcast channel
// contract is specified in terms of the string enum
// {remove,update,remove_pattern,remove_bulk}.
type wireMessage struct {
	Kind    string          `json:"kind"`
	Key     *string         `json:"key"`
	Keys    []string        `json:"keys"`
	Pattern *string         `json:"pattern"`
	Value   tiercache.Value `json:"value"`
	TTLMs   *int64          `json:"ttl_ms"`
	TsMs    int64           `json:"ts_ms"`
	Origin  string          `json:"origin"`
}

func kindToWire(k tiercache.InvalidationKind) string {
	switch k {
	case tiercache.KindRemove:
		return "remove"
	case tiercache.KindUpdate:
		return "update"
	case tiercache.KindRemovePattern:
		return "remove_pattern"
	case tiercache.KindRemoveBulk:
		return "remove_bulk"
	default:
		return "remove"
	}
}

func kindFromWire(s string) (tiercache.InvalidationKind, bool) {
	switch s {
	case "remove":
		return tiercache.KindRemove, true
	case "update":
		return tiercache.KindUpdate, true
	case "remove_pattern":
		return tiercache.KindRemovePattern, true
	case "remove_bulk":
		return tiercache.KindRemoveBulk, true
	default:
		return 0, false
	}
}

// Encode serializes a Message into the wire format described in §6.
func Encode(m Message) ([]byte, error) {
	w := wireMessage{
		Kind:   kindToWire(m.Kind),
		Keys:   m.Keys,
		Value:  m.Value,
		TTLMs:  m.TTLMs,
		TsMs:   m.TsMs,
		Origin: m.Origin,
	}
	if m.Key != "" {
		w.Key = &m.Key
	}
	if m.Pattern != "" {
		w.Pattern = &m.Pattern
	}
	return json.Marshal(w)
}

// Decode parses the wire format back into a Message. An unknown kind or
// malformed payload is a decode error; the subscriber counts it and
// continues (§4.6: "on decode or apply errors, increments an error counter
// and continues").
func Decode(b []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return Message{}, err
	}
	kind, ok := kindFromWire(w.Kind)
	if !ok {
		return Message{}, tiercache.NewConfigurationError("invalidation: unknown message kind " + w.Kind)
	}
	m := Message{
		Kind:   kind,
		Keys:   w.Keys,
		Value:  w.Value,
		TTLMs:  w.TTLMs,
		TsMs:   w.TsMs,
		Origin: w.Origin,
	}
	if w.Key != nil {
		m.Key = *w.Key
	}
	if w.Pattern != nil {
		m.Pattern = *w.Pattern
	}
	return m, nil
}

// NewRemove builds a Remove(key) message.
func NewRemove(key, origin string, ts time.Time) Message {
	return Message{Kind: tiercache.KindRemove, Key: key, Origin: origin, TsMs: ts.UnixMilli()}
}

// NewUpdate builds an Update(key, value, ttl?) message.
func NewUpdate(key string, value tiercache.Value, ttl *time.Duration, origin string, ts time.Time) Message {
	m := Message{Kind: tiercache.KindUpdate, Key: key, Value: value, Origin: origin, TsMs: ts.UnixMilli()}
	if ttl != nil {
		ms := ttl.Milliseconds()
		m.TTLMs = &ms
	}
	return m
}

// NewRemovePattern builds a RemovePattern(glob) message.
func NewRemovePattern(pattern, origin string, ts time.Time) Message {
	return Message{Kind: tiercache.KindRemovePattern, Pattern: pattern, Origin: origin, TsMs: ts.UnixMilli()}
}

// NewRemoveBulk builds a RemoveBulk({keys...}) message.
func NewRemoveBulk(keys []string, origin string, ts time.Time) Message {
	return Message{Kind: tiercache.KindRemoveBulk, Keys: keys, Origin: origin, TsMs: ts.UnixMilli()}
}
