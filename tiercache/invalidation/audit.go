package invalidation

import (
	"context"
	"encoding/json"

	"github.com/IvanBrykalov/multitiercache/tiercache"
)

// AuditRecord is the compacted record appended to the audit stream: a
// timestamp, kind, and either keys or a pattern (§4.6: "appends the message
// (compacted as a record with timestamp, kind, keys or pattern)").
type AuditRecord struct {
	TsMs    int64                      `json:"ts_ms"`
	Kind    tiercache.InvalidationKind `json:"kind"`
	Keys    []string                   `json:"keys,omitempty"`
	Pattern string                     `json:"pattern,omitempty"`
	Origin  string                     `json:"origin"`
}

func recordFor(m Message) AuditRecord {
	r := AuditRecord{TsMs: m.TsMs, Kind: m.Kind, Origin: m.Origin}
	switch m.Kind {
	case tiercache.KindRemove:
		r.Keys = []string{m.Key}
	case tiercache.KindUpdate:
		r.Keys = []string{m.Key}
	case tiercache.KindRemovePattern:
		r.Pattern = m.Pattern
	case tiercache.KindRemoveBulk:
		r.Keys = m.Keys
	}
	return r
}

// AuditAppender is the minimal append-only-log contract the audit feature
// needs; streaming.Sidecar satisfies it, keeping invalidation decoupled
// from the concrete streaming package (avoiding an import cycle, since a
// full sidecar also needs a tier.SharedTier which the invalidation package
// has no reason to know about).
type AuditAppender interface {
	Append(ctx context.Context, stream string, fields map[string]any, maxLen int64) error
}

// AuditConfig configures the optional audit log (§4.6, §6).
type AuditConfig struct {
	Enabled bool
	Stream  string // defaults to "cache:invalidations"
	MaxLen  int64  // defaults to 10000; <=0 uses the default
	Sink    AuditAppender
}

const (
	// DefaultAuditStream is used when AuditConfig.Stream is empty.
	DefaultAuditStream = "cache:invalidations"
	// DefaultAuditMaxLen is used when AuditConfig.MaxLen is <= 0.
	DefaultAuditMaxLen = int64(10000)
)

type audit struct {
	enabled bool
	stream  string
	maxLen  int64
	sink    AuditAppender
}

func newAudit(cfg AuditConfig) *audit {
	if !cfg.Enabled || cfg.Sink == nil {
		return &audit{enabled: false}
	}
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultAuditStream
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultAuditMaxLen
	}
	return &audit{enabled: true, stream: stream, maxLen: maxLen, sink: cfg.Sink}
}

func (a *audit) record(ctx context.Context, m Message) error {
	if !a.enabled {
		return nil
	}
	rec := recordFor(m)
	fields, err := toFields(rec)
	if err != nil {
		return err
	}
	return a.sink.Append(ctx, a.stream, fields, a.maxLen)
}

func toFields(rec AuditRecord) (map[string]any, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
