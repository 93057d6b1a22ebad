// Package streaming implements the optional append-only event log sidecar
// (§4.7) atop the shared tier's Redis collaborator, using Redis Streams
// (XADD/XREVRANGE/XREAD) rather than reimplementing an append log from
// scratch, since the shared tier is already Redis in this module's
// reference wiring.
package streaming

import (
	"context"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/redis/go-redis/v9"
)

// StreamClient is the subset of *redis.Client the sidecar depends on.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
}

// Entry is one record read back from a stream.
type Entry struct {
	ID     string
	Fields map[string]any
}

// Sidecar is the optional append-only event log (§4.7). Callers invoke its
// methods directly; the manager holds an optional Sidecar but exposes no
// stream operations of its own.
type Sidecar struct {
	client  StreamClient
	timeout time.Duration
}

// Config configures a Sidecar.
type Config struct {
	Client  StreamClient
	Timeout time.Duration // <= 0 uses 5s, matching the shared-tier default.
}

// New builds a Sidecar. It panics if cfg.Client is nil.
func New(cfg Config) *Sidecar {
	if cfg.Client == nil {
		panic("streaming: Config.Client must not be nil")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sidecar{client: cfg.Client, timeout: timeout}
}

// Append adds fields as a new entry to stream, trimming best-effort to
// maxLen (<=0 disables trimming) via XADD's approximate MAXLEN (§4.7:
// "Trimming is best-effort to max_len on append").
func (s *Sidecar) Append(ctx context.Context, stream string, fields map[string]any, maxLen int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return tiercache.NewBackendError(stream, "append", err)
	}
	return nil
}

// ReadLatest returns the n most recent entries in stream, newest first.
func (s *Sidecar) ReadLatest(ctx context.Context, stream string, n int64) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msgs, err := s.client.XRevRangeN(ctx, stream, "+", "-", n).Result()
	if err != nil {
		return nil, tiercache.NewBackendError(stream, "read_latest", err)
	}
	return toEntries(msgs), nil
}

// ReadBlocking reads up to n entries after fromID, blocking up to timeout
// for new entries to arrive if none are immediately available. fromID "$"
// means "only entries after this call started".
func (s *Sidecar) ReadBlocking(ctx context.Context, stream, fromID string, n int64, timeout time.Duration) ([]Entry, error) {
	block := timeout
	if block <= 0 {
		block = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, block+time.Second)
	defer cancel()

	res, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, fromID},
		Count:   n,
		Block:   block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, tiercache.NewBackendError(stream, "read_blocking", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return toEntries(res[0].Messages), nil
}

func toEntries(msgs []redis.XMessage) []Entry {
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Entry{ID: m.ID, Fields: m.Values})
	}
	return out
}
