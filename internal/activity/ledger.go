// Package activity keeps a bounded, newest-first log of sponsored
// transactions for the history endpoint.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"solrelay/internal/platform/kv"
	"solrelay/internal/platform/metrics"
	"solrelay/pkg/requestcontext"
)

const (
	// ListKey is the backend list holding every entry.
	ListKey         = "activity:global"
	KindSponsor     = "sponsor"
	defaultCapacity = 100
)

// Entry is one ledger row. ID is the hex sha256 of the transaction message.
type Entry struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	TxID      string   `json:"txId"`
	Signers   []string `json:"signers,omitempty"`
	Memo      *string  `json:"memo"`
	Timestamp string   `json:"timestamp"`
}

// Ledger appends entries and trims the list to its capacity on every write.
type Ledger struct {
	backend  kv.Backend
	capacity int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Ledger)

func WithCapacity(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.capacity = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func New(backend kv.Backend, opts ...Option) (*Ledger, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	l := &Ledger{
		backend:  backend,
		capacity: defaultCapacity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Ledger) Capacity() int { return l.capacity }

// Record stamps entry with the request time and prepends it.
func (l *Ledger) Record(ctx context.Context, entry Entry) error {
	entry.Timestamp = requestcontext.Now(ctx).UTC().Format(time.RFC3339)
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode activity entry: %w", err)
	}
	if err := l.backend.PushHead(ctx, ListKey, string(raw)); err != nil {
		return fmt.Errorf("push activity entry: %w", err)
	}
	if err := l.backend.Trim(ctx, ListKey, l.capacity); err != nil {
		return fmt.Errorf("trim activity ledger: %w", err)
	}
	l.metrics.IncActivityRecorded()
	return nil
}

// Fetch returns up to limit entries, newest first. The limit is capped at the
// ledger capacity. Rows that fail to decode are skipped.
func (l *Ledger) Fetch(ctx context.Context, limit int) ([]Entry, error) {
	if limit > l.capacity {
		limit = l.capacity
	}
	if limit <= 0 {
		return []Entry{}, nil
	}
	rows, err := l.backend.Range(ctx, ListKey, limit)
	if err != nil {
		return nil, fmt.Errorf("read activity ledger: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		var e Entry
		if err := json.Unmarshal([]byte(row), &e); err != nil {
			l.logger.WarnContext(ctx, "skipping undecodable activity row", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
