// Package index maintains the per-repository JSON indexes (metadata.json and
// albums.json) with read-modify-write cycles guarded by concurrency tokens.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abduss/picvault/internal/metrics"
	"github.com/abduss/picvault/internal/remote"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	defaultRetries = 3
	defaultBackoff = 100 * time.Millisecond
)

// Config tunes conflict handling.
type Config struct {
	// Retries is how many fresh read-modify-write attempts follow the first conflict.
	Retries int
	// Backoff is the initial delay between attempts; it grows exponentially.
	Backoff time.Duration
}

// Manager performs index operations over an IndexStore.
type Manager struct {
	store   IndexStore
	retries uint64
	backoff time.Duration
	log     *zap.Logger
}

// NewManager constructs a Manager. Zero config values fall back to defaults.
func NewManager(store IndexStore, cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	} else if cfg.Retries == 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Manager{store: store, retries: uint64(cfg.Retries), backoff: cfg.Backoff, log: log}
}

// Mutate reads the index at ref, applies fn and writes the result with the token
// from that read. On a token conflict the whole cycle restarts from a fresh read.
// fn may return ErrNoChange to finish without writing; fn must not keep state
// between calls because it can run more than once.
func Mutate[T Record](ctx context.Context, m *Manager, ref Ref, message string, fn func([]T) ([]T, error)) ([]T, error) {
	var result []T
	backoff := retry.WithMaxRetries(m.retries, retry.NewExponential(m.backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		doc, err := m.store.Read(ctx, ref)
		if err != nil {
			return err
		}
		records, dropped, err := decode[T](doc.Content)
		if err != nil {
			return fmt.Errorf("%s/%s: %w", ref.Repo, ref.Path, err)
		}
		if dropped > 0 {
			m.log.Warn("dropping malformed index entries",
				zap.String("repository", ref.Repo),
				zap.String("index", ref.Path),
				zap.Int("dropped", dropped))
		}

		next, err := fn(records)
		if errors.Is(err, ErrNoChange) {
			result = records
			return nil
		}
		if err != nil {
			return err
		}

		content, err := encode(next)
		if err != nil {
			return fmt.Errorf("encode %s: %w", ref.Path, err)
		}
		if err := m.store.Write(ctx, ref, content, doc.Token, message); err != nil {
			if errors.Is(err, remote.ErrConflict) {
				metrics.IndexConflict(ref.Path)
				m.log.Info("index write conflict, retrying",
					zap.String("repository", ref.Repo),
					zap.String("index", ref.Path))
				return retry.RetryableError(err)
			}
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// load reads and decodes an index through the authenticated path.
func load[T Record](ctx context.Context, m *Manager, ref Ref) ([]T, error) {
	doc, err := m.store.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	records, _, err := decode[T](doc.Content)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", ref.Repo, ref.Path, err)
	}
	return records, nil
}

// loadRaw reads and decodes an index through the raw path. A missing file is an empty index.
func loadRaw[T Record](ctx context.Context, m *Manager, ref Ref) ([]T, error) {
	content, err := m.store.ReadRaw(ctx, ref)
	if errors.Is(err, remote.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}
	records, _, err := decode[T](content)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", ref.Repo, ref.Path, err)
	}
	return records, nil
}

func find[T Record](records []T, id string) (int, bool) {
	for i, r := range records {
		if r.Key() == id {
			return i, true
		}
	}
	return -1, false
}
