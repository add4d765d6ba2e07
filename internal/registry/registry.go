// Package registry enumerates an owner's storage repositories and tracks their capacity.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abduss/picvault/internal/remote"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultConcurrency = 4

type assetCounter interface {
	CountAssets(ctx context.Context, owner, repo string) (int, error)
}

// Config parameterizes a Registry.
type Config struct {
	Prefix      string
	MaxRepos    int
	HardCap     int64
	TTL         time.Duration
	Concurrency int
}

// Registry lists storage repositories with sizes and asset counts.
type Registry struct {
	store   remote.Store
	counter assetCounter
	cache   Cache
	cfg     Config
	group   singleflight.Group
	log     *zap.Logger

	// generations counts invalidations per owner; a fetch that started
	// before an invalidation must not repopulate the cache.
	mu          sync.Mutex
	generations map[string]uint64
}

// New constructs a Registry. A nil cache gets a MemoryCache on wall time.
func New(store remote.Store, counter assetCounter, cache Cache, cfg Config, log *zap.Logger) *Registry {
	if cache == nil {
		cache = NewMemoryCache(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Registry{store: store, counter: counter, cache: cache, cfg: cfg, log: log, generations: map[string]uint64{}}
}

// Prefix returns the naming prefix of storage repositories.
func (r *Registry) Prefix() string {
	return r.cfg.Prefix
}

// Suffix returns N for a repository named <prefix>-N, 0 for the bare prefix,
// and false for names outside the naming convention.
func Suffix(prefix, name string) (int, bool) {
	if name == prefix {
		return 0, true
	}
	rest, ok := strings.CutPrefix(name, prefix+"-")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || strconv.Itoa(n) != rest {
		return 0, false
	}
	return n, true
}

// ListStorageRepositories returns the owner's storage repositories in creation order.
// Results are cached per owner and credential; failures are never cached.
func (r *Registry) ListStorageRepositories(ctx context.Context, owner string) ([]Descriptor, error) {
	key := cacheKey(owner, r.store.CredentialScope())
	if cached, ok := r.cache.Get(ctx, key); ok {
		return cached, nil
	}

	gen := r.generation(owner)
	v, err, _ := r.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		descriptors, err := r.fetch(ctx, owner)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.generations[owner] == gen {
			r.cache.Set(ctx, key, descriptors, r.cfg.TTL)
		}
		r.mu.Unlock()
		return descriptors, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]Descriptor(nil), v.([]Descriptor)...), nil
}

func (r *Registry) fetch(ctx context.Context, owner string) ([]Descriptor, error) {
	repos, err := r.store.ListRepositories(ctx, owner)
	if errors.Is(err, remote.ErrNotFound) {
		return []Descriptor{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list repositories for %s: %w", owner, err)
	}

	type candidate struct {
		repo   remote.Repository
		suffix int
	}
	var matched []candidate
	for _, repo := range repos {
		if n, ok := Suffix(r.cfg.Prefix, repo.Name); ok {
			matched = append(matched, candidate{repo: repo, suffix: n})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.repo.CreatedAt.Equal(b.repo.CreatedAt) {
			return a.repo.CreatedAt.Before(b.repo.CreatedAt)
		}
		return a.suffix < b.suffix
	})

	descriptors := make([]Descriptor, len(matched))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, c := range matched {
		i, c := i, c
		descriptors[i] = Descriptor{Name: c.repo.Name, SizeBytes: c.repo.SizeBytes, CreatedAt: c.repo.CreatedAt}
		g.Go(func() error {
			n, err := r.counter.CountAssets(gctx, owner, c.repo.Name)
			if err != nil {
				r.log.Warn("count assets failed",
					zap.String("owner", owner),
					zap.String("repository", c.repo.Name),
					zap.Error(err))
				return nil
			}
			descriptors[i].ImageCount = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return descriptors, nil
}

// Invalidate drops cached listings for owner. Every mutating path calls it.
func (r *Registry) Invalidate(ctx context.Context, owner string) {
	r.mu.Lock()
	r.generations[owner]++
	r.mu.Unlock()
	r.cache.Invalidate(ctx, owner)
}

func (r *Registry) generation(owner string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[owner]
}

// CapacityStats aggregates usage across the owner's storage repositories.
func (r *Registry) CapacityStats(ctx context.Context, owner string) (Stats, error) {
	repos, err := r.ListStorageRepositories(ctx, owner)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalCapacityBytes: int64(r.cfg.MaxRepos) * r.cfg.HardCap,
		Repositories:       repos,
	}
	for _, d := range repos {
		stats.UsedBytes += d.SizeBytes
		stats.ImageCount += d.ImageCount
	}
	stats.AvailableBytes = stats.TotalCapacityBytes - stats.UsedBytes
	if stats.AvailableBytes < 0 {
		stats.AvailableBytes = 0
	}
	if stats.TotalCapacityBytes > 0 {
		pct := float64(stats.UsedBytes) / float64(stats.TotalCapacityBytes) * 100
		stats.PercentUsed = math.Round(pct*100) / 100
	}
	return stats, nil
}
