// Package allocator chooses the storage repository a new asset is written to and
// provisions new repositories when the existing ones are full.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abduss/picvault/internal/metrics"
	"github.com/abduss/picvault/internal/registry"
	"github.com/abduss/picvault/internal/remote"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Seed files written into every new repository.
const (
	KeepFile     = "images/.gitkeep"
	AssetsIndex  = "metadata.json"
	seedRetry    = 500 * time.Millisecond
	seedAttempts = 1
)

type repositoryLister interface {
	ListStorageRepositories(ctx context.Context, owner string) ([]registry.Descriptor, error)
	Invalidate(ctx context.Context, owner string)
	Prefix() string
}

// Config holds the capacity policy.
type Config struct {
	SoftThreshold int64
	HardCap       int64
	MaxRepos      int
	SettleDelay   time.Duration
	VaultRepo     string
}

// Allocator implements the repository selection policy.
type Allocator struct {
	store    remote.Store
	registry repositoryLister
	cfg      Config
	log      *zap.Logger
}

// New constructs an Allocator.
func New(store remote.Store, reg repositoryLister, cfg Config, log *zap.Logger) *Allocator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Allocator{store: store, registry: reg, cfg: cfg, log: log}
}

// SelectWritableRepository returns the repository the next public upload should land in.
//
// The first repository below the soft threshold wins. When all are above it and the
// repository limit allows, a new repository is provisioned. Otherwise the first
// repository below the hard cap is used.
func (a *Allocator) SelectWritableRepository(ctx context.Context, owner string) (string, error) {
	repos, err := a.registry.ListStorageRepositories(ctx, owner)
	if err != nil {
		return "", err
	}

	for _, r := range repos {
		if r.SizeBytes < a.cfg.SoftThreshold {
			return r.Name, nil
		}
	}

	if len(repos) < a.cfg.MaxRepos {
		name := a.nextName(repos)
		if err := a.ProvisionRepository(ctx, owner, name, remote.Public); err != nil {
			return "", err
		}
		a.log.Info("provisioned storage repository",
			zap.String("owner", owner),
			zap.String("repository", name),
			zap.Int("existing", len(repos)))
		return name, nil
	}

	for _, r := range repos {
		if r.SizeBytes < a.cfg.HardCap {
			return r.Name, nil
		}
	}
	return "", ErrCapacityExhausted
}

// nextName synthesizes <prefix>-(N+1), N being the larger of the repository count
// and the highest suffix in use, so a gap in the numbering never reuses a name.
func (a *Allocator) nextName(repos []registry.Descriptor) string {
	prefix := a.registry.Prefix()
	highest := len(repos)
	for _, r := range repos {
		if n, ok := registry.Suffix(prefix, r.Name); ok && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s-%d", prefix, highest+1)
}

// ProvisionRepository creates name if needed and makes sure both seed files exist.
// Safe to call concurrently for the same name.
func (a *Allocator) ProvisionRepository(ctx context.Context, owner, name string, visibility remote.Visibility) error {
	defer a.registry.Invalidate(ctx, owner)

	err := a.store.CreateRepository(ctx, owner, name, visibility)
	switch {
	case err == nil:
		metrics.RepositoryProvisioned()
		if err := a.settle(ctx); err != nil {
			return err
		}
	case errors.Is(err, remote.ErrAlreadyExists):
	default:
		return fmt.Errorf("create repository %s: %w", name, err)
	}

	seeds := []struct {
		path    string
		content []byte
	}{
		{KeepFile, []byte{}},
		{AssetsIndex, []byte("[]")},
	}
	for _, s := range seeds {
		if err := a.ensureFile(ctx, owner, name, s.path, s.content); err != nil {
			return fmt.Errorf("seed %s/%s: %w", name, s.path, err)
		}
	}
	return nil
}

func (a *Allocator) settle(ctx context.Context) error {
	if a.cfg.SettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(a.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ensureFile creates path when it is missing. A conflict means another writer
// created it first, which counts as success.
func (a *Allocator) ensureFile(ctx context.Context, owner, repo, path string, content []byte) error {
	backoff := retry.WithMaxRetries(seedAttempts, retry.NewConstant(seedRetry))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := a.store.GetFile(ctx, owner, repo, path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, remote.ErrNotFound) {
			return retryable(err)
		}

		_, err = a.store.PutFile(ctx, owner, repo, path, content, remote.Commit{Message: "Initialize " + path})
		if err == nil || errors.Is(err, remote.ErrConflict) {
			return nil
		}
		return retryable(err)
	})
}

func retryable(err error) error {
	if remote.IsRetryable(err) {
		return retry.RetryableError(err)
	}
	return err
}

// EnsureVault provisions the private repository used for private uploads and returns its name.
func (a *Allocator) EnsureVault(ctx context.Context, owner string) (string, error) {
	if a.cfg.VaultRepo == "" {
		return "", errors.New("allocator: no vault repository configured")
	}
	_, err := a.store.GetRepository(ctx, owner, a.cfg.VaultRepo)
	if err == nil {
		return a.cfg.VaultRepo, nil
	}
	if !errors.Is(err, remote.ErrNotFound) {
		return "", fmt.Errorf("check vault %s: %w", a.cfg.VaultRepo, err)
	}
	if err := a.ProvisionRepository(ctx, owner, a.cfg.VaultRepo, remote.Private); err != nil {
		return "", err
	}
	return a.cfg.VaultRepo, nil
}
