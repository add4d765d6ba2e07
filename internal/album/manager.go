// Package album maintains album records and their membership counters across
// storage repositories.
package album

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/abduss/picvault/internal/index"
	"github.com/abduss/picvault/internal/metrics"
	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxNameLength = 100
	listFanOut    = 4
)

type albumIndex interface {
	albumReader
	AppendAlbum(ctx context.Context, owner, repo string, rec index.AlbumRecord) error
	MutateAlbum(ctx context.Context, owner, repo, id, message string, fn func(*index.AlbumRecord) error) (index.AlbumRecord, error)
	RemoveAlbum(ctx context.Context, owner, repo, id string) (index.AlbumRecord, error)
}

type repositoryRegistry interface {
	repositoryLister
	Invalidate(ctx context.Context, owner string)
}

type repositorySelector interface {
	SelectWritableRepository(ctx context.Context, owner string) (string, error)
}

// CreateInput describes a new album.
type CreateInput struct {
	Name        string
	Description string
	Tags        []string
	Owner       string
}

// Manager implements album creation and membership updates.
type Manager struct {
	index    albumIndex
	repos    repositoryRegistry
	selector repositorySelector
	locator  Locator
	clock    clock.Clock
	log      *zap.Logger
}

// NewManager constructs a Manager. A nil locator scans every repository.
func NewManager(idx albumIndex, repos repositoryRegistry, selector repositorySelector, locator Locator, clk clock.Clock, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	if locator == nil {
		locator = NewScanLocator(repos, idx, log)
	}
	return &Manager{index: idx, repos: repos, selector: selector, locator: locator, clock: clk, log: log}
}

// Create stores a new album in the repository the allocator picks.
func (m *Manager) Create(ctx context.Context, owner string, in CreateInput) (index.AlbumRecord, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > maxNameLength {
		return index.AlbumRecord{}, ErrInvalidAlbum
	}

	repo, err := m.selector.SelectWritableRepository(ctx, owner)
	if err != nil {
		return index.AlbumRecord{}, err
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	rec := index.AlbumRecord{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   m.clock.Now().UTC(),
		Repository:  repo,
		Tags:        tags,
		Owner:       in.Owner,
		Images:      []string{},
	}
	if err := m.index.AppendAlbum(ctx, owner, repo, rec); err != nil {
		return index.AlbumRecord{}, err
	}
	m.repos.Invalidate(ctx, owner)
	return rec, nil
}

// Locate returns the repository holding albumID.
func (m *Manager) Locate(ctx context.Context, owner, albumID string) (string, error) {
	return m.locator.Locate(ctx, owner, albumID)
}

// AddImage appends imageID to the album and updates its counters. Adding a member
// twice leaves the album unchanged.
func (m *Manager) AddImage(ctx context.Context, owner, albumID, imageID string, size int64, rawURL string) (index.AlbumRecord, error) {
	return m.mutate(ctx, owner, albumID, "Add image to album: "+imageID, func(a *index.AlbumRecord) error {
		if a.HasImage(imageID) {
			return index.ErrNoChange
		}
		a.Images = append(a.Images, imageID)
		a.ImageCount = len(a.Images)
		a.TotalSize += size
		if a.CoverImage == "" {
			a.CoverImage = rawURL
		}
		return nil
	})
}

// RemoveImage drops imageID from the album and updates its counters.
func (m *Manager) RemoveImage(ctx context.Context, owner, albumID, imageID string, size int64) (index.AlbumRecord, error) {
	return m.mutate(ctx, owner, albumID, "Remove image from album: "+imageID, func(a *index.AlbumRecord) error {
		kept := a.Images[:0]
		found := false
		for _, id := range a.Images {
			if id == imageID {
				found = true
				continue
			}
			kept = append(kept, id)
		}
		if !found {
			return ErrNotMember
		}
		a.Images = kept
		a.ImageCount = len(kept)
		a.TotalSize -= size
		if a.TotalSize < 0 {
			a.TotalSize = 0
		}
		if a.CoverImage != "" && strings.Contains(a.CoverImage, imageID) {
			a.CoverImage = ""
		}
		return nil
	})
}

// Rename changes the album name.
func (m *Manager) Rename(ctx context.Context, owner, albumID, name string) (index.AlbumRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return index.AlbumRecord{}, ErrInvalidAlbum
	}
	return m.mutate(ctx, owner, albumID, "Rename album: "+albumID, func(a *index.AlbumRecord) error {
		if a.Name == name {
			return index.ErrNoChange
		}
		a.Name = name
		return nil
	})
}

func (m *Manager) mutate(ctx context.Context, owner, albumID, message string, fn func(*index.AlbumRecord) error) (index.AlbumRecord, error) {
	repo, err := m.locator.Locate(ctx, owner, albumID)
	if err != nil {
		return index.AlbumRecord{}, err
	}
	rec, err := m.index.MutateAlbum(ctx, owner, repo, albumID, message, fn)
	if errors.Is(err, index.ErrRecordNotFound) {
		return index.AlbumRecord{}, ErrAlbumNotFound
	}
	if err != nil {
		return index.AlbumRecord{}, err
	}
	m.repos.Invalidate(ctx, owner)
	return rec, nil
}

// Delete removes the album record. Member assets are left in place.
func (m *Manager) Delete(ctx context.Context, owner, albumID string) (index.AlbumRecord, error) {
	repo, err := m.locator.Locate(ctx, owner, albumID)
	if err != nil {
		return index.AlbumRecord{}, err
	}
	rec, err := m.index.RemoveAlbum(ctx, owner, repo, albumID)
	if errors.Is(err, index.ErrRecordNotFound) {
		return index.AlbumRecord{}, ErrAlbumNotFound
	}
	if err != nil {
		return index.AlbumRecord{}, err
	}
	m.repos.Invalidate(ctx, owner)
	return rec, nil
}

// Get returns the album record.
func (m *Manager) Get(ctx context.Context, owner, albumID string) (index.AlbumRecord, error) {
	repo, err := m.locator.Locate(ctx, owner, albumID)
	if err != nil {
		return index.AlbumRecord{}, err
	}
	albums, err := m.index.ReadAlbums(ctx, owner, repo)
	if err != nil {
		return index.AlbumRecord{}, err
	}
	for _, a := range albums {
		if a.ID == albumID {
			return a, nil
		}
	}
	return index.AlbumRecord{}, ErrAlbumNotFound
}

// List returns every album, newest first. Repositories that cannot be read are
// reported as omissions.
func (m *Manager) List(ctx context.Context, owner string) (index.Aggregate[index.AlbumRecord], error) {
	repos, err := m.repos.ListStorageRepositories(ctx, owner)
	if err != nil {
		return index.Aggregate[index.AlbumRecord]{}, err
	}

	var (
		mu  sync.Mutex
		out = index.Aggregate[index.AlbumRecord]{Items: []index.AlbumRecord{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listFanOut)
	for _, r := range repos {
		name := r.Name
		g.Go(func() error {
			albums, err := m.index.ReadAlbums(gctx, owner, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				m.log.Warn("omitting repository from album listing", zap.String("repository", name), zap.Error(err))
				metrics.AggregationOmission(index.AlbumsPath)
				out.Omissions = append(out.Omissions, index.Omission{Repository: name, Reason: err.Error()})
				return nil
			}
			out.Items = append(out.Items, albums...)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(out.Items, func(i, j int) bool {
		return out.Items[i].CreatedAt.After(out.Items[j].CreatedAt)
	})
	sort.Slice(out.Omissions, func(i, j int) bool { return out.Omissions[i].Repository < out.Omissions[j].Repository })
	return out, nil
}
