package album

import (
	"context"

	"github.com/abduss/picvault/internal/index"
	"github.com/abduss/picvault/internal/registry"
	"go.uber.org/zap"
)

// Locator finds the storage repository holding an album.
type Locator interface {
	Locate(ctx context.Context, owner, albumID string) (string, error)
}

type repositoryLister interface {
	ListStorageRepositories(ctx context.Context, owner string) ([]registry.Descriptor, error)
}

type albumReader interface {
	ReadAlbums(ctx context.Context, owner, repo string) ([]index.AlbumRecord, error)
}

// ScanLocator reads albums.json of every storage repository in order and
// returns the first that contains the id. Repositories that cannot be read are skipped.
type ScanLocator struct {
	repos repositoryLister
	index albumReader
	log   *zap.Logger
}

// NewScanLocator constructs a ScanLocator.
func NewScanLocator(repos repositoryLister, idx albumReader, log *zap.Logger) *ScanLocator {
	if log == nil {
		log = zap.NewNop()
	}
	return &ScanLocator{repos: repos, index: idx, log: log}
}

func (l *ScanLocator) Locate(ctx context.Context, owner, albumID string) (string, error) {
	repos, err := l.repos.ListStorageRepositories(ctx, owner)
	if err != nil {
		return "", err
	}
	for _, r := range repos {
		albums, err := l.index.ReadAlbums(ctx, owner, r.Name)
		if err != nil {
			l.log.Warn("skipping repository during album lookup",
				zap.String("repository", r.Name),
				zap.String("album_id", albumID),
				zap.Error(err))
			continue
		}
		for _, a := range albums {
			if a.ID == albumID {
				return r.Name, nil
			}
		}
	}
	return "", ErrAlbumNotFound
}
