package index

import (
	"context"
	"fmt"
)

func albumsRef(owner, repo string) Ref {
	return Ref{Owner: owner, Repo: repo, Path: AlbumsPath}
}

// AppendAlbum adds rec to the repository's albums.json, creating the file if needed.
func (m *Manager) AppendAlbum(ctx context.Context, owner, repo string, rec AlbumRecord) error {
	rec.CreatedAt = rec.CreatedAt.UTC()
	_, err := Mutate(ctx, m, albumsRef(owner, repo), "Create album: "+rec.Name, func(records []AlbumRecord) ([]AlbumRecord, error) {
		if _, ok := find(records, rec.ID); ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRecord, rec.ID)
		}
		return append(records, rec), nil
	})
	return err
}

// ReadAlbums reads albums.json through the authenticated path. A missing file is an empty list.
func (m *Manager) ReadAlbums(ctx context.Context, owner, repo string) ([]AlbumRecord, error) {
	return load[AlbumRecord](ctx, m, albumsRef(owner, repo))
}

// MutateAlbum applies fn to the album with id and persists the result.
// fn may return ErrNoChange to leave the file untouched.
func (m *Manager) MutateAlbum(ctx context.Context, owner, repo, id, message string, fn func(*AlbumRecord) error) (AlbumRecord, error) {
	var updated AlbumRecord
	_, err := Mutate(ctx, m, albumsRef(owner, repo), message, func(records []AlbumRecord) ([]AlbumRecord, error) {
		i, ok := find(records, id)
		if !ok {
			return nil, ErrRecordNotFound
		}
		rec := records[i]
		rec.Images = append([]string(nil), rec.Images...)
		if err := fn(&rec); err != nil {
			updated = records[i]
			return nil, err
		}
		records[i] = rec
		updated = rec
		return records, nil
	})
	if err != nil {
		return AlbumRecord{}, err
	}
	return updated, nil
}

// RemoveAlbum deletes the album with id and returns it.
func (m *Manager) RemoveAlbum(ctx context.Context, owner, repo, id string) (AlbumRecord, error) {
	var removed AlbumRecord
	_, err := Mutate(ctx, m, albumsRef(owner, repo), "Delete album: "+id, func(records []AlbumRecord) ([]AlbumRecord, error) {
		i, ok := find(records, id)
		if !ok {
			return nil, ErrRecordNotFound
		}
		removed = records[i]
		return append(records[:i:i], records[i+1:]...), nil
	})
	if err != nil {
		return AlbumRecord{}, err
	}
	return removed, nil
}
