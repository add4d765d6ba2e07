package index

import (
	"context"
	"fmt"
)

func assetsRef(owner, repo string) Ref {
	return Ref{Owner: owner, Repo: repo, Path: AssetsPath}
}

// AppendAsset adds rec to the repository's metadata.json.
func (m *Manager) AppendAsset(ctx context.Context, owner, repo string, rec AssetRecord) error {
	// stored timestamps are always UTC
	rec.UploadedAt = rec.UploadedAt.UTC()
	_, err := Mutate(ctx, m, assetsRef(owner, repo), "Add image metadata: "+rec.ID, func(records []AssetRecord) ([]AssetRecord, error) {
		if _, ok := find(records, rec.ID); ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRecord, rec.ID)
		}
		return append(records, rec), nil
	})
	return err
}

// RemoveAsset deletes the record for id and returns it.
func (m *Manager) RemoveAsset(ctx context.Context, owner, repo, id string) (AssetRecord, error) {
	var removed AssetRecord
	_, err := Mutate(ctx, m, assetsRef(owner, repo), "Remove image metadata: "+id, func(records []AssetRecord) ([]AssetRecord, error) {
		i, ok := find(records, id)
		if !ok {
			return nil, ErrRecordNotFound
		}
		removed = records[i]
		return append(records[:i:i], records[i+1:]...), nil
	})
	if err != nil {
		return AssetRecord{}, err
	}
	return removed, nil
}

// SetAssetAlbum sets or, with an empty albumID, clears the album back-reference of id.
func (m *Manager) SetAssetAlbum(ctx context.Context, owner, repo, id, albumID string) error {
	_, err := Mutate(ctx, m, assetsRef(owner, repo), "Update image album: "+id, func(records []AssetRecord) ([]AssetRecord, error) {
		i, ok := find(records, id)
		if !ok {
			return nil, ErrRecordNotFound
		}
		if records[i].AlbumID == albumID {
			return nil, ErrNoChange
		}
		records[i].AlbumID = albumID
		return records, nil
	})
	return err
}

// GetAsset reads the record for id through the authenticated path.
func (m *Manager) GetAsset(ctx context.Context, owner, repo, id string) (AssetRecord, error) {
	records, err := load[AssetRecord](ctx, m, assetsRef(owner, repo))
	if err != nil {
		return AssetRecord{}, err
	}
	i, ok := find(records, id)
	if !ok {
		return AssetRecord{}, ErrRecordNotFound
	}
	return records[i], nil
}

// ReadAssets reads metadata.json through the raw path.
func (m *Manager) ReadAssets(ctx context.Context, owner, repo string) ([]AssetRecord, error) {
	return loadRaw[AssetRecord](ctx, m, assetsRef(owner, repo))
}

// ReadPrivateAssets reads metadata.json through the authenticated path, for repositories the raw path cannot see.
func (m *Manager) ReadPrivateAssets(ctx context.Context, owner, repo string) ([]AssetRecord, error) {
	return load[AssetRecord](ctx, m, assetsRef(owner, repo))
}

// CountAssets returns the number of indexed assets in repo.
func (m *Manager) CountAssets(ctx context.Context, owner, repo string) (int, error) {
	records, err := m.ReadAssets(ctx, owner, repo)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
