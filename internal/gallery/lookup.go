package gallery

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/abduss/picvault/internal/index"
	"github.com/abduss/picvault/internal/remote"
)

const (
	maxBulkItems   = 50
	maxRandomCount = 10
)

// visibleAssets lists public assets plus the vault assets uploaded by viewer.
func (s *Service) visibleAssets(ctx context.Context, viewer string) (index.Aggregate[index.AssetRecord], error) {
	all, err := s.ListAssets(ctx, remote.Public, "")
	if err != nil {
		return index.Aggregate[index.AssetRecord]{}, err
	}
	if viewer == "" {
		return all, nil
	}
	mine, err := s.listPrivate(ctx, viewer)
	if err != nil {
		return index.Aggregate[index.AssetRecord]{}, err
	}
	all.Items = append(all.Items, mine.Items...)
	all.Omissions = append(all.Omissions, mine.Omissions...)
	return all, nil
}

// FindAsset looks id up across every repository visible to viewer. A miss
// while some repository was unreadable is not reported as not found.
func (s *Service) FindAsset(ctx context.Context, id, viewer string) (index.AssetRecord, error) {
	all, err := s.visibleAssets(ctx, viewer)
	if err != nil {
		return index.AssetRecord{}, err
	}
	for _, a := range all.Items {
		if a.ID == id {
			return a, nil
		}
	}
	if !all.Complete() {
		return index.AssetRecord{}, fmt.Errorf("%w: %s not in readable repositories", ErrLookupIncomplete, id)
	}
	return index.AssetRecord{}, ErrAssetNotFound
}

// RandomAssets picks up to count distinct public assets.
func (s *Service) RandomAssets(ctx context.Context, count int) ([]index.AssetRecord, error) {
	if count < 1 {
		count = 1
	}
	if count > maxRandomCount {
		count = maxRandomCount
	}
	all, err := s.ListAssets(ctx, remote.Public, "")
	if err != nil {
		return nil, err
	}
	if len(all.Items) == 0 {
		return nil, ErrAssetNotFound
	}
	if count > len(all.Items) {
		count = len(all.Items)
	}
	out := make([]index.AssetRecord, 0, count)
	for _, i := range rand.Perm(len(all.Items))[:count] {
		out = append(out, all.Items[i])
	}
	return out, nil
}

// UserAssets lists the assets uploaded by username, newest first. Their vault
// assets are only included when viewer is username.
func (s *Service) UserAssets(ctx context.Context, username, viewer string) (index.Aggregate[index.AssetRecord], error) {
	if viewer != username {
		viewer = ""
	}
	all, err := s.visibleAssets(ctx, viewer)
	if err != nil {
		return index.Aggregate[index.AssetRecord]{}, err
	}
	out := index.Aggregate[index.AssetRecord]{Items: []index.AssetRecord{}, Omissions: all.Omissions}
	for _, a := range all.Items {
		if a.Uploader == username {
			out.Items = append(out.Items, a)
		}
	}
	sortAssets(out.Items, SortNewest)
	return out, nil
}

// UserAlbums lists the albums owned by username.
func (s *Service) UserAlbums(ctx context.Context, username string) (index.Aggregate[index.AlbumRecord], error) {
	all, err := s.albums.List(ctx, s.cfg.Owner)
	if err != nil {
		return index.Aggregate[index.AlbumRecord]{}, err
	}
	out := index.Aggregate[index.AlbumRecord]{Items: []index.AlbumRecord{}, Omissions: all.Omissions}
	for _, a := range all.Items {
		if a.Owner == username {
			out.Items = append(out.Items, a)
		}
	}
	return out, nil
}

// Bulk runs one action over a list of asset ids resolved against a single
// listing. Per-id failures are reported in the result, not as an error.
func (s *Service) Bulk(ctx context.Context, req BulkRequest) (BulkResult, error) {
	switch req.Action {
	case BulkGet, BulkInfo, BulkDelete:
	default:
		return BulkResult{}, fmt.Errorf("%w: unknown action %q", ErrInvalidQuery, req.Action)
	}
	if len(req.IDs) == 0 || len(req.IDs) > maxBulkItems {
		return BulkResult{}, fmt.Errorf("%w: between 1 and %d ids required", ErrInvalidQuery, maxBulkItems)
	}

	all, err := s.visibleAssets(ctx, req.Caller)
	if err != nil {
		return BulkResult{}, err
	}
	byID := make(map[string]index.AssetRecord, len(all.Items))
	for _, a := range all.Items {
		byID[a.ID] = a
	}

	out := BulkResult{Action: req.Action, Total: len(req.IDs), Items: make([]BulkItem, 0, len(req.IDs)), Omissions: all.Omissions}
	for _, id := range req.IDs {
		item := BulkItem{ImageID: id}
		rec, found := byID[id]
		switch {
		case req.Action == BulkInfo:
			item.Success = found
			item.Info = &AssetInfo{Exists: found}
			if found {
				item.Info = &AssetInfo{
					Exists:     true,
					Filename:   rec.Filename,
					Size:       rec.Size,
					MimeType:   rec.MimeType,
					UploadedAt: rec.UploadedAt,
					Uploader:   rec.Uploader,
				}
			}
		case !found:
			item.Error = "not found"
		case req.Action == BulkGet:
			item.Success = true
			item.Image = &rec
		default:
			if err := s.DeleteAsset(ctx, rec.Repository, id); err != nil {
				item.Error = string(Classify(err))
			} else {
				item.Success = true
			}
		}
		if item.Success {
			out.Successful++
		} else {
			out.Failed++
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}
