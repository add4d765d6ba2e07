// Package gallery composes allocation, id generation, blob storage and the
// indexes into the upload, delete, listing and album operations the API exposes.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/abduss/picvault/internal/album"
	"github.com/abduss/picvault/internal/assetid"
	"github.com/abduss/picvault/internal/audit"
	"github.com/abduss/picvault/internal/index"
	"github.com/abduss/picvault/internal/metrics"
	"github.com/abduss/picvault/internal/registry"
	"github.com/abduss/picvault/internal/remote"
	"github.com/facebookgo/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	imagesDir       = "images"
	blobPutAttempts = 3
	listFanOut      = 4
	anonymousOwner  = "anonymous"
)

var extensionsByType = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/bmp":     "bmp",
	"image/svg+xml": "svg",
	"image/x-icon":  "ico",
}

type blobStore interface {
	PutFile(ctx context.Context, owner, repo, path string, content []byte, commit remote.Commit) (remote.PutResult, error)
	DeleteFile(ctx context.Context, owner, repo, path string, commit remote.Commit) error
	ListDirectory(ctx context.Context, owner, repo, path string) ([]remote.Entry, error)
	GetFile(ctx context.Context, owner, repo, path string) (remote.File, error)
}

type assetIndex interface {
	AppendAsset(ctx context.Context, owner, repo string, rec index.AssetRecord) error
	RemoveAsset(ctx context.Context, owner, repo, id string) (index.AssetRecord, error)
	SetAssetAlbum(ctx context.Context, owner, repo, id, albumID string) error
	GetAsset(ctx context.Context, owner, repo, id string) (index.AssetRecord, error)
	ReadAssets(ctx context.Context, owner, repo string) ([]index.AssetRecord, error)
	ReadPrivateAssets(ctx context.Context, owner, repo string) ([]index.AssetRecord, error)
}

type repositoryAllocator interface {
	SelectWritableRepository(ctx context.Context, owner string) (string, error)
	EnsureVault(ctx context.Context, owner string) (string, error)
}

type repositoryRegistry interface {
	ListStorageRepositories(ctx context.Context, owner string) ([]registry.Descriptor, error)
	CapacityStats(ctx context.Context, owner string) (registry.Stats, error)
	Invalidate(ctx context.Context, owner string)
}

type albumManager interface {
	Create(ctx context.Context, owner string, in album.CreateInput) (index.AlbumRecord, error)
	Locate(ctx context.Context, owner, albumID string) (string, error)
	AddImage(ctx context.Context, owner, albumID, imageID string, size int64, rawURL string) (index.AlbumRecord, error)
	RemoveImage(ctx context.Context, owner, albumID, imageID string, size int64) (index.AlbumRecord, error)
	Rename(ctx context.Context, owner, albumID, name string) (index.AlbumRecord, error)
	Delete(ctx context.Context, owner, albumID string) (index.AlbumRecord, error)
	Get(ctx context.Context, owner, albumID string) (index.AlbumRecord, error)
	List(ctx context.Context, owner string) (index.Aggregate[index.AlbumRecord], error)
}

type idGenerator interface {
	Generate(ctx context.Context, owner, repo string) (string, error)
}

type auditLog interface {
	RecordOrphanedBlob(ctx context.Context, blob audit.OrphanedBlob) error
	ListOrphanedBlobs(ctx context.Context, owner string, limit int) ([]audit.OrphanedBlob, error)
	RecordCapacitySnapshot(ctx context.Context, owner string, stats registry.Stats) error
}

// Config holds the service-level settings.
type Config struct {
	// Owner is the account that owns every storage repository.
	Owner          string
	VaultRepo      string
	MaxUploadBytes int64
}

// Dependencies bundles the collaborators of Service.
type Dependencies struct {
	Blobs     blobStore
	Index     assetIndex
	Allocator repositoryAllocator
	Registry  repositoryRegistry
	Albums    albumManager
	IDs       idGenerator
	// Audit is optional.
	Audit auditLog
	Clock clock.Clock
	Log   *zap.Logger
}

// Service implements the public gallery operations.
type Service struct {
	cfg       Config
	blobs     blobStore
	index     assetIndex
	allocator repositoryAllocator
	registry  repositoryRegistry
	albums    albumManager
	ids       idGenerator
	audit     auditLog
	clock     clock.Clock
	log       *zap.Logger
}

// NewService constructs a Service.
func NewService(cfg Config, deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Service{
		cfg:       cfg,
		blobs:     deps.Blobs,
		index:     deps.Index,
		allocator: deps.Allocator,
		registry:  deps.Registry,
		albums:    deps.Albums,
		ids:       deps.IDs,
		audit:     deps.Audit,
		clock:     deps.Clock,
		log:       deps.Log,
	}
}

// UploadAsset commits the blob, then appends its index record, then updates the
// album when one is given. If the album update fails the asset stays uploaded
// without an album and the returned error says so.
func (s *Service) UploadAsset(ctx context.Context, in UploadInput) (index.AssetRecord, error) {
	mimeType, ext, err := s.validateUpload(in)
	if err != nil {
		return index.AssetRecord{}, err
	}
	if in.Visibility == "" {
		in.Visibility = remote.Public
	}

	if in.AlbumID != "" {
		if _, err := s.albums.Locate(ctx, s.cfg.Owner, in.AlbumID); err != nil {
			return index.AssetRecord{}, err
		}
	}

	repo, err := s.targetRepository(ctx, in.Visibility)
	if err != nil {
		return index.AssetRecord{}, err
	}

	id, blobPath, put, err := s.putBlob(ctx, repo, ext, in)
	if err != nil {
		return index.AssetRecord{}, err
	}

	rec := index.AssetRecord{
		ID:         id,
		Filename:   in.Filename,
		Size:       int64(len(in.Content)),
		MimeType:   mimeType,
		UploadedAt: s.clock.Now().UTC(),
		Uploader:   in.Uploader,
		Repository: repo,
		RawURL:     put.DownloadURL,
		Private:    in.Visibility == remote.Private,
		AlbumID:    in.AlbumID,
	}
	if err := s.index.AppendAsset(ctx, s.cfg.Owner, repo, rec); err != nil {
		s.orphaned(ctx, audit.StageUpload, repo, blobPath, id, err)
		return index.AssetRecord{}, fmt.Errorf("index asset %s: %w", id, err)
	}
	s.registry.Invalidate(ctx, s.cfg.Owner)
	metrics.Uploaded(string(in.Visibility), rec.Size)

	s.log.Info("asset uploaded",
		zap.String("asset_id", id),
		zap.String("repository", repo),
		zap.Int64("size", rec.Size),
		zap.String("visibility", string(in.Visibility)))

	if in.AlbumID == "" {
		return rec, nil
	}
	if _, err := s.albums.AddImage(ctx, s.cfg.Owner, in.AlbumID, id, rec.Size, rec.RawURL); err != nil {
		if clearErr := s.index.SetAssetAlbum(ctx, s.cfg.Owner, repo, id, ""); clearErr != nil {
			s.log.Error("clear album reference failed",
				zap.String("asset_id", id),
				zap.String("album_id", in.AlbumID),
				zap.Error(clearErr))
		}
		rec.AlbumID = ""
		return rec, fmt.Errorf("add asset %s to album %s: %w", id, in.AlbumID, err)
	}
	return rec, nil
}

func (s *Service) validateUpload(in UploadInput) (string, string, error) {
	if len(in.Content) == 0 || strings.TrimSpace(in.Filename) == "" {
		return "", "", ErrInvalidUpload
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(in.Content)) > s.cfg.MaxUploadBytes {
		return "", "", ErrTooLarge
	}
	if in.Visibility != "" && in.Visibility != remote.Public && in.Visibility != remote.Private {
		return "", "", ErrInvalidUpload
	}

	sniffed := strings.TrimSpace(strings.SplitN(http.DetectContentType(in.Content), ";", 2)[0])
	mimeType := sniffed
	if sniffed == "text/xml" || sniffed == "text/plain" {
		// svg sniffs as text; trust the declared type only for svg
		if in.MimeType == "image/svg+xml" {
			mimeType = in.MimeType
		}
	}
	ext, ok := blobExtension(mimeType, in.Filename)
	if !ok {
		return "", "", ErrUnsupportedType
	}
	return mimeType, ext, nil
}

// blobExtension picks the stored extension for an image. A ".jpeg" filename keeps its spelling.
func blobExtension(mimeType, filename string) (string, bool) {
	ext, ok := extensionsByType[mimeType]
	if !ok {
		return "", false
	}
	if own := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), "."); own == "jpeg" && ext == "jpg" {
		ext = own
	}
	return ext, true
}

func (s *Service) targetRepository(ctx context.Context, visibility remote.Visibility) (string, error) {
	if visibility == remote.Private {
		return s.allocator.EnsureVault(ctx, s.cfg.Owner)
	}
	return s.allocator.SelectWritableRepository(ctx, s.cfg.Owner)
}

// putBlob generates an id and creates images/<id>.<ext>. A conflict means another
// writer took the same id after our listing, so a new id is drawn.
func (s *Service) putBlob(ctx context.Context, repo, ext string, in UploadInput) (string, string, remote.PutResult, error) {
	var lastErr error
	for attempt := 0; attempt < blobPutAttempts; attempt++ {
		id, err := s.ids.Generate(ctx, s.cfg.Owner, repo)
		if err != nil {
			return "", "", remote.PutResult{}, err
		}
		blobPath := fmt.Sprintf("%s/%s.%s", imagesDir, id, ext)
		put, err := s.blobs.PutFile(ctx, s.cfg.Owner, repo, blobPath, in.Content, remote.Commit{Message: "Upload image: " + in.Filename})
		if err == nil {
			return id, blobPath, put, nil
		}
		if !errors.Is(err, remote.ErrConflict) {
			return "", "", remote.PutResult{}, fmt.Errorf("commit blob %s: %w", blobPath, err)
		}
		lastErr = err
		s.log.Info("asset id taken concurrently, retrying", zap.String("asset_id", id), zap.String("repository", repo))
	}
	return "", "", remote.PutResult{}, fmt.Errorf("commit blob: %w", lastErr)
}

func (s *Service) orphaned(ctx context.Context, stage, repo, blobPath, id string, cause error) {
	metrics.OrphanedBlob()
	s.log.Error("orphaned blob",
		zap.String("stage", stage),
		zap.String("repository", repo),
		zap.String("path", blobPath),
		zap.String("asset_id", id),
		zap.Error(cause))
	if s.audit == nil {
		return
	}
	blob := audit.OrphanedBlob{
		Owner:      s.cfg.Owner,
		Repository: repo,
		Path:       blobPath,
		AssetID:    id,
		Stage:      stage,
		Reason:     cause.Error(),
	}
	if err := s.audit.RecordOrphanedBlob(context.WithoutCancel(ctx), blob); err != nil {
		s.log.Warn("record orphaned blob failed", zap.String("asset_id", id), zap.Error(err))
	}
}

// DeleteAsset removes the index record first and the blob second, so a failure
// in between leaves an orphaned blob rather than a record pointing at nothing.
func (s *Service) DeleteAsset(ctx context.Context, repo, id string) error {
	rec, err := s.index.RemoveAsset(ctx, s.cfg.Owner, repo, id)
	if errors.Is(err, index.ErrRecordNotFound) {
		return ErrAssetNotFound
	}
	if err != nil {
		return fmt.Errorf("remove asset record %s: %w", id, err)
	}
	s.registry.Invalidate(ctx, s.cfg.Owner)

	if blobPath, err := s.deleteBlob(ctx, repo, rec); err != nil {
		s.orphaned(ctx, audit.StageDelete, repo, blobPath, id, err)
	}

	if rec.AlbumID != "" {
		_, err := s.albums.RemoveImage(ctx, s.cfg.Owner, rec.AlbumID, id, rec.Size)
		if err != nil && !errors.Is(err, album.ErrNotMember) && !errors.Is(err, album.ErrAlbumNotFound) {
			s.log.Warn("remove deleted asset from album failed",
				zap.String("asset_id", id),
				zap.String("album_id", rec.AlbumID),
				zap.Error(err))
		}
	}
	return nil
}

// deleteBlob removes the blob of rec and returns the path it tried. The path
// derived from the record is tried first; the images listing is only a fallback
// for blobs stored under another extension.
func (s *Service) deleteBlob(ctx context.Context, repo string, rec index.AssetRecord) (string, error) {
	commit := remote.Commit{Message: "Delete image: " + rec.ID}
	blobPath := imagesDir + "/" + rec.ID
	if ext, ok := blobExtension(rec.MimeType, rec.Filename); ok {
		blobPath = fmt.Sprintf("%s/%s.%s", imagesDir, rec.ID, ext)
		file, err := s.blobs.GetFile(ctx, s.cfg.Owner, repo, blobPath)
		switch {
		case err == nil:
			commit.Token = file.Token
			return blobPath, s.deleteFile(ctx, repo, blobPath, commit)
		case !errors.Is(err, remote.ErrNotFound):
			return blobPath, err
		}
	}

	entries, err := s.blobs.ListDirectory(ctx, s.cfg.Owner, repo, imagesDir)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return blobPath, err
	}
	for _, e := range entries {
		if assetid.Stem(e.Name) != rec.ID {
			continue
		}
		commit.Token = e.Token
		return e.Path, s.deleteFile(ctx, repo, e.Path, commit)
	}
	return blobPath, fmt.Errorf("%w: %s", errBlobMissing, blobPath)
}

func (s *Service) deleteFile(ctx context.Context, repo, blobPath string, commit remote.Commit) error {
	err := s.blobs.DeleteFile(ctx, s.cfg.Owner, repo, blobPath, commit)
	if errors.Is(err, remote.ErrNotFound) {
		return nil
	}
	return err
}

// GetAsset returns the record for id in repo.
func (s *Service) GetAsset(ctx context.Context, repo, id string) (index.AssetRecord, error) {
	rec, err := s.index.GetAsset(ctx, s.cfg.Owner, repo, id)
	if errors.Is(err, index.ErrRecordNotFound) {
		return index.AssetRecord{}, ErrAssetNotFound
	}
	return rec, err
}

// ListAssets aggregates assets of one visibility, newest first. Private listings
// only include assets uploaded by viewer. Unreadable repositories become omissions.
func (s *Service) ListAssets(ctx context.Context, visibility remote.Visibility, viewer string) (index.Aggregate[index.AssetRecord], error) {
	if visibility == remote.Private {
		return s.listPrivate(ctx, viewer)
	}

	repos, err := s.registry.ListStorageRepositories(ctx, s.cfg.Owner)
	if err != nil {
		return index.Aggregate[index.AssetRecord]{}, err
	}

	var (
		mu  sync.Mutex
		out = index.Aggregate[index.AssetRecord]{Items: []index.AssetRecord{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listFanOut)
	for _, r := range repos {
		name := r.Name
		g.Go(func() error {
			assets, err := s.index.ReadAssets(gctx, s.cfg.Owner, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.omit(&out, name, err)
				return nil
			}
			for _, a := range assets {
				if !a.Private {
					out.Items = append(out.Items, a)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	sortAssets(out.Items, SortNewest)
	sort.Slice(out.Omissions, func(i, j int) bool { return out.Omissions[i].Repository < out.Omissions[j].Repository })
	return out, nil
}

func (s *Service) listPrivate(ctx context.Context, viewer string) (index.Aggregate[index.AssetRecord], error) {
	out := index.Aggregate[index.AssetRecord]{Items: []index.AssetRecord{}}
	assets, err := s.index.ReadPrivateAssets(ctx, s.cfg.Owner, s.cfg.VaultRepo)
	if err != nil {
		s.omit(&out, s.cfg.VaultRepo, err)
		return out, nil
	}
	for _, a := range assets {
		if a.Uploader == viewer {
			out.Items = append(out.Items, a)
		}
	}
	sortAssets(out.Items, SortNewest)
	return out, nil
}

func (s *Service) omit(out *index.Aggregate[index.AssetRecord], repo string, err error) {
	s.log.Warn("omitting repository from asset listing", zap.String("repository", repo), zap.Error(err))
	metrics.AggregationOmission(index.AssetsPath)
	out.Omissions = append(out.Omissions, index.Omission{Repository: repo, Reason: err.Error()})
}

// SearchAssets filters, orders and paginates public assets.
func (s *Service) SearchAssets(ctx context.Context, q SearchQuery) (Page, error) {
	if err := q.validate(); err != nil {
		return Page{}, err
	}
	all, err := s.ListAssets(ctx, remote.Public, "")
	if err != nil {
		return Page{}, err
	}
	matched := filterAssets(all.Items, q)
	sortAssets(matched, q.Sort)
	page := paginate(matched, q.Page, q.Limit)
	page.Omissions = all.Omissions
	return page, nil
}

// Tags summarizes public assets by format and size bucket.
func (s *Service) Tags(ctx context.Context) (TagSummary, error) {
	all, err := s.ListAssets(ctx, remote.Public, "")
	if err != nil {
		return TagSummary{}, err
	}
	summary := summarizeTags(all.Items)
	summary.Omissions = all.Omissions
	return summary, nil
}

// AssetsByTag pages through public assets carrying a format or size tag.
func (s *Service) AssetsByTag(ctx context.Context, tag string, page, limit int) (Page, error) {
	if strings.TrimSpace(tag) == "" {
		return Page{}, ErrInvalidQuery
	}
	all, err := s.ListAssets(ctx, remote.Public, "")
	if err != nil {
		return Page{}, err
	}
	out := paginate(filterByTag(all.Items, tag), page, limit)
	out.Omissions = all.Omissions
	return out, nil
}

// CreateAlbum creates an album owned by owner.
func (s *Service) CreateAlbum(ctx context.Context, in album.CreateInput) (index.AlbumRecord, error) {
	return s.albums.Create(ctx, s.cfg.Owner, in)
}

// authorizeAlbum loads albumID and checks that caller may change it. Albums
// without a recorded owner, or owned by "anonymous", are open to any caller.
func (s *Service) authorizeAlbum(ctx context.Context, albumID, caller string) (index.AlbumRecord, error) {
	rec, err := s.albums.Get(ctx, s.cfg.Owner, albumID)
	if err != nil {
		return index.AlbumRecord{}, err
	}
	if rec.Owner == "" || rec.Owner == anonymousOwner || rec.Owner == caller {
		return rec, nil
	}
	return index.AlbumRecord{}, fmt.Errorf("%w: album %s belongs to %s", ErrForbidden, albumID, rec.Owner)
}

// AddImageToAlbum adds an existing asset to an album and records the back-reference.
// An asset belongs to at most one album; adding it elsewhere moves it.
func (s *Service) AddImageToAlbum(ctx context.Context, caller, albumID, repo, id string) (index.AlbumRecord, error) {
	if _, err := s.authorizeAlbum(ctx, albumID, caller); err != nil {
		return index.AlbumRecord{}, err
	}
	rec, err := s.GetAsset(ctx, repo, id)
	if err != nil {
		return index.AlbumRecord{}, err
	}

	updated, err := s.albums.AddImage(ctx, s.cfg.Owner, albumID, id, rec.Size, rec.RawURL)
	if err != nil {
		return index.AlbumRecord{}, err
	}
	if rec.AlbumID != "" && rec.AlbumID != albumID {
		if _, err := s.albums.RemoveImage(ctx, s.cfg.Owner, rec.AlbumID, id, rec.Size); err != nil &&
			!errors.Is(err, album.ErrNotMember) && !errors.Is(err, album.ErrAlbumNotFound) {
			s.log.Warn("remove asset from previous album failed",
				zap.String("asset_id", id),
				zap.String("album_id", rec.AlbumID),
				zap.Error(err))
		}
	}
	if err := s.index.SetAssetAlbum(ctx, s.cfg.Owner, repo, id, albumID); err != nil {
		return index.AlbumRecord{}, fmt.Errorf("set album reference on %s: %w", id, err)
	}
	return updated, nil
}

// RemoveImageFromAlbum removes an asset from an album and clears its back-reference.
func (s *Service) RemoveImageFromAlbum(ctx context.Context, caller, albumID, repo, id string) (index.AlbumRecord, error) {
	if _, err := s.authorizeAlbum(ctx, albumID, caller); err != nil {
		return index.AlbumRecord{}, err
	}
	rec, err := s.GetAsset(ctx, repo, id)
	if err != nil {
		return index.AlbumRecord{}, err
	}
	updated, err := s.albums.RemoveImage(ctx, s.cfg.Owner, albumID, id, rec.Size)
	if err != nil {
		return index.AlbumRecord{}, err
	}
	if rec.AlbumID == albumID {
		if err := s.index.SetAssetAlbum(ctx, s.cfg.Owner, repo, id, ""); err != nil {
			return index.AlbumRecord{}, fmt.Errorf("clear album reference on %s: %w", id, err)
		}
	}
	return updated, nil
}

// RenameAlbum changes an album's name.
func (s *Service) RenameAlbum(ctx context.Context, caller, albumID, name string) (index.AlbumRecord, error) {
	if _, err := s.authorizeAlbum(ctx, albumID, caller); err != nil {
		return index.AlbumRecord{}, err
	}
	return s.albums.Rename(ctx, s.cfg.Owner, albumID, name)
}

// DeleteAlbum removes the album and clears the back-reference of its members.
func (s *Service) DeleteAlbum(ctx context.Context, caller, albumID string) error {
	if _, err := s.authorizeAlbum(ctx, albumID, caller); err != nil {
		return err
	}
	rec, err := s.albums.Delete(ctx, s.cfg.Owner, albumID)
	if err != nil {
		return err
	}
	members, err := s.AlbumImages(ctx, rec, rec.Owner)
	if err != nil {
		s.log.Warn("list album members for cleanup failed", zap.String("album_id", albumID), zap.Error(err))
		return nil
	}
	for _, m := range members.Items {
		if m.AlbumID != albumID {
			continue
		}
		if err := s.index.SetAssetAlbum(ctx, s.cfg.Owner, m.Repository, m.ID, ""); err != nil {
			s.log.Warn("clear album reference failed", zap.String("asset_id", m.ID), zap.String("album_id", albumID), zap.Error(err))
		}
	}
	return nil
}

// GetAlbum returns one album.
func (s *Service) GetAlbum(ctx context.Context, albumID string) (index.AlbumRecord, error) {
	return s.albums.Get(ctx, s.cfg.Owner, albumID)
}

// ListAlbums aggregates albums across repositories.
func (s *Service) ListAlbums(ctx context.Context) (index.Aggregate[index.AlbumRecord], error) {
	return s.albums.List(ctx, s.cfg.Owner)
}

// AlbumImages resolves the album's members to asset records in album order.
// Private members resolve only for their uploader; any member left unresolved
// while a repository was unreadable or while private members were hidden from
// viewer is reported as an omission. Members deleted since are skipped.
func (s *Service) AlbumImages(ctx context.Context, rec index.AlbumRecord, viewer string) (index.Aggregate[index.AssetRecord], error) {
	all, err := s.ListAssets(ctx, remote.Public, "")
	if err != nil {
		return index.Aggregate[index.AssetRecord]{}, err
	}
	byID := make(map[string]index.AssetRecord, len(all.Items))
	for _, a := range all.Items {
		if a.AlbumID == rec.ID || byID[a.ID].ID == "" {
			byID[a.ID] = a
		}
	}
	out := index.Aggregate[index.AssetRecord]{Items: []index.AssetRecord{}, Omissions: all.Omissions}

	unresolved := 0
	for _, id := range rec.Images {
		if _, ok := byID[id]; !ok {
			unresolved++
		}
	}
	if unresolved > 0 {
		hidden, err := s.resolveVaultMembers(ctx, rec, viewer, byID)
		if err != nil {
			s.omit(&out, s.cfg.VaultRepo, err)
		} else if hidden > 0 {
			out.Omissions = append(out.Omissions, index.Omission{
				Repository: s.cfg.VaultRepo,
				Reason:     fmt.Sprintf("%d private members not visible", hidden),
			})
		}
	}

	for _, id := range rec.Images {
		if a, ok := byID[id]; ok {
			out.Items = append(out.Items, a)
		}
	}
	return out, nil
}

// resolveVaultMembers adds rec's private members visible to viewer to byID and
// counts the ones that stay hidden.
func (s *Service) resolveVaultMembers(ctx context.Context, rec index.AlbumRecord, viewer string, byID map[string]index.AssetRecord) (int, error) {
	assets, err := s.index.ReadPrivateAssets(ctx, s.cfg.Owner, s.cfg.VaultRepo)
	if errors.Is(err, remote.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	hidden := 0
	for _, a := range assets {
		if !rec.HasImage(a.ID) {
			continue
		}
		if _, ok := byID[a.ID]; ok {
			continue
		}
		if viewer != "" && a.Uploader == viewer {
			byID[a.ID] = a
			continue
		}
		hidden++
	}
	return hidden, nil
}

// CapacityStats reports usage across storage repositories and records a snapshot.
func (s *Service) CapacityStats(ctx context.Context) (registry.Stats, error) {
	stats, err := s.registry.CapacityStats(ctx, s.cfg.Owner)
	if err != nil {
		return registry.Stats{}, err
	}
	if s.audit != nil {
		if err := s.audit.RecordCapacitySnapshot(ctx, s.cfg.Owner, stats); err != nil {
			s.log.Warn("record capacity snapshot failed", zap.Error(err))
		}
	}
	return stats, nil
}

// OrphanedBlobs returns the most recent orphaned-blob ledger entries.
func (s *Service) OrphanedBlobs(ctx context.Context, limit int) ([]audit.OrphanedBlob, error) {
	if s.audit == nil {
		return []audit.OrphanedBlob{}, nil
	}
	_, limit = normalizePage(1, limit)
	return s.audit.ListOrphanedBlobs(ctx, s.cfg.Owner, limit)
}
