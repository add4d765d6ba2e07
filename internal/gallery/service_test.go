package gallery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abduss/picvault/internal/album"
	"github.com/abduss/picvault/internal/allocator"
	"github.com/abduss/picvault/internal/assetid"
	"github.com/abduss/picvault/internal/audit"
	"github.com/abduss/picvault/internal/index"
	"github.com/abduss/picvault/internal/registry"
	"github.com/abduss/picvault/internal/remote"
	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "octo"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fakeAudit struct {
	mu        sync.Mutex
	orphans   []audit.OrphanedBlob
	snapshots []registry.Stats
}

func (f *fakeAudit) RecordOrphanedBlob(_ context.Context, blob audit.OrphanedBlob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orphans = append(f.orphans, blob)
	return nil
}

func (f *fakeAudit) ListOrphanedBlobs(_ context.Context, _ string, limit int) ([]audit.OrphanedBlob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.orphans) {
		limit = len(f.orphans)
	}
	return append([]audit.OrphanedBlob(nil), f.orphans[:limit]...), nil
}

func (f *fakeAudit) RecordCapacitySnapshot(_ context.Context, _ string, stats registry.Stats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, stats)
	return nil
}

type fixture struct {
	store   *remote.MemoryStore
	index   *index.Manager
	alloc   *allocator.Allocator
	audit   *fakeAudit
	clock   *clock.Mock
	service *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := remote.NewMemoryStore("")
	idx := index.NewManager(index.NewRemoteStore(store), index.Config{Retries: 1, Backoff: time.Millisecond}, nil)
	reg := registry.New(store, idx, nil, registry.Config{Prefix: "pics", MaxRepos: 10, HardCap: 1000}, nil)
	alloc := allocator.New(store, reg, allocator.Config{
		SoftThreshold: 800,
		HardCap:       1000,
		MaxRepos:      10,
		VaultRepo:     "pics-vault",
	}, nil)
	clk := clock.NewMock()
	clk.Add(24 * time.Hour)
	albums := album.NewManager(idx, reg, alloc, nil, clk, nil)
	aud := &fakeAudit{}

	svc := NewService(Config{Owner: owner, VaultRepo: "pics-vault", MaxUploadBytes: 1024}, Dependencies{
		Blobs:     store,
		Index:     idx,
		Allocator: alloc,
		Registry:  reg,
		Albums:    albums,
		IDs:       assetid.New(store),
		Audit:     aud,
		Clock:     clk,
	})
	require.NoError(t, alloc.ProvisionRepository(context.Background(), owner, "pics-1", remote.Public))
	return fixture{store: store, index: idx, alloc: alloc, audit: aud, clock: clk, service: svc}
}

func (f fixture) upload(t *testing.T, name string, visibility remote.Visibility, albumID string) index.AssetRecord {
	t.Helper()
	rec, err := f.service.UploadAsset(context.Background(), UploadInput{
		Filename:   name,
		Content:    pngBytes,
		Uploader:   "alice",
		Visibility: visibility,
		AlbumID:    albumID,
	})
	require.NoError(t, err)
	f.clock.Add(time.Minute)
	return rec
}

func TestUploadPublicAsset(t *testing.T) {
	f := newFixture(t)

	rec := f.upload(t, "cat.png", remote.Public, "")
	assert.Len(t, rec.ID, 6)
	assert.Equal(t, "pics-1", rec.Repository)
	assert.Equal(t, "image/png", rec.MimeType)
	assert.Equal(t, int64(len(pngBytes)), rec.Size)
	assert.Equal(t, "memory://raw/octo/pics-1/main/images/"+rec.ID+".png", rec.RawURL)
	assert.True(t, f.store.Exists(owner, "pics-1", "images/"+rec.ID+".png"))

	got, err := f.service.GetAsset(context.Background(), "pics-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "alice", got.Uploader)
}

func TestUploadRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.UploadAsset(ctx, UploadInput{Filename: "notes.txt", Content: []byte("hello world")})
	assert.True(t, errors.Is(err, ErrUnsupportedType))

	_, err = f.service.UploadAsset(ctx, UploadInput{Filename: "big.png", Content: make([]byte, 2048)})
	assert.True(t, errors.Is(err, ErrTooLarge))

	_, err = f.service.UploadAsset(ctx, UploadInput{Filename: "", Content: pngBytes})
	assert.True(t, errors.Is(err, ErrInvalidUpload))

	_, err = f.service.UploadAsset(ctx, UploadInput{Filename: "x.png", Content: pngBytes, Visibility: "secret"})
	assert.True(t, errors.Is(err, ErrInvalidUpload))
}

func TestUploadAcceptsDeclaredSVG(t *testing.T) {
	f := newFixture(t)
	svg := []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`)

	rec, err := f.service.UploadAsset(context.Background(), UploadInput{
		Filename: "logo.svg", Content: svg, MimeType: "image/svg+xml", Uploader: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", rec.MimeType)
	assert.True(t, f.store.Exists(owner, "pics-1", "images/"+rec.ID+".svg"))
}

func TestPrivateUploadsGoToVaultAndStayHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	public := f.upload(t, "public.png", remote.Public, "")
	private := f.upload(t, "private.png", remote.Private, "")
	assert.Equal(t, "pics-vault", private.Repository)
	assert.True(t, private.Private)

	listed, err := f.service.ListAssets(ctx, remote.Public, "")
	require.NoError(t, err)
	require.Len(t, listed.Items, 1)
	assert.Equal(t, public.ID, listed.Items[0].ID)

	mine, err := f.service.ListAssets(ctx, remote.Private, "alice")
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, private.ID, mine.Items[0].ID)

	theirs, err := f.service.ListAssets(ctx, remote.Private, "bob")
	require.NoError(t, err)
	assert.Empty(t, theirs.Items)
}

func TestUploadIntoAlbum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alb, err := f.service.CreateAlbum(ctx, album.CreateInput{Name: "Trip", Owner: "alice"})
	require.NoError(t, err)

	rec := f.upload(t, "beach.png", remote.Public, alb.ID)
	assert.Equal(t, alb.ID, rec.AlbumID)

	got, err := f.service.GetAlbum(ctx, alb.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, got.Images)
	assert.Equal(t, 1, got.ImageCount)
	assert.Equal(t, rec.Size, got.TotalSize)
	assert.Equal(t, rec.RawURL, got.CoverImage)

	members, err := f.service.AlbumImages(ctx, got, "")
	require.NoError(t, err)
	require.Len(t, members.Items, 1)
	assert.Equal(t, rec.ID, members.Items[0].ID)
}

func TestUploadIntoUnknownAlbumWritesNothing(t *testing.T) {
	f := newFixture(t)
	puts := f.store.Calls("put_file")

	_, err := f.service.UploadAsset(context.Background(), UploadInput{
		Filename: "x.png", Content: pngBytes, Uploader: "alice", AlbumID: "missing",
	})
	assert.True(t, errors.Is(err, album.ErrAlbumNotFound))
	assert.Equal(t, puts, f.store.Calls("put_file"))
}

func TestUploadKeepsAssetWhenAlbumUpdateFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alb, err := f.service.CreateAlbum(ctx, album.CreateInput{Name: "Trip"})
	require.NoError(t, err)

	f.store.SetHook(func(op, repo, path string) error {
		if op == "put_file" && path == index.AlbumsPath {
			return remote.ErrPermissionDenied
		}
		return nil
	})

	rec, err := f.service.UploadAsset(ctx, UploadInput{
		Filename: "x.png", Content: pngBytes, Uploader: "alice", AlbumID: alb.ID,
	})
	require.Error(t, err)
	require.NotEmpty(t, rec.ID, "the asset itself was stored")
	assert.Empty(t, rec.AlbumID)

	stored, err := f.service.GetAsset(ctx, rec.Repository, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.AlbumID, "no back-reference to an album that does not list the asset")
}

func TestUploadRecordsOrphanWhenIndexWriteFails(t *testing.T) {
	f := newFixture(t)
	f.store.SetHook(func(op, repo, path string) error {
		if op == "put_file" && path == index.AssetsPath {
			return remote.ErrPermissionDenied
		}
		return nil
	})

	_, err := f.service.UploadAsset(context.Background(), UploadInput{
		Filename: "x.png", Content: pngBytes, Uploader: "alice",
	})
	require.Error(t, err)
	assert.Equal(t, KindReauth, Classify(err))

	require.Len(t, f.audit.orphans, 1)
	orphan := f.audit.orphans[0]
	assert.Equal(t, audit.StageUpload, orphan.Stage)
	assert.Equal(t, "pics-1", orphan.Repository)
	assert.True(t, f.store.Exists(owner, "pics-1", orphan.Path), "the orphaned blob is still in the repository")

	listed, err := f.service.OrphanedBlobs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestDeleteAssetTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.upload(t, "cat.png", remote.Public, "")

	require.NoError(t, f.service.DeleteAsset(ctx, "pics-1", rec.ID))
	assert.False(t, f.store.Exists(owner, "pics-1", "images/"+rec.ID+".png"))

	_, err := f.service.GetAsset(ctx, "pics-1", rec.ID)
	assert.True(t, errors.Is(err, ErrAssetNotFound))

	err = f.service.DeleteAsset(ctx, "pics-1", rec.ID)
	assert.True(t, errors.Is(err, ErrAssetNotFound))
}

func TestDeleteLeavesOrphanNotDanglingRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.upload(t, "cat.png", remote.Public, "")

	f.store.SetHook(func(op, repo, path string) error {
		if op == "delete_file" {
			return remote.ErrTransient
		}
		return nil
	})

	require.NoError(t, f.service.DeleteAsset(ctx, "pics-1", rec.ID))
	_, err := f.service.GetAsset(ctx, "pics-1", rec.ID)
	assert.True(t, errors.Is(err, ErrAssetNotFound))

	require.Len(t, f.audit.orphans, 1)
	assert.Equal(t, audit.StageDelete, f.audit.orphans[0].Stage)
	assert.Equal(t, "images/"+rec.ID+".png", f.audit.orphans[0].Path)
	assert.True(t, f.store.Exists(owner, "pics-1", "images/"+rec.ID+".png"))
}

func TestDeleteDoesNotDependOnImagesListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.upload(t, "cat.png", remote.Public, "")

	// listings can be truncated or stale; the record names the blob
	f.store.SetHook(func(op, repo, path string) error {
		if op == "list_directory" {
			return remote.ErrNotFound
		}
		return nil
	})

	require.NoError(t, f.service.DeleteAsset(ctx, "pics-1", rec.ID))
	assert.False(t, f.store.Exists(owner, "pics-1", "images/"+rec.ID+".png"))
	assert.Empty(t, f.audit.orphans)
}

func TestDeleteRecordsOrphanWhenBlobCannotBeFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.upload(t, "cat.png", remote.Public, "")

	blobPath := "images/" + rec.ID + ".png"
	file, err := f.store.GetFile(ctx, owner, "pics-1", blobPath)
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteFile(ctx, owner, "pics-1", blobPath, remote.Commit{Message: "gone", Token: file.Token}))

	require.NoError(t, f.service.DeleteAsset(ctx, "pics-1", rec.ID))
	require.Len(t, f.audit.orphans, 1)
	assert.Equal(t, audit.StageDelete, f.audit.orphans[0].Stage)
	assert.Equal(t, blobPath, f.audit.orphans[0].Path)
	assert.Equal(t, rec.ID, f.audit.orphans[0].AssetID)
}

func TestDeleteUpdatesAlbum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alb, err := f.service.CreateAlbum(ctx, album.CreateInput{Name: "Trip"})
	require.NoError(t, err)
	a := f.upload(t, "a.png", remote.Public, alb.ID)
	b := f.upload(t, "b.png", remote.Public, alb.ID)

	require.NoError(t, f.service.DeleteAsset(ctx, "pics-1", a.ID))

	got, err := f.service.GetAlbum(ctx, alb.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, got.Images)
	assert.Equal(t, 1, got.ImageCount)
	assert.Equal(t, b.Size, got.TotalSize)
	assert.Empty(t, got.CoverImage, "the cover pointed at the deleted asset")
}

func TestAddAndRemoveAlbumImageKeepsBackReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.service.CreateAlbum(ctx, album.CreateInput{Name: "First"})
	require.NoError(t, err)
	second, err := f.service.CreateAlbum(ctx, album.CreateInput{Name: "Second"})
	require.NoError(t, err)
	rec := f.upload(t, "a.png", remote.Public, "")

	_, err = f.service.AddImageToAlbum(ctx, "alice", first.ID, "pics-1", rec.ID)
	require.NoError(t, err)
	stored, err := f.service.GetAsset(ctx, "pics-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.AlbumID)

	_, err = f.service.AddImageToAlbum(ctx, "alice", second.ID, "pics-1", rec.ID)
	require.NoError(t, err)
	old, err := f.service.GetAlbum(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, old.Images, "moving an asset removes it from its previous album")

	updated, err := f.service.RemoveImageFromAlbum(ctx, "alice", second.ID, "pics-1", rec.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Images)
	stored, err = f.service.GetAsset(ctx, "pics-1", rec.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.AlbumID)

	_, err = f.service.RemoveImageFromAlbum(ctx, "alice", second.ID, "pics-1", rec.ID)
	assert.True(t, errors.Is(err, album.ErrNotMember))
}

func TestDeleteAlbumClearsMemberReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alb, err := f.service.CreateAlbum(ctx, album.CreateInput{Name: "Trip"})
	require.NoError(t, err)
	rec := f.upload(t, "a.png", remote.Public, alb.ID)

	require.NoError(t, f.service.DeleteAlbum(ctx, "alice", alb.ID))

	stored, err := f.service.GetAsset(ctx, "pics-1", rec.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.AlbumID)
	_, err = f.service.GetAlbum(ctx, alb.ID)
	assert.True(t, errors.Is(err, album.ErrAlbumNotFound))
}

func TestAlbumChangesRequireOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alb, err := f.service.CreateAlbum(ctx, album.CreateInput{Name: "Trip", Owner: "alice"})
	require.NoError(t, err)
	member := f.upload(t, "a.png", remote.Public, alb.ID)
	loose := f.upload(t, "b.png", remote.Public, "")

	_, err = f.service.RenameAlbum(ctx, "bob", alb.ID, "Mine now")
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, KindForbidden, Classify(err))
	_, err = f.service.AddImageToAlbum(ctx, "bob", alb.ID, "pics-1", loose.ID)
	assert.True(t, errors.Is(err, ErrForbidden))
	_, err = f.service.RemoveImageFromAlbum(ctx, "bob", alb.ID, "pics-1", member.ID)
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.True(t, errors.Is(f.service.DeleteAlbum(ctx, "bob", alb.ID), ErrForbidden))

	got, err := f.service.GetAlbum(ctx, alb.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trip", got.Name)
	assert.Equal(t, []string{member.ID}, got.Images)

	renamed, err := f.service.RenameAlbum(ctx, "alice", alb.ID, "Holiday")
	require.NoError(t, err)
	assert.Equal(t, "Holiday", renamed.Name)
}

func TestAlbumsWithoutOwnerAreShared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, o := range []string{"", "anonymous"} {
		alb, err := f.service.CreateAlbum(ctx, album.CreateInput{Name: "Shared", Owner: o})
		require.NoError(t, err)
		_, err = f.service.RenameAlbum(ctx, "bob", alb.ID, "Bob was here")
		require.NoError(t, err, "owner %q", o)
	}
}

func TestAlbumImagesResolvesPrivateMembersForUploader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alb, err := f.service.CreateAlbum(ctx, album.CreateInput{Name: "Mixed", Owner: "alice"})
	require.NoError(t, err)
	public := f.upload(t, "a.png", remote.Public, alb.ID)
	private := f.upload(t, "b.png", remote.Private, alb.ID)
	require.Equal(t, "pics-vault", private.Repository)

	got, err := f.service.GetAlbum(ctx, alb.ID)
	require.NoError(t, err)
	require.Equal(t, []string{public.ID, private.ID}, got.Images)

	mine, err := f.service.AlbumImages(ctx, got, "alice")
	require.NoError(t, err)
	require.Len(t, mine.Items, 2)
	assert.Equal(t, private.ID, mine.Items[1].ID)
	assert.True(t, mine.Complete())

	theirs, err := f.service.AlbumImages(ctx, got, "bob")
	require.NoError(t, err)
	require.Len(t, theirs.Items, 1)
	assert.Equal(t, public.ID, theirs.Items[0].ID)
	require.Len(t, theirs.Omissions, 1)
	assert.Equal(t, "pics-vault", theirs.Omissions[0].Repository)
}

func TestListAssetsReportsOmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.alloc.ProvisionRepository(ctx, owner, "pics-2", remote.Public))
	rec := f.upload(t, "a.png", remote.Public, "")

	f.store.SetHook(func(op, repo, path string) error {
		if op == "read_raw" && repo == "pics-2" {
			return remote.ErrTransient
		}
		return nil
	})

	listed, err := f.service.ListAssets(ctx, remote.Public, "")
	require.NoError(t, err)
	require.Len(t, listed.Items, 1)
	assert.Equal(t, rec.ID, listed.Items[0].ID)
	require.Len(t, listed.Omissions, 1)
	assert.Equal(t, "pics-2", listed.Omissions[0].Repository)
	assert.False(t, listed.Complete())
}

func TestListAssetsNewestFirst(t *testing.T) {
	f := newFixture(t)
	first := f.upload(t, "a.png", remote.Public, "")
	second := f.upload(t, "b.png", remote.Public, "")

	listed, err := f.service.ListAssets(context.Background(), remote.Public, "")
	require.NoError(t, err)
	require.Len(t, listed.Items, 2)
	assert.Equal(t, second.ID, listed.Items[0].ID)
	assert.Equal(t, first.ID, listed.Items[1].ID)
}

func TestSearchAndTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upload(t, "sunset.png", remote.Public, "")
	f.upload(t, "sunrise.png", remote.Public, "")
	f.upload(t, "city.png", remote.Public, "")

	page, err := f.service.SearchAssets(ctx, SearchQuery{Text: "SUN", Sort: SortOldest, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "sunset.png", page.Items[0].Filename)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.True(t, page.Pagination.HasNext)

	_, err = f.service.SearchAssets(ctx, SearchQuery{Type: "all"})
	assert.True(t, errors.Is(err, ErrInvalidQuery))

	summary, err := f.service.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalImages)
	assert.Equal(t, []Tag{{Name: "png", Count: 3}}, summary.ByFormat)
	assert.Equal(t, []Tag{{Name: "small", Count: 3}}, summary.BySize)

	tagged, err := f.service.AssetsByTag(ctx, "PNG", 1, 10)
	require.NoError(t, err)
	assert.Len(t, tagged.Items, 3)
}

func TestCapacityStatsRecordsSnapshot(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "a.png", remote.Public, "")

	stats, err := f.service.CapacityStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ImageCount)
	require.Len(t, f.audit.snapshots, 1)
	assert.Equal(t, stats.ImageCount, f.audit.snapshots[0].ImageCount)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{nil, KindNone},
		{&remote.APIError{Op: "put_file", Status: 401, Err: remote.ErrPermissionDenied}, KindReauth},
		{allocator.ErrCapacityExhausted, KindCapacity},
		{ErrAssetNotFound, KindNotFound},
		{album.ErrAlbumNotFound, KindNotFound},
		{album.ErrNotMember, KindConflict},
		{ErrTooLarge, KindTooLarge},
		{ErrInvalidQuery, KindInvalid},
		{remote.ErrConflict, KindRetryable},
		{assetid.ErrExhausted, KindRetryable},
		{errors.New("boom"), KindRetryable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, Classify(tc.err), "%v", tc.err)
	}
}
