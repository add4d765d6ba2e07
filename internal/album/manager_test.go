package album

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abduss/picvault/internal/index"
	"github.com/abduss/picvault/internal/registry"
	"github.com/abduss/picvault/internal/remote"
	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1024 * 1024

type fixedSelector struct{ repo string }

func (f fixedSelector) SelectWritableRepository(context.Context, string) (string, error) {
	return f.repo, nil
}

type fixture struct {
	store   *remote.MemoryStore
	index   *index.Manager
	manager *Manager
	clock   *clock.Mock
}

func newFixture(t *testing.T, target string, repos ...string) fixture {
	t.Helper()
	store := remote.NewMemoryStore("")
	for _, r := range repos {
		require.NoError(t, store.CreateRepository(context.Background(), "octo", r, remote.Public))
	}
	idx := index.NewManager(index.NewRemoteStore(store), index.Config{Retries: 1, Backoff: time.Millisecond}, nil)
	reg := registry.New(store, idx, nil, registry.Config{Prefix: "pics", MaxRepos: 10, HardCap: 1000}, nil)
	clk := clock.NewMock()
	return fixture{
		store:   store,
		index:   idx,
		manager: NewManager(idx, reg, fixedSelector{repo: target}, nil, clk, nil),
		clock:   clk,
	}
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t, "pics-1", "pics-1")
	ctx := context.Background()

	created, err := f.manager.Create(ctx, "octo", CreateInput{Name: "  Trip ", Tags: []string{"sea"}, Owner: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "Trip", created.Name)
	assert.Equal(t, "pics-1", created.Repository)
	assert.NotEmpty(t, created.ID)

	got, err := f.manager.Get(ctx, "octo", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, []string{"sea"}, got.Tags)
	assert.Empty(t, got.Images)

	_, err = f.manager.Create(ctx, "octo", CreateInput{Name: "   "})
	assert.True(t, errors.Is(err, ErrInvalidAlbum))
}

func TestAddImageUpdatesCounters(t *testing.T) {
	f := newFixture(t, "pics-1", "pics-1")
	ctx := context.Background()
	require.NoError(t, f.index.AppendAlbum(ctx, "octo", "pics-1", index.AlbumRecord{
		ID: "alb", Name: "X", Images: []string{"a00001", "b00002"}, ImageCount: 2, TotalSize: 10 * mib,
	}))

	rec, err := f.manager.AddImage(ctx, "octo", "alb", "c00003", 5*mib, "https://raw/pics-1/images/c00003.png")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ImageCount)
	assert.Equal(t, int64(15*mib), rec.TotalSize)
	assert.Len(t, rec.Images, 3)
	assert.Equal(t, "https://raw/pics-1/images/c00003.png", rec.CoverImage)
}

func TestAddThenRemoveRestoresCounters(t *testing.T) {
	f := newFixture(t, "pics-1", "pics-1")
	ctx := context.Background()
	album, err := f.manager.Create(ctx, "octo", CreateInput{Name: "Trip"})
	require.NoError(t, err)

	_, err = f.manager.AddImage(ctx, "octo", album.ID, "a00001", 300, "https://raw/a00001.png")
	require.NoError(t, err)
	before, err := f.manager.Get(ctx, "octo", album.ID)
	require.NoError(t, err)

	_, err = f.manager.AddImage(ctx, "octo", album.ID, "b00002", 700, "https://raw/b00002.png")
	require.NoError(t, err)
	after, err := f.manager.RemoveImage(ctx, "octo", album.ID, "b00002", 700)
	require.NoError(t, err)

	assert.Equal(t, before.ImageCount, after.ImageCount)
	assert.Equal(t, before.TotalSize, after.TotalSize)
	assert.NotContains(t, after.Images, "b00002")
	assert.Equal(t, "https://raw/a00001.png", after.CoverImage)
}

func TestAddImageTwiceIsNoop(t *testing.T) {
	f := newFixture(t, "pics-1", "pics-1")
	ctx := context.Background()
	album, err := f.manager.Create(ctx, "octo", CreateInput{Name: "Trip"})
	require.NoError(t, err)

	_, err = f.manager.AddImage(ctx, "octo", album.ID, "a00001", 300, "u")
	require.NoError(t, err)
	writes := f.store.Calls("put_file")

	rec, err := f.manager.AddImage(ctx, "octo", album.ID, "a00001", 300, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ImageCount)
	assert.Equal(t, int64(300), rec.TotalSize)
	assert.Equal(t, writes, f.store.Calls("put_file"))
}

func TestRemoveImageClearsCoverAndFloorsSize(t *testing.T) {
	f := newFixture(t, "pics-1", "pics-1")
	ctx := context.Background()
	require.NoError(t, f.index.AppendAlbum(ctx, "octo", "pics-1", index.AlbumRecord{
		ID: "alb", Name: "X", Images: []string{"a00001"}, ImageCount: 1, TotalSize: 100,
		CoverImage: "https://raw/pics-1/images/a00001.png",
	}))

	rec, err := f.manager.RemoveImage(ctx, "octo", "alb", "a00001", 250)
	require.NoError(t, err)
	assert.Empty(t, rec.CoverImage)
	assert.Equal(t, int64(0), rec.TotalSize)
	assert.Equal(t, 0, rec.ImageCount)
}

func TestRemoveImageErrors(t *testing.T) {
	f := newFixture(t, "pics-1", "pics-1")
	ctx := context.Background()
	album, err := f.manager.Create(ctx, "octo", CreateInput{Name: "Trip"})
	require.NoError(t, err)

	_, err = f.manager.RemoveImage(ctx, "octo", album.ID, "zzz999", 1)
	assert.True(t, errors.Is(err, ErrNotMember))

	_, err = f.manager.RemoveImage(ctx, "octo", "missing", "zzz999", 1)
	assert.True(t, errors.Is(err, ErrAlbumNotFound))
}

func TestLocateSkipsUnreadableRepositories(t *testing.T) {
	f := newFixture(t, "pics-2", "pics-1", "pics-2")
	ctx := context.Background()
	require.NoError(t, f.index.AppendAlbum(ctx, "octo", "pics-2", index.AlbumRecord{ID: "alb", Name: "X"}))

	f.store.SetHook(func(op, repo, path string) error {
		if op == "get_file" && repo == "pics-1" {
			return remote.ErrTransient
		}
		return nil
	})

	repo, err := f.manager.Locate(ctx, "octo", "alb")
	require.NoError(t, err)
	assert.Equal(t, "pics-2", repo)

	_, err = f.manager.Locate(ctx, "octo", "nope")
	assert.True(t, errors.Is(err, ErrAlbumNotFound))
}

func TestRename(t *testing.T) {
	f := newFixture(t, "pics-1", "pics-1")
	ctx := context.Background()
	album, err := f.manager.Create(ctx, "octo", CreateInput{Name: "Trip"})
	require.NoError(t, err)

	rec, err := f.manager.Rename(ctx, "octo", album.ID, "Holiday")
	require.NoError(t, err)
	assert.Equal(t, "Holiday", rec.Name)

	_, err = f.manager.Rename(ctx, "octo", album.ID, "")
	assert.True(t, errors.Is(err, ErrInvalidAlbum))
}

func TestListReportsOmissionsNewestFirst(t *testing.T) {
	f := newFixture(t, "pics-1", "pics-1", "pics-2", "pics-3")
	ctx := context.Background()

	old, err := f.manager.Create(ctx, "octo", CreateInput{Name: "Old"})
	require.NoError(t, err)
	f.clock.Add(time.Hour)
	f.manager.selector = fixedSelector{repo: "pics-2"}
	recent, err := f.manager.Create(ctx, "octo", CreateInput{Name: "Recent"})
	require.NoError(t, err)

	f.store.SetHook(func(op, repo, path string) error {
		if op == "get_file" && repo == "pics-3" {
			return remote.ErrTransient
		}
		return nil
	})

	agg, err := f.manager.List(ctx, "octo")
	require.NoError(t, err)
	require.Len(t, agg.Items, 2)
	assert.Equal(t, recent.ID, agg.Items[0].ID)
	assert.Equal(t, old.ID, agg.Items[1].ID)
	require.Len(t, agg.Omissions, 1)
	assert.Equal(t, "pics-3", agg.Omissions[0].Repository)
	assert.False(t, agg.Complete())
}

func TestDelete(t *testing.T) {
	f := newFixture(t, "pics-1", "pics-1")
	ctx := context.Background()
	album, err := f.manager.Create(ctx, "octo", CreateInput{Name: "Trip"})
	require.NoError(t, err)

	_, err = f.manager.Delete(ctx, "octo", album.ID)
	require.NoError(t, err)

	_, err = f.manager.Get(ctx, "octo", album.ID)
	assert.True(t, errors.Is(err, ErrAlbumNotFound))
}
