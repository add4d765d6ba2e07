package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreEnforcesTokens(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("")
	require.NoError(t, store.CreateRepository(ctx, "octo", "pics-1", Public))

	first, err := store.PutFile(ctx, "octo", "pics-1", "metadata.json", []byte("[]"), Commit{Message: "seed"})
	require.NoError(t, err)

	_, err = store.PutFile(ctx, "octo", "pics-1", "metadata.json", []byte("[1]"), Commit{Message: "blind"})
	assert.True(t, errors.Is(err, ErrConflict), "overwrite without token must conflict")

	second, err := store.PutFile(ctx, "octo", "pics-1", "metadata.json", []byte("[1]"), Commit{Message: "ok", Token: first.Token})
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	_, err = store.PutFile(ctx, "octo", "pics-1", "metadata.json", []byte("[2]"), Commit{Message: "stale", Token: first.Token})
	assert.True(t, errors.Is(err, ErrConflict))

	err = store.DeleteFile(ctx, "octo", "pics-1", "metadata.json", Commit{Token: first.Token})
	assert.True(t, errors.Is(err, ErrConflict))
	require.NoError(t, store.DeleteFile(ctx, "octo", "pics-1", "metadata.json", Commit{Token: second.Token}))

	err = store.DeleteFile(ctx, "octo", "pics-1", "metadata.json", Commit{Token: second.Token})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreRepositories(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("")

	_, err := store.ListRepositories(ctx, "octo")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.CreateRepository(ctx, "octo", "b", Public))
	require.NoError(t, store.CreateRepository(ctx, "octo", "a", Private))
	err = store.CreateRepository(ctx, "octo", "a", Private)
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	repos, err := store.ListRepositories(ctx, "octo")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "b", repos[0].Name, "listing is in creation order")
	assert.True(t, repos[1].Private)

	_, err = store.PutFile(ctx, "octo", "b", "images/x.png", []byte("12345"), Commit{})
	require.NoError(t, err)
	repo, err := store.GetRepository(ctx, "octo", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(5), repo.SizeBytes)

	store.SetReportedSize("octo", "b", 900)
	repo, err = store.GetRepository(ctx, "octo", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(900), repo.SizeBytes)
}

func TestMemoryStoreDirectoryAndRaw(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("")
	require.NoError(t, store.CreateRepository(ctx, "octo", "pub", Public))
	require.NoError(t, store.CreateRepository(ctx, "octo", "vault", Private))

	_, err := store.ListDirectory(ctx, "octo", "pub", "images")
	assert.True(t, errors.Is(err, ErrNotFound))

	for _, p := range []string{"images/.gitkeep", "images/abc123.png", "metadata.json"} {
		_, err := store.PutFile(ctx, "octo", "pub", p, []byte("x"), Commit{})
		require.NoError(t, err)
	}
	entries, err := store.ListDirectory(ctx, "octo", "pub", "images")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	raw, err := store.ReadRaw(ctx, "octo", "pub", "metadata.json")
	require.NoError(t, err)
	assert.Equal(t, "x", string(raw))

	_, err = store.PutFile(ctx, "octo", "vault", "metadata.json", []byte("[]"), Commit{})
	require.NoError(t, err)
	_, err = store.ReadRaw(ctx, "octo", "vault", "metadata.json")
	assert.True(t, errors.Is(err, ErrNotFound), "private repositories are not readable through the raw path")
}

func TestMemoryStoreHookInjectsFailures(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("")
	store.SetHook(func(op, repo, path string) error {
		if op == "create_repository" {
			return ErrPermissionDenied
		}
		return nil
	})

	err := store.CreateRepository(ctx, "octo", "pics-1", Public)
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.Equal(t, 1, store.Calls("create_repository"))
}
