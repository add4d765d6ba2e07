package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/abduss/picvault/internal/remote"
)

// IndexStore reads and writes whole index files.
type IndexStore interface {
	// Read returns the current content and token. A missing file yields an empty Document.
	Read(ctx context.Context, ref Ref) (Document, error)
	// Write replaces the file; token must be the one returned by the last Read.
	Write(ctx context.Context, ref Ref, content []byte, token, message string) error
	// ReadRaw fetches content through the unauthenticated raw path.
	ReadRaw(ctx context.Context, ref Ref) ([]byte, error)
}

// RemoteStore adapts a remote.Store to IndexStore.
type RemoteStore struct {
	store remote.Store
}

// NewRemoteStore wraps store.
func NewRemoteStore(store remote.Store) *RemoteStore {
	return &RemoteStore{store: store}
}

func (s *RemoteStore) Read(ctx context.Context, ref Ref) (Document, error) {
	file, err := s.store.GetFile(ctx, ref.Owner, ref.Repo, ref.Path)
	if errors.Is(err, remote.ErrNotFound) {
		return Document{}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("read %s/%s: %w", ref.Repo, ref.Path, err)
	}
	return Document{Content: file.Content, Token: file.Token}, nil
}

func (s *RemoteStore) Write(ctx context.Context, ref Ref, content []byte, token, message string) error {
	_, err := s.store.PutFile(ctx, ref.Owner, ref.Repo, ref.Path, content, remote.Commit{Message: message, Token: token})
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", ref.Repo, ref.Path, err)
	}
	return nil
}

func (s *RemoteStore) ReadRaw(ctx context.Context, ref Ref) ([]byte, error) {
	content, err := s.store.ReadRaw(ctx, ref.Owner, ref.Repo, ref.Path)
	if err != nil {
		return nil, fmt.Errorf("read raw %s/%s: %w", ref.Repo, ref.Path, err)
	}
	return content, nil
}
