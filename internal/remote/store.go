// Package remote talks to the backing object store that holds storage repositories.
//
// A storage repository is a bucket-like project holding blob files plus JSON
// index files. Every mutation of an existing file carries the concurrency token
// returned by the last read; a stale token fails with ErrConflict instead of
// overwriting.
package remote

import (
	"context"
	"time"
)

// Visibility controls who can read a repository's raw content.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Repository is the store-reported metadata for one repository.
type Repository struct {
	Name          string
	SizeBytes     int64
	DefaultBranch string
	Private       bool
	CreatedAt     time.Time
}

// Entry is one item of a directory listing.
type Entry struct {
	Name  string
	Path  string
	Token string
	Size  int64
}

// File is the decoded content of a file and its current concurrency token.
type File struct {
	Content []byte
	Token   string
}

// Commit describes a content mutation. Token is empty only when creating a new file.
type Commit struct {
	Message string
	Token   string
}

// PutResult is returned by a successful PutFile.
type PutResult struct {
	DownloadURL string
	Token       string
}

// Store is the contract the allocation and index layers rely on.
type Store interface {
	GetRepository(ctx context.Context, owner, name string) (Repository, error)
	ListRepositories(ctx context.Context, owner string) ([]Repository, error)
	ListDirectory(ctx context.Context, owner, repo, path string) ([]Entry, error)
	GetFile(ctx context.Context, owner, repo, path string) (File, error)
	PutFile(ctx context.Context, owner, repo, path string, content []byte, commit Commit) (PutResult, error)
	DeleteFile(ctx context.Context, owner, repo, path string, commit Commit) error
	CreateRepository(ctx context.Context, owner, name string, visibility Visibility) error
	// ReadRaw fetches content through the cheap unauthenticated branch path.
	ReadRaw(ctx context.Context, owner, repo, path string) ([]byte, error)
	// CredentialScope identifies the credential the store acts with, for cache keys.
	CredentialScope() string
}
