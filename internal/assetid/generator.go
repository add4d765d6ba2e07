// Package assetid generates short asset ids that are unique within one repository.
package assetid

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"path"
	"strings"

	"github.com/abduss/picvault/internal/remote"
)

const (
	// Length is the number of characters in a generated id.
	Length      = 6
	maxAttempts = 100
	alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	imagesDir   = "images"
)

// ErrExhausted signals that no unused id was found within the attempt limit.
var ErrExhausted = errors.New("assetid: id space exhausted")

type directoryLister interface {
	ListDirectory(ctx context.Context, owner, repo, path string) ([]remote.Entry, error)
}

// Generator draws random ids and checks them against the repository's current files.
type Generator struct {
	store  directoryLister
	random io.Reader
}

// New returns a Generator backed by crypto/rand.
func New(store directoryLister) *Generator {
	return &Generator{store: store, random: rand.Reader}
}

// Generate lists images/ in repo and returns an id no existing file uses as its stem.
// The listing is taken fresh on every call.
func (g *Generator) Generate(ctx context.Context, owner, repo string) (string, error) {
	used, err := g.usedIDs(ctx, owner, repo)
	if err != nil {
		return "", err
	}

	for i := 0; i < maxAttempts; i++ {
		id, err := g.candidate()
		if err != nil {
			return "", fmt.Errorf("draw id: %w", err)
		}
		if _, taken := used[id]; !taken {
			return id, nil
		}
	}
	return "", ErrExhausted
}

func (g *Generator) usedIDs(ctx context.Context, owner, repo string) (map[string]struct{}, error) {
	entries, err := g.store.ListDirectory(ctx, owner, repo, imagesDir)
	if errors.Is(err, remote.ErrNotFound) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", repo, imagesDir, err)
	}

	used := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		used[Stem(e.Name)] = struct{}{}
	}
	return used, nil
}

func (g *Generator) candidate() (string, error) {
	var sb strings.Builder
	sb.Grow(Length)
	limit := big.NewInt(int64(len(alphabet)))
	for i := 0; i < Length; i++ {
		n, err := rand.Int(g.random, limit)
		if err != nil {
			return "", err
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String(), nil
}

// Stem returns a file name without its extension.
func Stem(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
