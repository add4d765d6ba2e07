package remote

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Hook is consulted before every MemoryStore call. A non-nil error is returned
// to the caller instead of performing the operation.
type Hook func(op, repo, path string) error

type memFile struct {
	content []byte
	token   string
}

type memRepo struct {
	meta         Repository
	files        map[string]memFile
	reportedSize int64
	sizeOverride bool
}

// MemoryStore is an in-process Store with strict token enforcement.
type MemoryStore struct {
	mu      sync.Mutex
	rawBase string
	owners  map[string]map[string]*memRepo
	version int
	created time.Time
	hook    Hook
	calls   map[string]int
}

// NewMemoryStore returns an empty store. rawBase prefixes download URLs.
func NewMemoryStore(rawBase string) *MemoryStore {
	if rawBase == "" {
		rawBase = "memory://raw"
	}
	return &MemoryStore{
		rawBase: strings.TrimRight(rawBase, "/"),
		owners:  make(map[string]map[string]*memRepo),
		created: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		calls:   make(map[string]int),
	}
}

// SetHook installs a hook for failure injection. Pass nil to clear it.
func (m *MemoryStore) SetHook(h Hook) {
	m.mu.Lock()
	m.hook = h
	m.mu.Unlock()
}

// SetReportedSize pins the size GetRepository reports for a repository.
func (m *MemoryStore) SetReportedSize(owner, repo string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.repo(owner, repo); r != nil {
		r.reportedSize = size
		r.sizeOverride = true
	}
}

// Calls returns how many times op was invoked.
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Exists reports whether a file is present.
func (m *MemoryStore) Exists(owner, repo, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.repo(owner, repo)
	if r == nil {
		return false
	}
	_, ok := r.files[path]
	return ok
}

func (m *MemoryStore) enter(op, repo, path string) error {
	m.mu.Lock()
	m.calls[op]++
	hook := m.hook
	m.mu.Unlock()
	if hook != nil {
		return hook(op, repo, path)
	}
	return nil
}

func (m *MemoryStore) repo(owner, name string) *memRepo {
	repos, ok := m.owners[owner]
	if !ok {
		return nil
	}
	return repos[name]
}

func (m *MemoryStore) nextToken(content []byte) string {
	m.version++
	sum := sha1.Sum(append([]byte(fmt.Sprintf("%d:", m.version)), content...))
	return hex.EncodeToString(sum[:])
}

func (r *memRepo) size() int64 {
	if r.sizeOverride {
		return r.reportedSize
	}
	var total int64
	for _, f := range r.files {
		total += int64(len(f.content))
	}
	return total
}

func (r *memRepo) snapshot() Repository {
	meta := r.meta
	meta.SizeBytes = r.size()
	return meta
}

func (m *MemoryStore) GetRepository(ctx context.Context, owner, name string) (Repository, error) {
	if err := m.enter("get_repository", name, ""); err != nil {
		return Repository{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.repo(owner, name)
	if r == nil {
		return Repository{}, ErrNotFound
	}
	return r.snapshot(), nil
}

func (m *MemoryStore) ListRepositories(ctx context.Context, owner string) ([]Repository, error) {
	if err := m.enter("list_repositories", "", ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	repos, ok := m.owners[owner]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Repository, 0, len(repos))
	for _, r := range repos {
		out = append(out, r.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListDirectory(ctx context.Context, owner, repo, path string) ([]Entry, error) {
	if err := m.enter("list_directory", repo, path); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.repo(owner, repo)
	if r == nil {
		return nil, ErrNotFound
	}
	prefix := strings.Trim(path, "/") + "/"
	var entries []Entry
	for p, f := range r.files {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		entries = append(entries, Entry{Name: rest, Path: p, Token: f.token, Size: int64(len(f.content))})
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *MemoryStore) GetFile(ctx context.Context, owner, repo, path string) (File, error) {
	if err := m.enter("get_file", repo, path); err != nil {
		return File{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.repo(owner, repo)
	if r == nil {
		return File{}, ErrNotFound
	}
	f, ok := r.files[path]
	if !ok {
		return File{}, ErrNotFound
	}
	return File{Content: append([]byte(nil), f.content...), Token: f.token}, nil
}

func (m *MemoryStore) PutFile(ctx context.Context, owner, repo, path string, content []byte, commit Commit) (PutResult, error) {
	if err := m.enter("put_file", repo, path); err != nil {
		return PutResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.repo(owner, repo)
	if r == nil {
		return PutResult{}, ErrNotFound
	}
	current, exists := r.files[path]
	if exists && commit.Token != current.token {
		return PutResult{}, &APIError{Op: "put_file", Status: 409, Message: path + " does not match", Err: ErrConflict}
	}
	if !exists && commit.Token != "" {
		return PutResult{}, &APIError{Op: "put_file", Status: 409, Message: path + " was deleted", Err: ErrConflict}
	}
	token := m.nextToken(content)
	r.files[path] = memFile{content: append([]byte(nil), content...), token: token}
	return PutResult{
		DownloadURL: fmt.Sprintf("%s/%s/%s/%s/%s", m.rawBase, owner, repo, r.meta.DefaultBranch, path),
		Token:       token,
	}, nil
}

func (m *MemoryStore) DeleteFile(ctx context.Context, owner, repo, path string, commit Commit) error {
	if err := m.enter("delete_file", repo, path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.repo(owner, repo)
	if r == nil {
		return ErrNotFound
	}
	current, ok := r.files[path]
	if !ok {
		return ErrNotFound
	}
	if commit.Token != current.token {
		return &APIError{Op: "delete_file", Status: 409, Message: path + " does not match", Err: ErrConflict}
	}
	delete(r.files, path)
	return nil
}

func (m *MemoryStore) CreateRepository(ctx context.Context, owner, name string, visibility Visibility) error {
	if err := m.enter("create_repository", name, ""); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	repos, ok := m.owners[owner]
	if !ok {
		repos = make(map[string]*memRepo)
		m.owners[owner] = repos
	}
	if _, exists := repos[name]; exists {
		return &APIError{Op: "create_repository", Status: 422, Message: "name already exists", Err: ErrAlreadyExists}
	}
	m.version++
	repos[name] = &memRepo{
		meta: Repository{
			Name:          name,
			DefaultBranch: "main",
			Private:       visibility == Private,
			CreatedAt:     m.created.Add(time.Duration(m.version) * time.Second),
		},
		files: make(map[string]memFile),
	}
	return nil
}

// ReadRaw serves public repositories only, as an unauthenticated raw host would.
func (m *MemoryStore) ReadRaw(ctx context.Context, owner, repo, path string) ([]byte, error) {
	if err := m.enter("read_raw", repo, path); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.repo(owner, repo)
	if r == nil || r.meta.Private {
		return nil, ErrNotFound
	}
	f, ok := r.files[path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), f.content...), nil
}

func (m *MemoryStore) CredentialScope() string {
	return "memory"
}
