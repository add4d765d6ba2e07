package remote

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abduss/picvault/internal/metrics"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const (
	githubAccept   = "application/vnd.github.v3+json"
	reposPerPage   = 100
	repoKilobyte   = 1024
	repoDesc       = "picvault image storage repository"
	maxErrorBodyKB = 64
)

// GitHubConfig configures a GitHubClient.
type GitHubConfig struct {
	APIURL  string
	RawURL  string
	Token   string
	Branch  string
	Timeout time.Duration
}

// GitHubClient implements Store on top of the GitHub REST contents API.
type GitHubClient struct {
	apiURL     string
	rawURL     string
	token      string
	branch     string
	timeout    time.Duration
	httpClient *http.Client
	log        *zap.Logger
}

// NewGitHubClient builds a client. A nil logger disables logging.
func NewGitHubClient(cfg GitHubConfig, log *zap.Logger) *GitHubClient {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	return &GitHubClient{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		rawURL:     strings.TrimRight(cfg.RawURL, "/"),
		token:      cfg.Token,
		branch:     cfg.Branch,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type ghRepository struct {
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	DefaultBranch string    `json:"default_branch"`
	Private       bool      `json:"private"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r ghRepository) toRepository() Repository {
	return Repository{
		Name:          r.Name,
		SizeBytes:     r.Size * repoKilobyte,
		DefaultBranch: r.DefaultBranch,
		Private:       r.Private,
		CreatedAt:     r.CreatedAt,
	}
}

type ghContent struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
}

type ghPutRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type ghDeleteRequest struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch,omitempty"`
}

type ghCreateRepoRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
}

type ghPutResponse struct {
	Content ghContent `json:"content"`
}

type ghErrorBody struct {
	Message string `json:"message"`
}

// GetRepository returns store-reported metadata for owner/name.
func (c *GitHubClient) GetRepository(ctx context.Context, owner, name string) (Repository, error) {
	var repo ghRepository
	if err := c.do(ctx, "get_repository", http.MethodGet, c.repoURL(owner, name), nil, &repo); err != nil {
		return Repository{}, err
	}
	return repo.toRepository(), nil
}

// ListRepositories lists every repository owned by owner, oldest first.
func (c *GitHubClient) ListRepositories(ctx context.Context, owner string) ([]Repository, error) {
	var out []Repository
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s/users/%s/repos?per_page=%d&sort=created&direction=asc&page=%d",
			c.apiURL, url.PathEscape(owner), reposPerPage, page)

		var batch []ghRepository
		if err := c.do(ctx, "list_repositories", http.MethodGet, endpoint, nil, &batch); err != nil {
			return nil, err
		}
		for _, r := range batch {
			out = append(out, r.toRepository())
		}
		if len(batch) < reposPerPage {
			return out, nil
		}
	}
}

// ListDirectory lists the entries directly under path.
func (c *GitHubClient) ListDirectory(ctx context.Context, owner, repo, path string) ([]Entry, error) {
	var items []ghContent
	if err := c.do(ctx, "list_directory", http.MethodGet, c.contentsURL(owner, repo, path), nil, &items); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		entries = append(entries, Entry{Name: it.Name, Path: it.Path, Token: it.SHA, Size: it.Size})
	}
	return entries, nil
}

// GetFile fetches and decodes a file through the authenticated contents API.
func (c *GitHubClient) GetFile(ctx context.Context, owner, repo, path string) (File, error) {
	var item ghContent
	if err := c.do(ctx, "get_file", http.MethodGet, c.contentsURL(owner, repo, path), nil, &item); err != nil {
		return File{}, err
	}
	if item.Type != "" && item.Type != "file" {
		return File{}, fmt.Errorf("get_file %s: not a file (%s)", path, item.Type)
	}
	// files above 1MB come back with encoding "none" and no content
	if (item.Encoding != "" && item.Encoding != "base64") || (item.Content == "" && item.Size > 0) {
		return c.getBlob(ctx, owner, repo, path, item.SHA, item.Size)
	}
	content, err := decodeContent(item.Content)
	if err != nil {
		return File{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if int64(len(content)) != item.Size && item.Size > 0 {
		return c.getBlob(ctx, owner, repo, path, item.SHA, item.Size)
	}
	return File{Content: content, Token: item.SHA}, nil
}

// getBlob reads a file's bytes through the git blobs API, which serves files the
// contents API truncates. The contents SHA stays the token.
func (c *GitHubClient) getBlob(ctx context.Context, owner, repo, path, sha string, size int64) (File, error) {
	if sha == "" {
		return File{}, fmt.Errorf("get_file %s: no blob sha for %d byte file", path, size)
	}
	var blob ghContent
	endpoint := fmt.Sprintf("%s/git/blobs/%s", c.repoURL(owner, repo), url.PathEscape(sha))
	if err := c.do(ctx, "get_blob", http.MethodGet, endpoint, nil, &blob); err != nil {
		return File{}, err
	}
	if blob.Encoding != "base64" {
		return File{}, fmt.Errorf("get_blob %s: unsupported encoding %q", path, blob.Encoding)
	}
	content, err := decodeContent(blob.Content)
	if err != nil {
		return File{}, fmt.Errorf("decode blob %s: %w", path, err)
	}
	if size > 0 && int64(len(content)) != size {
		return File{}, fmt.Errorf("get_blob %s: got %d of %d bytes: %w", path, len(content), size, ErrTransient)
	}
	return File{Content: content, Token: sha}, nil
}

// decodeContent strips the 60-column wrapping the API applies to base64 payloads.
func decodeContent(s string) ([]byte, error) {
	raw := strings.NewReplacer("\n", "", "\r", "").Replace(s)
	return base64.StdEncoding.DecodeString(raw)
}

// PutFile creates or updates a file. Updating an existing file requires its current token.
func (c *GitHubClient) PutFile(ctx context.Context, owner, repo, path string, content []byte, commit Commit) (PutResult, error) {
	body := ghPutRequest{
		Message: commit.Message,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     commit.Token,
		Branch:  c.branch,
	}
	var resp ghPutResponse
	if err := c.do(ctx, "put_file", http.MethodPut, c.contentsURL(owner, repo, path), body, &resp); err != nil {
		// 422 "sha wasn't supplied" means the file already exists and we raced its creation
		if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusUnprocessableEntity {
			apiErr.Err = ErrConflict
		}
		return PutResult{}, err
	}
	return PutResult{DownloadURL: resp.Content.DownloadURL, Token: resp.Content.SHA}, nil
}

// DeleteFile removes a file at the given token.
func (c *GitHubClient) DeleteFile(ctx context.Context, owner, repo, path string, commit Commit) error {
	body := ghDeleteRequest{Message: commit.Message, SHA: commit.Token, Branch: c.branch}
	err := c.do(ctx, "delete_file", http.MethodDelete, c.contentsURL(owner, repo, path), body, nil)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusUnprocessableEntity {
		apiErr.Err = ErrConflict
	}
	return err
}

// CreateRepository creates a repository for the authenticated user.
func (c *GitHubClient) CreateRepository(ctx context.Context, owner, name string, visibility Visibility) error {
	body := ghCreateRepoRequest{
		Name:        name,
		Description: repoDesc,
		Private:     visibility == Private,
		AutoInit:    true,
	}
	err := c.do(ctx, "create_repository", http.MethodPost, c.apiURL+"/user/repos", body, nil)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusUnprocessableEntity {
		apiErr.Err = ErrAlreadyExists
	}
	return err
}

// ReadRaw fetches a file from the raw content host on the configured branch.
func (c *GitHubClient) ReadRaw(ctx context.Context, owner, repo, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s/%s/%s/%s", c.rawURL, url.PathEscape(owner), url.PathEscape(repo), c.branch, escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRemoteRequest("read_raw", "error", time.Since(start))
		return nil, fmt.Errorf("read_raw %s: %w: %v", path, ErrTransient, err)
	}
	defer resp.Body.Close()
	metrics.ObserveRemoteRequest("read_raw", fmt.Sprint(resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read_raw %s: %w: %v", path, ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Op: "read_raw", Status: resp.StatusCode, Err: classifyStatus(resp.StatusCode, false)}
	}
	return body, nil
}

// CredentialScope returns a short fingerprint of the configured token.
func (c *GitHubClient) CredentialScope() string {
	return tokenScope(c.token)
}

func (c *GitHubClient) do(ctx context.Context, op, method, endpoint string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", githubAccept)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRemoteRequest(op, "error", time.Since(start))
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
	defer resp.Body.Close()
	metrics.ObserveRemoteRequest(op, fmt.Sprint(resp.StatusCode), time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response body: %w: %v", op, ErrTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg ghErrorBody
		_ = sonic.Unmarshal(respBody, &msg)
		rateLimited := resp.Header.Get("X-RateLimit-Remaining") == "0"
		apiErr := &APIError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: msg.Message,
			Err:     classifyStatus(resp.StatusCode, rateLimited),
		}
		if resp.StatusCode != http.StatusNotFound {
			c.log.Warn("github request failed",
				zap.String("op", op),
				zap.Int("status_code", resp.StatusCode),
				zap.String("message", truncate(msg.Message, maxErrorBodyKB*1024)))
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", op, err)
	}
	return nil
}

func (c *GitHubClient) repoURL(owner, name string) string {
	return fmt.Sprintf("%s/repos/%s/%s", c.apiURL, url.PathEscape(owner), url.PathEscape(name))
}

func (c *GitHubClient) contentsURL(owner, repo, path string) string {
	return fmt.Sprintf("%s/contents/%s", c.repoURL(owner, repo), escapePath(path))
}

func escapePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func tokenScope(token string) string {
	if token == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
