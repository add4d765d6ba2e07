package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abduss/picvault/internal/metrics"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const publicReadPolicy = `{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": {"AWS": ["*"]},
    "Action": ["s3:GetObject"],
    "Resource": ["arn:aws:s3:::%s/*"]
  }]
}`

// MinIOStore implements Store with one S3 bucket per storage repository.
//
// Tokens are object ETags. The check is stat-then-put, so two writers that
// stat concurrently can both pass it; S3 offers no conditional put here.
type MinIOStore struct {
	client     *minio.Client
	anon       *minio.Client
	region     string
	scope      string
	presignTTL time.Duration
	timeout    time.Duration
	log        *zap.Logger
}

// MinIOStoreConfig configures a MinIOStore.
type MinIOStoreConfig struct {
	Region     string
	Scope      string
	PresignTTL time.Duration
	Timeout    time.Duration
}

// NewMinIOStore wraps an authenticated client and an anonymous client used for raw reads.
func NewMinIOStore(client, anon *minio.Client, cfg MinIOStoreConfig, log *zap.Logger) *MinIOStore {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}
	return &MinIOStore{
		client:     client,
		anon:       anon,
		region:     cfg.Region,
		scope:      cfg.Scope,
		presignTTL: cfg.PresignTTL,
		timeout:    cfg.Timeout,
		log:        log,
	}
}

// BucketName maps owner/repo to an S3 bucket name.
func BucketName(owner, repo string) string {
	return strings.ToLower(owner + "-" + repo)
}

func (s *MinIOStore) GetRepository(ctx context.Context, owner, name string) (Repository, error) {
	repos, err := s.ListRepositories(ctx, owner)
	if err != nil {
		return Repository{}, err
	}
	for _, r := range repos {
		if r.Name == strings.ToLower(name) {
			return r, nil
		}
	}
	return Repository{}, ErrNotFound
}

func (s *MinIOStore) ListRepositories(ctx context.Context, owner string) ([]Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	buckets, err := s.client.ListBuckets(ctx)
	s.observe("list_repositories", start, err)
	if err != nil {
		return nil, s.translate("list_repositories", err)
	}

	prefix := strings.ToLower(owner) + "-"
	var out []Repository
	for _, b := range buckets {
		name, ok := strings.CutPrefix(b.Name, prefix)
		if !ok {
			continue
		}
		size, err := s.bucketSize(ctx, b.Name)
		if err != nil {
			return nil, err
		}
		policy, err := s.client.GetBucketPolicy(ctx, b.Name)
		if err != nil {
			return nil, s.translate("get_bucket_policy", err)
		}
		out = append(out, Repository{
			Name:          name,
			SizeBytes:     size,
			DefaultBranch: "main",
			Private:       policy == "",
			CreatedAt:     b.CreationDate,
		})
	}
	return out, nil
}

func (s *MinIOStore) bucketSize(ctx context.Context, bucket string) (int64, error) {
	var total int64
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return 0, s.translate("list_objects", obj.Err)
		}
		total += obj.Size
	}
	return total, nil
}

func (s *MinIOStore) ListDirectory(ctx context.Context, owner, repo, path string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prefix := strings.Trim(path, "/") + "/"
	var entries []Entry
	start := time.Now()
	for obj := range s.client.ListObjects(ctx, BucketName(owner, repo), minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			s.observe("list_directory", start, obj.Err)
			return nil, s.translate("list_directory", obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		entries = append(entries, Entry{Name: name, Path: obj.Key, Token: obj.ETag, Size: obj.Size})
	}
	s.observe("list_directory", start, nil)
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

func (s *MinIOStore) GetFile(ctx context.Context, owner, repo, path string) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	obj, err := s.client.GetObject(ctx, BucketName(owner, repo), path, minio.GetObjectOptions{})
	if err != nil {
		s.observe("get_file", start, err)
		return File{}, s.translate("get_file", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		s.observe("get_file", start, err)
		return File{}, s.translate("get_file", err)
	}
	content, err := io.ReadAll(obj)
	s.observe("get_file", start, err)
	if err != nil {
		return File{}, s.translate("get_file", err)
	}
	return File{Content: content, Token: info.ETag}, nil
}

func (s *MinIOStore) currentToken(ctx context.Context, bucket, path string) (string, bool, error) {
	info, err := s.client.StatObject(ctx, bucket, path, minio.StatObjectOptions{})
	if err != nil {
		translated := s.translate("stat_object", err)
		if errors.Is(translated, ErrNotFound) {
			return "", false, nil
		}
		return "", false, translated
	}
	return info.ETag, true, nil
}

func (s *MinIOStore) PutFile(ctx context.Context, owner, repo, path string, content []byte, commit Commit) (PutResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	bucket := BucketName(owner, repo)
	token, exists, err := s.currentToken(ctx, bucket, path)
	if err != nil {
		return PutResult{}, err
	}
	if exists != (commit.Token != "") || (exists && token != commit.Token) {
		return PutResult{}, &APIError{Op: "put_file", Status: http.StatusConflict, Message: path, Err: ErrConflict}
	}

	start := time.Now()
	info, err := s.client.PutObject(ctx, bucket, path, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: http.DetectContentType(content),
	})
	s.observe("put_file", start, err)
	if err != nil {
		return PutResult{}, s.translate("put_file", err)
	}

	download, err := s.downloadURL(ctx, bucket, path)
	if err != nil {
		return PutResult{}, err
	}
	return PutResult{DownloadURL: download, Token: info.ETag}, nil
}

func (s *MinIOStore) downloadURL(ctx context.Context, bucket, path string) (string, error) {
	policy, err := s.client.GetBucketPolicy(ctx, bucket)
	if err != nil {
		return "", s.translate("get_bucket_policy", err)
	}
	if policy != "" {
		u := *s.client.EndpointURL()
		u.Path = "/" + bucket + "/" + path
		return u.String(), nil
	}
	signed, err := s.client.PresignedGetObject(ctx, bucket, path, s.presignTTL, url.Values{})
	if err != nil {
		return "", s.translate("presign", err)
	}
	return signed.String(), nil
}

func (s *MinIOStore) DeleteFile(ctx context.Context, owner, repo, path string, commit Commit) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	bucket := BucketName(owner, repo)
	token, exists, err := s.currentToken(ctx, bucket, path)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if token != commit.Token {
		return &APIError{Op: "delete_file", Status: http.StatusConflict, Message: path, Err: ErrConflict}
	}

	start := time.Now()
	err = s.client.RemoveObject(ctx, bucket, path, minio.RemoveObjectOptions{})
	s.observe("delete_file", start, err)
	if err != nil {
		return s.translate("delete_file", err)
	}
	return nil
}

func (s *MinIOStore) CreateRepository(ctx context.Context, owner, name string, visibility Visibility) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	bucket := BucketName(owner, name)
	start := time.Now()
	err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region})
	s.observe("create_repository", start, err)
	if err != nil {
		return s.translate("create_repository", err)
	}
	if visibility == Public {
		if err := s.client.SetBucketPolicy(ctx, bucket, fmt.Sprintf(publicReadPolicy, bucket)); err != nil {
			return s.translate("set_bucket_policy", err)
		}
	}
	return nil
}

// ReadRaw reads through the anonymous client, so private buckets report ErrNotFound.
func (s *MinIOStore) ReadRaw(ctx context.Context, owner, repo, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	obj, err := s.anon.GetObject(ctx, BucketName(owner, repo), path, minio.GetObjectOptions{})
	if err != nil {
		s.observe("read_raw", start, err)
		return nil, s.rawError(err)
	}
	defer obj.Close()

	content, err := io.ReadAll(obj)
	s.observe("read_raw", start, err)
	if err != nil {
		return nil, s.rawError(err)
	}
	return content, nil
}

func (s *MinIOStore) rawError(err error) error {
	translated := s.translate("read_raw", err)
	if errors.Is(translated, ErrPermissionDenied) {
		return &APIError{Op: "read_raw", Status: http.StatusNotFound, Err: ErrNotFound}
	}
	return translated
}

func (s *MinIOStore) CredentialScope() string {
	return s.scope
}

func (s *MinIOStore) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = minio.ToErrorResponse(err).Code
		if status == "" {
			status = "error"
		}
	}
	metrics.ObserveRemoteRequest(op, status, time.Since(start))
}

func (s *MinIOStore) translate(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	var sentinel error
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		sentinel = ErrNotFound
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		sentinel = ErrAlreadyExists
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		sentinel = ErrPermissionDenied
	case "PreconditionFailed":
		sentinel = ErrConflict
	case "SlowDown", "RequestLimitExceeded":
		sentinel = ErrRateLimited
	default:
		if resp.StatusCode == 0 || resp.StatusCode >= 500 {
			sentinel = ErrTransient
		} else {
			sentinel = classifyStatus(resp.StatusCode, false)
		}
	}
	if !errors.Is(sentinel, ErrNotFound) {
		s.log.Warn("minio request failed", zap.String("op", op), zap.String("code", resp.Code), zap.Error(err))
	}
	return &APIError{Op: op, Status: resp.StatusCode, Message: resp.Message, Err: sentinel}
}
