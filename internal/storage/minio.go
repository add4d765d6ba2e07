package storage

import (
	"fmt"
	"strings"

	"github.com/abduss/picvault/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewMinIOClient establishes an authenticated MinIO client.
func NewMinIOClient(cfg config.MinIOConfig) (*minio.Client, error) {
	return newMinIOClient(cfg, credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
}

// NewAnonymousMinIOClient returns a client without credentials, used to read
// objects the way an anonymous viewer would.
func NewAnonymousMinIOClient(cfg config.MinIOConfig) (*minio.Client, error) {
	return newMinIOClient(cfg, credentials.NewStaticV4("", "", ""))
}

func newMinIOClient(cfg config.MinIOConfig, creds *credentials.Credentials) (*minio.Client, error) {
	endpoint := cfg.Endpoint
	if !strings.Contains(endpoint, ":") {
		// default to MinIO API port when not supplied explicitly
		endpoint = fmt.Sprintf("%s:9000", endpoint)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}
