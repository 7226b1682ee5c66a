package minio

import (
	"context"
	"fmt"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Storage struct {
	client *miniogo.Client
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	// UseIAM picks up credentials from the instance role instead of the
	// static key pair.
	UseIAM bool
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	creds := credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	if cfg.UseIAM {
		creds = credentials.NewIAM("")
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{client: client}, nil
}

// Download fetches bucket/object into destPath, replacing any previous file.
func (s *Storage) Download(ctx context.Context, bucket, object, destPath string) error {
	if err := s.client.FGetObject(ctx, bucket, object, destPath, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("%w: get %s/%s: %w", entity.ErrDownload, bucket, object, err)
	}
	return nil
}
