// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3StoreConfig configures an S3/MinIO-backed Store.
type S3StoreConfig struct {
	// Endpoint is the S3 host:port. Required.
	Endpoint string

	// AccessKey and SecretKey are the static credentials.
	AccessKey string
	SecretKey string

	// UseTLS enables https transport.
	UseTLS bool

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// S3Store stores blobs as S3 objects, one object per locator. The
// blob bytes go to the bucket verbatim; S3 deployments usually want
// server-side encryption and their own storage tiering, so the fs
// store's framing is not applied here.
type S3Store struct {
	client *minio.Client
	logger *slog.Logger
}

// NewS3Store connects to the S3 endpoint.
func NewS3Store(cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("artifact: S3Store Endpoint is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("artifact: S3Store Logger is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: connecting to %s: %w", cfg.Endpoint, err)
	}
	return &S3Store{client: client, logger: cfg.Logger}, nil
}

// EnsureContainer creates the bucket if it does not exist. Services
// call this once at startup for their configured container.
func (s *S3Store) EnsureContainer(ctx context.Context, container string) error {
	exists, err := s.client.BucketExists(ctx, container)
	if err != nil {
		return fmt.Errorf("artifact: checking bucket %s: %w", container, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, container, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("artifact: creating bucket %s: %w", container, err)
	}
	s.logger.Info("bucket created", "container", container)
	return nil
}

// Put writes data under loc. Locators are write-once.
func (s *S3Store) Put(ctx context.Context, loc Locator, data []byte, contentType string) error {
	if err := loc.Validate(); err != nil {
		return err
	}

	if _, err := s.client.StatObject(ctx, loc.Container, loc.ObjectPath, minio.StatObjectOptions{}); err == nil {
		return fmt.Errorf("artifact: %s already exists (artifacts are immutable)", loc)
	}

	_, err := s.client.PutObject(ctx, loc.Container, loc.ObjectPath,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("artifact: putting %s: %w", loc, err)
	}

	s.logger.Info("artifact stored",
		"locator", loc.String(),
		"size", len(data),
	)
	return nil
}

// Get returns the object content at loc, or ErrNotFound.
func (s *S3Store) Get(ctx context.Context, loc Locator) ([]byte, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	object, err := s.client.GetObject(ctx, loc.Container, loc.ObjectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("artifact: getting %s: %w", loc, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("artifact: reading %s: %w", loc, err)
	}
	return data, nil
}

// Stat reports on the object at loc, or ErrNotFound.
func (s *S3Store) Stat(ctx context.Context, loc Locator) (BlobInfo, error) {
	if err := loc.Validate(); err != nil {
		return BlobInfo{}, err
	}

	info, err := s.client.StatObject(ctx, loc.Container, loc.ObjectPath, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return BlobInfo{}, ErrNotFound
		}
		return BlobInfo{}, fmt.Errorf("artifact: statting %s: %w", loc, err)
	}
	return BlobInfo{Size: info.Size, ContentType: info.ContentType}, nil
}

// isNoSuchKey reports whether err is the S3 "no such key" (or "no
// such bucket") condition.
func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}
