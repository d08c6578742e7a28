// Package gcs stores crawled pages in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

const contentType = "text/html; charset=utf-8"

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name. Optional.
	Prefix string
}

// Store writes page bodies to a bucket using the sharded relative path as the
// object name.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// New creates a GCS-backed store.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// CheckBucket verifies that the bucket exists and is reachable so that a bad
// configuration fails at startup.
func (s *Store) CheckBucket(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("failed to get GCS bucket '%s' attributes: %w", s.bucket, err)
	}
	return nil
}

// ObjectName maps a relative page path to its object name.
func (s *Store) ObjectName(relPath string) string {
	if s.prefix == "" {
		return relPath
	}
	return path.Join(s.prefix, relPath)
}

// Store uploads data, replacing any existing object of the same name.
func (s *Store) Store(ctx context.Context, relPath string, data []byte) error {
	if strings.TrimSpace(relPath) == "" {
		return errors.New("path is required")
	}
	name := s.ObjectName(relPath)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			s.logger.Warn("failed to close GCS writer after write failure",
				zap.String("object", name),
				zap.Error(closeErr),
			)
		}
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer for object %s: %w", name, err)
	}
	return nil
}
