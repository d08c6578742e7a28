// Package local implements page storage on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// RootDir is the directory the sharded page layout is written under.
	RootDir string `mapstructure:"root_dir" yaml:"root_dir"`
}

// Store writes page bodies beneath a root directory.
type Store struct {
	rootDir string
}

// New creates a filesystem-backed store. The root must already exist and be
// writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.RootDir) == "" {
		return nil, errors.New("root directory is required")
	}

	info, err := os.Stat(cfg.RootDir)
	switch {
	case os.IsNotExist(err):
		return nil, fmt.Errorf("root directory %s does not exist", cfg.RootDir)
	case err != nil:
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	case !info.IsDir():
		return nil, errors.New("root directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.RootDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("root directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{rootDir: filepath.Clean(cfg.RootDir)}, nil
}

// Root returns the cleaned root directory.
func (s *Store) Root() string {
	return s.rootDir
}

// Store writes data at relPath under the root, creating parent directories
// and replacing any previous content.
func (s *Store) Store(ctx context.Context, relPath string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("store canceled: %w", err)
	}
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *Store) resolve(relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", errors.New("path is required")
	}
	fullPath := filepath.Join(s.rootDir, filepath.FromSlash(relPath))
	// Verify the path stays within the root to prevent traversal.
	if !strings.HasPrefix(fullPath, s.rootDir+string(filepath.Separator)) {
		return "", errors.New("path traversal detected")
	}
	return fullPath, nil
}
