// Package local stores objects on the filesystem for development and tests.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sacrednumerology/sacred-backend/pkg/storage"
)

// Store keeps each bucket as a directory under root.
type Store struct {
	root string
}

// New creates the root directory when missing.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) path(bucket, key string) (string, string, error) {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	if bucket == "" {
		return "", "", errors.New("bucket is required")
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(clean)), clean, nil
}

func (s *Store) Put(ctx context.Context, bucket, key, contentType string, body io.Reader) (storage.ObjectInfo, error) {
	full, clean, err := s.path(bucket, key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create temp object: %w", err)
	}
	n, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		return storage.ObjectInfo{}, fmt.Errorf("write object: %w", errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return storage.ObjectInfo{}, fmt.Errorf("commit object: %w", err)
	}
	return storage.ObjectInfo{Bucket: bucket, Key: clean, ContentType: contentType, Size: n}, nil
}

func (s *Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	info, err := s.Stat(ctx, bucket, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	full, _, _ := s.path(bucket, key)
	f, err := os.Open(full)
	if err != nil {
		return nil, storage.ObjectInfo{}, mapErr(err)
	}
	return f, info, nil
}

func (s *Store) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	full, clean, err := s.path(bucket, key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	st, err := os.Stat(full)
	if err != nil {
		return storage.ObjectInfo{}, mapErr(err)
	}
	if st.IsDir() {
		return storage.ObjectInfo{}, storage.ErrNotFound
	}
	ct := "application/octet-stream"
	if mt, err := mimetype.DetectFile(full); err == nil {
		ct = mt.String()
	}
	return storage.ObjectInfo{Bucket: bucket, Key: clean, ContentType: ct, Size: st.Size()}, nil
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	full, _, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return mapErr(err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := os.Stat(s.root)
	return err
}

func mapErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrNotFound
	}
	return err
}
