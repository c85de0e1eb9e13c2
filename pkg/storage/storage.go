// Package storage defines the object store contract shared by payment proofs and
// protected course assets.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Bucket      string
	Key         string
	ContentType string
	Size        int64
}

// ObjectStore is the minimal blob surface the services rely on.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key, contentType string, body io.Reader) (ObjectInfo, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
	Ping(ctx context.Context) error
}

// CleanKey rejects keys that could escape their bucket or are empty.
func CleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", errors.New("storage: invalid key")
		}
	}
	return key, nil
}
