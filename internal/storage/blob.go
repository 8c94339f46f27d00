// Package storage keeps uploaded exam scans outside the database.
package storage

import (
	"errors"
	"io"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get and Delete for unknown keys.
var ErrNotFound = errors.New("storage: blob not found")

// ErrInvalidKey is returned for empty keys or keys escaping the store root.
var ErrInvalidKey = errors.New("storage: invalid key")

// BlobStore stores opaque binary objects under slash-separated keys.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error
}

// NewExamKey returns a fresh key for an uploaded exam PDF.
func NewExamKey() string {
	return "exams/" + uuid.NewString() + ".pdf"
}
