// Package core holds the object-store contract every export backend satisfies.
// Sensor exports are written once per upload and read on every refresh, so the
// contract is deliberately small: create, read, remove and prefix listing.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"
)

// Driver names an export backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// ContentTypeCSV is recorded for sensor exports uploaded through the service.
const ContentTypeCSV = "text/csv"

// PutOptions carries the optional attributes stored next to an object.
type PutOptions struct {
	ContentType string
	// Metadata is flat and small; drivers copy it on write and on read.
	Metadata map[string]string
}

// Info is what a backend knows about a stored export without reading it.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is implemented by the memory, fs and s3 drivers.
//
// Put is create-only and fails with ErrExists when the key is taken.
// Get wraps ErrNotFound for absent keys. Delete reports whether anything
// was removed. List is ordered by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	// ErrNotFound means no export is stored under the key.
	ErrNotFound = errors.New("blob: not found")
	// ErrExists means a create-only Put hit an occupied key.
	ErrExists = errors.New("blob: already exists")
)

// NotFound wraps ErrNotFound with the key.
func NotFound(key string) error { return fmt.Errorf("%s: %w", key, ErrNotFound) }

// Exists wraps ErrExists with the key.
func Exists(key string) error { return fmt.Errorf("%s: %w", key, ErrExists) }

// CloneMetadata copies md so callers never share a map with a driver.
func CloneMetadata(md map[string]string) map[string]string {
	if md == nil {
		return nil
	}
	return maps.Clone(md)
}
