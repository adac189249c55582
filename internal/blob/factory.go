package blob

import (
	"context"
	"fmt"

	"neosweat/internal/infra/blob/fs"
	memorystore "neosweat/internal/infra/blob/memory"
	s3store "neosweat/internal/infra/blob/s3"
)

// S3Config is the bucket configuration for the s3 driver.
type S3Config = s3store.Config

// Config picks the export backend. An empty Driver means fs.
type Config struct {
	Driver Driver
	// FSRoot defaults to ./blobdata.
	FSRoot string
	S3     S3Config
}

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
}

// NewFilesystem keeps exports as plain files under root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMemory keeps exports in process memory.
func NewMemory() Store { return memorystore.New() }

// NewS3 keeps exports in an S3 or MinIO bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return s3store.New(ctx, cfg) }

// NewMockS3ForTests returns the s3 driver wired to an in-process fake bucket.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }
