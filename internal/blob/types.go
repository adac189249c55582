// Package blob is where the service keeps raw sensor exports. Callers import
// this package only; the drivers live under internal/infra/blob.
package blob

import "neosweat/internal/blob/core"

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory

	ContentTypeCSV = core.ContentTypeCSV
)

var (
	ErrNotFound = core.ErrNotFound
	ErrExists   = core.ErrExists
)
