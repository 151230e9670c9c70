// Package storage defines the Archiver interface and common types for the
// audit archive backends.
//
// New backends are added by implementing the Archiver interface and
// registering with the factory via an init() function in the backend's own
// package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (Archiver, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger
// init(), so adding a backend requires no changes to the factory or the main
// package.
package storage

import (
	"context"
	"io"
	"time"
)

// Archiver stores exported audit batches. Archives are write-once: the export
// job uploads each day's batch exactly once and never rewrites it.
type Archiver interface {
	// Upload stores an archive file and returns the storage result with
	// path and checksum.
	Upload(ctx context.Context, path string, reader io.Reader) (*UploadResult, error)

	// Download retrieves an archive file and returns a reader.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks if an archive exists at the specified path.
	Exists(ctx context.Context, path string) (bool, error)

	// GetMetadata retrieves archive metadata without downloading the file.
	GetMetadata(ctx context.Context, path string) (*FileMetadata, error)
}

// UploadResult contains information about an uploaded archive
type UploadResult struct {
	// Path is the storage path where the archive was stored
	Path string

	// Size is the archive size in bytes
	Size int64

	// Checksum is the SHA256 hash of the archive contents
	Checksum string
}

// FileMetadata contains metadata about a stored archive
type FileMetadata struct {
	// Path is the storage path of the archive
	Path string

	// Size is the archive size in bytes
	Size int64

	// Checksum is the SHA256 hash of the archive contents
	Checksum string

	// LastModified is the timestamp when the archive was last modified
	LastModified time.Time
}
