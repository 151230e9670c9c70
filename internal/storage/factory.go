// factory.go implements the archive backend registry and factory, mapping
// backend type strings (local, s3) to constructor functions.
package storage

import (
	"fmt"

	"github.com/bastionhq/bastion-audit/internal/config"
)

// FactoryFunc is the constructor signature for archive backends
type FactoryFunc func(*config.Config) (Archiver, error)

var factories = make(map[string]FactoryFunc)

// Register registers an archive backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewArchiver creates an archive backend based on configuration
func NewArchiver(cfg *config.Config) (Archiver, error) {
	factory, ok := factories[cfg.Archive.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported archive backend: %s (must be 'local' or 's3')", cfg.Archive.Backend)
	}
	return factory(cfg)
}
