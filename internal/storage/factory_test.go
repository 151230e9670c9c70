package storage

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastionhq/bastion-audit/internal/config"
)

type fakeArchiver struct{}

func (fakeArchiver) Upload(context.Context, string, io.Reader) (*UploadResult, error) {
	return &UploadResult{}, nil
}
func (fakeArchiver) Download(context.Context, string) (io.ReadCloser, error) { return nil, nil }
func (fakeArchiver) Exists(context.Context, string) (bool, error)            { return false, nil }
func (fakeArchiver) GetMetadata(context.Context, string) (*FileMetadata, error) {
	return &FileMetadata{}, nil
}

func TestNewArchiverDispatchesToRegisteredFactory(t *testing.T) {
	Register("fake", func(*config.Config) (Archiver, error) {
		return fakeArchiver{}, nil
	})

	cfg := &config.Config{}
	cfg.Archive.Backend = "fake"

	archiver, err := NewArchiver(cfg)
	require.NoError(t, err)
	assert.NotNil(t, archiver)
}

func TestNewArchiverUnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Archive.Backend = "tape"

	_, err := NewArchiver(cfg)
	assert.ErrorContains(t, err, "unsupported archive backend")
}
