package local

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastionhq/bastion-audit/internal/config"
)

func newTestArchiver(t *testing.T) *LocalArchiver {
	t.Helper()
	archiver, err := New(&config.LocalArchiveConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return archiver
}

func TestUploadAndDownload(t *testing.T) {
	archiver := newTestArchiver(t)
	ctx := context.Background()

	content := `{"id":"a"}` + "\n" + `{"id":"b"}` + "\n"
	result, err := archiver.Upload(ctx, "2025/03/01/operate_logs.ndjson", strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), result.Size)
	assert.Len(t, result.Checksum, 64)

	reader, err := archiver.Download(ctx, "2025/03/01/operate_logs.ndjson")
	require.NoError(t, err)
	defer reader.Close()

	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestDownloadMissingArchive(t *testing.T) {
	archiver := newTestArchiver(t)

	_, err := archiver.Download(context.Background(), "2025/03/01/missing.ndjson")
	assert.ErrorContains(t, err, "archive not found")
}

func TestExists(t *testing.T) {
	archiver := newTestArchiver(t)
	ctx := context.Background()

	exists, err := archiver.Exists(ctx, "x.ndjson")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = archiver.Upload(ctx, "x.ndjson", strings.NewReader("{}\n"))
	require.NoError(t, err)

	exists, err = archiver.Exists(ctx, "x.ndjson")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGetMetadataMatchesUpload(t *testing.T) {
	archiver := newTestArchiver(t)
	ctx := context.Background()

	result, err := archiver.Upload(ctx, "2025/03/01/login_logs.ndjson", strings.NewReader("{}\n"))
	require.NoError(t, err)

	meta, err := archiver.GetMetadata(ctx, "2025/03/01/login_logs.ndjson")
	require.NoError(t, err)
	assert.Equal(t, result.Checksum, meta.Checksum)
	assert.Equal(t, result.Size, meta.Size)
}

func TestNewCreatesBasePath(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "archives")
	_, err := New(&config.LocalArchiveConfig{BasePath: base})
	require.NoError(t, err)
}
