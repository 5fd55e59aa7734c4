package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(rel), 0644))
}

func TestScanFindsMediaFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "2024/IMG_0412.CR2")
	writeFile(t, root, "2024/IMG_0412.jpg")
	writeFile(t, root, "top.png")
	writeFile(t, root, "notes.txt") // not a media format

	result, err := Scan(context.Background(), root, "/volume1/photos", nil)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)
	assert.Empty(t, result.Skipped)

	// Candidates are ordered by path
	first := result.Candidates[0]
	assert.Equal(t, "2024", first.Directory)
	assert.Equal(t, "IMG_0412.CR2", first.Filename)
	assert.Equal(t, ".CR2", first.Extension)
	assert.Equal(t, "raw_image", first.MediaType)
	assert.Equal(t, "/volume1/photos", first.StorageRoot)
	assert.Equal(t, int64(len("2024/IMG_0412.CR2")), first.Size)

	top := result.Candidates[2]
	assert.Equal(t, "", top.Directory)
	assert.Equal(t, "top.png", top.Filename)
	assert.Equal(t, "png", top.MediaType)
}

func TestScanSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.jpg")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.jpg"), filepath.Join(root, "link.jpg")))

	result, err := Scan(context.Background(), root, "/volume1/photos", nil)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "real.jpg", result.Candidates[0].Filename)
}

func TestScanEmptyDirectory(t *testing.T) {
	result, err := Scan(context.Background(), t.TempDir(), "/volume1/photos", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.Empty(t, result.Skipped)
}

func TestScanMissingRoot(t *testing.T) {
	result, err := Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), "/volume1/photos", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)

	// The unreadable root is reported, not fatal
	assert.Len(t, result.Skipped, 1)
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Scan(ctx, root, "/volume1/photos", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingExtractor struct{}

func (failingExtractor) Extract(string) (map[string]string, error) {
	return nil, errors.New("no exif support")
}

func TestScanMetadataFailureIsBestEffort(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.jpg")

	result, err := Scan(context.Background(), root, "/volume1/photos", failingExtractor{})
	require.NoError(t, err)

	// The file is still a candidate; the failure is reported
	require.Len(t, result.Candidates, 1)
	assert.Len(t, result.Skipped, 1)
}

type staticExtractor struct{}

func (staticExtractor) Extract(string) (map[string]string, error) {
	return map[string]string{"camera": "test"}, nil
}

func TestScanAttachesMetadata(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.jpg")

	result, err := Scan(context.Background(), root, "/volume1/photos", staticExtractor{})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, map[string]string{"camera": "test"}, result.Candidates[0].Metadata)
}

func TestMediaTypeForExtension(t *testing.T) {
	assert.Equal(t, "raw_image", MediaTypeForExtension(".CR2"))
	assert.Equal(t, "jpeg", MediaTypeForExtension(".jpeg"))
	assert.Equal(t, "video", MediaTypeForExtension(".mov"))
	assert.Equal(t, "heic", MediaTypeForExtension(".HEIC"))
	assert.Equal(t, "", MediaTypeForExtension(".txt"))
	assert.Equal(t, "", MediaTypeForExtension(""))
}

func TestSupportedExtensions(t *testing.T) {
	exts := SupportedExtensions()
	assert.Contains(t, exts, ".dng")
	assert.Contains(t, exts, ".jpg")
	assert.Contains(t, exts, ".mp4")
	assert.NotContains(t, exts, ".txt")
}
