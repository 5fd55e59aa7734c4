package hashing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestHashFileDeterministic(t *testing.T) {
	path := writeTempFile(t, []byte("the same bytes every time"))
	hasher := NewFileHasher("blake3", 0)

	first, err := hasher.HashFile(context.Background(), path)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := hasher.HashFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHashFileDiffersByContent(t *testing.T) {
	hasher := NewFileHasher("blake3", 0)

	a, err := hasher.HashFile(context.Background(), writeTempFile(t, []byte("aaa")))
	require.NoError(t, err)
	b, err := hasher.HashFile(context.Background(), writeTempFile(t, []byte("bbb")))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashFileChunkingDoesNotChangeDigest(t *testing.T) {
	// Content larger than the buffer must hash the same as with a large buffer
	content := bytes.Repeat([]byte("0123456789"), 1000)
	path := writeTempFile(t, content)

	small := NewFileHasher("sha256", 16)
	large := NewFileHasher("sha256", 1024*1024)

	smallDigest, err := small.HashFile(context.Background(), path)
	require.NoError(t, err)
	largeDigest, err := large.HashFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, smallDigest, largeDigest)
}

func TestHashFileSHA256KnownAnswer(t *testing.T) {
	content := []byte("hello world")
	path := writeTempFile(t, content)

	expected := sha256.Sum256(content)

	hasher := NewFileHasher("sha256", 0)
	digest, err := hasher.HashFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(expected[:]), digest)
}

func TestHashFileMissingFile(t *testing.T) {
	hasher := NewFileHasher("blake3", 0)

	_, err := hasher.HashFile(context.Background(), filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}

func TestHashFileCancelledContext(t *testing.T) {
	path := writeTempFile(t, bytes.Repeat([]byte("x"), 4096))
	hasher := NewFileHasher("blake3", 64)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := hasher.HashFile(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashReaderMatchesHashFile(t *testing.T) {
	content := []byte("reader and file must agree")
	path := writeTempFile(t, content)
	hasher := NewFileHasher("blake3", 0)

	fromFile, err := hasher.HashFile(context.Background(), path)
	require.NoError(t, err)
	fromReader, err := hasher.HashReader(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, fromFile, fromReader)
}

func TestHashEmptyFile(t *testing.T) {
	path := writeTempFile(t, nil)
	hasher := NewFileHasher("blake3", 0)

	digest, err := hasher.HashFile(context.Background(), path)
	require.NoError(t, err)
	assert.NotEmpty(t, digest)
}

func TestVerify(t *testing.T) {
	path := writeTempFile(t, []byte("verify me"))
	hasher := NewFileHasher("blake3", 0)

	digest, err := hasher.HashFile(context.Background(), path)
	require.NoError(t, err)

	ok, err := hasher.Verify(context.Background(), path, digest)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify(context.Background(), path, "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestThrottledHashingStillCorrect(t *testing.T) {
	content := []byte("throttled content")
	path := writeTempFile(t, content)

	plain := NewFileHasher("blake3", 0)
	throttled := NewFileHasher("blake3", 0)
	throttled.SetThrottle(100)

	want, err := plain.HashFile(context.Background(), path)
	require.NoError(t, err)
	got, err := throttled.HashFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestAlgorithm(t *testing.T) {
	assert.Equal(t, "blake3", NewFileHasher("blake3", 0).Algorithm())
	assert.Equal(t, "sha256", NewFileHasher("sha256", 0).Algorithm())
}
