package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
	"golang.org/x/time/rate"
)

// FileHasher computes content fingerprints for catalog entries. The
// fingerprint is the dedup identity of a file's bytes; it must be
// deterministic and is always computed over the full content in
// bounded-size chunks.
type FileHasher struct {
	algorithm  string // "blake3" or "sha256"
	bufferSize int
	limiter    *rate.Limiter // optional read throttle, nil when disabled
}

// NewFileHasher creates a new FileHasher with the specified algorithm and buffer size
func NewFileHasher(algorithm string, bufferSize int) *FileHasher {
	// Default to 4MB if buffer size not specified or invalid
	if bufferSize <= 0 {
		bufferSize = 4 * 1024 * 1024
	}
	return &FileHasher{
		algorithm:  algorithm,
		bufferSize: bufferSize,
	}
}

// SetThrottle limits hashing reads to the given rate in MB/s. A value of 0
// disables throttling. Bounding read throughput keeps bulk imports from
// starving concurrent readers of the shared volume.
func (h *FileHasher) SetThrottle(mbps int) {
	if mbps <= 0 {
		h.limiter = nil
		return
	}
	bytesPerSecond := rate.Limit(mbps * 1024 * 1024)
	// Burst must cover one full read buffer or WaitN can never succeed
	burst := h.bufferSize
	if perSecond := mbps * 1024 * 1024; perSecond > burst {
		burst = perSecond
	}
	h.limiter = rate.NewLimiter(bytesPerSecond, burst)
}

// Algorithm returns the configured hash algorithm
func (h *FileHasher) Algorithm() string {
	return h.algorithm
}

// HashFile calculates the fingerprint of the entire file at path
func (h *FileHasher) HashFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	// Hint to kernel that we'll read sequentially (doubles read-ahead)
	// Gracefully degrades on non-Linux systems
	applySequentialHint(f)

	digest, read, err := h.hashReader(ctx, f)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	// Free page cache for large files to prevent cache pollution
	releaseCacheForLargeFile(f, read)

	return digest, nil
}

// HashReader calculates the fingerprint of everything readable from r
func (h *FileHasher) HashReader(ctx context.Context, r io.Reader) (string, error) {
	digest, _, err := h.hashReader(ctx, r)
	return digest, err
}

// hashReader reads r to EOF in bufferSize chunks, honoring the context and
// the optional throttle, and returns the hex digest and bytes read
func (h *FileHasher) hashReader(ctx context.Context, r io.Reader) (string, int64, error) {
	hasher := h.createHasher()
	buf := make([]byte, h.bufferSize)
	var totalRead int64

	for {
		select {
		case <-ctx.Done():
			return "", totalRead, ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			if h.limiter != nil {
				if waitErr := h.limiter.WaitN(ctx, n); waitErr != nil {
					return "", totalRead, waitErr
				}
			}
			totalRead += int64(n)
			if _, writeErr := hasher.Write(buf[:n]); writeErr != nil {
				return "", totalRead, fmt.Errorf("failed to write to hasher: %w", writeErr)
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return "", totalRead, err
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), totalRead, nil
}

// Verify re-calculates the fingerprint of path and compares with expected
func (h *FileHasher) Verify(ctx context.Context, path, expectedHash string) (bool, error) {
	actualHash, err := h.HashFile(ctx, path)
	if err != nil {
		return false, err
	}
	return actualHash == expectedHash, nil
}

// createHasher creates a hash.Hash instance based on the configured algorithm
func (h *FileHasher) createHasher() hash.Hash {
	switch h.algorithm {
	case "sha256":
		return sha256.New()
	case "blake3":
		fallthrough
	default:
		return blake3.New()
	}
}
