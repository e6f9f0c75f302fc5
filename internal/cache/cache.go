// Package cache is a content-addressed store of decoded log output.
//
// Entries are keyed by a SHA-256 hash of the raw log bytes, so a
// re-uploaded log is a guaranteed hit even under a different name, and
// any byte difference is a guaranteed miss. There is no cross-process
// lock: two concurrent misses for the same content may both decode and
// redundantly write the same entry, which is wasteful but harmless
// since identical input yields identical output.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vineyard-analyzer/backend/internal/metrics"
)

// DefaultMinOutputSize is the smallest decoded output accepted as a
// valid cache entry. A decode that produced a near-empty file is a
// failed entry, not a hit.
const DefaultMinOutputSize = 200

// DecodeFunc produces decoded text at outputPath from the raw log at
// rawLogPath.
type DecodeFunc func(rawLogPath, outputPath string) error

// ParseCache stores one decoded text file per content hash.
type ParseCache struct {
	dir           string
	minOutputSize int64
}

// New creates a ParseCache rooted at dir. A non-positive minimum size
// falls back to the default.
func New(dir string, minOutputSize int64) (*ParseCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	if minOutputSize <= 0 {
		minOutputSize = DefaultMinOutputSize
	}
	return &ParseCache{dir: dir, minOutputSize: minOutputSize}, nil
}

// HashFile computes the content hash of the raw log at path.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the content hash of raw log bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EntryPath returns the deterministic output location for a hash.
func (c *ParseCache) EntryPath(hash string) string {
	return filepath.Join(c.dir, hash+".csv")
}

// Lookup returns the cached output location for a hash, or false when
// the entry is missing or fails the minimum-size check. An undersized
// entry is removed so the next decode starts clean.
func (c *ParseCache) Lookup(hash string) (string, bool) {
	path := c.EntryPath(hash)
	info, err := os.Stat(path)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return "", false
	}
	if info.Size() < c.minOutputSize {
		metrics.CacheLookupsTotal.WithLabelValues("invalid").Inc()
		fmt.Printf("[Cache] Discarding undersized entry %s (%d bytes)\n", hash[:8], info.Size())
		os.Remove(path)
		return "", false
	}
	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return path, true
}

// LookupOrDecode returns the decoded output location for the raw log
// at rawLogPath, invoking decode only on a miss. The second return
// reports whether the entry was served from cache. The fresh output is
// validated before being returned.
func (c *ParseCache) LookupOrDecode(rawLogPath string, decode DecodeFunc) (string, bool, error) {
	hash, err := HashFile(rawLogPath)
	if err != nil {
		return "", false, fmt.Errorf("hashing raw log: %w", err)
	}

	if path, ok := c.Lookup(hash); ok {
		fmt.Printf("[Cache] Hit for %s\n", hash[:8])
		return path, true, nil
	}

	outputPath := c.EntryPath(hash)
	fmt.Printf("[Cache] Miss for %s, decoding...\n", hash[:8])
	if err := decode(rawLogPath, outputPath); err != nil {
		os.Remove(outputPath)
		return "", false, err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", false, fmt.Errorf("decoder produced no output: %w", err)
	}
	if info.Size() < c.minOutputSize {
		os.Remove(outputPath)
		return "", false, fmt.Errorf("decoder output too small (%d bytes), decode considered failed", info.Size())
	}

	return outputPath, false, nil
}
