package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vineyard-analyzer/backend/internal/metrics"
)

func writeRawLog(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flight.txt")
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func decodedPayload() []byte {
	// Comfortably above the minimum-size check.
	return bytes.Repeat([]byte("lat,lon\n45.1,-122.5\n"), 30)
}

func TestLookupOrDecodeIdempotent(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	raw := writeRawLog(t, []byte("binary log content"))

	calls := 0
	decode := func(rawPath, outPath string) error {
		calls++
		return os.WriteFile(outPath, decodedPayload(), 0644)
	}

	first, hit, err := c.LookupOrDecode(raw, decode)
	require.NoError(t, err)
	assert.False(t, hit)
	second, hit, err := c.LookupOrDecode(raw, decode)
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "decoder must be invoked at most once for identical bytes")
}

func TestLookupOrDecodeRenameStillHits(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	content := []byte("identical bytes")
	rawA := writeRawLog(t, content)
	rawB := writeRawLog(t, content)

	calls := 0
	decode := func(rawPath, outPath string) error {
		calls++
		return os.WriteFile(outPath, decodedPayload(), 0644)
	}

	_, hit, err := c.LookupOrDecode(rawA, decode)
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, err = c.LookupOrDecode(rawB, decode)
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, 1, calls, "byte-identical logs share one entry regardless of name")
}

func TestLookupOrDecodeContentSensitive(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	calls := 0
	decode := func(rawPath, outPath string) error {
		calls++
		return os.WriteFile(outPath, decodedPayload(), 0644)
	}

	_, hit, err := c.LookupOrDecode(writeRawLog(t, []byte("log one")), decode)
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, err = c.LookupOrDecode(writeRawLog(t, []byte("log two")), decode)
	require.NoError(t, err)
	assert.False(t, hit)

	assert.Equal(t, 2, calls, "any byte difference is a guaranteed miss")
}

func TestUndersizedEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 100)
	require.NoError(t, err)

	raw := writeRawLog(t, []byte("content"))
	hash, err := HashFile(raw)
	require.NoError(t, err)

	// Plant a corrupt (near-empty) entry.
	require.NoError(t, os.WriteFile(c.EntryPath(hash), []byte("x"), 0644))

	calls := 0
	decode := func(rawPath, outPath string) error {
		calls++
		return os.WriteFile(outPath, decodedPayload(), 0644)
	}

	_, hit, err := c.LookupOrDecode(raw, decode)
	require.NoError(t, err)
	assert.False(t, hit, "undersized entry must not count as a hit")
	assert.Equal(t, 1, calls, "undersized entry must trigger re-decode")
}

func TestUndersizedDecodeOutputFails(t *testing.T) {
	c, err := New(t.TempDir(), 100)
	require.NoError(t, err)

	raw := writeRawLog(t, []byte("content"))
	decode := func(rawPath, outPath string) error {
		return os.WriteFile(outPath, []byte("tiny"), 0644)
	}

	_, _, err = c.LookupOrDecode(raw, decode)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too small")

	// The bad output must not have been left behind as a future hit.
	hash, _ := HashFile(raw)
	_, ok := c.Lookup(hash)
	assert.False(t, ok)
}

func TestLookupOrDecodeCountsHitOnce(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	raw := writeRawLog(t, []byte("counted once"))
	decode := func(rawPath, outPath string) error {
		return os.WriteFile(outPath, decodedPayload(), 0644)
	}

	_, _, err = c.LookupOrDecode(raw, decode)
	require.NoError(t, err)

	hits := metrics.CacheLookupsTotal.WithLabelValues("hit")
	before := testutil.ToFloat64(hits)
	_, hit, err := c.LookupOrDecode(raw, decode)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, before+1, testutil.ToFloat64(hits), "a cached lookup must count exactly one hit")
}

func TestHashBytesStable(t *testing.T) {
	a := HashBytes([]byte("payload"))
	b := HashBytes([]byte("payload"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, HashBytes([]byte("payload2")))
	assert.False(t, strings.ContainsAny(a, "/\\"))
}
