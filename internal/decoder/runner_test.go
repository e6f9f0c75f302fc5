package decoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeDecoder writes a shell script that stands in for the real
// decoder binary.
func fakeDecoder(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decoder.sh")
	content := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDecodeSuccess(t *testing.T) {
	// Arg layout: <raw> --csv <out> --api-key <key>
	bin := fakeDecoder(t, `echo "lat,lon" > "$3"`)
	out := filepath.Join(t.TempDir(), "out.csv")

	r := NewRunner(Config{BinaryPath: bin, APIKey: "test-key"})
	res, err := r.Decode(context.Background(), "raw.txt", out)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("Expected exit 0, got %d", res.ExitCode)
	}
	if res.OutputPath != out {
		t.Errorf("Expected output path %s, got %s", out, res.OutputPath)
	}
	if _, statErr := os.Stat(out); statErr != nil {
		t.Errorf("Expected output file to exist: %v", statErr)
	}
}

func TestDecodeNonZeroExit(t *testing.T) {
	bin := fakeDecoder(t, `echo "boom" >&2; exit 3`)
	out := filepath.Join(t.TempDir(), "out.csv")

	r := NewRunner(Config{BinaryPath: bin, APIKey: "k"})
	res, err := r.Decode(context.Background(), "raw.txt", out)
	if err == nil {
		t.Fatal("Expected an error")
	}

	var failed *ErrFailed
	if !errors.As(err, &failed) {
		t.Fatalf("Expected ErrFailed, got %T: %v", err, err)
	}
	if failed.ExitCode != 3 || res.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d / %d", failed.ExitCode, res.ExitCode)
	}
	if failed.Stderr == "" {
		t.Error("Expected captured stderr")
	}
}

func TestDecodeMissingBinary(t *testing.T) {
	r := NewRunner(Config{BinaryPath: "/nonexistent/decoder", APIKey: "k"})
	_, err := r.Decode(context.Background(), "raw.txt", filepath.Join(t.TempDir(), "out.csv"))
	if err == nil {
		t.Fatal("Expected an error for missing binary")
	}
}

func TestDecodeWatchdogKillsHungProcess(t *testing.T) {
	// Sleeps far longer than the watchdog window without producing
	// output. The shell's sleep child survives the kill and keeps the
	// stderr pipe open, so Decode must not wait for it to exit.
	bin := fakeDecoder(t, `sleep 60`)
	out := filepath.Join(t.TempDir(), "out.csv")

	r := NewRunner(Config{BinaryPath: bin, APIKey: "k", WatchdogWindow: 2 * time.Second})

	start := time.Now()
	res, err := r.Decode(context.Background(), "raw.txt", out)
	elapsed := time.Since(start)

	var timeout *ErrTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("Expected ErrTimeout, got %T: %v", err, err)
	}
	if !res.TimedOut {
		t.Error("Expected result marked as timed out")
	}
	if elapsed > 15*time.Second {
		t.Errorf("Decode blocked past the watchdog: %v", elapsed)
	}
}

func TestDecodeWatchdogUnblocksWithOrphanedHelper(t *testing.T) {
	// A hung decoder that spawned a background helper: killing the
	// decoder leaves the helper holding stderr, and Decode must still
	// return once the wait drain cap expires.
	bin := fakeDecoder(t, "sleep 60 &\nsleep 60")
	out := filepath.Join(t.TempDir(), "out.csv")

	r := NewRunner(Config{BinaryPath: bin, APIKey: "k", WatchdogWindow: 2 * time.Second})

	start := time.Now()
	_, err := r.Decode(context.Background(), "raw.txt", out)
	elapsed := time.Since(start)

	var timeout *ErrTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("Expected ErrTimeout, got %T: %v", err, err)
	}
	if elapsed > 15*time.Second {
		t.Errorf("Decode blocked on orphaned helper: %v", elapsed)
	}
}
