// Package decoder invokes the external flight-log decoder binary.
//
// The decoder converts a proprietary binary log into the delimited
// text format consumed by the telemetry parser. It runs as a
// subprocess under an output-activity watchdog: a decode that stops
// making progress is killed rather than left to hang the pipeline.
package decoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/vineyard-analyzer/backend/internal/metrics"
)

// DefaultWatchdogWindow is how long the decoder may run without
// growing its output file before it is considered hung.
const DefaultWatchdogWindow = 30 * time.Second

// waitDrainDelay bounds how long Wait may block on the stderr pipe
// after the decoder is killed. A killed decoder can leave helper
// processes behind that still hold the pipe open; without this cap
// Wait blocks until the last of them exits.
const waitDrainDelay = 5 * time.Second

// Config holds the decoder invocation settings. The binary path and
// API key are explicit construction-time values; there is no
// process-wide default.
type Config struct {
	BinaryPath     string
	APIKey         string
	WatchdogWindow time.Duration
}

// Runner invokes the decoder binary.
type Runner struct {
	cfg Config
}

// NewRunner creates a Runner. A zero watchdog window falls back to
// the default.
func NewRunner(cfg Config) *Runner {
	if cfg.WatchdogWindow <= 0 {
		cfg.WatchdogWindow = DefaultWatchdogWindow
	}
	return &Runner{cfg: cfg}
}

// Result is the structured outcome of one decode attempt.
type Result struct {
	OutputPath string
	TimedOut   bool
	ExitCode   int
	Stderr     string
}

// ErrTimeout marks a decode killed by the watchdog.
type ErrTimeout struct {
	Window time.Duration
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("decoder produced no output for %s and was terminated", e.Window)
}

// ErrFailed marks a decoder run that exited non-zero.
type ErrFailed struct {
	ExitCode int
	Stderr   string
}

func (e *ErrFailed) Error() string {
	return fmt.Sprintf("decoder exited with code %d: %s", e.ExitCode, e.Stderr)
}

// Decode runs the decoder against rawLogPath, writing delimited text
// to outputPath. Success requires exit code 0 and a live watchdog.
func (r *Runner) Decode(ctx context.Context, rawLogPath, outputPath string) (*Result, error) {
	start := time.Now()

	result, err := r.run(ctx, rawLogPath, outputPath)
	metrics.DecodeDurationSeconds.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.DecodesTotal.WithLabelValues("ok").Inc()
	case result != nil && result.TimedOut:
		metrics.DecodesTotal.WithLabelValues("timeout").Inc()
	default:
		metrics.DecodesTotal.WithLabelValues("failed").Inc()
	}
	return result, err
}

func (r *Runner) run(ctx context.Context, rawLogPath, outputPath string) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.BinaryPath, rawLogPath, "--csv", outputPath, "--api-key", r.cfg.APIKey)
	cmd.WaitDelay = waitDrainDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &Result{ExitCode: -1}, fmt.Errorf("starting decoder %s: %w", r.cfg.BinaryPath, err)
	}

	// Watchdog: kill the decoder when the output file stops growing
	// for a full window.
	timedOut := make(chan struct{})
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		lastSize := int64(-1)
		lastActivity := time.Now()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if info, err := os.Stat(outputPath); err == nil && info.Size() != lastSize {
					lastSize = info.Size()
					lastActivity = time.Now()
				}
				if time.Since(lastActivity) > r.cfg.WatchdogWindow {
					close(timedOut)
					cancel()
					return
				}
			}
		}
	}()

	waitErr := cmd.Wait()
	cancel()
	<-watchdogDone

	select {
	case <-timedOut:
		fmt.Printf("[Decoder] Watchdog killed hung decode of %s\n", rawLogPath)
		return &Result{TimedOut: true, ExitCode: -1, Stderr: stderr.String()},
			&ErrTimeout{Window: r.cfg.WatchdogWindow}
	default:
	}

	if waitErr != nil {
		exitCode := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return &Result{ExitCode: exitCode, Stderr: stderr.String()},
			&ErrFailed{ExitCode: exitCode, Stderr: stderr.String()}
	}

	return &Result{OutputPath: outputPath, ExitCode: 0, Stderr: stderr.String()}, nil
}
