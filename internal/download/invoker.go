package download

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mediadl/media-dl/internal/log"
	"github.com/mediadl/media-dl/internal/procgroup"
)

var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediadl",
		Name:      "downloads_total",
		Help:      "Download invocations by service and outcome",
	}, []string{"service", "outcome"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mediadl",
		Name:      "download_duration_seconds",
		Help:      "Wall-clock duration of external tool invocations",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

// outputTemplate bounds the title component to 120 characters, followed by a
// stable unique id and the original extension. Combined with
// --restrict-filenames this keeps generated names flat and shell-safe.
const outputTemplate = "%(title).120s-%(id)s.%(ext)s"

// killGrace is how long a timed-out process group gets between SIGTERM and
// SIGKILL.
const killGrace = 3 * time.Second

// Invoker executes the external fetch tool with a bounded wall-clock timeout
// and validates the file it claims to have produced.
type Invoker struct {
	tool       string
	storageDir string
	timeout    time.Duration

	// lookPath is a seam for tests; defaults to exec.LookPath.
	lookPath func(file string) (string, error)
}

// NewInvoker returns an invoker writing under storageDir. tool is the
// executable name or path of the external fetcher.
func NewInvoker(tool, storageDir string, timeout time.Duration) *Invoker {
	return &Invoker{
		tool:       tool,
		storageDir: storageDir,
		timeout:    timeout,
		lookPath:   exec.LookPath,
	}
}

// command resolves the invocation prefix for the external tool: the binary
// itself if resolvable, otherwise the tool as a library module through the
// Python interpreter.
func (inv *Invoker) command() ([]string, error) {
	if bin, err := inv.lookPath(inv.tool); err == nil {
		return []string{bin}, nil
	}
	if py, err := inv.lookPath("python3"); err == nil {
		module := strings.ReplaceAll(filepath.Base(inv.tool), "-", "_")
		return []string{py, "-m", module}, nil
	}
	return nil, fmt.Errorf("%s not found on PATH and no python3 fallback available", inv.tool)
}

// Invoke runs the tool for url and returns the produced filename. On failure
// it returns an *Error whose Detail is safe for an untrusted caller.
// A timeout kills the whole process group; no orphaned subprocess survives.
func (inv *Invoker) Invoke(ctx context.Context, url, serviceName string) (Result, error) {
	logger := log.WithComponentFromContext(ctx, "invoker")

	prefix, err := inv.command()
	if err != nil {
		logger.Error().Err(err).Msg("external tool unavailable")
		downloadsTotal.WithLabelValues(serviceName, "unavailable").Inc()
		return Result{}, &Error{
			Kind:   KindUnavailable,
			Detail: "Download tool is not installed on this server.",
		}
	}

	args := append(prefix[1:],
		"--no-playlist",
		"--restrict-filenames",
		"--print", "after_move:filepath",
		"-o", filepath.Join(inv.storageDir, outputTemplate),
		url,
	)

	// #nosec G204 -- prefix is resolved via LookPath, url is a validated HTTP(S) URL
	cmd := exec.Command(prefix[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	procgroup.Set(cmd)

	logger.Info().
		Str(log.FieldEvent, "download.start").
		Str(log.FieldService, serviceName).
		Str(log.FieldURL, url).
		Msg("starting download")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		logger.Error().Err(err).Msg("failed to launch external tool")
		downloadsTotal.WithLabelValues(serviceName, "unavailable").Inc()
		return Result{}, &Error{
			Kind:   KindUnavailable,
			Detail: "Download tool could not be started.",
		}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(inv.timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		logger.Warn().
			Str(log.FieldEvent, "download.timeout").
			Str(log.FieldURL, url).
			Dur("timeout", inv.timeout).
			Msg("external tool timed out, killing process group")
		if err := procgroup.KillGroup(cmd.Process.Pid, killGrace); err != nil {
			logger.Error().Err(err).Int("pid", cmd.Process.Pid).Msg("process group kill failed")
		}
		<-done // reap
		downloadsTotal.WithLabelValues(serviceName, "timeout").Inc()
		return Result{}, &Error{
			Kind:   KindTimeout,
			Detail: fmt.Sprintf("Download timed out after %d seconds.", int(inv.timeout.Seconds())),
		}
	case <-ctx.Done():
		// Client gave up; abort the subprocess rather than let it run on.
		if err := procgroup.KillGroup(cmd.Process.Pid, killGrace); err != nil {
			logger.Error().Err(err).Int("pid", cmd.Process.Pid).Msg("process group kill failed")
		}
		<-done
		downloadsTotal.WithLabelValues(serviceName, "cancelled").Inc()
		return Result{}, &Error{
			Kind:   KindTimeout,
			Detail: "Download was cancelled.",
		}
	}
	downloadDuration.Observe(time.Since(start).Seconds())

	if waitErr != nil {
		raw := strings.TrimSpace(stderr.String())
		if raw == "" {
			raw = strings.TrimSpace(stdout.String())
		}
		if raw == "" {
			raw = "Unknown download error."
		}
		exitCode := -1
		if ee, ok := waitErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		logger.Warn().
			Str(log.FieldEvent, "download.failed").
			Int(log.FieldExitCode, exitCode).
			Str(log.FieldURL, url).
			Str("error", raw).
			Msg("external tool reported failure")
		downloadsTotal.WithLabelValues(serviceName, "failed").Inc()
		return Result{}, &Error{
			Kind:   KindFailed,
			Detail: fmt.Sprintf("%s download failed: %s", serviceName, Sanitize(raw)),
		}
	}

	path, ok := inv.resolveOutputPath(stdout.String())
	if !ok {
		logger.Error().
			Str(log.FieldEvent, "download.output_missing").
			Str(log.FieldURL, url).
			Msg("tool exited zero but output path is missing or escapes storage")
		downloadsTotal.WithLabelValues(serviceName, "internal").Inc()
		return Result{}, &Error{
			Kind:   KindInternal,
			Detail: "Download completed but the output file could not be located.",
		}
	}

	name := filepath.Base(path)
	logger.Info().
		Str(log.FieldEvent, "download.success").
		Str(log.FieldService, serviceName).
		Str(log.FieldFilename, name).
		Msg("download succeeded")
	downloadsTotal.WithLabelValues(serviceName, "success").Inc()

	return Result{
		Message:  fmt.Sprintf("Download completed via %s.", serviceName),
		Filename: name,
	}, nil
}

// resolveOutputPath takes the tool's stdout, extracts the last non-empty line
// as the candidate output path, and verifies it is an existing file inside
// the storage directory. A path outside the managed directory is discarded:
// a buggy or compromised tool must not make the service expose arbitrary
// filesystem contents.
func (inv *Invoker) resolveOutputPath(out string) (string, bool) {
	var candidate string
	for _, ln := range strings.Split(out, "\n") {
		if trimmed := strings.TrimSpace(ln); trimmed != "" {
			candidate = trimmed
		}
	}
	if candidate == "" {
		return "", false
	}

	absRoot, err := filepath.Abs(inv.storageDir)
	if err != nil {
		return "", false
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		realRoot = absRoot
	}

	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", false
	}
	realOut, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Missing file or unresolvable symlink, either way not servable.
		return "", false
	}

	rel, err := filepath.Rel(realRoot, realOut)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	info, err := os.Stat(realOut)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return realOut, true
}
