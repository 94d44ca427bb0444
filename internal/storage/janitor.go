package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mediadl/media-dl/internal/log"
)

var (
	janitorDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mediadl",
		Name:      "janitor_deleted_total",
		Help:      "Files deleted by the TTL janitor",
	})
	janitorSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mediadl",
		Name:      "janitor_sweeps_total",
		Help:      "Completed janitor sweeps of the storage directory",
	})
)

// Janitor periodically deletes files in the storage directory that have
// outlived their TTL. It runs for the lifetime of the process; only context
// cancellation stops it.
type Janitor struct {
	dir      string
	ttl      time.Duration
	interval time.Duration
}

// NewJanitor returns a janitor for dir with the given TTL and scan interval.
func NewJanitor(dir string, ttl, interval time.Duration) *Janitor {
	return &Janitor{dir: dir, ttl: ttl, interval: interval}
}

// Run blocks, sweeping the storage directory every interval until ctx is
// cancelled. Sweep errors are logged and never terminate the loop.
func (j *Janitor) Run(ctx context.Context) error {
	logger := log.WithComponent("janitor")
	logger.Info().
		Dur("ttl", j.ttl).
		Dur("interval", j.interval).
		Str(log.FieldPath, j.dir).
		Msg("file cleanup task started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("file cleanup task stopped")
			return ctx.Err()
		case <-ticker.C:
			j.Sweep(time.Now())
		}
	}
}

// Sweep deletes every regular file in the storage directory whose age at the
// reference time exceeds the TTL. Losing a delete race with a retrieval
// request is expected and logged at debug level only.
func (j *Janitor) Sweep(now time.Time) {
	logger := log.WithComponent("janitor")

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldPath, j.dir).Msg("storage scan failed")
		return
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Deleted between ReadDir and Info; nothing to do.
			continue
		}
		age := now.Sub(info.ModTime())
		if age <= j.ttl {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		if err := Remove(path); err != nil {
			logger.Error().Err(err).Str(log.FieldFilename, entry.Name()).Msg("failed to delete expired file")
			continue
		}
		janitorDeleted.Inc()
		logger.Info().
			Str(log.FieldEvent, "janitor.expired").
			Str(log.FieldFilename, entry.Name()).
			Dur(log.FieldAge, age).
			Msg("TTL expired, file removed")
	}
	janitorSweeps.Inc()
}
