// Package ratelimit gates download admissions with token buckets: one global
// bucket for the whole process and one per client IP. It backs the HTTP-level
// limiter as defense in depth, since every admitted request ties up an
// external subprocess for up to the tool timeout.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var limitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "mediadl",
		Name:      "ratelimit_exceeded_total",
		Help:      "Download admissions rejected by rate limiting",
	},
	[]string{"limit_type"},
)

// Config holds rate limiting configuration.
type Config struct {
	GlobalRate  rate.Limit // admissions per second, process wide
	GlobalBurst int

	PerIPRate  rate.Limit
	PerIPBurst int

	// CleanupInterval controls how often stale per-IP buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultConfig returns limits matched to the download workload: each
// admission can hold a subprocess for minutes, so the buckets are small.
func DefaultConfig() Config {
	return Config{
		GlobalRate:      2,
		GlobalBurst:     5,
		PerIPRate:       rate.Limit(5.0 / 60.0), // 5 per minute
		PerIPBurst:      5,
		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter admits or rejects download requests.
type Limiter struct {
	config Config

	global *rate.Limiter
	perIP  map[string]*rate.Limiter
	mu     sync.Mutex

	lastCleanup time.Time
}

// New creates a limiter with the given config.
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perIP:       make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a download request from clientIP may proceed.
func (l *Limiter) Allow(clientIP string) bool {
	if !l.global.Allow() {
		limitExceeded.WithLabelValues("global").Inc()
		return false
	}

	if !l.ipLimiter(clientIP).Allow() {
		limitExceeded.WithLabelValues("per_ip").Inc()
		return false
	}

	l.maybeCleanup()
	return true
}

func (l *Limiter) ipLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.perIP[ip]
	if !ok {
		limiter = rate.NewLimiter(l.config.PerIPRate, l.config.PerIPBurst)
		l.perIP[ip] = limiter
	}
	return limiter
}

func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	l.perIP = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}
