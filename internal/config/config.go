// Package config holds the process-wide configuration. All values are read
// once at startup and are immutable for the lifetime of the process.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// AllowedExtensions is the fixed allow-list of media file extensions the
// retrieval endpoint will serve. Lowercase, including the leading dot.
var AllowedExtensions = map[string]struct{}{
	".mp4":  {},
	".webm": {},
	".mkv":  {},
	".mp3":  {},
	".m4a":  {},
	".opus": {},
	".ogg":  {},
	".flv":  {},
	".avi":  {},
	".mov":  {},
}

// ExtensionAllowed reports whether ext (case-insensitive, with leading dot)
// belongs to the allow-list.
func ExtensionAllowed(ext string) bool {
	_, ok := AllowedExtensions[strings.ToLower(ext)]
	return ok
}

// AppConfig is the process-wide configuration.
type AppConfig struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// StorageDir is the directory downloaded files are written to and
	// served from. Created at startup if missing.
	StorageDir string

	// Tool is the name of the external fetch executable looked up on PATH.
	Tool string

	// FileTTL is how long a downloaded file lives on disk if never retrieved.
	FileTTL time.Duration

	// CleanupInterval is how often the janitor scans the storage directory.
	CleanupInterval time.Duration

	// ToolTimeout is the wall-clock budget for a single external invocation.
	ToolTimeout time.Duration

	// RateLimit is the maximum number of download requests per RateWindow
	// per client IP.
	RateLimit  int
	RateWindow time.Duration

	// GlobalRPS and GlobalBurst bound the process-wide download admission
	// rate across all clients, behind the per-IP limit.
	GlobalRPS   int
	GlobalBurst int

	// AllowedOrigins is the strict CORS origin list.
	AllowedOrigins []string

	// LogLevel configures the global logger.
	LogLevel string
}

// FromEnv builds the configuration from environment variables with defaults.
func FromEnv() AppConfig {
	return AppConfig{
		ListenAddr:      ParseString("MEDIADL_LISTEN", ":8080"),
		StorageDir:      ParseString("MEDIADL_STORAGE_DIR", "downloads"),
		Tool:            ParseString("MEDIADL_TOOL", "yt-dlp"),
		FileTTL:         ParseDuration("MEDIADL_FILE_TTL", 15*time.Minute),
		CleanupInterval: ParseDuration("MEDIADL_CLEANUP_INTERVAL", time.Minute),
		ToolTimeout:     ParseDuration("MEDIADL_TOOL_TIMEOUT", 5*time.Minute),
		RateLimit:       ParseInt("MEDIADL_RATE_LIMIT", 5),
		RateWindow:      ParseDuration("MEDIADL_RATE_WINDOW", time.Minute),
		GlobalRPS:       ParseInt("MEDIADL_GLOBAL_RPS", 2),
		GlobalBurst:     ParseInt("MEDIADL_GLOBAL_BURST", 5),
		AllowedOrigins:  splitCSV(ParseString("MEDIADL_ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:        ParseString("MEDIADL_LOG_LEVEL", "info"),
	}
}

// Validate performs fail-fast startup checks and creates the storage
// directory if it does not exist.
func (c *AppConfig) Validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("storage dir must not be empty")
	}
	if err := os.MkdirAll(c.StorageDir, 0o750); err != nil {
		return fmt.Errorf("create storage dir %q: %w", c.StorageDir, err)
	}
	if c.FileTTL <= 0 {
		return fmt.Errorf("file TTL must be positive, got %s", c.FileTTL)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", c.CleanupInterval)
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("tool timeout must be positive, got %s", c.ToolTimeout)
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		return fmt.Errorf("rate limit and window must be positive")
	}
	if c.GlobalRPS <= 0 || c.GlobalBurst <= 0 {
		return fmt.Errorf("global rate and burst must be positive")
	}
	return nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
