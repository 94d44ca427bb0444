package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/mediadl/media-dl/internal/download"
	"github.com/mediadl/media-dl/internal/log"
	"github.com/mediadl/media-dl/internal/storage"
)

// downloadRequest is the body of POST /api/download.
type downloadRequest struct {
	URL string `json:"url"`
}

// handleDownload resolves the service for the submitted URL, runs the
// external tool, and returns the produced filename with a retrieval URL.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "Only HTTP and HTTPS URLs are supported.")
		return
	}

	if !s.limiter.Allow(clientIP(r)) {
		rateLimitExceededHandler(s.cfg.RateWindow)(w, r)
		return
	}

	ext, ok := s.registry.Resolve(req.URL)
	if !ok {
		writeDetail(w, http.StatusUnprocessableEntity, "No extension available for this URL.")
		return
	}

	res, err := s.invoker.Invoke(r.Context(), req.URL, ext.Name)
	if err != nil {
		var dlErr *download.Error
		if errors.As(err, &dlErr) {
			writeDetail(w, statusForKind(dlErr.Kind), dlErr.Detail)
			return
		}
		logger.Error().Err(err).Msg("invoker returned uncategorized error")
		writeDetail(w, http.StatusInternalServerError, "Download failed.")
		return
	}

	writeJSON(w, http.StatusOK, downloadResponse{
		Status:           "success",
		Message:          res.Message,
		Filename:         res.Filename,
		DownloadURL:      "/downloads/" + url.PathEscape(res.Filename),
		ExpiresInSeconds: int(s.cfg.FileTTL.Seconds()),
	})
}

// statusForKind maps an invocation failure category to its HTTP status.
func statusForKind(kind download.Kind) int {
	switch kind {
	case download.KindUnavailable:
		return http.StatusServiceUnavailable
	case download.KindTimeout:
		return http.StatusGatewayTimeout
	case download.KindFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleFetch streams a downloaded file to the caller once, then deletes it.
// Rejections never echo the requested filename.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	name := chi.URLParam(r, "filename")

	path, err := s.guard.Authorize(name)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTraversal):
			logger.Warn().Str(log.FieldEvent, "fetch.denied").Str(log.FieldReason, "traversal").Msg("path traversal attempt")
			fileRequestsDenied.WithLabelValues("traversal").Inc()
			writeDetail(w, http.StatusBadRequest, "Invalid file path.")
		case errors.Is(err, storage.ErrDisallowedType):
			logger.Warn().Str(log.FieldEvent, "fetch.denied").Str(log.FieldReason, "disallowed_type").Msg("disallowed file type")
			fileRequestsDenied.WithLabelValues("disallowed_type").Inc()
			writeDetail(w, http.StatusBadRequest, "File type not permitted.")
		default:
			fileRequestsDenied.WithLabelValues("not_found").Inc()
			writeDetail(w, http.StatusNotFound, "File not found or has already been deleted.")
		}
		return
	}

	// #nosec G304 -- path was validated by the guard to reside inside the storage directory
	f, err := os.Open(path)
	if err != nil {
		// Lost the race with the janitor between Authorize and Open.
		fileRequestsDenied.WithLabelValues("not_found").Inc()
		writeDetail(w, http.StatusNotFound, "File not found or has already been deleted.")
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close served file")
		}
	}()

	info, err := f.Stat()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not read file.")
		return
	}

	base := filepath.Base(path)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+base+`"`)

	logger.Info().
		Str(log.FieldEvent, "fetch.serving").
		Str(log.FieldFilename, base).
		Msg("serving file, deletion scheduled after transmission")

	http.ServeContent(w, r, base, info.ModTime(), f)
	filesServed.Inc()

	// The response body has been written; remove the file. Losing this race
	// to the janitor is fine, Remove treats "already gone" as success.
	storage.RemoveLogged(path)
}
