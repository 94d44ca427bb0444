package storage

import (
	"os"
	"path/filepath"

	"github.com/mediadl/media-dl/internal/log"
)

// Remove deletes path from disk. A file that is already gone is a normal
// outcome, not an error: the janitor and the post-serve deletion race on the
// same files and either may win.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveLogged is Remove with outcome logging for fire-and-forget callers.
func RemoveLogged(path string) {
	logger := log.WithComponent("storage")
	if err := Remove(path); err != nil {
		logger.Error().Err(err).Str(log.FieldPath, path).Msg("failed to delete file")
		return
	}
	logger.Info().Str(log.FieldFilename, filepath.Base(path)).Msg("deleted file")
}
