package services

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// DoArtifactCleanup removes per-meeting screenshot directories that have not
// been written to within retention.
func DoArtifactCleanup(dir string, retention time.Duration) {
	deadline := time.Now().Add(-retention)
	log.Debug().Time("deadline", deadline).Str("dir", dir).Msg("Now cleaning up diagnostic screenshots...")

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	} else if err != nil {
		log.Error().Err(err).Msg("An error occurred when running screenshot cleanup...")
		return
	}

	var count int
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(deadline) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			log.Error().Err(err).Str("entry", entry.Name()).Msg("An error occurred when removing screenshots...")
			continue
		}
		count++
	}

	log.Debug().Int("affected", count).Msg("Clean up diagnostic screenshots accomplished.")
}
