package pipeline

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long a file must stay quiet after its last write event
// before it is ingested. Raw archives are large; ingesting on the first
// Create event would read a partially copied file.
const settleDelay = 2 * time.Second

// Watch runs an fsnotify watcher on the drop directory and ingests each
// recognized file once its writes settle, until ctx is cancelled. Files with
// unrecognizable names are logged once and skipped; ingest failures are
// logged and do not stop the watcher.
func Watch(ctx context.Context, in *Ingestor, dropDir string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dropDir); err != nil {
		return err
	}
	logger.Info("watcher started", "dir", dropDir)

	// pending maps paths to their settle deadline; a single ticker sweeps it.
	pending := make(map[string]time.Time)
	ignored := make(map[string]bool)
	ticker := time.NewTicker(settleDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher stopped")
			return nil

		case <-ticker.C:
			now := time.Now()
			for path, deadline := range pending {
				if now.Before(deadline) {
					continue
				}
				delete(pending, path)
				ingestDropped(ctx, in, path, logger)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if info, statErr := os.Stat(ev.Name); statErr != nil || info.IsDir() {
				continue
			}
			if _, err := DetectSource(ev.Name); err != nil {
				if !ignored[ev.Name] {
					ignored[ev.Name] = true
					logger.Warn("ignoring unrecognized file", "path", ev.Name)
				}
				continue
			}
			pending[ev.Name] = time.Now().Add(settleDelay)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", watchErr)
		}
	}
}

func ingestDropped(ctx context.Context, in *Ingestor, path string, logger *slog.Logger) {
	reports, err := in.IngestFiles(ctx, []string{path})
	if err != nil {
		logger.Error("watched ingest failed", "path", path, "error", err)
		return
	}
	for _, r := range reports {
		logger.Info("watched file ingested",
			"path", path, "rows_ok", r.RowsOK, "rows_dropped", r.RowsDropped)
	}
}
