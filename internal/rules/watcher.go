package rules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CommunityImporter applies one community rule file. The server implements
// this by serializing imports with executor reports; *Store satisfies it
// directly for single-writer callers like the CLI.
type CommunityImporter interface {
	ImportCommunity(path string) (int, error)
}

// ImportWatcher imports community rule files dropped into a directory while
// the server runs. Fresh drops are renamed with an .imported suffix once
// applied; processed drops are replayed on startup because the local rule
// file never persists the community layer.
type ImportWatcher struct {
	importer CommunityImporter
	dir      string
	logger   *zap.Logger
}

// NewImportWatcher creates a watcher over dir feeding the given importer.
func NewImportWatcher(importer CommunityImporter, dir string, logger *zap.Logger) *ImportWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportWatcher{importer: importer, dir: dir, logger: logger}
}

// Run imports any pending files, then watches the directory until ctx is
// done. Import failures are logged and skipped; the watcher keeps running.
func (w *ImportWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return eris.Wrap(err, "rules: create import directory")
	}
	w.importPending()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "rules: create fsnotify watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return eris.Wrap(err, "rules: watch import directory")
	}
	w.logger.Info("watching for community rule imports", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isImportCandidate(event.Name) {
				continue
			}
			// Give the writer a moment to finish the file.
			time.Sleep(200 * time.Millisecond)
			w.importFile(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("import watcher error", zap.Error(err))
		}
	}
}

// importPending applies fresh drops and replays already-processed ones so
// community rules adopted in an earlier run survive a restart.
func (w *ImportWatcher) importPending() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		switch {
		case isImportCandidate(path):
			w.importFile(path)
		case strings.HasSuffix(path, processedSuffix):
			w.apply(path, false)
		}
	}
}

func (w *ImportWatcher) importFile(path string) {
	w.apply(path, true)
}

func (w *ImportWatcher) apply(path string, markProcessed bool) {
	adopted, err := w.importer.ImportCommunity(path)
	if err != nil {
		w.logger.Warn("community import failed",
			zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("community rules imported from drop directory",
		zap.String("path", path), zap.Int("adopted", adopted))
	if !markProcessed {
		return
	}
	if err := os.Rename(path, path+processedSuffix); err != nil {
		w.logger.Warn("could not mark import as processed",
			zap.String("path", path), zap.Error(err))
	}
}

const processedSuffix = ".imported"

func isImportCandidate(path string) bool {
	return strings.HasSuffix(path, ".json")
}
