package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"gbnf.dev/client/internal/core/domain"
	"gbnf.dev/client/internal/core/ports"
)

// DocumentWatcher forwards on-disk edits of open documents to the language
// server as didChange followed by didSave.
type DocumentWatcher struct {
	bridge ports.DocumentBridge
	sink   ports.OutputSink

	mu      sync.Mutex
	docs    map[string]domain.Document
	started chan struct{}
}

// NewDocumentWatcher creates a watcher forwarding through bridge
func NewDocumentWatcher(bridge ports.DocumentBridge, sink ports.OutputSink) *DocumentWatcher {
	return &DocumentWatcher{
		bridge:  bridge,
		sink:    sink,
		docs:    make(map[string]domain.Document),
		started: make(chan struct{}),
	}
}

// Track registers an opened document and the file it was read from.
// Documents must be tracked before Run.
func (w *DocumentWatcher) Track(path string, doc domain.Document) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.docs[filepath.Clean(abs)] = doc
	return nil
}

// Document returns the latest forwarded state of the document read from path
func (w *DocumentWatcher) Document(path string) (domain.Document, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.Document{}, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	doc, ok := w.docs[filepath.Clean(abs)]
	return doc, ok
}

// Run watches the directories of the tracked documents until ctx is done.
// Directories are watched rather than files so that editors which save by
// renaming a temp file over the original are still seen.
func (w *DocumentWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	w.mu.Lock()
	dirs := make(map[string]bool)
	for path := range w.docs {
		dirs[filepath.Dir(path)] = true
	}
	w.mu.Unlock()

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	close(w.started)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload(ctx, filepath.Clean(event.Name))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.sink.Appendf("File watcher error: %v", err)
		}
	}
}

func (w *DocumentWatcher) reload(ctx context.Context, path string) {
	w.mu.Lock()
	doc, ok := w.docs[path]
	w.mu.Unlock()
	if !ok {
		return
	}

	text, err := os.ReadFile(path)
	if err != nil {
		// Mid-rename saves briefly leave no file; the Create event follows.
		return
	}
	if string(text) == doc.Text {
		return
	}

	doc.Version++
	doc.Text = string(text)

	w.mu.Lock()
	w.docs[path] = doc
	w.mu.Unlock()

	if _, err := w.bridge.DidChange(ctx, doc); err != nil {
		w.sink.Appendf("Failed to forward change to %s: %v", doc.URI, err)
		return
	}
	if _, err := w.bridge.DidSave(ctx, doc); err != nil {
		w.sink.Appendf("Failed to forward save of %s: %v", doc.URI, err)
		return
	}
	w.sink.Appendf("Reloaded %s (version %d)", doc.URI, doc.Version)
}
