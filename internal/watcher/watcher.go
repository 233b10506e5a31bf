// Package watcher follows a local page file and hands out its content each
// time an edit settles.
package watcher

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/wikictl/internal/log"
)

// Snapshot is the file's content after a burst of writes went quiet.
type Snapshot struct {
	Path    string
	Content []byte
	ModTime time.Time
}

// Config holds watcher options.
type Config struct {
	Path string
	// DebounceDur is how long the file must stay quiet before it is read.
	DebounceDur time.Duration
}

// DefaultConfig returns a config for path with a 500ms debounce.
func DefaultConfig(path string) Config {
	return Config{Path: path, DebounceDur: 500 * time.Millisecond}
}

// Watcher reports content changes of one file. Saves that leave the content
// as it was are not reported.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
	snapshots chan Snapshot
	settled   chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	last    [sha256.Size]byte
	hasLast bool
}

// New creates a watcher for cfg.Path. Nothing is watched until Start.
func New(cfg Config) (*Watcher, error) {
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", cfg.Path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher: fsw,
		path:      path,
		debounce:  cfg.DebounceDur,
		snapshots: make(chan Snapshot, 1),
		settled:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start records the file's current content as the baseline and watches its
// directory, so editors that save by renaming a temp file over it are seen.
// If the reader falls behind, only the newest snapshot is kept.
func (w *Watcher) Start() (<-chan Snapshot, error) {
	if content, err := os.ReadFile(w.path); err == nil {
		w.last, w.hasLast = sha256.Sum256(content), true
	}
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}
	log.Debug(log.CatWatch, "Watching file", "path", w.path, "debounce", w.debounce)

	go w.loop()
	return w.snapshots, nil
}

// Stop ends the watch and closes the snapshot channel. Later calls are
// no-ops.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.snapshots)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.touchesFile(event) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, w.signalSettled)
			} else {
				timer.Reset(w.debounce)
			}

		case <-w.settled:
			w.emit()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatch, "Watch error", err, "path", w.path)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) signalSettled() {
	select {
	case w.settled <- struct{}{}:
	default:
	}
}

// emit reads the settled file and publishes it if the content changed.
func (w *Watcher) emit() {
	content, err := os.ReadFile(w.path)
	if err != nil {
		// Mid-rename or deleted; the next Create brings it back.
		log.Debug(log.CatWatch, "Skipping unreadable file", "path", w.path, "error", err)
		return
	}
	sum := sha256.Sum256(content)
	if w.hasLast && sum == w.last {
		log.Debug(log.CatWatch, "Content unchanged", "path", w.path)
		return
	}
	w.last, w.hasLast = sum, true

	snap := Snapshot{Path: w.path, Content: content, ModTime: time.Now()}
	if info, err := os.Stat(w.path); err == nil {
		snap.ModTime = info.ModTime()
	}

	select {
	case <-w.snapshots:
	default:
	}
	select {
	case w.snapshots <- snap:
	case <-w.done:
	}
}

func (w *Watcher) touchesFile(event fsnotify.Event) bool {
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0 && filepath.Clean(event.Name) == w.path
}
