// Package watcher follows theme files on disk during development. Changes are
// debounced, grouped per store and handed to handlers, which typically drop
// the store's cached pages and notify connected editors.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/storefront/internal/logging"
)

// EventType is the kind of file change.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// ChangeEvent is one file change below the watched root.
type ChangeEvent struct {
	Type EventType
	Path string
}

// StoreChange lists the theme files of one store that changed within a
// debounce window. Paths are relative to the store's theme directory and
// slash separated.
type StoreChange struct {
	StoreID string
	Paths   []string
}

// Handler receives batched changes.
type Handler func(ctx context.Context, changes []StoreChange) error

// FileFilter reports whether a path is worth reporting.
type FileFilter func(path string) bool

// ThemeWatcher watches <root>/<storeID>/... for changes.
type ThemeWatcher struct {
	fs       *fsnotify.Watcher
	root     string
	delay    time.Duration
	logger   logging.Logger
	filters  []FileFilter
	handlers []Handler
	mu       sync.RWMutex

	pending map[string]ChangeEvent
	pmu     sync.Mutex
	flushc  chan struct{}
	timer   *time.Timer
}

// Option configures a ThemeWatcher.
type Option func(*ThemeWatcher)

// WithDebounce sets how long the watcher waits for changes to settle.
func WithDebounce(d time.Duration) Option {
	return func(w *ThemeWatcher) { w.delay = d }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(w *ThemeWatcher) { w.logger = l.WithComponent("watcher") }
}

// WithFilter adds a filter. Every filter must accept a path for it to be
// reported.
func WithFilter(f FileFilter) Option {
	return func(w *ThemeWatcher) { w.filters = append(w.filters, f) }
}

// New creates a watcher for the theme tree under root.
func New(root string, opts ...Option) (*ThemeWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &ThemeWatcher{
		fs:      fw,
		root:    abs,
		delay:   200 * time.Millisecond,
		logger:  logging.NewNop(),
		filters: []FileFilter{NoHiddenFilter, NoEditorTempFilter},
		pending: make(map[string]ChangeEvent),
		flushc:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// AddHandler registers a handler for batched changes.
func (w *ThemeWatcher) AddHandler(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Root returns the absolute watched directory.
func (w *ThemeWatcher) Root() string {
	return w.root
}

// addRecursive watches dir and every directory below it.
func (w *ThemeWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fs.Add(p)
	})
}

// Run watches until ctx is cancelled. It returns after the watcher is
// closed.
func (w *ThemeWatcher) Run(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		_ = w.fs.Close()
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	w.logger.Info(ctx, "watching themes", "root", w.root)

	defer func() {
		w.pmu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.pmu.Unlock()
		_ = w.fs.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, err, "file watcher error")
		case <-w.flushc:
			w.dispatch(ctx, w.drain())
		}
	}
}

func (w *ThemeWatcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if err := w.addRecursive(ev.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.logger.Debug(ctx, "could not watch new path", "path", ev.Name, "error", err.Error())
		}
	}

	for _, f := range w.filters {
		if !f(ev.Name) {
			return
		}
	}

	var typ EventType
	switch {
	case ev.Has(fsnotify.Create):
		typ = EventTypeCreated
	case ev.Has(fsnotify.Write):
		typ = EventTypeModified
	case ev.Has(fsnotify.Remove):
		typ = EventTypeDeleted
	case ev.Has(fsnotify.Rename):
		typ = EventTypeRenamed
	default:
		return
	}
	w.add(ChangeEvent{Type: typ, Path: ev.Name})
}

// add queues an event and restarts the debounce timer.
func (w *ThemeWatcher) add(ev ChangeEvent) {
	w.pmu.Lock()
	defer w.pmu.Unlock()
	w.pending[ev.Path] = ev
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() {
		select {
		case w.flushc <- struct{}{}:
		default:
		}
	})
}

func (w *ThemeWatcher) drain() []ChangeEvent {
	w.pmu.Lock()
	defer w.pmu.Unlock()
	events := make([]ChangeEvent, 0, len(w.pending))
	for _, ev := range w.pending {
		events = append(events, ev)
	}
	clear(w.pending)
	return events
}

func (w *ThemeWatcher) dispatch(ctx context.Context, events []ChangeEvent) {
	changes := Group(w.root, events)
	if len(changes) == 0 {
		return
	}

	w.mu.RLock()
	handlers := w.handlers
	w.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, changes); err != nil {
			w.logger.Error(ctx, err, "theme change handler failed")
		}
	}
}

// Group maps file events below root to per-store changes. Events outside a
// store directory are ignored. The result is sorted by store ID with
// sorted, unique paths.
func Group(root string, events []ChangeEvent) []StoreChange {
	byStore := make(map[string]map[string]struct{})
	for _, ev := range events {
		rel, err := filepath.Rel(root, ev.Path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		storeID, file, ok := strings.Cut(rel, "/")
		if !ok || storeID == "" || storeID == ".." || file == "" {
			continue
		}
		if byStore[storeID] == nil {
			byStore[storeID] = make(map[string]struct{})
		}
		byStore[storeID][file] = struct{}{}
	}

	out := make([]StoreChange, 0, len(byStore))
	for id, files := range byStore {
		paths := make([]string, 0, len(files))
		for f := range files {
			paths = append(paths, f)
		}
		sort.Strings(paths)
		out = append(out, StoreChange{StoreID: id, Paths: paths})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out
}

// NoHiddenFilter rejects dot files.
func NoHiddenFilter(path string) bool {
	return !strings.HasPrefix(filepath.Base(path), ".")
}

// NoEditorTempFilter rejects editor swap and backup files.
func NoEditorTempFilter(path string) bool {
	base := filepath.Base(path)
	for _, suffix := range []string{"~", ".swp", ".swx", ".tmp"} {
		if strings.HasSuffix(base, suffix) {
			return false
		}
	}
	return true
}

// ThemeFileFilter accepts the file types a theme is made of.
func ThemeFileFilter(path string) bool {
	switch filepath.Ext(path) {
	case ".liquid", ".json", ".css", ".js", ".svg", ".png", ".jpg", ".woff2":
		return true
	}
	return false
}
