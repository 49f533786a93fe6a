// Package watcher reports changes to the rule, diagram and data files a
// flowchart is built from. It uses fsnotify on the parent directories and
// falls back to stat polling on remote filesystems or when asked to.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the default polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

var (
	ErrFileRemoved    = errors.New("watched file was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
	ErrNoPaths        = errors.New("no paths to watch")
)

// PathError ties a watch error to the file it concerns.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }
func (e *PathError) Unwrap() error { return e.Err }

type Option func(*Watcher)

func WithDebounceDuration(d time.Duration) Option {
	return func(w *Watcher) { w.debounceDuration = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) { w.pollInterval = d }
}

// WithOnChange sets the callback receiving the files that changed during
// one debounce window, sorted.
func WithOnChange(fn func(paths []string)) Option {
	return func(w *Watcher) { w.onChange = fn }
}

func WithOnError(fn func(error)) Option {
	return func(w *Watcher) { w.onError = fn }
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) Option {
	return func(w *Watcher) { w.forcePoll = force }
}

type fileState struct {
	mtime time.Time
	size  int64
}

// Watcher monitors a set of files.
type Watcher struct {
	paths            []string
	debounceDuration time.Duration
	pollInterval     time.Duration
	onChange         func([]string)
	onError          func(error)
	forcePoll        bool
	fsType           FilesystemType

	fsWatcher   *fsnotify.Watcher
	debouncer   *Debouncer
	useFallback bool
	files       map[string]fileState
	pending     map[string]struct{}

	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
	changeCh chan []string
}

// New creates a watcher for paths. Empty and duplicate entries are ignored.
func New(paths []string, opts ...Option) (*Watcher, error) {
	var abs []string
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(abs, a) {
			abs = append(abs, a)
		}
	}
	if len(abs) == 0 {
		return nil, ErrNoPaths
	}
	slices.Sort(abs)

	w := &Watcher{
		paths:            abs,
		debounceDuration: DefaultDebounceDuration,
		pollInterval:     DefaultPollInterval,
		onChange:         func([]string) {},
		onError:          func(error) {},
		files:            make(map[string]fileState, len(abs)),
		pending:          make(map[string]struct{}),
		changeCh:         make(chan []string, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = NewDebouncer(w.debounceDuration)
	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.useFallback = w.forcePoll || envBool("FS_FORCE_POLLING") || envBool("FS_FORCE_POLL")

	// the most remote filesystem among the paths decides the mode
	w.fsType = FSTypeUnknown
	for _, p := range w.paths {
		t := DetectFilesystemType(p)
		if isRemoteFilesystem(t) {
			w.fsType = t
			w.useFallback = true
			break
		}
		if w.fsType == FSTypeUnknown {
			w.fsType = t
		}
	}

	for _, p := range w.paths {
		info, err := os.Stat(p)
		switch {
		case err == nil:
			w.files[p] = fileState{mtime: info.ModTime(), size: info.Size()}
		case os.IsPermission(err):
			cancel()
			return &PathError{Path: p, Err: ErrPermission}
		default:
			// not created yet
			w.files[p] = fileState{}
		}
	}

	if !w.useFallback {
		if fsw, err := w.openFsnotify(); err == nil {
			w.fsWatcher = fsw
			go w.watchFsnotify(ctx, fsw)
		} else {
			w.useFallback = true
		}
	}
	if w.useFallback {
		go w.watchPolling(ctx)
	}

	w.started = true
	return nil
}

// openFsnotify watches every parent directory; atomic saves replace the
// file itself, which drops a watch placed on the file.
func (w *Watcher) openFsnotify() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, p := range w.paths {
		if d := filepath.Dir(p); !slices.Contains(dirs, d) {
			dirs = append(dirs, d)
		}
	}
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return fsw, nil
}

// Stop stops watching. Changed is left open so a reader blocked on it is
// not woken with a zero value.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	w.cancel()
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}
	w.debouncer.Cancel()
	clear(w.pending)
	w.started = false
}

func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.useFallback
}

func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Changed delivers the same path sets as the OnChange callback. A set is
// dropped when the previous one was not consumed yet.
func (w *Watcher) Changed() <-chan []string { return w.changeCh }

// Paths returns the absolute watched paths, sorted.
func (w *Watcher) Paths() []string { return slices.Clone(w.paths) }

func (w *Watcher) FilesystemType() FilesystemType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fsType
}

func (w *Watcher) PollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pollInterval
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func (w *Watcher) watched(name string) (string, bool) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", false
	}
	_, ok := slices.BinarySearch(w.paths, abs)
	return abs, ok
}

func (w *Watcher) watchFsnotify(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			path, ok := w.watched(event.Name)
			if !ok {
				continue
			}
			switch {
			case event.Op&fsnotify.Remove != 0:
				w.onError(&PathError{Path: path, Err: ErrFileRemoved})
			case event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0:
				w.mark(path)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) watchPolling(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range w.paths {
				w.poll(p)
			}
		}
	}
}

func (w *Watcher) poll(path string) {
	info, err := os.Stat(path)
	if err != nil {
		w.mu.Lock()
		prev := w.files[path]
		if os.IsNotExist(err) {
			w.files[path] = fileState{}
		}
		w.mu.Unlock()
		switch {
		case os.IsNotExist(err):
			// reported once, when the file disappears
			if !prev.mtime.IsZero() {
				w.onError(&PathError{Path: path, Err: ErrFileRemoved})
			}
		case os.IsPermission(err):
			w.onError(&PathError{Path: path, Err: ErrPermission})
		default:
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	prev := w.files[path]
	changed := info.ModTime().After(prev.mtime) || info.Size() != prev.size
	if changed {
		w.files[path] = fileState{mtime: info.ModTime(), size: info.Size()}
	}
	w.mu.Unlock()
	if changed {
		w.mark(path)
	}
}

func (w *Watcher) mark(path string) {
	w.mu.Lock()
	w.pending[path] = struct{}{}
	w.mu.Unlock()
	w.debouncer.Trigger(w.notifyChange)
}

func (w *Watcher) notifyChange() {
	w.mu.Lock()
	if !w.started || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	w.mu.Unlock()

	slices.Sort(paths)
	w.onChange(paths)

	select {
	case w.changeCh <- paths:
	default:
	}
}
