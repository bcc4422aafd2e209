package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/operate-experience/navsync/internal/logging"
)

// DefaultSettle is how long a Watcher waits for writes to stop before it
// reports a change. Editors often save in several steps.
const DefaultSettle = 200 * time.Millisecond

// Watcher reports edits to the config files Load reads for a directory.
// .env is not watched: its values never override variables that are
// already set, so reloading would not pick them up.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	settle   time.Duration
	onChange func()

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher watches the config sources of directory. onChange runs on the
// watcher goroutine once per settled burst of writes.
func NewWatcher(directory string, settle time.Duration, onChange func()) (*Watcher, error) {
	if settle <= 0 {
		settle = DefaultSettle
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range Sources(directory) {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	// Watch directories rather than files so a save-by-rename is seen.
	watched := 0
	for dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, err
		}
		watched++
	}
	logging.Debug().Int("dirs", watched).Int("files", len(files)).Msg("config watcher initialized")

	return &Watcher{
		watcher:  w,
		files:    files,
		settle:   settle,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Sources returns every config file path Load considers for directory,
// in load order. The files need not exist.
func Sources(directory string) []string {
	var paths []string
	global := GetConfigDir()
	for _, name := range fileNames {
		paths = append(paths, filepath.Join(global, name))
	}
	if directory != "" {
		for _, name := range fileNames {
			paths = append(paths, filepath.Join(directory, name))
		}
		for _, name := range fileNames {
			paths = append(paths, filepath.Join(directory, ".navsync", name))
		}
	}
	if p := os.Getenv(EnvConfig); p != "" {
		paths = append(paths, p)
	}
	return paths
}

// Start begins watching.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logging.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("config file changed")
			timer.Reset(w.settle)
		case <-timer.C:
			if w.onChange != nil {
				w.onChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("config watcher error")
		}
	}
}

// Stop stops the watcher and waits for a running onChange to return.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}
