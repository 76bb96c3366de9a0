// Package watcher monitors session directories and reports session files once
// they have stopped changing.
package watcher

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/blake2b"
)

// DefaultExtensions are the session file types picked up when none are
// configured.
var DefaultExtensions = []string{".json", ".yaml", ".yml", ".toml"}

// Event reports a session file that is ready to be evaluated.
type Event struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

// Config configures a Watcher.
type Config struct {
	// Paths are directories or single files to watch.
	Paths []string
	// Extensions filters files in watched directories. Empty means
	// DefaultExtensions.
	Extensions []string
	// Debounce is how long a file must stay unmodified before it is
	// reported.
	Debounce time.Duration
	// PollInterval is how often pending files are checked. Zero means
	// Debounce/4, at least 50ms.
	PollInterval time.Duration
}

// Watcher monitors session files for changes.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	paths      []string
	extensions []string
	debounce   time.Duration
	poll       time.Duration

	// path -> last modification seen
	pending map[string]time.Time
	// path -> hash of the last reported content
	reported map[string][32]byte
	explicit map[string]bool
	stateMu  sync.RWMutex

	events chan Event
	errors chan error

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a session watcher.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, errors.New("watcher: no paths to watch")
	}
	if cfg.Debounce <= 0 {
		return nil, errors.New("watcher: debounce must be positive")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = max(cfg.Debounce/4, 50*time.Millisecond)
	}

	w := &Watcher{
		fsWatcher:  fsWatcher,
		paths:      cfg.Paths,
		extensions: normalizeExtensions(exts),
		debounce:   cfg.Debounce,
		poll:       poll,
		pending:    make(map[string]time.Time),
		reported:   make(map[string][32]byte),
		explicit:   make(map[string]bool),
		events:     make(chan Event, 100),
		errors:     make(chan error, 10),
		done:       make(chan struct{}),
	}

	return w, nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, len(exts))
	for i, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[i] = e
	}
	return out
}

// Events returns the channel of ready session files.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start begins watching all configured paths. Session files already present
// are reported once they are stable.
func (w *Watcher) Start() error {
	if err := w.addPaths(); err != nil {
		w.Stop()
		return err
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	return nil
}

// addPaths registers every configured path with fsnotify and tracks the
// session files already present.
func (w *Watcher) addPaths() error {
	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if err := w.fsWatcher.Add(absPath); err != nil {
				return err
			}

			entries, err := os.ReadDir(absPath)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if !entry.IsDir() {
					w.trackFile(filepath.Join(absPath, entry.Name()))
				}
			}
		} else {
			// Single files are watched through their directory.
			if err := w.fsWatcher.Add(filepath.Dir(absPath)); err != nil {
				return err
			}
			w.stateMu.Lock()
			w.explicit[absPath] = true
			w.stateMu.Unlock()
			w.trackFile(absPath)
		}
	}

	return nil
}

// Stop shuts down the watcher and closes the event and error channels. It is
// safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		close(w.events)
		close(w.errors)
		err = w.fsWatcher.Close()
	})
	return err
}

// accepts reports whether path is a session file this watcher reports.
func (w *Watcher) accepts(path string) bool {
	w.stateMu.RLock()
	explicit := w.explicit[path]
	w.stateMu.RUnlock()
	if explicit {
		return true
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// trackFile marks a file as pending.
func (w *Watcher) trackFile(path string) {
	if !w.accepts(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	w.stateMu.Lock()
	w.pending[path] = info.ModTime()
	w.stateMu.Unlock()
}

// eventLoop handles fsnotify events.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.stateMu.Lock()
				delete(w.pending, event.Name)
				delete(w.reported, event.Name)
				w.stateMu.Unlock()
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.accepts(event.Name) {
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}

			w.stateMu.Lock()
			w.pending[event.Name] = time.Now()
			w.stateMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// debounceLoop periodically reports files that have become stable.
func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case now := <-ticker.C:
			w.checkStableFiles(now)
		}
	}
}

type stableFile struct {
	path    string
	lastMod time.Time
}

// checkStableFiles reports pending files unchanged for the debounce interval.
// The state lock is released while files are hashed.
func (w *Watcher) checkStableFiles(now time.Time) {
	threshold := now.Add(-w.debounce)

	var stable []stableFile
	w.stateMu.RLock()
	for path, lastMod := range w.pending {
		if lastMod.Before(threshold) {
			stable = append(stable, stableFile{path: path, lastMod: lastMod})
		}
	}
	w.stateMu.RUnlock()

	if len(stable) == 0 {
		return
	}

	type hashResult struct {
		stableFile
		hash [32]byte
		size int64
		err  error
	}
	results := make([]hashResult, len(stable))
	for i, sf := range stable {
		hash, size, err := HashFile(sf.path)
		results[i] = hashResult{stableFile: sf, hash: hash, size: size, err: err}
	}

	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	for _, r := range results {
		if r.err != nil {
			delete(w.pending, r.path)
			if !errors.Is(r.err, os.ErrNotExist) {
				w.sendError(r.err)
			}
			continue
		}

		current, exists := w.pending[r.path]
		if !exists || current != r.lastMod {
			// Removed or modified while hashing.
			continue
		}

		// Rewrites with identical content are not reported again.
		if prev, ok := w.reported[r.path]; ok && prev == r.hash {
			delete(w.pending, r.path)
			continue
		}

		event := Event{
			Path:      r.path,
			Hash:      r.hash,
			Size:      r.size,
			Timestamp: now,
		}

		select {
		case w.events <- event:
			delete(w.pending, r.path)
			w.reported[r.path] = r.hash
		default:
			// Channel full; retry on the next tick.
		}
	}
}

// HashFile computes the BLAKE2b-256 hash of a file by streaming it.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return [32]byte{}, 0, err
	}
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}

// WatchedPaths returns the list of paths being watched.
func (w *Watcher) WatchedPaths() []string {
	return w.paths
}

// PendingFiles returns the number of files waiting to become stable.
func (w *Watcher) PendingFiles() int {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return len(w.pending)
}
