package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/obby/fs-coalescer/internal/log"
	"github.com/obby/fs-coalescer/internal/patterns"
	"github.com/obby/fs-coalescer/internal/queue"
)

// FileWatcher wraps fsnotify and feeds classified events into an EventBuffer
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	buffer   *EventBuffer
	matcher  *patterns.Matcher
	errors   chan error
	mu       sync.RWMutex
	watching map[string]bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewFileWatcher creates a new file watcher. A nil matcher lets every path through.
func NewFileWatcher(buffer *EventBuffer, matcher *patterns.Matcher) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileWatcher{
		watcher:  w,
		buffer:   buffer,
		matcher:  matcher,
		errors:   make(chan error, 10),
		watching: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.NewModuleLogger("watcher", "file_watcher"),
	}, nil
}

// Start starts the file watcher
func (fw *FileWatcher) Start() error {
	fw.wg.Add(1)
	go fw.processEvents()
	return nil
}

// Stop stops the file watcher. The buffer is left open for its owner to close.
func (fw *FileWatcher) Stop() error {
	fw.cancel()
	err := fw.watcher.Close()
	fw.wg.Wait()
	close(fw.errors)
	return err
}

// Buffer returns the buffer events are pushed to
func (fw *FileWatcher) Buffer() *EventBuffer {
	return fw.buffer
}

// Matcher returns the pattern matcher, which may be nil
func (fw *FileWatcher) Matcher() *patterns.Matcher {
	return fw.matcher
}

// AddPath adds a path to watch. Directories are watched recursively.
func (fw *FileWatcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("watch %s: %w", absPath, err)
	}

	if detectWSL() && isDrvFsPath(absPath) {
		fw.logger.Warn("Path is on a Windows drive mounted in WSL; change notifications may not arrive",
			"path", absPath,
		)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.watching[absPath] {
		return nil
	}

	if info.IsDir() {
		return fw.addDirectoryRecursive(absPath, false)
	}

	if err := fw.watcher.Add(absPath); err != nil {
		return fmt.Errorf("watch %s: %w", absPath, err)
	}
	fw.watching[absPath] = true
	fw.logger.Info("Watching path", "path", absPath)
	return nil
}

// addDirectoryRecursive adds dirPath and its subdirectories. With emit set,
// files found along the way are queued as created: they appeared before the
// directory's watch was in place. Caller holds fw.mu.
func (fw *FileWatcher) addDirectoryRecursive(dirPath string, emit bool) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if !d.IsDir() {
			if emit && fw.shouldProcess(path) {
				fw.buffer.Push(queue.NewCreated(path))
			}
			return nil
		}

		if path != dirPath && fw.matcher != nil && fw.matcher.IsIgnoredDir(path) {
			return filepath.SkipDir
		}

		if fw.watching[path] {
			return nil
		}
		if err := fw.watcher.Add(path); err != nil {
			if path == dirPath {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			fw.logger.Warn("Error adding directory", "path", path, "error", err)
			return nil
		}
		fw.watching[path] = true
		fw.logger.Debug("Watching directory", "path", path)

		if emit && path != dirPath && fw.shouldProcess(path) {
			fw.buffer.Push(queue.NewCreated(path))
		}
		return nil
	})
}

// RemovePath stops watching path and every watched directory below it
func (fw *FileWatcher) RemovePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.watching[absPath] {
		return nil
	}
	fw.unwatchTree(absPath)
	fw.logger.Info("Stopped watching path", "path", absPath)
	return nil
}

// unwatchTree forgets root and everything below it. Caller holds fw.mu.
func (fw *FileWatcher) unwatchTree(root string) {
	prefix := root + string(filepath.Separator)
	for p := range fw.watching {
		if p == root || strings.HasPrefix(p, prefix) {
			// fsnotify drops watches of deleted directories on its own
			_ = fw.watcher.Remove(p)
			delete(fw.watching, p)
		}
	}
}

// WatchedPaths returns the watched paths in sorted order
func (fw *FileWatcher) WatchedPaths() []string {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	paths := make([]string, 0, len(fw.watching))
	for p := range fw.watching {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// processEvents processes events from fsnotify
func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("Watcher error", "error", err)
			select {
			case fw.errors <- err:
			default:
			}
		case <-fw.ctx.Done():
			return
		}
	}
}

// handleEvent handles a single fsnotify event
func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	info, statErr := os.Lstat(path)
	exists := statErr == nil

	// A watched path that went away takes its pending history with it.
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		fw.mu.Lock()
		watched := fw.watching[path] && !exists
		if watched {
			fw.unwatchTree(path)
		}
		fw.mu.Unlock()

		if watched {
			pruned := fw.buffer.Prune(patterns.Under(path))
			fw.logger.Debug("Watched directory removed", "path", path, "pruned", pruned)
			fw.buffer.Push(queue.NewDeleted(path))
			return
		}
	}

	if exists && info.IsDir() && event.Has(fsnotify.Create) {
		if fw.matcher != nil && fw.matcher.IsIgnoredDir(path) {
			return
		}
		fw.mu.Lock()
		if err := fw.addDirectoryRecursive(path, true); err != nil {
			fw.logger.Warn("Error watching new directory", "path", path, "error", err)
		}
		fw.mu.Unlock()
	}

	if !fw.shouldProcess(path) {
		return
	}

	kind, ok := Translate(event.Op, exists)
	if !ok {
		return
	}
	fw.buffer.Push(queue.Event{Kind: kind, Path: path})
}

// shouldProcess checks if an event should be processed based on patterns
func (fw *FileWatcher) shouldProcess(path string) bool {
	if fw.matcher == nil {
		return true
	}
	return fw.matcher.Allows(path)
}

// Translate classifies an fsnotify operation. exists tells whether the
// path was present when the event was handled.
//
// fsnotify reports a rename under the old name only, with the new name
// arriving as a separate create, so a rename is queued as a delete of the
// old name and the queue folds the pair back into a rename.
func Translate(op fsnotify.Op, exists bool) (queue.Kind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		// Short-lived temp files are often gone before we look.
		return queue.Created, exists
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return queue.Deleted, true
	case op.Has(fsnotify.Write):
		return queue.Changed, exists
	default:
		return 0, false
	}
}

// Errors returns the errors channel
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// detectWSL detects if running in WSL
func detectWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}

// isDrvFsPath checks if a path is on DrvFS (Windows filesystem mounted in WSL)
func isDrvFsPath(path string) bool {
	return strings.HasPrefix(path, "/mnt/")
}
