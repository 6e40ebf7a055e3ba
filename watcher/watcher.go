// Package watcher triggers recompilation when a project's source files
// change, grounded directly on the teacher's internal/server file watcher:
// same fsnotify-based recursive directory registration, same
// skip-dot-directories rule, same single-goroutine event loop.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// pageExtension is the source file extension the watcher reacts to.
const pageExtension = ".pyw"

// Watcher watches a project's pages directory and invokes OnChange for
// every .pyw file write or create.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	rootDir   string
	onChange  func(filePath string) error
	done      chan struct{}
	debug     bool
}

// New creates a Watcher rooted at rootDir. onChange is called with the
// path of every changed page source file, under rootDir as given (relative
// if rootDir is relative).
func New(rootDir string, onChange func(filePath string) error, debug bool) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		rootDir:   rootDir,
		onChange:  onChange,
		done:      make(chan struct{}),
		debug:     debug,
	}

	if err := w.addDirectoryRecursive(rootDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

func (w *Watcher) addDirectoryRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return err
		}
		if w.debug {
			log.Printf("[watcher] watching directory: %s", path)
		}
		return nil
	})
}

// Start begins the watch loop in its own goroutine.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.fsWatcher.Events:
				if !ok {
					return
				}
				w.handle(event)
			case err, ok := <-w.fsWatcher.Errors:
				if !ok {
					return
				}
				log.Printf("[watcher] error: %v", err)
			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectoryRecursive(event.Name); err != nil && w.debug {
				log.Printf("[watcher] failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	isRelevant := event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create
	if !isRelevant || filepath.Ext(event.Name) != pageExtension {
		return
	}

	if err := w.onChange(event.Name); err != nil {
		log.Printf("[watcher] reload of %s failed: %v", event.Name, err)
	}
}

// Close stops the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}
