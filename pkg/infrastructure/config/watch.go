package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration file when it changes on disk. Editors
// often replace files instead of writing in place, so the parent directory
// is watched and events are filtered by file name.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	onChange func(*Config)
	onError  func(error)

	mu      sync.RWMutex
	current *Config
}

// NewWatcher creates a watcher for path. initial is returned by Current until
// the first successful reload.
func NewWatcher(path string, initial *Config, onChange func(*Config), onError func(error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	if onChange == nil {
		onChange = func(*Config) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	return &Watcher{
		path:     abs,
		watcher:  fsw,
		debounce: 100 * time.Millisecond,
		onChange: onChange,
		onError:  onError,
		current:  initial,
	}, nil
}

// Current returns the most recently loaded configuration
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run processes file events until ctx is done. It closes the underlying
// fsnotify watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var pending *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Coalesce the burst of events a single save produces
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.onError(err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	w.onChange(cfg)
}
