package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vaultgate/vaultgate/internal/logging"
)

// Watcher reloads the config file on change and hands the parsed result
// to OnChange. Reload failures keep the previous config and log.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *logging.Logger
	done    chan struct{}

	// OnChange receives each successfully reloaded config.
	OnChange func(*Config)
}

// NewWatcher starts watching the config file's directory. Watching the
// directory, not the file, survives editors that replace the file on
// save.
func NewWatcher(path string, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.New().WithComponent("config")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	w := &Watcher{
		path:    path,
		watcher: fsw,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	// Editors emit bursts of events per save; debounce them.
	var pending <-chan time.Time
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", map[string]interface{}{"error": err.Error()})
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("config reload failed", map[string]interface{}{
			"path":  w.path,
			"error": err.Error(),
		})
		return
	}
	w.logger.Info("config reloaded", map[string]interface{}{"path": w.path})
	if w.OnChange != nil {
		w.OnChange(cfg)
	}
}
