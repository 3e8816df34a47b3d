// internal/daemon/watch.go
package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// reloadDebounce is how long the rules directory must be quiet before a
// reload.
const reloadDebounce = 1 * time.Second

// dirWatcher reports paths that changed under the rules directory.
type dirWatcher interface {
	Events() <-chan string
	Errors() <-chan error
	Close() error
}

// watchPaths returns the directories to watch: the rules directory and,
// when a profile is selected and has one, the profile directory.
func (d *Daemon) watchPaths() []string {
	paths := []string{d.rulesDir}
	if p := d.config.Engine.Profile; p != "" {
		dir := filepath.Join(d.rulesDir, p)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			paths = append(paths, dir)
		}
	}
	return paths
}

// watchRules reloads the rules whenever a rule file changes. A watcher that
// cannot start is logged and hot reload stays off.
func (d *Daemon) watchRules(ctx context.Context) error {
	w, err := newDirWatcher(d.watchPaths())
	if err != nil {
		d.logger.Error("could not watch rules directory", "error", err, "dir", d.rulesDir)
		return nil
	}
	defer w.Close()

	d.logger.Info("hot-reload watcher started", "dir", d.rulesDir)
	debounceReload(ctx, w, reloadDebounce, d.logger, func() {
		d.logger.Info("reloading rules (hot-reload)")
		d.reloadRules()
	})
	return nil
}

// debounceReload calls reload once the watcher has reported no YAML change
// for delay. It returns when ctx is done or the watcher closes.
func debounceReload(ctx context.Context, w dirWatcher, delay time.Duration, logger *slog.Logger, reload func()) {
	var debounceTimer *time.Timer
	debounceCh := make(chan struct{}, 1)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case name, ok := <-w.Events():
			if !ok {
				return
			}
			if ext := filepath.Ext(name); ext != ".yaml" && ext != ".yml" {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(delay, func() {
				select {
				case debounceCh <- struct{}{}:
				default:
				}
			})

		case <-debounceCh:
			reload()

		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			logger.Error("rules watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}
