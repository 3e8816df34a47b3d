//go:build !darwin

// internal/daemon/watch_other.go
package daemon

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type fsnotifyWatcher struct {
	w      *fsnotify.Watcher
	events chan string
	done   chan struct{}
	once   sync.Once
}

func newDirWatcher(paths []string) (dirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating rules watcher: %w", err)
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			w.Close()
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
	}

	fw := &fsnotifyWatcher{w: w, events: make(chan string), done: make(chan struct{})}
	go fw.forward()
	return fw, nil
}

func (f *fsnotifyWatcher) forward() {
	defer close(f.events)
	for {
		select {
		case ev, ok := <-f.w.Events:
			if !ok {
				return
			}
			select {
			case f.events <- ev.Name:
			case <-f.done:
				return
			}
		case <-f.done:
			return
		}
	}
}

func (f *fsnotifyWatcher) Events() <-chan string { return f.events }
func (f *fsnotifyWatcher) Errors() <-chan error  { return f.w.Errors }

func (f *fsnotifyWatcher) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		err = f.w.Close()
	})
	return err
}
