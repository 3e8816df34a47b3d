//go:build darwin

// internal/daemon/watch_darwin.go
package daemon

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsevents"
)

// fseventsWatcher watches the rules directory with macOS FSEvents, which
// follows paths rather than descriptors and is recursive.
type fseventsWatcher struct {
	stream *fsevents.EventStream
	events chan string
	errors chan error
	done   chan struct{}
	once   sync.Once
}

func newDirWatcher(paths []string) (dirWatcher, error) {
	stream := &fsevents.EventStream{
		Paths:   paths[:1],
		Latency: 0,
		Flags:   fsevents.FileEvents | fsevents.WatchRoot | fsevents.NoDefer,
	}
	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("starting fsevents stream: %w", err)
	}

	fw := &fseventsWatcher{
		stream: stream,
		events: make(chan string),
		errors: make(chan error),
		done:   make(chan struct{}),
	}
	go fw.forward()
	return fw, nil
}

func (f *fseventsWatcher) forward() {
	defer close(f.events)
	for {
		select {
		case batch, ok := <-f.stream.Events:
			if !ok {
				return
			}
			for _, ev := range batch {
				if ev.Flags&(fsevents.MustScanSubDirs|fsevents.KernelDropped|fsevents.UserDropped) != 0 {
					select {
					case f.errors <- fmt.Errorf("fsevents queue overflow at %s", ev.Path):
					case <-f.done:
						return
					}
					continue
				}
				select {
				case f.events <- ev.Path:
				case <-f.done:
					return
				}
			}
		case <-f.done:
			return
		}
	}
}

func (f *fseventsWatcher) Events() <-chan string { return f.events }
func (f *fseventsWatcher) Errors() <-chan error  { return f.errors }

func (f *fseventsWatcher) Close() error {
	f.once.Do(func() {
		close(f.done)
		f.stream.Stop()
	})
	return nil
}
