// internal/logging/rotating.go
package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DefaultGenerations is how many rotated files are kept.
const DefaultGenerations = 5

// RotatingWriter is an io.Writer that rotates its file once it would grow
// past maxSize bytes. Rotated files are gzipped as <path>.1.gz .. <path>.N.gz.
type RotatingWriter struct {
	path        string
	maxSize     int64
	generations int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens (or creates) path for appending.
func NewRotatingWriter(path string, maxSize int64) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	return &RotatingWriter{
		path:        path,
		maxSize:     maxSize,
		generations: DefaultGenerations,
		file:        f,
		size:        info.Size(),
	}, nil
}

// Write implements io.Writer.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *RotatingWriter) rotated(i int, gz bool) string {
	if gz {
		return fmt.Sprintf("%s.%d.gz", w.path, i)
	}
	return fmt.Sprintf("%s.%d", w.path, i)
}

func (w *RotatingWriter) rotate() error {
	w.file.Close()

	// Oldest generation falls off, the rest shift up by one.
	os.Remove(w.rotated(w.generations, true))
	os.Remove(w.rotated(w.generations, false))
	for i := w.generations - 1; i >= 1; i-- {
		os.Rename(w.rotated(i, true), w.rotated(i+1, true))
		os.Rename(w.rotated(i, false), w.rotated(i+1, false))
	}

	if err := compressFile(w.path, w.rotated(1, true)); err != nil {
		os.Remove(w.rotated(1, true))
		os.Rename(w.path, w.rotated(1, false))
	} else {
		os.Remove(w.path)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w.file = f
	w.size = 0
	return nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}
