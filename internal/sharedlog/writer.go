package sharedlog

import (
	"bufio"
	"os"
	"strings"
	"sync"
)

// writer owns one open append-mode file handle plus a dirty flag the
// background flusher consumes.
type writer struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	buf   *bufio.Writer
	dirty bool
}

func openWriter(path string) (*writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &writer{
		path: path,
		file: f,
		buf:  bufio.NewWriter(f),
	}, nil
}

// append writes one framed payload and marks the writer dirty. It
// returns true as the second result when the failure is a fatal
// out-of-space condition the caller must abort the process over.
func (w *writer) append(payload []byte) (fatal bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := writeFrame(w.buf, payload); err != nil {
		return isNoSpace(err), err
	}
	w.dirty = true
	return false, nil
}

func (w *writer) flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *writer) flushLocked() error {
	if !w.dirty {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.dirty = false
	return nil
}

func (w *writer) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	flushErr := w.flushLocked()
	closeErr := w.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// isNoSpace reports whether err looks like an ENOSPC condition. The
// checksummed-log durability contract treats this as fatal: the process
// is expected to abort rather than silently drop writes.
func isNoSpace(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "no space")
}
