package sharedlog

import (
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fora-lang/cumulus/pkg/errors"
	"github.com/fora-lang/cumulus/pkg/utils"
)

// defaultFlushInterval is how often the background loop wakes to flush
// writers that went dirty since the previous tick.
const defaultFlushInterval = time.Second

// OnFatal is invoked when a write fails with an out-of-space condition.
// The durability contract treats this as a correctness boundary: the
// default implementation logs and aborts the process. Tests substitute a
// non-exiting hook.
type OnFatal func(logger utils.Logger, path string, err error)

func defaultOnFatal(logger utils.Logger, path string, err error) {
	logger.Error("sharedlog: fatal out-of-space writing log frame, aborting process path=%s error=%v", path, err)
	os.Exit(1)
}

// OpenFiles is an LRU of at most maxOpen open writer handles keyed by
// path, with a background flush loop mirroring the teacher's
// ticker-driven goroutines in pkg/parallel's ProgressTracker.
type OpenFiles struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, *writer]
	clock    utils.Clock
	logger   utils.Logger
	onFatal  OnFatal
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds an OpenFiles cache capped at maxOpen simultaneously open
// writers and starts its background flusher, waking roughly once per
// second.
func New(maxOpen int, clock utils.Clock, logger utils.Logger) (*OpenFiles, error) {
	return newWithInterval(maxOpen, clock, logger, defaultFlushInterval)
}

func newWithInterval(maxOpen int, clock utils.Clock, logger utils.Logger, interval time.Duration) (*OpenFiles, error) {
	if maxOpen <= 0 {
		maxOpen = 1
	}
	if clock == nil {
		clock = utils.NewRealClock()
	}
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}

	of := &OpenFiles{
		clock:    clock,
		logger:   logger,
		onFatal:  defaultOnFatal,
		interval: interval,
		stopCh:   make(chan struct{}),
	}

	cache, err := lru.NewWithEvict[string, *writer](maxOpen, func(_ string, w *writer) {
		if err := w.close(); err != nil {
			of.logger.Warn("sharedlog: error closing evicted writer path=%s error=%v", w.path, err)
		}
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvariantViolation, "sharedlog: failed to build open-file LRU", err)
	}
	of.cache = cache

	of.wg.Add(1)
	go of.flushLoop()
	return of, nil
}

// Append opens path if absent, evicting the least-recently-used open
// writer when at capacity, then frames and writes payload.
func (of *OpenFiles) Append(path string, payload []byte) error {
	w, err := of.getOrOpen(path)
	if err != nil {
		return err
	}
	fatal, err := w.append(payload)
	if fatal {
		of.onFatal(of.logger, path, err)
		return err // unreachable once onFatal aborts; kept for the injected test hook
	}
	return err
}

func (of *OpenFiles) getOrOpen(path string) (*writer, error) {
	of.mu.Lock()
	defer of.mu.Unlock()
	if w, ok := of.cache.Get(path); ok {
		return w, nil
	}
	w, err := openWriter(path)
	if err != nil {
		return nil, err
	}
	of.cache.Add(path, w)
	return w, nil
}

// Flush synchronously flushes path's writer, if open.
func (of *OpenFiles) Flush(path string) error {
	of.mu.Lock()
	w, ok := of.cache.Get(path)
	of.mu.Unlock()
	if !ok {
		return nil
	}
	return w.flush()
}

// CloseFile synchronously flushes and closes path's writer, if open.
func (of *OpenFiles) CloseFile(path string) error {
	of.mu.Lock()
	w, ok := of.cache.Peek(path)
	if ok {
		of.cache.Remove(path)
	}
	of.mu.Unlock()
	if !ok {
		return nil
	}
	return w.close()
}

// ReadFileAsStringVector reads the entire file at path into the vector
// of frame payloads validated from its prefix.
func (of *OpenFiles) ReadFileAsStringVector(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return readAllFrames(f)
}

// Shutdown stops the background flusher and closes every open writer.
// The flusher goroutine is joined before Shutdown returns.
func (of *OpenFiles) Shutdown() error {
	of.stopOnce.Do(func() { close(of.stopCh) })
	of.wg.Wait()

	of.mu.Lock()
	defer of.mu.Unlock()
	var firstErr error
	for _, path := range of.cache.Keys() {
		if w, ok := of.cache.Peek(path); ok {
			if err := w.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	of.cache.Purge()
	return firstErr
}

func (of *OpenFiles) flushLoop() {
	defer of.wg.Done()
	ticker := of.clock.NewTicker(of.interval)
	defer ticker.Stop()
	for {
		select {
		case <-of.stopCh:
			return
		case <-ticker.C:
			of.flushDirty()
		}
	}
}

func (of *OpenFiles) flushDirty() {
	of.mu.Lock()
	writers := make([]*writer, 0, of.cache.Len())
	for _, path := range of.cache.Keys() {
		if w, ok := of.cache.Peek(path); ok {
			writers = append(writers, w)
		}
	}
	of.mu.Unlock()

	for _, w := range writers {
		if err := w.flush(); err != nil {
			of.logger.Warn("sharedlog: periodic flush failed path=%s error=%v", w.path, err)
		}
	}
}
