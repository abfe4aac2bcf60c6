package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Archiver uploads finished recording directories to S3 in the background
// without blocking session teardown. The recording stays on local disk until
// the pruner verifies the upload.
type Archiver struct {
	s3       *S3Store
	root     string // recordings root; keys are relative to it
	ch       chan string
	log      zerolog.Logger
	stopped  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewArchiver creates a background archiver for recording directories under root.
func NewArchiver(s3 *S3Store, root string, log zerolog.Logger) *Archiver {
	return &Archiver{
		s3:   s3,
		root: root,
		ch:   make(chan string, 8),
		log:  log.With().Str("component", "archiver").Logger(),
	}
}

// Enqueue adds a recording directory for upload. Non-blocking; drops with a
// warning when the queue is full (the recording stays on disk and can be
// re-enqueued on restart).
func (a *Archiver) Enqueue(dir string) {
	if a.stopped.Load() {
		return
	}
	select {
	case a.ch <- dir:
	default:
		a.log.Warn().Str("dir", dir).Msg("archive queue full, recording stays local")
	}
}

// Start launches worker goroutines.
func (a *Archiver) Start(workers int) {
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	a.log.Info().Int("workers", workers).Msg("archiver started")
}

// Stop closes the queue and waits for in-flight uploads.
func (a *Archiver) Stop() {
	a.stopped.Store(true)
	a.stopOnce.Do(func() { close(a.ch) })
	a.wg.Wait()
}

func (a *Archiver) worker() {
	defer a.wg.Done()
	for dir := range a.ch {
		a.uploadDir(dir)
	}
}

// uploadDir uploads every file in one recording directory, keyed by its path
// relative to the recordings root.
func (a *Archiver) uploadDir(dir string) {
	var uploaded, failed int
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(a.root, path)
		if relErr != nil {
			return nil
		}
		key := filepath.ToSlash(rel)

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			a.log.Error().Err(readErr).Str("path", path).Msg("archive read failed")
			failed++
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		saveErr := a.s3.Save(ctx, key, data, contentTypeFor(path))
		cancel()
		if saveErr != nil {
			a.log.Error().Err(saveErr).Str("key", key).Msg("archive upload failed, recording stays local")
			failed++
			return nil
		}
		uploaded++
		return nil
	})
	a.log.Info().
		Str("dir", dir).
		Int("uploaded", uploaded).
		Int("failed", failed).
		Msg("recording archived")
}

func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	case strings.HasSuffix(path, ".jsonl"):
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
