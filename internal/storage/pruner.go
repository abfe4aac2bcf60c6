package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pruner evicts old recording directories from local disk. S3 retains
// everything permanently; the pruner only touches the local recordings root,
// and only after verifying every file of a recording exists in S3.
type Pruner struct {
	root      string
	retention time.Duration
	interval  time.Duration
	s3        *S3Store
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewPruner creates a pruner that removes recordings older than retention.
// A zero retention disables pruning.
func NewPruner(root string, retention time.Duration, s3 *S3Store, log zerolog.Logger) *Pruner {
	return &Pruner{
		root:      root,
		retention: retention,
		interval:  1 * time.Hour,
		s3:        s3,
		log:       log.With().Str("component", "pruner").Logger(),
		stop:      make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	go p.loop()
}

func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pruner) loop() {
	// Run once on startup to clear any backlog from downtime
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

func (p *Pruner) prune() {
	if p.retention == 0 {
		return
	}
	cutoff := time.Now().Add(-p.retention)

	entries, err := os.ReadDir(p.root)
	if err != nil {
		return
	}

	var pruned, skipped int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(p.root, entry.Name())
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if !p.fullyArchived(dir) {
			skipped++
			p.log.Warn().Str("dir", dir).Msg("skipping prune: recording not fully in S3")
			continue
		}
		if err := os.RemoveAll(dir); err == nil {
			pruned++
		}
	}

	if pruned > 0 || skipped > 0 {
		p.log.Info().
			Int("pruned", pruned).
			Int("skipped_not_in_s3", skipped).
			Msg("recordings prune complete")
	}
}

// fullyArchived reports whether every file of one recording exists in S3.
func (p *Pruner) fullyArchived(dir string) bool {
	files, err := os.ReadDir(dir)
	if err != nil || len(files) == 0 {
		return false
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		rel, err := filepath.Rel(p.root, filepath.Join(dir, f.Name()))
		if err != nil {
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		inS3 := p.s3.Exists(ctx, filepath.ToSlash(rel))
		cancel()
		if !inS3 {
			return false
		}
	}
	return true
}
