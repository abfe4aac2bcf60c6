// Package recorder persists live sessions to disk and loads them back for
// replay. A recording is a directory {year}-{sessionKey} holding
// metadata.json, subscribe.json (the initial snapshot), and live.jsonl — one
// {"ts","topic","data"} object per line, append-only. Replaying the JSONL
// through the pipeline reproduces the live run exactly.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/metrics"
	"github.com/snarg/f12mqtt/internal/model"
)

const (
	metadataFile = "metadata.json"
	initialFile  = "subscribe.json"
	logFile      = "live.jsonl"
)

// Metadata identifies a recorded session.
type Metadata struct {
	SessionKey  string `json:"sessionKey"`
	Year        int    `json:"year"`
	SessionName string `json:"sessionName"`
	SessionType string `json:"sessionType"`
	Circuit     string `json:"circuit"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime,omitempty"`
}

// DirName returns the recording directory name for this session.
func (m Metadata) DirName() string {
	return fmt.Sprintf("%d-%s", m.Year, m.SessionKey)
}

// Recorder tees live messages to disk. One writer owns the append stream;
// Write failures drop the entry with a log line and recording continues.
type Recorder struct {
	baseDir string
	log     zerolog.Logger

	mu      sync.Mutex
	dir     string
	meta    Metadata
	file    *os.File
	w       *bufio.Writer
	started bool
}

func New(baseDir string, log zerolog.Logger) *Recorder {
	return &Recorder{
		baseDir: baseDir,
		log:     log.With().Str("component", "recorder").Logger(),
	}
}

// Start creates the session directory and writes metadata and the initial
// snapshot. An already running recording is stopped first.
func (r *Recorder) Start(meta Metadata, initial *model.Snapshot) error {
	r.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Join(r.baseDir, meta.DirName())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return err
	}
	if initial == nil {
		initial = model.NewSnapshot()
	}
	if err := writeJSON(filepath.Join(dir, initialFile), initial); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open live log: %w", err)
	}

	r.dir = dir
	r.meta = meta
	r.file = f
	r.w = bufio.NewWriter(f)
	r.started = true
	r.log.Info().Str("dir", dir).Str("session", meta.SessionName).Msg("recording started")
	return nil
}

// Write appends one message to the live log. No-op when not recording.
func (r *Recorder) Write(msg model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	line, err := json.Marshal(msg)
	if err != nil {
		r.log.Warn().Err(err).Str("topic", msg.Topic).Msg("dropping unencodable message")
		return
	}
	if _, err := r.w.Write(append(line, '\n')); err != nil {
		r.log.Warn().Err(err).Str("topic", msg.Topic).Msg("recording write failed, entry dropped")
		return
	}
	metrics.RecorderWritesTotal.Inc()
}

// Active reports whether a recording is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Dir returns the directory of the recording in progress, or "".
func (r *Recorder) Dir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return ""
	}
	return r.dir
}

// Stop flushes and closes the live log, stamping the end time into metadata.
// Idempotent.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	if err := r.w.Flush(); err != nil {
		r.log.Warn().Err(err).Msg("flush on stop failed")
	}
	if err := r.file.Close(); err != nil {
		r.log.Warn().Err(err).Msg("close on stop failed")
	}
	if r.meta.EndTime == "" {
		r.meta.EndTime = nowUTC()
	}
	if err := writeJSON(filepath.Join(r.dir, metadataFile), r.meta); err != nil {
		r.log.Warn().Err(err).Msg("metadata end-time update failed")
	}
	r.log.Info().Str("dir", r.dir).Msg("recording stopped")
	r.started = false
	r.file = nil
	r.w = nil
}

// SetEndTime stamps the session end time used when Stop finalizes metadata.
func (r *Recorder) SetEndTime(ts string) {
	r.mu.Lock()
	r.meta.EndTime = ts
	r.mu.Unlock()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
