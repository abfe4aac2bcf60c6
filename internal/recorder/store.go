package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/model"
)

// Session is one recorded session as listed by the store.
type Session struct {
	ID       string   `json:"id"` // directory name, {year}-{sessionKey}
	Metadata Metadata `json:"metadata"`
	Entries  int      `json:"entries"`
}

// Recording is a fully loaded recorded session. Missing files are tolerated:
// a recording may have a nil initial state and an empty entry list.
type Recording struct {
	Metadata Metadata
	Initial  *model.Snapshot
	Entries  []model.Message
}

// Store lists and loads recordings from the base directory. With Watch
// running it keeps an fsnotify-backed index so listings don't rescan the
// tree on every request.
type Store struct {
	baseDir string
	log     zerolog.Logger

	mu       sync.RWMutex
	index    []Session
	watching bool
}

func NewStore(baseDir string, log zerolog.Logger) *Store {
	return &Store{
		baseDir: baseDir,
		log:     log.With().Str("component", "recording-store").Logger(),
	}
}

// List returns all recordings, newest start time first.
func (s *Store) List() []Session {
	s.mu.RLock()
	if s.watching {
		out := make([]Session, len(s.index))
		copy(out, s.index)
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()
	return s.scan()
}

// scan walks the immediate subdirectories looking for metadata.json.
func (s *Store) scan() []Session {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil
	}
	var sessions []Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sess, err := s.readSession(e.Name())
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Metadata.StartTime > sessions[j].Metadata.StartTime
	})
	return sessions
}

func (s *Store) readSession(dirName string) (Session, error) {
	dir := filepath.Join(s.baseDir, dirName)
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return Session{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Session{}, err
	}
	return Session{ID: dirName, Metadata: meta, Entries: countLines(filepath.Join(dir, logFile))}, nil
}

// Load reads one recording by ID. subscribe.json and live.jsonl are optional;
// malformed log lines are skipped.
func (s *Store) Load(id string) (*Recording, error) {
	dir := filepath.Join(s.baseDir, filepath.Base(id))
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("recording %s: %w", id, err)
	}
	rec := &Recording{}
	if err := json.Unmarshal(data, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("recording %s metadata: %w", id, err)
	}

	if data, err := os.ReadFile(filepath.Join(dir, initialFile)); err == nil {
		snap := model.NewSnapshot()
		if err := json.Unmarshal(data, snap); err == nil {
			rec.Initial = snap
		}
	}

	f, err := os.Open(filepath.Join(dir, logFile))
	if err != nil {
		return rec, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	skipped := 0
	for scanner.Scan() {
		var msg model.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			skipped++
			continue
		}
		rec.Entries = append(rec.Entries, msg)
	}
	if skipped > 0 {
		s.log.Warn().Int("skipped", skipped).Str("id", id).Msg("malformed log lines skipped")
	}
	return rec, nil
}

// Watch keeps the listing index fresh via fsnotify until ctx is cancelled.
// Directory events are debounced because a new recording writes three files
// in quick succession.
func (s *Store) Watch(ctx context.Context) error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.baseDir); err != nil {
		w.Close()
		return err
	}

	s.mu.Lock()
	s.index = s.scan()
	s.watching = true
	s.mu.Unlock()
	s.log.Info().Str("dir", s.baseDir).Int("recordings", len(s.index)).Msg("watching recordings")

	go func() {
		defer w.Close()
		refresh := time.NewTimer(0)
		if !refresh.Stop() {
			<-refresh.C
		}
		defer refresh.Stop()
		for {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.watching = false
				s.mu.Unlock()
				return
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				refresh.Reset(500 * time.Millisecond)
			case <-refresh.C:
				idx := s.scan()
				s.mu.Lock()
				s.index = idx
				s.mu.Unlock()
				s.log.Debug().Int("recordings", len(idx)).Msg("recording index refreshed")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Error().Err(err).Msg("fsnotify error")
			}
		}
	}()
	return nil
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		n++
	}
	return n
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
