package playback

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/model"
	"github.com/snarg/f12mqtt/internal/state"
	"github.com/snarg/f12mqtt/internal/timeline"
)

// archiveTopics are the feed regions the historical archive replays. The
// archive stores one line-delimited stream per topic, each line being a
// session-relative offset followed by the raw JSON payload.
var archiveTopics = []string{
	state.TopicTrackStatus,
	state.TopicTimingData,
	state.TopicTimingApp,
	state.TopicDriverList,
}

// ArchiveSource shapes the historical REST archive into the same
// (timestamp, topic, data) triples a recording produces. Offsets are rebased
// onto the session start time so timeline ordering and pacing work unchanged.
type ArchiveSource struct {
	baseURL     string
	sessionPath string
	start       time.Time
	client      *http.Client
	log         zerolog.Logger

	tl *timeline.Timeline
}

type ArchiveOptions struct {
	BaseURL      string // e.g. https://livetiming.formula1.com/static
	SessionPath  string // archive path for the session, trailing slash
	SessionStart time.Time
	Log          zerolog.Logger
}

func NewArchiveSource(opts ArchiveOptions) *ArchiveSource {
	return &ArchiveSource{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		sessionPath: opts.SessionPath,
		start:       opts.SessionStart.UTC(),
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         opts.Log.With().Str("component", "archive-source").Logger(),
	}
}

// Fetch downloads all topic streams and builds the sorted timeline. A topic
// that fails to download is skipped with a warning; the replay proceeds with
// whatever arrived.
func (s *ArchiveSource) Fetch(ctx context.Context) error {
	var entries []model.Message
	fetched := 0
	for _, topic := range archiveTopics {
		topicEntries, err := s.fetchTopic(ctx, topic)
		if err != nil {
			s.log.Warn().Err(err).Str("topic", topic).Msg("archive topic unavailable")
			continue
		}
		entries = append(entries, topicEntries...)
		fetched++
	}
	if fetched == 0 {
		return fmt.Errorf("archive: no topics available under %s", s.sessionPath)
	}
	s.tl = timeline.New(entries)
	s.log.Info().Int("entries", s.tl.Len()).Int("topics", fetched).Msg("archive timeline built")
	return nil
}

func (s *ArchiveSource) fetchTopic(ctx context.Context, topic string) ([]model.Message, error) {
	url := fmt.Sprintf("%s/%s%s.jsonStream", s.baseURL, s.sessionPath, topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	var entries []model.Message
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		offset, payload, ok := splitStreamLine(line)
		if !ok {
			continue
		}
		entries = append(entries, model.Message{
			TS:    s.start.Add(offset).Format(time.RFC3339Nano),
			Topic: topic,
			Data:  []byte(payload),
		})
	}
	return entries, scanner.Err()
}

// splitStreamLine splits an archive line into its session offset and JSON
// payload. Lines look like `00:01:23.456{"Status":"1",...}`.
func splitStreamLine(line string) (time.Duration, string, bool) {
	idx := strings.IndexAny(line, "{[")
	if idx <= 0 {
		return 0, "", false
	}
	offset, ok := parseOffset(strings.TrimSpace(line[:idx]))
	if !ok {
		return 0, "", false
	}
	return offset, line[idx:], true
}

// parseOffset parses "HH:MM:SS.mmm" into a duration.
func parseOffset(s string) (time.Duration, bool) {
	var h, m int
	var sec float64
	if _, err := fmt.Sscanf(s, "%d:%d:%f", &h, &m, &sec); err != nil {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)), true
}

// Timeline exposes the fetched entries. Nil before Fetch succeeds.
func (s *ArchiveSource) Timeline() *timeline.Timeline {
	return s.tl
}

// InitialState is always nil: the archive replays from defaults.
func (s *ArchiveSource) InitialState() *model.Snapshot { return nil }
