package feed

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/model"
	"github.com/snarg/f12mqtt/internal/pipeline"
	"github.com/snarg/f12mqtt/internal/publisher"
	"github.com/snarg/f12mqtt/internal/recorder"
)

// Archiver receives finished recording directories for upload.
type Archiver interface {
	Enqueue(dir string)
}

// Bridge is the live-side Handler: it seeds the pipeline from the
// subscription reply, tees every message to the recorder, drives the
// publisher's session lifecycle, and pushes messages through the pipeline.
// The bridge is the single writer of the live pipeline's accumulator.
type Bridge struct {
	pipe     *pipeline.Pipeline
	rec      *recorder.Recorder
	pub      *publisher.Publisher
	archiver Archiver
	log      zerolog.Logger

	mu          sync.Mutex
	sessionOpen bool
}

type BridgeOptions struct {
	Pipeline  *pipeline.Pipeline
	Recorder  *recorder.Recorder
	Publisher *publisher.Publisher
	Archiver  Archiver // optional
	Log       zerolog.Logger
}

func NewBridge(opts BridgeOptions) *Bridge {
	return &Bridge{
		pipe:     opts.Pipeline,
		rec:      opts.Recorder,
		pub:      opts.Publisher,
		archiver: opts.Archiver,
		log:      opts.Log.With().Str("component", "bridge").Logger(),
	}
}

// InitialState seeds the accumulator with the full per-topic state, starts a
// recording, and opens the publisher session. Topics are applied in sorted
// order so reconnects are deterministic.
func (b *Bridge) InitialState(topics map[string]json.RawMessage, ts string) {
	acc := b.pipe.Accumulator()
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		acc.Apply(name, topics[name], ts)
	}
	snap := acc.Snapshot()

	b.mu.Lock()
	alreadyOpen := b.sessionOpen
	b.sessionOpen = true
	b.mu.Unlock()

	if !alreadyOpen {
		if err := b.rec.Start(sessionMetadata(snap, ts), snap); err != nil {
			b.log.Error().Err(err).Msg("recording start failed, session continues unrecorded")
		}
		b.pub.RegisterSessionEntities()
	}
	b.pub.Online()
	b.pub.PublishState(snap)
}

// Message tees one live message to the recorder and the pipeline, then
// checks for session end.
func (b *Bridge) Message(msg model.Message) {
	b.rec.Write(msg)
	b.pipe.Process(msg)

	if msg.Topic == "SessionData" && sessionFinalised(msg.Data) {
		b.endSession(msg.TS)
	}
}

// Disconnected marks the bridge unavailable until the next subscription
// reply arrives.
func (b *Bridge) Disconnected(error) {
	b.pub.Offline()
}

// EndSession closes the session explicitly (shutdown path).
func (b *Bridge) EndSession() {
	b.endSession(time.Now().UTC().Format(time.RFC3339))
}

func (b *Bridge) endSession(ts string) {
	b.mu.Lock()
	if !b.sessionOpen {
		b.mu.Unlock()
		return
	}
	b.sessionOpen = false
	b.mu.Unlock()

	dir := b.rec.Dir()
	b.rec.SetEndTime(ts)
	b.rec.Stop()
	b.pub.DeregisterSessionEntities()
	if b.archiver != nil && dir != "" {
		b.archiver.Enqueue(dir)
	}
	b.log.Info().Str("ended", ts).Msg("session closed")
}

// sessionFinalised reports whether a SessionData diff carries a terminal
// session status. The status series arrives as an array in full payloads and
// an index-keyed object in diffs.
func sessionFinalised(raw json.RawMessage) bool {
	var d struct {
		StatusSeries json.RawMessage `json:"StatusSeries"`
	}
	if err := json.Unmarshal(raw, &d); err != nil || len(d.StatusSeries) == 0 {
		return false
	}

	var entries []json.RawMessage
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(d.StatusSeries, &asMap); err == nil {
		for _, v := range asMap {
			entries = append(entries, v)
		}
	} else if err := json.Unmarshal(d.StatusSeries, &entries); err != nil {
		return false
	}

	for _, e := range entries {
		var st struct {
			SessionStatus string `json:"SessionStatus"`
		}
		if err := json.Unmarshal(e, &st); err != nil {
			continue
		}
		switch st.SessionStatus {
		case "Finalised", "Ends":
			return true
		}
	}
	return false
}

// sessionMetadata derives recording metadata from the seeded snapshot.
func sessionMetadata(snap *model.Snapshot, ts string) recorder.Metadata {
	meta := recorder.Metadata{StartTime: ts}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		meta.Year = t.UTC().Year()
	}
	if info := snap.SessionInfo; info != nil {
		meta.SessionName = info.Name
		meta.SessionType = string(info.Type)
		meta.Circuit = info.Circuit
		meta.SessionKey = slug(info.Name + "-" + string(info.Type))
		if info.StartTime != "" {
			meta.StartTime = info.StartTime
		}
	}
	if meta.SessionKey == "" {
		meta.SessionKey = "session-" + slug(ts)
	}
	return meta
}

// slug lowercases and squashes a name into a directory-safe token.
func slug(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
