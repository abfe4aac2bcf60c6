// Package publisher projects pipeline output onto the MQTT topic tree:
// retained state topics under a configurable prefix, non-retained event
// topics, Home Assistant discovery configs with a session-long lifecycle for
// ephemeral entities, and compact AWTRIX notifier payloads.
package publisher

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/event"
	"github.com/snarg/f12mqtt/internal/model"
	"github.com/snarg/f12mqtt/internal/pipeline"
	"github.com/snarg/f12mqtt/internal/playback"
)

// Client is the bus surface the publisher needs. *mqttclient.Client satisfies
// it; tests substitute a recorder fake.
type Client interface {
	Publish(topic string, payload []byte, retain bool) error
	IsConnected() bool
}

// Publisher owns the topic tree rooted at Prefix. The ephemeral entity set is
// written only by Register/DeregisterSessionEntities; state publication is
// enabled between those two calls.
type Publisher struct {
	client          Client
	prefix          string
	discoveryPrefix string
	notifier        NotifierOptions
	log             zerolog.Logger

	mu         sync.Mutex
	active     bool
	favourites []string
	ephemeral  []string // discovery config topics to clear on deregister
}

// NotifierOptions configures the AWTRIX LED-matrix integration.
type NotifierOptions struct {
	Enabled bool
	Prefix  string // device base topic, e.g. "awtrix_d0c550"
}

type Options struct {
	Client          Client
	Prefix          string // topic root, e.g. "f12mqtt"
	DiscoveryPrefix string // Home Assistant discovery root, default "homeassistant"
	Favourites      []string
	Notifier        NotifierOptions
	Log             zerolog.Logger
}

func New(opts Options) *Publisher {
	discovery := opts.DiscoveryPrefix
	if discovery == "" {
		discovery = "homeassistant"
	}
	return &Publisher{
		client:          opts.Client,
		prefix:          opts.Prefix,
		discoveryPrefix: discovery,
		notifier:        opts.Notifier,
		favourites:      opts.Favourites,
		log:             opts.Log.With().Str("component", "publisher").Logger(),
	}
}

func (p *Publisher) topic(suffix string) string {
	return p.prefix + "/" + suffix
}

// StatusTopic is the retained availability topic, also used as the Last-Will
// target by the MQTT client.
func (p *Publisher) StatusTopic() string {
	return p.topic("status")
}

func (p *Publisher) publish(topic string, payload []byte, retain bool) {
	if err := p.client.Publish(topic, payload, retain); err != nil {
		p.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

func (p *Publisher) publishJSON(topic string, v any, retain bool) {
	data, err := json.Marshal(v)
	if err != nil {
		p.log.Error().Err(err).Str("topic", topic).Msg("payload marshal failed")
		return
	}
	p.publish(topic, data, retain)
}

func (p *Publisher) publishString(topic, s string, retain bool) {
	p.publish(topic, []byte(s), retain)
}

// Online marks the bridge available.
func (p *Publisher) Online() {
	p.publishString(p.StatusTopic(), "online", true)
}

// Offline marks the bridge unavailable. Called on graceful shutdown; the LWT
// covers the ungraceful case.
func (p *Publisher) Offline() {
	p.publishString(p.StatusTopic(), "offline", true)
}

// SetFavourites replaces the favourite driver set used for per-driver
// entities. Takes effect at the next session registration.
func (p *Publisher) SetFavourites(nums []string) {
	p.mu.Lock()
	p.favourites = append([]string(nil), nums...)
	p.mu.Unlock()
}

// SessionActive reports whether state publication is currently enabled.
func (p *Publisher) SessionActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// PublishState projects one snapshot onto the retained state topics. It
// short-circuits when no session is active.
func (p *Publisher) PublishState(s *model.Snapshot) {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	favourites := p.favourites
	p.mu.Unlock()

	p.publishString(p.topic("session/flag"), string(s.TrackStatus.Flag), true)

	if s.LapCount.Total > 0 {
		p.publishString(p.topic("session/lap"),
			fmt.Sprintf("%d/%d", s.LapCount.Current, s.LapCount.Total), true)
	}
	if s.Weather != nil {
		p.publishJSON(p.topic("session/weather"), s.Weather, true)
	}
	if s.SessionInfo != nil {
		p.publishJSON(p.topic("session/info"), s.SessionInfo, true)
	}
	if s.LatestRaceControlMessage != nil {
		p.publishJSON(p.topic("session/race_control"), s.LatestRaceControlMessage, true)
	}

	if leader := s.Leader(); leader != "" {
		payload := map[string]string{"driverNumber": leader}
		if drv, ok := s.Drivers[leader]; ok {
			payload["abbreviation"] = drv.Abbreviation
			payload["teamColor"] = drv.TeamColor
		}
		p.publishJSON(p.topic("session/leader"), payload, true)
	}

	for _, num := range favourites {
		line, ok := s.Timing[num]
		if !ok {
			continue
		}
		base := p.topic("driver/" + num)
		p.publishString(base+"/position", fmt.Sprintf("%d", line.Position), true)
		gap := line.GapToLeader
		if line.Position == 1 {
			gap = "LEADER"
		}
		p.publishString(base+"/gap", gap, true)
		if stint, ok := s.Stints[num]; ok {
			p.publishString(base+"/tyre", string(stint.Compound), true)
		}
		p.publishString(base+"/status", driverStatus(line), true)
	}

	if p.notifier.Enabled {
		p.publishNotifierApps(s, favourites)
	}
}

func driverStatus(line model.TimingLine) string {
	switch {
	case line.Retired:
		return "retired"
	case line.InPit:
		return "pit"
	default:
		return "racing"
	}
}

// PublishEvent publishes one event object, unretained, on its event topic,
// plus the notifier decoration when enabled.
func (p *Publisher) PublishEvent(e event.Event) {
	p.publishJSON(p.topic("event/"+eventTopicSuffix(e.Type())), e, false)
	if p.notifier.Enabled {
		p.publishNotification(e)
	}
}

// PublishEvents publishes a batch in order.
func (p *Publisher) PublishEvents(events []event.Event) {
	for _, e := range events {
		p.PublishEvent(e)
	}
}

func eventTopicSuffix(eventType string) string {
	switch eventType {
	case event.TypeFlagChange:
		return "flag"
	case event.TypeWeatherChange:
		return "weather"
	default:
		return eventType
	}
}

// PublishPlaybackState mirrors the playback controller state, retained.
func (p *Publisher) PublishPlaybackState(st playback.State) {
	p.publishJSON(p.topic("playback/state"), st, true)
}

// CommandTopic is the playback control topic subscribed by the API wiring.
func (p *Publisher) CommandTopic() string {
	return p.topic("playback/command")
}

// PublishStandings republishes the season-long standings topics.
func (p *Publisher) PublishStandings(lastWinner, driversLeader, constructorsLeader string) {
	if lastWinner != "" {
		p.publishString(p.topic("standings/last_winner"), lastWinner, true)
	}
	if driversLeader != "" {
		p.publishString(p.topic("standings/drivers_leader"), driversLeader, true)
	}
	if constructorsLeader != "" {
		p.publishString(p.topic("standings/constructors_leader"), constructorsLeader, true)
	}
}

// PublishNextRace republishes the schedule topic.
func (p *Publisher) PublishNextRace(payload string) {
	if payload != "" {
		p.publishString(p.topic("schedule/next_race"), payload, true)
	}
}

// ── pipeline.Observer ────────────────────────────────────────────────

// OnEvent implements pipeline.Observer.
func (p *Publisher) OnEvent(e event.Event) {
	p.PublishEvent(e)
}

// OnUpdate implements pipeline.Observer.
func (p *Publisher) OnUpdate(u pipeline.Update) {
	p.PublishState(u.Snapshot)
}
