package publisher

import "fmt"

// discoveryConfig is a Home Assistant MQTT discovery payload. Publishing an
// empty retained payload on a config topic removes the entity — that is the
// whole deregistration mechanism for ephemeral (session-long) entities.
type discoveryConfig struct {
	Name                string        `json:"name"`
	UniqueID            string        `json:"unique_id"`
	StateTopic          string        `json:"state_topic"`
	AvailabilityTopic   string        `json:"availability_topic"`
	PayloadAvailable    string        `json:"payload_available"`
	PayloadNotAvailable string        `json:"payload_not_available"`
	Icon                string        `json:"icon,omitempty"`
	ValueTemplate       string        `json:"value_template,omitempty"`
	Device              *deviceConfig `json:"device,omitempty"`
}

type deviceConfig struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
}

func (p *Publisher) device() *deviceConfig {
	return &deviceConfig{
		Identifiers:  []string{p.prefix},
		Name:         "F1 Bridge",
		Manufacturer: "f12mqtt",
	}
}

// sensor builds a discovery config for one sensor entity and returns its
// config topic plus payload.
func (p *Publisher) sensor(objectID, name, stateTopic, icon, valueTemplate string) (string, discoveryConfig) {
	configTopic := fmt.Sprintf("%s/sensor/%s_%s/config", p.discoveryPrefix, p.prefix, objectID)
	return configTopic, discoveryConfig{
		Name:                name,
		UniqueID:            p.prefix + "_" + objectID,
		StateTopic:          stateTopic,
		AvailabilityTopic:   p.StatusTopic(),
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Icon:                icon,
		ValueTemplate:       valueTemplate,
		Device:              p.device(),
	}
}

// RegisterPersistentEntities publishes discovery configs for entities that
// outlive sessions: season standings and the next scheduled race. Called once
// at startup; configs are retained so a restart is a republish.
func (p *Publisher) RegisterPersistentEntities() {
	persistent := []struct {
		objectID, name, stateSuffix, icon string
	}{
		{"last_winner", "Last Race Winner", "standings/last_winner", "mdi:trophy"},
		{"drivers_leader", "Drivers Championship Leader", "standings/drivers_leader", "mdi:account-star"},
		{"constructors_leader", "Constructors Championship Leader", "standings/constructors_leader", "mdi:factory"},
		{"next_race", "Next Race", "schedule/next_race", "mdi:calendar-clock"},
	}
	for _, e := range persistent {
		topic, cfg := p.sensor(e.objectID, e.name, p.topic(e.stateSuffix), e.icon, "")
		p.publishJSON(topic, cfg, true)
	}
	p.log.Info().Int("entities", len(persistent)).Msg("persistent entities registered")
}

// RegisterSessionEntities publishes discovery configs for the session-long
// entity set: base session sensors, three sensors per favourite driver, and
// the playback status sensor. It marks the session active, which enables
// state publication.
func (p *Publisher) RegisterSessionEntities() {
	p.mu.Lock()
	favourites := append([]string(nil), p.favourites...)
	p.ephemeral = p.ephemeral[:0]
	p.mu.Unlock()

	var topics []string
	reg := func(objectID, name, stateSuffix, icon, tmpl string) {
		topic, cfg := p.sensor(objectID, name, p.topic(stateSuffix), icon, tmpl)
		p.publishJSON(topic, cfg, true)
		topics = append(topics, topic)
	}

	reg("session_flag", "Track Flag", "session/flag", "mdi:flag", "")
	reg("session_lap", "Lap", "session/lap", "mdi:counter", "")
	reg("session_leader", "Race Leader", "session/leader", "mdi:podium-gold",
		"{{ value_json.abbreviation }}")
	reg("session_weather", "Track Weather", "session/weather", "mdi:weather-partly-cloudy",
		"{{ value_json.trackTemp }}")
	reg("race_control", "Race Control", "session/race_control", "mdi:bullhorn",
		"{{ value_json.message }}")
	reg("playback_state", "Playback", "playback/state", "mdi:play-pause",
		"{{ value_json.status }}")

	for _, num := range favourites {
		reg("driver_"+num+"_position", "Driver "+num+" Position", "driver/"+num+"/position", "mdi:numeric", "")
		reg("driver_"+num+"_gap", "Driver "+num+" Gap", "driver/"+num+"/gap", "mdi:timer-outline", "")
		reg("driver_"+num+"_tyre", "Driver "+num+" Tyre", "driver/"+num+"/tyre", "mdi:circle-outline", "")
	}

	p.mu.Lock()
	p.ephemeral = topics
	p.active = true
	p.mu.Unlock()

	p.publishString(p.topic("session/status"), "active", true)
	p.log.Info().
		Int("entities", len(topics)).
		Strs("favourites", favourites).
		Msg("session entities registered")
}

// DeregisterSessionEntities clears every remembered discovery topic with an
// empty retained payload, marks the session finished, and disables state
// publication.
func (p *Publisher) DeregisterSessionEntities() {
	p.mu.Lock()
	topics := p.ephemeral
	p.ephemeral = nil
	p.active = false
	p.mu.Unlock()

	for _, topic := range topics {
		p.publish(topic, []byte{}, true)
	}
	p.publishString(p.topic("session/status"), "finished", true)
	p.log.Info().Int("entities", len(topics)).Msg("session entities deregistered")
}
