package publisher

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/event"
	"github.com/snarg/f12mqtt/internal/model"
	"github.com/snarg/f12mqtt/internal/playback"
)

// fakeClient records every publish for assertions.
type fakeClient struct {
	published []publishedMessage
}

type publishedMessage struct {
	Topic   string
	Payload string
	Retain  bool
}

func (f *fakeClient) Publish(topic string, payload []byte, retain bool) error {
	f.published = append(f.published, publishedMessage{topic, string(payload), retain})
	return nil
}

func (f *fakeClient) IsConnected() bool { return true }

func (f *fakeClient) find(topic string) (publishedMessage, bool) {
	for _, m := range f.published {
		if m.Topic == topic {
			return m, true
		}
	}
	return publishedMessage{}, false
}

func (f *fakeClient) last(topic string) (publishedMessage, bool) {
	for i := len(f.published) - 1; i >= 0; i-- {
		if f.published[i].Topic == topic {
			return f.published[i], true
		}
	}
	return publishedMessage{}, false
}

func newTestPublisher(favourites []string, notifier bool) (*Publisher, *fakeClient) {
	client := &fakeClient{}
	p := New(Options{
		Client:     client,
		Prefix:     "f1",
		Favourites: favourites,
		Notifier:   NotifierOptions{Enabled: notifier, Prefix: "awtrix"},
		Log:        zerolog.Nop(),
	})
	return p, client
}

func raceSnapshot() *model.Snapshot {
	s := model.NewSnapshot()
	s.TrackStatus = model.TrackStatus{Flag: model.FlagYellow, Message: "YELLOW IN SECTOR 2"}
	s.LapCount = model.LapCount{Current: 14, Total: 57}
	s.Weather = &model.Weather{AirTemp: 24, TrackTemp: 41}
	s.Drivers["1"] = model.Driver{DriverNumber: "1", Abbreviation: "VER", TeamColor: "3671C6"}
	s.Drivers["44"] = model.Driver{DriverNumber: "44", Abbreviation: "HAM", TeamColor: "00D2BE"}
	s.Timing["1"] = model.TimingLine{Position: 1}
	s.Timing["44"] = model.TimingLine{Position: 2, GapToLeader: "+1.234"}
	s.Stints["44"] = model.Stint{StintNumber: 1, Compound: model.CompoundHard}
	return s
}

func TestAvailability(t *testing.T) {
	p, client := newTestPublisher(nil, false)
	p.Online()
	p.Offline()

	if m, ok := client.find("f1/status"); !ok || m.Payload != "online" || !m.Retain {
		t.Errorf("online publish = %+v", m)
	}
	if m, ok := client.last("f1/status"); !ok || m.Payload != "offline" || !m.Retain {
		t.Errorf("offline publish = %+v", m)
	}
}

func TestPublishStateInactiveIsSilent(t *testing.T) {
	p, client := newTestPublisher(nil, false)
	p.PublishState(raceSnapshot())
	if len(client.published) != 0 {
		t.Errorf("published %d messages without an active session", len(client.published))
	}
}

func TestPublishState(t *testing.T) {
	p, client := newTestPublisher([]string{"1", "44"}, false)
	p.RegisterSessionEntities()
	client.published = nil
	p.PublishState(raceSnapshot())

	t.Run("flag", func(t *testing.T) {
		m, ok := client.find("f1/session/flag")
		if !ok || m.Payload != "yellow" || !m.Retain {
			t.Errorf("flag publish = %+v", m)
		}
	})

	t.Run("lap", func(t *testing.T) {
		m, ok := client.find("f1/session/lap")
		if !ok || m.Payload != "14/57" {
			t.Errorf("lap publish = %+v", m)
		}
	})

	t.Run("leader", func(t *testing.T) {
		m, ok := client.find("f1/session/leader")
		if !ok {
			t.Fatal("no leader publish")
		}
		var leader map[string]string
		if err := json.Unmarshal([]byte(m.Payload), &leader); err != nil {
			t.Fatalf("leader payload: %v", err)
		}
		if leader["driverNumber"] != "1" || leader["abbreviation"] != "VER" {
			t.Errorf("leader = %v", leader)
		}
	})

	t.Run("leader_gap_literal", func(t *testing.T) {
		m, ok := client.find("f1/driver/1/gap")
		if !ok || m.Payload != "LEADER" {
			t.Errorf("P1 gap = %+v, want LEADER literal", m)
		}
		m, ok = client.find("f1/driver/44/gap")
		if !ok || m.Payload != "+1.234" {
			t.Errorf("P2 gap = %+v", m)
		}
	})

	t.Run("tyre", func(t *testing.T) {
		m, ok := client.find("f1/driver/44/tyre")
		if !ok || m.Payload != "HARD" {
			t.Errorf("tyre = %+v", m)
		}
	})

	t.Run("driver_status", func(t *testing.T) {
		m, ok := client.find("f1/driver/1/status")
		if !ok || m.Payload != "racing" {
			t.Errorf("status = %+v", m)
		}
	})

	t.Run("all_state_retained", func(t *testing.T) {
		for _, m := range client.published {
			if !m.Retain {
				t.Errorf("state topic %s not retained", m.Topic)
			}
		}
	})
}

func TestPublishStateLapOmittedWithoutTotal(t *testing.T) {
	p, client := newTestPublisher(nil, false)
	p.RegisterSessionEntities()
	client.published = nil

	s := raceSnapshot()
	s.LapCount = model.LapCount{} // practice/quali: no lap counter
	p.PublishState(s)
	if _, ok := client.find("f1/session/lap"); ok {
		t.Error("lap topic published with zero total")
	}
}

func TestDriverStatusPriority(t *testing.T) {
	tests := []struct {
		name string
		line model.TimingLine
		want string
	}{
		{"racing", model.TimingLine{}, "racing"},
		{"pit", model.TimingLine{InPit: true}, "pit"},
		{"retired_wins_over_pit", model.TimingLine{InPit: true, Retired: true}, "retired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := driverStatus(tt.line); got != tt.want {
				t.Errorf("driverStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPublishEvent(t *testing.T) {
	p, client := newTestPublisher(nil, false)
	p.PublishEvent(event.FlagChange{PreviousFlag: model.FlagGreen, NewFlag: model.FlagSC})
	p.PublishEvent(event.Overtake{OvertakingDriver: "44", OvertakenDriver: "1", NewPosition: 1})
	p.PublishEvent(event.PitStop{DriverNumber: "44", NewCompound: model.CompoundHard, StintNumber: 1})
	p.PublishEvent(event.WeatherChange{NewRainfall: true})

	wantTopics := []string{
		"f1/event/flag",
		"f1/event/overtake",
		"f1/event/pit_stop",
		"f1/event/weather",
	}
	for _, topic := range wantTopics {
		m, ok := client.find(topic)
		if !ok {
			t.Errorf("missing event topic %s", topic)
			continue
		}
		if m.Retain {
			t.Errorf("event topic %s retained; events must not be", topic)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	p, client := newTestPublisher([]string{"44"}, false)
	p.RegisterSessionEntities()

	if !p.SessionActive() {
		t.Fatal("session not active after registration")
	}
	if m, ok := client.find("f1/session/status"); !ok || m.Payload != "active" || !m.Retain {
		t.Errorf("session status = %+v", m)
	}

	var configTopics []string
	for _, m := range client.published {
		if strings.HasSuffix(m.Topic, "/config") {
			configTopics = append(configTopics, m.Topic)
			if !m.Retain {
				t.Errorf("discovery config %s not retained", m.Topic)
			}
		}
	}
	// 6 base sensors + 3 per favourite.
	if len(configTopics) != 9 {
		t.Errorf("config topics = %d, want 9", len(configTopics))
	}

	client.published = nil
	p.DeregisterSessionEntities()

	if p.SessionActive() {
		t.Error("session still active after deregistration")
	}
	cleared := 0
	for _, m := range client.published {
		if strings.HasSuffix(m.Topic, "/config") {
			if m.Payload != "" || !m.Retain {
				t.Errorf("deregister publish = %+v, want empty retained payload", m)
			}
			cleared++
		}
	}
	if cleared != len(configTopics) {
		t.Errorf("cleared %d config topics, want %d", cleared, len(configTopics))
	}
	if m, ok := client.find("f1/session/status"); !ok || m.Payload != "finished" {
		t.Errorf("session status = %+v, want finished", m)
	}
}

func TestPublishPlaybackState(t *testing.T) {
	p, client := newTestPublisher(nil, false)
	p.PublishPlaybackState(playback.State{Status: playback.StatusPlaying, Index: 10, Length: 100, Speed: 2})
	m, ok := client.find("f1/playback/state")
	if !ok || !m.Retain {
		t.Fatalf("playback state publish = %+v", m)
	}
	var st playback.State
	if err := json.Unmarshal([]byte(m.Payload), &st); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if st.Status != playback.StatusPlaying || st.Index != 10 || st.Speed != 2 {
		t.Errorf("state = %+v", st)
	}
}

func TestCommandTopic(t *testing.T) {
	p, _ := newTestPublisher(nil, false)
	if got := p.CommandTopic(); got != "f1/playback/command" {
		t.Errorf("CommandTopic = %q", got)
	}
}

func TestFlagAppearanceTable(t *testing.T) {
	tests := []struct {
		flag   model.Flag
		color  string
		text   string
		effect string
		dark   bool
	}{
		{model.FlagGreen, "00FF00", "GREEN", "", false},
		{model.FlagYellow, "FFFF00", "YELLOW", "", true},
		{model.FlagRed, "FF0000", "RED FLAG", "Pulse", false},
		{model.FlagSC, "FFA500", "SAFETY CAR", "Pulse", false},
		{model.FlagVSC, "FFA500", "VSC", "", false},
		{model.FlagVSCEnding, "00FF00", "VSC END", "", false},
		{model.FlagChequered, "FFFFFF", "CHEQUERED", "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.flag), func(t *testing.T) {
			a, ok := flagAppearances[tt.flag]
			if !ok {
				t.Fatalf("no appearance for %q", tt.flag)
			}
			if a.Color != tt.color || a.Text != tt.text || a.Effect != tt.effect || a.DarkText != tt.dark {
				t.Errorf("appearance = %+v", a)
			}
		})
	}
}

func TestNotifierFlagNotification(t *testing.T) {
	p, client := newTestPublisher(nil, true)
	p.PublishEvent(event.FlagChange{PreviousFlag: model.FlagGreen, NewFlag: model.FlagRed})

	m, ok := client.find("awtrix/notify")
	if !ok {
		t.Fatal("no notifier publish")
	}
	var n notification
	if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if n.Text != "RED FLAG" || n.Background != "#FF0000" || n.Effect != "Pulse" || !n.Wakeup {
		t.Errorf("notification = %+v", n)
	}
}

func TestNotifierAppsLimitFavourites(t *testing.T) {
	p, client := newTestPublisher([]string{"1", "44", "16", "55"}, true)
	p.RegisterSessionEntities()
	client.published = nil

	s := raceSnapshot()
	s.Timing["16"] = model.TimingLine{Position: 3}
	s.Timing["55"] = model.TimingLine{Position: 4}
	p.PublishState(s)

	apps := 0
	for _, m := range client.published {
		if strings.HasPrefix(m.Topic, "awtrix/custom/f1drv") {
			apps++
		}
	}
	if apps != 3 {
		t.Errorf("driver apps = %d, want at most 3", apps)
	}
}
