package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/event"
	"github.com/snarg/f12mqtt/internal/model"
)

// orderObserver records the notification sequence as tokens.
type orderObserver struct {
	sequence []string
}

func (o *orderObserver) OnEvent(e event.Event) {
	o.sequence = append(o.sequence, "event:"+e.Type())
}

func (o *orderObserver) OnUpdate(Update) {
	o.sequence = append(o.sequence, "update")
}

func trackStatus(ts, code string) model.Message {
	return model.Message{TS: ts, Topic: "TrackStatus",
		Data: json.RawMessage(`{"Status":"` + code + `"}`)}
}

func TestProcessNotifiesEventsBeforeUpdate(t *testing.T) {
	p := New(Options{Log: zerolog.Nop()})
	obs := &orderObserver{}
	p.Register(obs)

	u := p.Process(trackStatus("2024-05-26T13:00:00Z", "4"))

	want := []string{"event:flag_change", "update"}
	if len(obs.sequence) != len(want) {
		t.Fatalf("sequence = %v, want %v", obs.sequence, want)
	}
	for i := range want {
		if obs.sequence[i] != want[i] {
			t.Errorf("sequence[%d] = %q, want %q", i, obs.sequence[i], want[i])
		}
	}
	if len(u.Events) != 1 || u.Snapshot.TrackStatus.Flag != model.FlagSC {
		t.Errorf("update = %+v", u)
	}
}

func TestProcessSnapshotIsOwnedCopy(t *testing.T) {
	p := New(Options{Log: zerolog.Nop()})
	u := p.Process(trackStatus("2024-05-26T13:00:00Z", "2"))

	// Mutating the delivered snapshot must not leak into the accumulator.
	u.Snapshot.TrackStatus.Flag = model.FlagRed
	if p.Accumulator().Get().TrackStatus.Flag != model.FlagYellow {
		t.Error("observer snapshot aliases accumulator state")
	}
}

func TestProcessMalformedDiffDegrades(t *testing.T) {
	p := New(Options{Log: zerolog.Nop()})
	obs := &orderObserver{}
	p.Register(obs)

	u := p.Process(model.Message{TS: "2024-05-26T13:00:00Z", Topic: "TrackStatus",
		Data: json.RawMessage(`not json`)})

	if len(u.Events) != 0 {
		t.Errorf("events = %d, want 0", len(u.Events))
	}
	if u.Snapshot.Timestamp != "2024-05-26T13:00:00Z" {
		t.Errorf("timestamp = %q, want the message timestamp", u.Snapshot.Timestamp)
	}
	if got := obs.sequence; len(got) != 1 || got[0] != "update" {
		t.Errorf("sequence = %v, want just the update", got)
	}
}

func TestMultipleObserversAllNotified(t *testing.T) {
	p := New(Options{Log: zerolog.Nop()})
	a, b := &orderObserver{}, &orderObserver{}
	p.Register(a)
	p.Register(b)

	p.Process(trackStatus("2024-05-26T13:00:00Z", "5"))

	if len(a.sequence) != 2 || len(b.sequence) != 2 {
		t.Errorf("sequences = %v / %v", a.sequence, b.sequence)
	}
}
