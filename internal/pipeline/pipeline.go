package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/event"
	"github.com/snarg/f12mqtt/internal/metrics"
	"github.com/snarg/f12mqtt/internal/model"
	"github.com/snarg/f12mqtt/internal/state"
)

// Update is the aggregate notification for one processed message.
type Update struct {
	Snapshot *model.Snapshot
	Events   []event.Event
	Message  model.Message
}

// Observer receives pipeline output. For each message, every OnEvent call
// precedes the OnUpdate call, and notifications across messages are strictly
// serialized. Observers must not block: the recorder and publisher are fast
// synchronous writers, the WebSocket hub buffers internally.
type Observer interface {
	OnEvent(e event.Event)
	OnUpdate(u Update)
}

// Pipeline is the central sequencer: for each inbound message it snapshots the
// accumulator, applies the diff, runs the detectors on the (before, after)
// pair, and notifies observers. It is agnostic to the message origin — live,
// recorded, or archive — and is single-threaded with respect to its
// accumulator: exactly one logical task may call Process.
type Pipeline struct {
	acc       *state.Accumulator
	observers []Observer
	log       zerolog.Logger
}

type Options struct {
	Log zerolog.Logger
}

func New(opts Options) *Pipeline {
	return &Pipeline{
		acc: state.NewAccumulator(),
		log: opts.Log.With().Str("component", "pipeline").Logger(),
	}
}

// Register adds an observer. Not safe to call concurrently with Process.
func (p *Pipeline) Register(o Observer) {
	p.observers = append(p.observers, o)
}

// Accumulator exposes the pipeline's accumulator to its single driver (the
// feed adapter for live, the playback controller for replay).
func (p *Pipeline) Accumulator() *state.Accumulator {
	return p.acc
}

// Process applies one message and emits per-event notifications followed by
// the aggregate update. Detectors and the accumulator never fail; malformed
// diffs degrade to timestamp-only updates.
func (p *Pipeline) Process(msg model.Message) Update {
	prev := p.acc.Snapshot()
	p.acc.Apply(msg.Topic, msg.Data, msg.TS)
	curr := p.acc.Get()

	events := event.Detect(prev, curr)

	metrics.MessagesTotal.WithLabelValues(msg.Topic).Inc()
	for _, e := range events {
		metrics.EventsTotal.WithLabelValues(e.Type()).Inc()
		p.log.Debug().Str("type", e.Type()).Msg("event detected")
	}

	// Observers get an owned copy; the live snapshot stays confined to the
	// accumulator.
	u := Update{Snapshot: curr.Clone(), Events: events, Message: msg}
	for _, o := range p.observers {
		for _, e := range events {
			o.OnEvent(e)
		}
		o.OnUpdate(u)
	}
	return u
}
