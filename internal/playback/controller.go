package playback

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/event"
	"github.com/snarg/f12mqtt/internal/metrics"
	"github.com/snarg/f12mqtt/internal/model"
	"github.com/snarg/f12mqtt/internal/pipeline"
	"github.com/snarg/f12mqtt/internal/timeline"
)

// Status is the controller state machine position.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

// maxEntryDelay caps the wall-clock wait between entries so large data gaps
// in a recording (red flags, session breaks) don't stall replay for minutes.
const maxEntryDelay = 5 * time.Second

// State describes the controller for observers and the REST surface.
type State struct {
	Status   Status  `json:"status"`
	Index    int     `json:"index"`
	Length   int     `json:"length"`
	Speed    float64 `json:"speed"`
	Position string  `json:"position,omitempty"`
	Mode     string  `json:"mode,omitempty"`
}

// Listener receives controller emissions. Delivery is synchronous on the
// emitting goroutine; for message M all OnEvent calls precede OnUpdate.
// Listeners must not call back into the controller.
type Listener interface {
	OnLoaded(st State)
	OnStateChange(st State)
	OnUpdate(u pipeline.Update, st State)
	OnEvent(e event.Event)
	OnSeek(snap *model.Snapshot, st State)
	OnFinished()
}

// Controller replays a timeline through a pipeline with seek, pause, and
// variable speed, using a single pending timer. A generation counter fences
// cancelled ticks: any state transition bumps the generation, and a tick that
// wakes with a stale generation exits without touching anything.
type Controller struct {
	mu        sync.Mutex
	tl        *timeline.Timeline
	pipe      *pipeline.Pipeline
	initial   *model.Snapshot
	mode      string
	status    Status
	idx       int
	speed     float64
	timer     *time.Timer
	gen       uint64
	listeners []Listener
	log       zerolog.Logger
}

type Options struct {
	Log zerolog.Logger
}

func NewController(opts Options) *Controller {
	log := opts.Log.With().Str("component", "playback").Logger()
	c := &Controller{
		status: StatusStopped,
		speed:  1,
		log:    log,
	}
	c.pipe = pipeline.New(pipeline.Options{Log: log})
	c.pipe.Register(pipeObserver{c})
	return c
}

// AddListener registers a listener. Call before playback starts.
func (c *Controller) AddListener(l Listener) {
	c.listeners = append(c.listeners, l)
}

// pipeObserver forwards pipeline output to controller listeners, attaching
// the playback state to updates.
type pipeObserver struct{ c *Controller }

func (o pipeObserver) OnEvent(e event.Event) {
	for _, l := range o.c.listeners {
		l.OnEvent(e)
	}
}

func (o pipeObserver) OnUpdate(u pipeline.Update) {
	st := o.c.State()
	for _, l := range o.c.listeners {
		l.OnUpdate(u, st)
	}
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	st := State{
		Status: c.status,
		Index:  c.idx,
		Speed:  c.speed,
		Mode:   c.mode,
	}
	if c.tl != nil {
		st.Length = c.tl.Len()
		if c.idx > 0 && c.idx <= c.tl.Len() {
			st.Position = c.tl.At(c.idx - 1).TS
		}
	}
	return st
}

// Load stops any current playback and installs a new timeline. The pipeline
// accumulator is seeded with a deep copy of initial (or defaults when nil).
func (c *Controller) Load(tl *timeline.Timeline, initial *model.Snapshot, mode string) {
	c.mu.Lock()
	c.cancelLocked()
	c.status = StatusStopped
	c.tl = tl
	c.initial = initial.Clone()
	c.mode = mode
	c.idx = 0
	c.pipe.Accumulator().Seed(c.initial)
	st := c.stateLocked()
	c.mu.Unlock()

	metrics.PlaybackActive.Set(0)
	c.log.Info().Int("entries", tl.Len()).Str("mode", mode).Msg("timeline loaded")
	for _, l := range c.listeners {
		l.OnLoaded(st)
	}
}

// Play starts or resumes playback. No-op without a timeline or when already
// playing.
func (c *Controller) Play() {
	c.mu.Lock()
	if c.tl == nil || c.status == StatusPlaying {
		c.mu.Unlock()
		return
	}
	c.cancelLocked()
	c.status = StatusPlaying
	if c.idx == 0 {
		// Starting from the top (fresh load, stop, or a finished run):
		// rewind the accumulator to the initial state.
		c.pipe.Accumulator().Seed(c.initial)
	}
	gen := c.gen
	st := c.stateLocked()
	c.mu.Unlock()

	metrics.PlaybackActive.Set(1)
	for _, l := range c.listeners {
		l.OnStateChange(st)
	}
	c.step(gen)
}

// Pause cancels the pending tick and freezes the current index.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.status != StatusPlaying {
		c.mu.Unlock()
		return
	}
	c.cancelLocked()
	c.status = StatusPaused
	st := c.stateLocked()
	c.mu.Unlock()

	metrics.PlaybackActive.Set(0)
	for _, l := range c.listeners {
		l.OnStateChange(st)
	}
}

// Stop pauses and rewinds to the start. Idempotent once stopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.status == StatusStopped && c.idx == 0 {
		c.mu.Unlock()
		return
	}
	c.cancelLocked()
	c.status = StatusStopped
	c.idx = 0
	st := c.stateLocked()
	c.mu.Unlock()

	metrics.PlaybackActive.Set(0)
	for _, l := range c.listeners {
		l.OnStateChange(st)
	}
}

// SetSpeed changes the playback rate. Non-positive values fall back to 1.
// A pending tick is rescheduled at the new rate.
func (c *Controller) SetSpeed(speed float64) {
	if speed <= 0 {
		speed = 1
	}
	c.mu.Lock()
	c.speed = speed
	if c.status == StatusPlaying {
		c.cancelLocked()
		c.status = StatusPlaying
		c.armLocked(c.nextDelayLocked())
	}
	c.mu.Unlock()
	c.log.Debug().Float64("speed", speed).Msg("playback speed set")
}

// Seek rewinds to the initial state and silently replays every entry before
// the first entry with timestamp >= ts: no detectors run and no events are
// emitted. The seek emission carries the fully replayed snapshot; playback
// resumes afterwards if it was running.
func (c *Controller) Seek(ts string) {
	c.mu.Lock()
	if c.tl == nil {
		c.mu.Unlock()
		return
	}
	wasPlaying := c.status == StatusPlaying
	c.cancelLocked()
	c.status = StatusPaused

	acc := c.pipe.Accumulator()
	acc.Seed(c.initial)
	target := c.tl.FindIndex(ts)
	for i := 0; i < target; i++ {
		e := c.tl.At(i)
		acc.Apply(e.Topic, e.Data, e.TS)
	}
	c.idx = target
	snap := acc.Snapshot()
	st := c.stateLocked()
	c.mu.Unlock()

	c.log.Info().Str("to", ts).Int("index", target).Msg("seek")
	for _, l := range c.listeners {
		l.OnSeek(snap, st)
	}
	if wasPlaying {
		c.Play()
	}
}

// cancelLocked stops the pending timer and invalidates in-flight ticks.
func (c *Controller) cancelLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// armLocked schedules the next tick for the current generation.
func (c *Controller) armLocked(delay time.Duration) {
	gen := c.gen
	c.timer = time.AfterFunc(delay, func() { c.step(gen) })
}

// nextDelayLocked computes the wall-clock wait before the entry at idx, based
// on the gap to the previous entry, scaled by speed and capped.
func (c *Controller) nextDelayLocked() time.Duration {
	if c.tl == nil || c.idx <= 0 || c.idx >= c.tl.Len() {
		return 0
	}
	return entryDelay(c.tl.At(c.idx-1).TS, c.tl.At(c.idx).TS, c.speed)
}

// entryDelay is the scaled, capped inter-entry delay. Unparseable timestamps
// and negative gaps collapse to zero.
func entryDelay(prev, next string, speed float64) time.Duration {
	pt, err1 := time.Parse(time.RFC3339Nano, prev)
	nt, err2 := time.Parse(time.RFC3339Nano, next)
	if err1 != nil || err2 != nil {
		return 0
	}
	gap := nt.Sub(pt)
	if gap < 0 {
		gap = 0
	}
	d := time.Duration(float64(gap) / speed)
	if d > maxEntryDelay {
		d = maxEntryDelay
	}
	return d
}

// step processes the entry at the current index and arms the timer for the
// next one. A stale generation means a newer Play/Pause/Seek/SetSpeed took
// the state forward; the tick exits without advancing anything.
func (c *Controller) step(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.status != StatusPlaying {
		c.mu.Unlock()
		return
	}
	if c.idx >= c.tl.Len() {
		// Terminal: rewinding the index here makes a later Stop a no-op
		// and lets Play restart from the top.
		c.status = StatusStopped
		c.idx = 0
		c.mu.Unlock()

		metrics.PlaybackActive.Set(0)
		c.log.Info().Msg("playback finished")
		for _, l := range c.listeners {
			l.OnFinished()
		}
		return
	}
	e := c.tl.At(c.idx)
	c.idx++
	c.mu.Unlock()

	// Emissions happen outside the lock; the generation fence keeps a
	// concurrent control call from interleaving a stale tick afterwards.
	c.pipe.Process(e)

	c.mu.Lock()
	if gen != c.gen || c.status != StatusPlaying {
		c.mu.Unlock()
		return
	}
	if c.idx >= c.tl.Len() {
		c.mu.Unlock()
		c.step(gen)
		return
	}
	c.armLocked(entryDelay(e.TS, c.tl.At(c.idx).TS, c.speed))
	c.mu.Unlock()
}

// Snapshot returns an owned copy of the controller's current session state.
func (c *Controller) Snapshot() *model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipe.Accumulator().Snapshot()
}
