package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/playback"
	"github.com/snarg/f12mqtt/internal/recorder"
)

// Command is the playback control message, accepted both on the REST surface
// and on the MQTT command topic.
type Command struct {
	Command string `json:"command"`
	Value   string `json:"value,omitempty"`
}

// Commands executes playback control commands against the controller. Shared
// between the HTTP handler and the MQTT command-topic subscription so both
// surfaces behave identically.
type Commands struct {
	Store      *recorder.Store
	Controller *playback.Controller
	ArchiveURL string
	Log        zerolog.Logger
}

// Execute runs one command. Unknown commands and bad values return an error;
// state-machine no-ops (pause while stopped, etc.) do not.
func (c *Commands) Execute(cmd Command) error {
	switch cmd.Command {
	case "load":
		if cmd.Value == "" {
			return fmt.Errorf("load: missing session id")
		}
		rec, err := c.Store.Load(cmd.Value)
		if err != nil {
			return fmt.Errorf("load %q: %w", cmd.Value, err)
		}
		src := playback.NewRecordedSource(rec)
		c.Controller.Load(src.Timeline(), src.InitialState(), "recorded")
	case "load_archive":
		if cmd.Value == "" {
			return fmt.Errorf("load_archive: missing session path")
		}
		src := playback.NewArchiveSource(playback.ArchiveOptions{
			BaseURL:      c.ArchiveURL,
			SessionPath:  cmd.Value,
			SessionStart: time.Now().UTC(),
			Log:          c.Log,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := src.Fetch(ctx); err != nil {
			return fmt.Errorf("load_archive %q: %w", cmd.Value, err)
		}
		c.Controller.Load(src.Timeline(), src.InitialState(), "archive")
	case "play":
		c.Controller.Play()
	case "pause":
		c.Controller.Pause()
	case "stop":
		c.Controller.Stop()
	case "seek":
		if cmd.Value == "" {
			return fmt.Errorf("seek: missing timestamp")
		}
		c.Controller.Seek(cmd.Value)
	case "speed":
		speed, err := strconv.ParseFloat(cmd.Value, 64)
		if err != nil {
			return fmt.Errorf("speed: invalid value %q", cmd.Value)
		}
		c.Controller.SetSpeed(speed)
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
	return nil
}

// HandleMQTT decodes a command payload from the MQTT command topic and
// executes it. Errors are logged, not propagated — there is no reply channel.
func (c *Commands) HandleMQTT(payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		c.Log.Warn().Err(err).Msg("unparseable playback command")
		return
	}
	if err := c.Execute(cmd); err != nil {
		c.Log.Warn().Err(err).Str("command", cmd.Command).Msg("playback command failed")
	}
}
