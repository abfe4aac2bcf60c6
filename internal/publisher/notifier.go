package publisher

import (
	"fmt"
	"strings"

	"github.com/snarg/f12mqtt/internal/event"
	"github.com/snarg/f12mqtt/internal/model"
)

// flagAppearance decorates flag values for the LED matrix.
type flagAppearance struct {
	Color    string // background, 6-hex
	Text     string
	Effect   string // "" or "Pulse"
	DarkText bool
}

var flagAppearances = map[model.Flag]flagAppearance{
	model.FlagGreen:     {Color: "00FF00", Text: "GREEN"},
	model.FlagYellow:    {Color: "FFFF00", Text: "YELLOW", DarkText: true},
	model.FlagRed:       {Color: "FF0000", Text: "RED FLAG", Effect: "Pulse"},
	model.FlagSC:        {Color: "FFA500", Text: "SAFETY CAR", Effect: "Pulse"},
	model.FlagVSC:       {Color: "FFA500", Text: "VSC"},
	model.FlagVSCEnding: {Color: "00FF00", Text: "VSC END"},
	model.FlagChequered: {Color: "FFFFFF", Text: "CHEQUERED", DarkText: true},
}

// notifierApp is an AWTRIX custom-app payload: a small persistent page in
// the device's rotation. Published to {prefix}/custom/{app}.
type notifierApp struct {
	Text       string `json:"text"`
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
	Icon       string `json:"icon,omitempty"`
	Duration   int    `json:"duration,omitempty"`
}

// notification is a one-shot AWTRIX notification, published to
// {prefix}/notify.
type notification struct {
	Text       string `json:"text"`
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
	Effect     string `json:"effect,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	Wakeup     bool   `json:"wakeup,omitempty"`
}

func (a flagAppearance) textColor() string {
	if a.DarkText {
		return "#000000"
	}
	return "#FFFFFF"
}

func (p *Publisher) notifierTopic(suffix string) string {
	return p.notifier.Prefix + "/" + suffix
}

// publishNotifierApps refreshes the compact per-app pages: flag, lap, up to
// three favourite drivers, and the top three.
func (p *Publisher) publishNotifierApps(s *model.Snapshot, favourites []string) {
	if a, ok := flagAppearances[s.TrackStatus.Flag]; ok {
		p.publishJSON(p.notifierTopic("custom/f1flag"), notifierApp{
			Text:       a.Text,
			Color:      a.textColor(),
			Background: "#" + a.Color,
			Duration:   7,
		}, false)
	}

	if s.LapCount.Total > 0 {
		p.publishJSON(p.notifierTopic("custom/f1lap"), notifierApp{
			Text:     fmt.Sprintf("L %d/%d", s.LapCount.Current, s.LapCount.Total),
			Duration: 5,
		}, false)
	}

	shown := 0
	for _, num := range favourites {
		if shown >= 3 {
			break
		}
		line, ok := s.Timing[num]
		if !ok {
			continue
		}
		text := fmt.Sprintf("%s P%d", driverLabel(s, num), line.Position)
		app := notifierApp{Text: text, Duration: 5}
		if drv, ok := s.Drivers[num]; ok && drv.TeamColor != "" {
			app.Color = "#" + drv.TeamColor
		}
		p.publishJSON(p.notifierTopic("custom/f1drv"+num), app, false)
		shown++
	}

	if len(s.TopThree) > 0 {
		names := make([]string, 0, len(s.TopThree))
		for _, line := range s.TopThree {
			names = append(names, line.Abbreviation)
		}
		p.publishJSON(p.notifierTopic("custom/f1top3"), notifierApp{
			Text:     strings.Join(names, " "),
			Duration: 5,
		}, false)
	}
}

// publishNotification maps one event to a one-shot notification with the
// appearance decoration.
func (p *Publisher) publishNotification(e event.Event) {
	var n notification
	switch ev := e.(type) {
	case event.FlagChange:
		a, ok := flagAppearances[ev.NewFlag]
		if !ok {
			return
		}
		n = notification{
			Text:       a.Text,
			Color:      a.textColor(),
			Background: "#" + a.Color,
			Effect:     a.Effect,
			Duration:   10,
			Wakeup:     true,
		}
	case event.Overtake:
		n = notification{
			Text:     fmt.Sprintf("%s > P%d", abbrOrNumber(ev.OvertakingAbbreviation, ev.OvertakingDriver), ev.NewPosition),
			Duration: 6,
		}
		if ev.OvertakingTeamColor != "" {
			n.Color = "#" + ev.OvertakingTeamColor
		}
	case event.PitStop:
		n = notification{
			Text:     fmt.Sprintf("%s PIT %s", abbrOrNumber(ev.Abbreviation, ev.DriverNumber), ev.NewCompound),
			Duration: 6,
		}
		if ev.TeamColor != "" {
			n.Color = "#" + ev.TeamColor
		}
	case event.WeatherChange:
		text := "RAIN"
		background := "#0000FF"
		if !ev.NewRainfall {
			text = "DRY"
			background = "#FFFF00"
		}
		n = notification{Text: text, Background: background, Duration: 8, Wakeup: true}
	default:
		return
	}
	p.publishJSON(p.notifierTopic("notify"), n, false)
}

func driverLabel(s *model.Snapshot, num string) string {
	if drv, ok := s.Drivers[num]; ok && drv.Abbreviation != "" {
		return drv.Abbreviation
	}
	return "#" + num
}

func abbrOrNumber(abbr, num string) string {
	if abbr != "" {
		return abbr
	}
	return "#" + num
}
