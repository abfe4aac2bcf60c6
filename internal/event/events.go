package event

import "github.com/snarg/f12mqtt/internal/model"

// Event type names as published on the bus and the WebSocket.
const (
	TypeFlagChange    = "flag_change"
	TypeOvertake      = "overtake"
	TypePitStop       = "pit_stop"
	TypeWeatherChange = "weather_change"
)

// Event is a semantic change derived from two consecutive snapshots.
type Event interface {
	Type() string
}

// FlagChange is emitted when the track flag value changes.
type FlagChange struct {
	PreviousFlag model.Flag `json:"previousFlag"`
	NewFlag      model.Flag `json:"newFlag"`
	Message      string     `json:"message,omitempty"`
}

func (FlagChange) Type() string { return TypeFlagChange }

// Overtake is emitted once per driver passed during a position gain.
type Overtake struct {
	OvertakingDriver       string `json:"overtakingDriver"`
	OvertakenDriver        string `json:"overtakenDriver"`
	NewPosition            int    `json:"newPosition"`
	OvertakingAbbreviation string `json:"overtakingAbbreviation,omitempty"`
	OvertakenAbbreviation  string `json:"overtakenAbbreviation,omitempty"`
	OvertakingTeamColor    string `json:"overtakingTeamColor,omitempty"`
	OvertakenTeamColor     string `json:"overtakenTeamColor,omitempty"`
}

func (Overtake) Type() string { return TypeOvertake }

// PitStop is emitted when a driver's stint number increments.
type PitStop struct {
	DriverNumber string         `json:"driverNumber"`
	Abbreviation string         `json:"abbreviation,omitempty"`
	TeamColor    string         `json:"teamColor,omitempty"`
	NewCompound  model.Compound `json:"newCompound"`
	StintNumber  int            `json:"stintNumber"`
}

func (PitStop) Type() string { return TypePitStop }

// WeatherChange is emitted when the rainfall boolean flips.
type WeatherChange struct {
	PreviousRainfall bool `json:"previousRainfall"`
	NewRainfall      bool `json:"newRainfall"`
}

func (WeatherChange) Type() string { return TypeWeatherChange }
