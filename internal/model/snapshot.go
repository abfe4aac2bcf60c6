package model

import "encoding/json"

// Message is one timeline entry: a raw per-topic diff with its feed timestamp.
// This is also the line format of live.jsonl.
type Message struct {
	TS    string          `json:"ts"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// SessionInfo identifies the current session.
type SessionInfo struct {
	Name      string      `json:"name"`
	Type      SessionType `json:"type"`
	Circuit   string      `json:"circuit"`
	Country   string      `json:"country"`
	StartTime string      `json:"startTime"`
	EndTime   string      `json:"endTime"`
}

// TrackStatus is the global flag state. Message is the optional upstream text
// ("SAFETY CAR DEPLOYED" and friends).
type TrackStatus struct {
	Flag    Flag   `json:"flag"`
	Message string `json:"message,omitempty"`
}

// LapCount is the race lap counter.
type LapCount struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Weather is the latest weather sample.
type Weather struct {
	AirTemp       float64 `json:"airTemp"`
	TrackTemp     float64 `json:"trackTemp"`
	Humidity      float64 `json:"humidity"`
	Rainfall      bool    `json:"rainfall"`
	WindSpeed     float64 `json:"windSpeed"`
	WindDirection float64 `json:"windDirection"`
	Pressure      float64 `json:"pressure"`
}

// Driver is the static driver record. Identity is the racing number string.
type Driver struct {
	DriverNumber string `json:"driverNumber"`
	Abbreviation string `json:"abbreviation"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	TeamName     string `json:"teamName"`
	TeamColor    string `json:"teamColor"`
	CountryCode  string `json:"countryCode"`
}

// TimingLine is the live classification row for one driver.
type TimingLine struct {
	Position    int    `json:"position"`
	GapToLeader string `json:"gapToLeader"`
	Interval    string `json:"interval"`
	LastLapTime string `json:"lastLapTime"`
	BestLapTime string `json:"bestLapTime"`
	Sector1     string `json:"sector1"`
	Sector2     string `json:"sector2"`
	Sector3     string `json:"sector3"`
	InPit       bool   `json:"inPit"`
	Retired     bool   `json:"retired"`
	Stopped     bool   `json:"stopped"`
}

// Stint is the current tyre stint for one driver. StintNumber is 0-based;
// stint 0 is the starting set.
type Stint struct {
	StintNumber int      `json:"stintNumber"`
	Compound    Compound `json:"compound"`
	TyreAge     int      `json:"tyreAge"`
	New         bool     `json:"new"`
}

// PitLaneTime is the most recent pit lane transit for one driver.
type PitLaneTime struct {
	Duration string `json:"duration"`
	Lap      string `json:"lap"`
}

// TopThreeLine is one row of the podium widget.
type TopThreeLine struct {
	Position     int    `json:"position"`
	DriverNumber string `json:"driverNumber"`
	Abbreviation string `json:"abbreviation"`
	TeamColor    string `json:"teamColor"`
	LapTime      string `json:"lapTime"`
	GapToLeader  string `json:"gapToLeader"`
}

// RaceControlMessage is the most recent race control bulletin.
type RaceControlMessage struct {
	UTC          string `json:"utc"`
	Message      string `json:"message"`
	Category     string `json:"category"`
	Flag         string `json:"flag,omitempty"`
	Scope        string `json:"scope,omitempty"`
	Sector       int    `json:"sector,omitempty"`
	RacingNumber string `json:"racingNumber,omitempty"`
}

// Snapshot is the entire observable session state at a point in time. It is an
// owned value: every map and nested pointer belongs to exactly one holder, and
// Clone produces a fully independent copy.
type Snapshot struct {
	SessionInfo              *SessionInfo           `json:"sessionInfo,omitempty"`
	TrackStatus              TrackStatus            `json:"trackStatus"`
	LapCount                 LapCount               `json:"lapCount"`
	Weather                  *Weather               `json:"weather,omitempty"`
	Drivers                  map[string]Driver      `json:"drivers"`
	Timing                   map[string]TimingLine  `json:"timing"`
	Stints                   map[string]Stint       `json:"stints"`
	PitLaneTimes             map[string]PitLaneTime `json:"pitLaneTimes"`
	TopThree                 []TopThreeLine         `json:"topThree"`
	LatestRaceControlMessage *RaceControlMessage    `json:"latestRaceControlMessage,omitempty"`
	Timestamp                string                 `json:"timestamp"`
}

// NewSnapshot returns a snapshot with defaults: green flag, zero lap count,
// empty (non-nil) maps.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		TrackStatus:  TrackStatus{Flag: FlagGreen},
		Drivers:      make(map[string]Driver),
		Timing:       make(map[string]TimingLine),
		Stints:       make(map[string]Stint),
		PitLaneTimes: make(map[string]PitLaneTime),
		TopThree:     []TopThreeLine{},
	}
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	if s.SessionInfo != nil {
		si := *s.SessionInfo
		c.SessionInfo = &si
	}
	if s.Weather != nil {
		w := *s.Weather
		c.Weather = &w
	}
	if s.LatestRaceControlMessage != nil {
		rc := *s.LatestRaceControlMessage
		c.LatestRaceControlMessage = &rc
	}
	c.Drivers = make(map[string]Driver, len(s.Drivers))
	for k, v := range s.Drivers {
		c.Drivers[k] = v
	}
	c.Timing = make(map[string]TimingLine, len(s.Timing))
	for k, v := range s.Timing {
		c.Timing[k] = v
	}
	c.Stints = make(map[string]Stint, len(s.Stints))
	for k, v := range s.Stints {
		c.Stints[k] = v
	}
	c.PitLaneTimes = make(map[string]PitLaneTime, len(s.PitLaneTimes))
	for k, v := range s.PitLaneTimes {
		c.PitLaneTimes[k] = v
	}
	c.TopThree = make([]TopThreeLine, len(s.TopThree))
	copy(c.TopThree, s.TopThree)
	return &c
}

// Leader returns the driver number currently at position 1, or "" if none.
func (s *Snapshot) Leader() string {
	for num, line := range s.Timing {
		if line.Position == 1 {
			return num
		}
	}
	return ""
}
