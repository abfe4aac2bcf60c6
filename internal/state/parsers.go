package state

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The upstream feed is loosely typed: numbers arrive as strings, booleans as
// "true"/"1", and list-shaped regions arrive as arrays in full payloads but as
// index-keyed objects in diffs. The flex* types and decodeKeyed absorb that so
// the merge code only sees Go values. Absent fields stay nil so merges can
// distinguish "not sent" from zero.

// flexString accepts a JSON string or number and keeps its string form.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	*f = flexString(s)
	return nil
}

// flexBool accepts true/false, "true"/"false", and "1"/"0".
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.Trim(string(b), `"`) {
	case "true", "1", "True":
		*f = true
	case "false", "0", "False", "", "null":
		*f = false
	}
	return nil
}

// flexInt accepts a JSON number or numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil // tolerate garbage, keep zero
	}
	*f = flexInt(n)
	return nil
}

// parseFloat converts an upstream numeric string, returning 0 on garbage.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// decodeKeyed normalizes a list-shaped region into index-keyed raw entries.
// Full payloads send arrays, diffs send {"0": {...}} objects; meta keys like
// "_kf" are dropped. Returns nil when the region is absent or malformed.
func decodeKeyed(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for k := range asMap {
			if strings.HasPrefix(k, "_") {
				delete(asMap, k)
			}
		}
		return asMap
	}
	var asList []json.RawMessage
	if err := json.Unmarshal(raw, &asList); err == nil {
		m := make(map[string]json.RawMessage, len(asList))
		for i, e := range asList {
			m[strconv.Itoa(i)] = e
		}
		return m
	}
	return nil
}

// highestKey returns the entry with the numerically largest key, for regions
// where the upstream appends ("Stints", "Messages"). ok is false when empty.
func highestKey(m map[string]json.RawMessage) (int, json.RawMessage, bool) {
	best := -1
	var raw json.RawMessage
	for k, v := range m {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		if n > best {
			best = n
			raw = v
		}
	}
	return best, raw, best >= 0
}

// ── per-topic diff shapes ────────────────────────────────────────────

type trackStatusDiff struct {
	Status  flexString `json:"Status"`
	Message *string    `json:"Message"`
}

type driverDiff struct {
	RacingNumber *flexString `json:"RacingNumber"`
	Tla          *string     `json:"Tla"`
	FirstName    *string     `json:"FirstName"`
	LastName     *string     `json:"LastName"`
	TeamName     *string     `json:"TeamName"`
	TeamColour   *string     `json:"TeamColour"`
	CountryCode  *string     `json:"CountryCode"`
}

type timedValue struct {
	Value *string `json:"Value"`
}

type timingLineDiff struct {
	Position                *flexString     `json:"Position"`
	GapToLeader             *string         `json:"GapToLeader"`
	IntervalToPositionAhead *timedValue     `json:"IntervalToPositionAhead"`
	LastLapTime             *timedValue     `json:"LastLapTime"`
	BestLapTime             *timedValue     `json:"BestLapTime"`
	Sectors                 json.RawMessage `json:"Sectors"`
	InPit                   *flexBool       `json:"InPit"`
	Retired                 *flexBool       `json:"Retired"`
	Stopped                 *flexBool       `json:"Stopped"`
}

type timingDataDiff struct {
	Lines map[string]timingLineDiff `json:"Lines"`
}

type stintDiff struct {
	Compound  *string   `json:"Compound"`
	TotalLaps *flexInt  `json:"TotalLaps"`
	New       *flexBool `json:"New"`
}

type timingAppLineDiff struct {
	Stints json.RawMessage `json:"Stints"`
}

type timingAppDiff struct {
	Lines map[string]timingAppLineDiff `json:"Lines"`
}

type sessionInfoDiff struct {
	Meeting struct {
		Name    string `json:"Name"`
		Circuit struct {
			ShortName string `json:"ShortName"`
		} `json:"Circuit"`
		Country struct {
			Name string `json:"Name"`
		} `json:"Country"`
	} `json:"Meeting"`
	Name      string `json:"Name"`
	Type      string `json:"Type"`
	StartDate string `json:"StartDate"`
	EndDate   string `json:"EndDate"`
}

type lapCountDiff struct {
	CurrentLap *flexInt `json:"CurrentLap"`
	TotalLaps  *flexInt `json:"TotalLaps"`
}

type weatherDiff struct {
	AirTemp       *flexString `json:"AirTemp"`
	TrackTemp     *flexString `json:"TrackTemp"`
	Humidity      *flexString `json:"Humidity"`
	Rainfall      *flexString `json:"Rainfall"`
	WindSpeed     *flexString `json:"WindSpeed"`
	WindDirection *flexString `json:"WindDirection"`
	Pressure      *flexString `json:"Pressure"`
}

type pitTimeDiff struct {
	Duration *string     `json:"Duration"`
	Lap      *flexString `json:"Lap"`
}

type pitLaneTimeDiff struct {
	PitTimes json.RawMessage `json:"PitTimes"`
}

type topThreeLineDiff struct {
	Position     *flexString `json:"Position"`
	RacingNumber *flexString `json:"RacingNumber"`
	Tla          *string     `json:"Tla"`
	TeamColour   *string     `json:"TeamColour"`
	LapTime      *string     `json:"LapTime"`
	DiffToLeader *string     `json:"DiffToLeader"`
}

type topThreeDiff struct {
	Withheld *bool           `json:"Withheld"`
	Lines    json.RawMessage `json:"Lines"`
}

type raceControlEntryDiff struct {
	UTC          string     `json:"Utc"`
	Category     string     `json:"Category"`
	Message      string     `json:"Message"`
	Flag         string     `json:"Flag"`
	Scope        string     `json:"Scope"`
	Sector       flexInt    `json:"Sector"`
	RacingNumber flexString `json:"RacingNumber"`
}

type raceControlDiff struct {
	Messages json.RawMessage `json:"Messages"`
}
