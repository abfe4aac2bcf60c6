package state

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/snarg/f12mqtt/internal/model"
)

// Canonical upstream topic names handled by the accumulator.
const (
	TopicTrackStatus  = "TrackStatus"
	TopicDriverList   = "DriverList"
	TopicTimingData   = "TimingData"
	TopicTimingApp    = "TimingAppData"
	TopicSessionInfo  = "SessionInfo"
	TopicLapCount     = "LapCount"
	TopicWeatherData  = "WeatherData"
	TopicPitLaneTimes = "PitLaneTimeCollection"
	TopicTopThree     = "TopThree"
	TopicRaceControl  = "RaceControlMessages"
)

// Accumulator folds the stream of raw topic diffs into a session snapshot.
// Diffs are partial merges: absent fields preserve prior values, recursively.
// All operations are synchronous; one logical writer owns an accumulator.
type Accumulator struct {
	snap *model.Snapshot
}

func NewAccumulator() *Accumulator {
	return &Accumulator{snap: model.NewSnapshot()}
}

// Get returns the current snapshot by reference. Callers must treat it as
// read-only; use Snapshot for an owned copy.
func (a *Accumulator) Get() *model.Snapshot {
	return a.snap
}

// Snapshot returns a deep, fully independent copy of the current state.
func (a *Accumulator) Snapshot() *model.Snapshot {
	return a.snap.Clone()
}

// Reset re-initializes the accumulator to defaults.
func (a *Accumulator) Reset() {
	a.snap = model.NewSnapshot()
}

// Seed replaces the state with a deep copy of the given snapshot, or defaults
// when nil. Used by playback to start from a recorded initial state.
func (a *Accumulator) Seed(s *model.Snapshot) {
	if s == nil {
		a.snap = model.NewSnapshot()
		return
	}
	a.snap = s.Clone()
}

// Apply merges one raw topic diff. Unknown topics and malformed payloads are
// no-ops except that the snapshot timestamp is still advanced.
func (a *Accumulator) Apply(topic string, raw json.RawMessage, ts string) {
	switch topic {
	case TopicTrackStatus:
		a.applyTrackStatus(raw)
	case TopicDriverList:
		a.applyDriverList(raw)
	case TopicTimingData:
		a.applyTimingData(raw)
	case TopicTimingApp:
		a.applyTimingAppData(raw)
	case TopicSessionInfo:
		a.applySessionInfo(raw)
	case TopicLapCount:
		a.applyLapCount(raw)
	case TopicWeatherData:
		a.applyWeather(raw)
	case TopicPitLaneTimes:
		a.applyPitLaneTimes(raw)
	case TopicTopThree:
		a.applyTopThree(raw)
	case TopicRaceControl:
		a.applyRaceControl(raw)
	}
	if ts != "" {
		a.snap.Timestamp = ts
	}
}

// applyTrackStatus replaces the track status iff the code is recognized. The
// message always comes from the same diff; an omitted Message clears it.
func (a *Accumulator) applyTrackStatus(raw json.RawMessage) {
	var d trackStatusDiff
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	flag, ok := model.FlagFromStatusCode(string(d.Status))
	if !ok {
		return
	}
	ts := model.TrackStatus{Flag: flag}
	if d.Message != nil {
		ts.Message = *d.Message
	}
	a.snap.TrackStatus = ts
}

func (a *Accumulator) applyDriverList(raw json.RawMessage) {
	entries := decodeKeyed(raw)
	for num, entryRaw := range entries {
		var d driverDiff
		if err := json.Unmarshal(entryRaw, &d); err != nil {
			continue
		}
		rec, exists := a.snap.Drivers[num]
		if !exists {
			// New entries need at least an identity to be useful.
			if d.RacingNumber == nil && d.Tla == nil {
				continue
			}
			rec = model.Driver{DriverNumber: num}
		}
		if d.RacingNumber != nil {
			rec.DriverNumber = string(*d.RacingNumber)
		}
		if d.Tla != nil {
			rec.Abbreviation = *d.Tla
		}
		if d.FirstName != nil {
			rec.FirstName = *d.FirstName
		}
		if d.LastName != nil {
			rec.LastName = *d.LastName
		}
		if d.TeamName != nil {
			rec.TeamName = *d.TeamName
		}
		if d.TeamColour != nil {
			rec.TeamColor = *d.TeamColour
		} else if d.TeamName != nil {
			if c, ok := TeamColor(*d.TeamName); ok {
				rec.TeamColor = c
			}
		}
		if d.CountryCode != nil {
			rec.CountryCode = *d.CountryCode
		}
		a.snap.Drivers[num] = rec
	}
}

func (a *Accumulator) applyTimingData(raw json.RawMessage) {
	var d timingDataDiff
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	for num, line := range d.Lines {
		rec := a.snap.Timing[num]
		if line.Position != nil {
			if pos, err := strconv.Atoi(string(*line.Position)); err == nil {
				rec.Position = pos
			}
		}
		if line.GapToLeader != nil {
			rec.GapToLeader = *line.GapToLeader
		}
		if line.IntervalToPositionAhead != nil && line.IntervalToPositionAhead.Value != nil {
			rec.Interval = *line.IntervalToPositionAhead.Value
		}
		if line.LastLapTime != nil && line.LastLapTime.Value != nil {
			rec.LastLapTime = *line.LastLapTime.Value
		}
		if line.BestLapTime != nil && line.BestLapTime.Value != nil {
			rec.BestLapTime = *line.BestLapTime.Value
		}
		for idx, secRaw := range decodeKeyed(line.Sectors) {
			var sec timedValue
			if err := json.Unmarshal(secRaw, &sec); err != nil || sec.Value == nil {
				continue
			}
			switch idx {
			case "0":
				rec.Sector1 = *sec.Value
			case "1":
				rec.Sector2 = *sec.Value
			case "2":
				rec.Sector3 = *sec.Value
			}
		}
		if line.InPit != nil {
			rec.InPit = bool(*line.InPit)
		}
		if line.Retired != nil {
			rec.Retired = bool(*line.Retired)
		}
		if line.Stopped != nil {
			rec.Stopped = bool(*line.Stopped)
		}
		a.snap.Timing[num] = rec
	}
}

// applyTimingAppData picks the highest-keyed stint per driver. A diff for the
// stint the driver is already on merges field-wise; a later stint replaces the
// entry outright.
func (a *Accumulator) applyTimingAppData(raw json.RawMessage) {
	var d timingAppDiff
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	for num, line := range d.Lines {
		stints := decodeKeyed(line.Stints)
		n, stintRaw, ok := highestKey(stints)
		if !ok {
			continue
		}
		var sd stintDiff
		if err := json.Unmarshal(stintRaw, &sd); err != nil {
			continue
		}
		rec, exists := a.snap.Stints[num]
		if !exists || rec.StintNumber != n {
			rec = model.Stint{StintNumber: n, Compound: model.CompoundUnknown}
		}
		if sd.Compound != nil {
			rec.Compound = model.ParseCompound(*sd.Compound)
		}
		if sd.TotalLaps != nil {
			rec.TyreAge = int(*sd.TotalLaps)
		}
		if sd.New != nil {
			rec.New = bool(*sd.New)
		}
		a.snap.Stints[num] = rec
	}
}

func (a *Accumulator) applySessionInfo(raw json.RawMessage) {
	var d sessionInfoDiff
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	name := d.Meeting.Name
	if name == "" {
		name = d.Name
	}
	a.snap.SessionInfo = &model.SessionInfo{
		Name:      name,
		Type:      model.ParseSessionType(d.Type),
		Circuit:   d.Meeting.Circuit.ShortName,
		Country:   d.Meeting.Country.Name,
		StartTime: d.StartDate,
		EndTime:   d.EndDate,
	}
}

func (a *Accumulator) applyLapCount(raw json.RawMessage) {
	var d lapCountDiff
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	// Partial merge like every other region: diffs usually advance only the
	// current lap, and the total may arrive on its own.
	lc := a.snap.LapCount
	if d.CurrentLap != nil {
		lc.Current = int(*d.CurrentLap)
	}
	if d.TotalLaps != nil {
		lc.Total = int(*d.TotalLaps)
	}
	a.snap.LapCount = lc
}

func (a *Accumulator) applyWeather(raw json.RawMessage) {
	var d weatherDiff
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	w := a.snap.Weather
	if w == nil {
		w = &model.Weather{}
	}
	if d.AirTemp != nil {
		w.AirTemp = parseFloat(string(*d.AirTemp))
	}
	if d.TrackTemp != nil {
		w.TrackTemp = parseFloat(string(*d.TrackTemp))
	}
	if d.Humidity != nil {
		w.Humidity = parseFloat(string(*d.Humidity))
	}
	if d.Rainfall != nil {
		w.Rainfall = string(*d.Rainfall) == "1"
	}
	if d.WindSpeed != nil {
		w.WindSpeed = parseFloat(string(*d.WindSpeed))
	}
	if d.WindDirection != nil {
		w.WindDirection = parseFloat(string(*d.WindDirection))
	}
	if d.Pressure != nil {
		w.Pressure = parseFloat(string(*d.Pressure))
	}
	a.snap.Weather = w
}

func (a *Accumulator) applyPitLaneTimes(raw json.RawMessage) {
	var d pitLaneTimeDiff
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	for num, entryRaw := range decodeKeyed(d.PitTimes) {
		var pt pitTimeDiff
		if err := json.Unmarshal(entryRaw, &pt); err != nil {
			continue
		}
		if pt.Duration == nil {
			continue
		}
		rec := model.PitLaneTime{Duration: *pt.Duration}
		if pt.Lap != nil {
			rec.Lap = string(*pt.Lap)
		} else {
			rec.Lap = a.snap.PitLaneTimes[num].Lap
		}
		a.snap.PitLaneTimes[num] = rec
	}
}

func (a *Accumulator) applyTopThree(raw json.RawMessage) {
	var d topThreeDiff
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	if d.Withheld != nil && *d.Withheld {
		a.snap.TopThree = []model.TopThreeLine{}
		return
	}
	entries := decodeKeyed(d.Lines)
	if entries == nil {
		return
	}
	// Index-keyed diffs update individual rows; start from the existing row
	// at the same index so partial updates do not blank fields.
	byIndex := make(map[int]model.TopThreeLine, len(a.snap.TopThree))
	for i, line := range a.snap.TopThree {
		byIndex[i] = line
	}
	for key, entryRaw := range entries {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		var td topThreeLineDiff
		if err := json.Unmarshal(entryRaw, &td); err != nil {
			continue
		}
		line := byIndex[idx]
		if td.Position != nil {
			if pos, err := strconv.Atoi(string(*td.Position)); err == nil {
				line.Position = pos
			}
		}
		if td.RacingNumber != nil {
			line.DriverNumber = string(*td.RacingNumber)
		}
		if td.Tla != nil {
			line.Abbreviation = *td.Tla
		}
		if td.TeamColour != nil {
			line.TeamColor = *td.TeamColour
		}
		if td.LapTime != nil {
			line.LapTime = *td.LapTime
		}
		if td.DiffToLeader != nil {
			line.GapToLeader = *td.DiffToLeader
		}
		byIndex[idx] = line
	}
	lines := make([]model.TopThreeLine, 0, len(byIndex))
	for _, line := range byIndex {
		if line.Position > 0 {
			lines = append(lines, line)
		}
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Position < lines[j].Position
	})
	if len(lines) > 3 {
		lines = lines[:3]
	}
	a.snap.TopThree = lines
}

// applyRaceControl keeps only the latest bulletin: the highest-keyed entry,
// and only when it actually carries a message.
func (a *Accumulator) applyRaceControl(raw json.RawMessage) {
	var d raceControlDiff
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	_, entryRaw, ok := highestKey(decodeKeyed(d.Messages))
	if !ok {
		return
	}
	var rc raceControlEntryDiff
	if err := json.Unmarshal(entryRaw, &rc); err != nil {
		return
	}
	if rc.Message == "" {
		return
	}
	a.snap.LatestRaceControlMessage = &model.RaceControlMessage{
		UTC:          rc.UTC,
		Message:      rc.Message,
		Category:     rc.Category,
		Flag:         rc.Flag,
		Scope:        rc.Scope,
		Sector:       int(rc.Sector),
		RacingNumber: string(rc.RacingNumber),
	}
}
