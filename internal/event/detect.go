package event

import (
	"sort"

	"github.com/snarg/f12mqtt/internal/model"
)

// Detect runs all detectors on a (prev, curr) snapshot pair and concatenates
// their events in fixed order: flag, overtake, pit, weather. Detectors are
// pure: no I/O, no state, and equal inputs always produce equal output.
func Detect(prev, curr *model.Snapshot) []Event {
	var events []Event
	events = append(events, DetectFlagChange(prev, curr)...)
	events = append(events, DetectOvertakes(prev, curr)...)
	events = append(events, DetectPitStops(prev, curr)...)
	events = append(events, DetectWeatherChange(prev, curr)...)
	return events
}

// DetectFlagChange emits one event iff the flag value differs. The message is
// taken from the current snapshot only.
func DetectFlagChange(prev, curr *model.Snapshot) []Event {
	if prev.TrackStatus.Flag == curr.TrackStatus.Flag {
		return nil
	}
	return []Event{FlagChange{
		PreviousFlag: prev.TrackStatus.Flag,
		NewFlag:      curr.TrackStatus.Flag,
		Message:      curr.TrackStatus.Message,
	}}
}

// overtakesSuppressed reports whether the current flag forbids overtaking.
func overtakesSuppressed(flag model.Flag) bool {
	switch flag {
	case model.FlagSC, model.FlagVSC, model.FlagVSCEnding, model.FlagRed:
		return true
	}
	return false
}

// DetectOvertakes emits one event per (overtaker, overtaken) pair. A driver D
// counts as overtaking when its position strictly decreased; every other
// driver O that moved from ahead of D to behind D, without dropping past D's
// new position before the swap, counts as overtaken. Pit and retired drivers
// are excluded, and nothing is emitted under SC/VSC/red.
func DetectOvertakes(prev, curr *model.Snapshot) []Event {
	if overtakesSuppressed(curr.TrackStatus.Flag) {
		return nil
	}

	// Sorted iteration keeps emission order deterministic.
	nums := make([]string, 0, len(curr.Timing))
	for num := range curr.Timing {
		nums = append(nums, num)
	}
	sort.Strings(nums)

	var events []Event
	for _, d := range nums {
		currD := curr.Timing[d]
		prevD, ok := prev.Timing[d]
		if !ok || prevD.Position == 0 || currD.Position == 0 {
			continue
		}
		if currD.Position >= prevD.Position {
			continue
		}
		if currD.InPit {
			continue
		}
		for _, o := range nums {
			if o == d {
				continue
			}
			currO := curr.Timing[o]
			prevO, ok := prev.Timing[o]
			if !ok || prevO.Position == 0 || currO.Position == 0 {
				continue
			}
			if !(prevO.Position < prevD.Position && currO.Position > currD.Position && prevO.Position >= currD.Position) {
				continue
			}
			if prevO.InPit || currO.InPit || currO.Retired {
				continue
			}
			ev := Overtake{
				OvertakingDriver: d,
				OvertakenDriver:  o,
				NewPosition:      currD.Position,
			}
			if drv, ok := curr.Drivers[d]; ok {
				ev.OvertakingAbbreviation = drv.Abbreviation
				ev.OvertakingTeamColor = drv.TeamColor
			}
			if drv, ok := curr.Drivers[o]; ok {
				ev.OvertakenAbbreviation = drv.Abbreviation
				ev.OvertakenTeamColor = drv.TeamColor
			}
			events = append(events, ev)
		}
	}
	return events
}

// DetectPitStops emits one event per driver whose stint number incremented.
// Stint 0 with no prior record is the starting tyre set, not a stop.
func DetectPitStops(prev, curr *model.Snapshot) []Event {
	nums := make([]string, 0, len(curr.Stints))
	for num := range curr.Stints {
		nums = append(nums, num)
	}
	sort.Strings(nums)

	var events []Event
	for _, num := range nums {
		currStint := curr.Stints[num]
		if prevStint, ok := prev.Stints[num]; ok {
			if currStint.StintNumber <= prevStint.StintNumber {
				continue
			}
		} else if currStint.StintNumber == 0 {
			continue
		}
		ev := PitStop{
			DriverNumber: num,
			NewCompound:  currStint.Compound,
			StintNumber:  currStint.StintNumber,
		}
		if drv, ok := curr.Drivers[num]; ok {
			ev.Abbreviation = drv.Abbreviation
			ev.TeamColor = drv.TeamColor
		}
		events = append(events, ev)
	}
	return events
}

// DetectWeatherChange emits one event iff current weather exists and its
// rainfall boolean differs from the previous snapshot. Missing previous
// weather reads as no rain.
func DetectWeatherChange(prev, curr *model.Snapshot) []Event {
	if curr.Weather == nil {
		return nil
	}
	prevRain := false
	if prev.Weather != nil {
		prevRain = prev.Weather.Rainfall
	}
	if curr.Weather.Rainfall == prevRain {
		return nil
	}
	return []Event{WeatherChange{
		PreviousRainfall: prevRain,
		NewRainfall:      curr.Weather.Rainfall,
	}}
}
