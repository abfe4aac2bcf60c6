package model

import "testing"

func TestFlagFromStatusCode(t *testing.T) {
	tests := []struct {
		code string
		want Flag
		ok   bool
	}{
		{"1", FlagGreen, true},
		{"2", FlagYellow, true},
		{"4", FlagSC, true},
		{"5", FlagRed, true},
		{"6", FlagVSC, true},
		{"7", FlagVSCEnding, true},
		{"3", "", false},
		{"99", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, ok := FlagFromStatusCode(tt.code)
			if ok != tt.ok || got != tt.want {
				t.Errorf("FlagFromStatusCode(%q) = (%q, %v), want (%q, %v)",
					tt.code, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestChequeredUnreachableFromStatusCodes(t *testing.T) {
	for _, code := range []string{"1", "2", "4", "5", "6", "7"} {
		if f, _ := FlagFromStatusCode(code); f == FlagChequered {
			t.Errorf("code %q maps to chequered; chequered must come from session end only", code)
		}
	}
}

func TestParseCompound(t *testing.T) {
	tests := []struct {
		in   string
		want Compound
	}{
		{"SOFT", CompoundSoft},
		{"MEDIUM", CompoundMedium},
		{"HARD", CompoundHard},
		{"INTERMEDIATE", CompoundIntermediate},
		{"WET", CompoundWet},
		{"", CompoundUnknown},
		{"soft", CompoundUnknown},
		{"TEST_UNKNOWN", CompoundUnknown},
	}
	for _, tt := range tests {
		if got := ParseCompound(tt.in); got != tt.want {
			t.Errorf("ParseCompound(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSessionType(t *testing.T) {
	tests := []struct {
		in   string
		want SessionType
	}{
		{"Race", SessionRace},
		{"Qualifying", SessionQualifying},
		{"Practice", SessionPractice},
		{"Sprint", SessionSprint},
		{"Sprint Qualifying", SessionSprintQualifying},
		{"Sprint Shootout", SessionSprintQualifying},
		{"Testing", SessionPractice},
		{"", SessionPractice},
	}
	for _, tt := range tests {
		if got := ParseSessionType(tt.in); got != tt.want {
			t.Errorf("ParseSessionType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewSnapshotDefaults(t *testing.T) {
	s := NewSnapshot()
	if s.TrackStatus.Flag != FlagGreen {
		t.Errorf("default flag = %q, want green", s.TrackStatus.Flag)
	}
	if s.Drivers == nil || s.Timing == nil || s.Stints == nil || s.PitLaneTimes == nil {
		t.Error("default maps must be non-nil")
	}
	if s.TopThree == nil {
		t.Error("TopThree must be non-nil")
	}
}

func TestCloneIndependence(t *testing.T) {
	s := NewSnapshot()
	s.SessionInfo = &SessionInfo{Name: "Monaco Grand Prix", Type: SessionRace}
	s.Weather = &Weather{AirTemp: 24.5, Rainfall: false}
	s.Drivers["1"] = Driver{DriverNumber: "1", Abbreviation: "VER"}
	s.Timing["1"] = TimingLine{Position: 1, GapToLeader: ""}
	s.Stints["1"] = Stint{StintNumber: 1, Compound: CompoundHard}
	s.PitLaneTimes["1"] = PitLaneTime{Duration: "22.5", Lap: "14"}
	s.TopThree = []TopThreeLine{{Position: 1, DriverNumber: "1"}}
	s.LatestRaceControlMessage = &RaceControlMessage{Message: "TRACK CLEAR"}

	c := s.Clone()

	c.SessionInfo.Name = "changed"
	c.Weather.Rainfall = true
	c.Drivers["1"] = Driver{DriverNumber: "1", Abbreviation: "XXX"}
	c.Timing["44"] = TimingLine{Position: 2}
	c.Stints["1"] = Stint{StintNumber: 2}
	c.PitLaneTimes["1"] = PitLaneTime{Duration: "99"}
	c.TopThree[0].DriverNumber = "44"
	c.LatestRaceControlMessage.Message = "changed"

	if s.SessionInfo.Name != "Monaco Grand Prix" {
		t.Error("SessionInfo shared between clone and original")
	}
	if s.Weather.Rainfall {
		t.Error("Weather shared between clone and original")
	}
	if s.Drivers["1"].Abbreviation != "VER" {
		t.Error("Drivers map shared")
	}
	if _, ok := s.Timing["44"]; ok {
		t.Error("Timing map shared")
	}
	if s.Stints["1"].StintNumber != 1 {
		t.Error("Stints map shared")
	}
	if s.PitLaneTimes["1"].Duration != "22.5" {
		t.Error("PitLaneTimes map shared")
	}
	if s.TopThree[0].DriverNumber != "1" {
		t.Error("TopThree slice shared")
	}
	if s.LatestRaceControlMessage.Message != "TRACK CLEAR" {
		t.Error("race control message shared")
	}
}

func TestCloneNil(t *testing.T) {
	var s *Snapshot
	if s.Clone() != nil {
		t.Error("Clone of nil must be nil")
	}
}

func TestLeader(t *testing.T) {
	s := NewSnapshot()
	if got := s.Leader(); got != "" {
		t.Errorf("empty snapshot leader = %q, want empty", got)
	}
	s.Timing["44"] = TimingLine{Position: 2}
	s.Timing["1"] = TimingLine{Position: 1}
	if got := s.Leader(); got != "1" {
		t.Errorf("Leader = %q, want 1", got)
	}
}
