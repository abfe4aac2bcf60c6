package model

// Flag is the session-wide safety state. It gates the overtake detector and
// drives the notifier appearance table.
type Flag string

const (
	FlagGreen     Flag = "green"
	FlagYellow    Flag = "yellow"
	FlagSC        Flag = "sc"
	FlagVSC       Flag = "vsc"
	FlagVSCEnding Flag = "vsc_ending"
	FlagRed       Flag = "red"
	FlagChequered Flag = "chequered"
)

// flagByStatusCode maps the upstream TrackStatus numeric codes. Chequered is
// never delivered via TrackStatus, so it has no entry here.
var flagByStatusCode = map[string]Flag{
	"1": FlagGreen,
	"2": FlagYellow,
	"4": FlagSC,
	"5": FlagRed,
	"6": FlagVSC,
	"7": FlagVSCEnding,
}

// FlagFromStatusCode resolves an upstream status code. Unknown codes return
// ok=false and must leave the current track status untouched.
func FlagFromStatusCode(code string) (Flag, bool) {
	f, ok := flagByStatusCode[code]
	return f, ok
}

// Compound is a tyre compound.
type Compound string

const (
	CompoundSoft         Compound = "SOFT"
	CompoundMedium       Compound = "MEDIUM"
	CompoundHard         Compound = "HARD"
	CompoundIntermediate Compound = "INTERMEDIATE"
	CompoundWet          Compound = "WET"
	CompoundUnknown      Compound = "UNKNOWN"
)

// ParseCompound normalizes an upstream compound string. Anything unrecognized
// becomes UNKNOWN.
func ParseCompound(s string) Compound {
	switch Compound(s) {
	case CompoundSoft, CompoundMedium, CompoundHard, CompoundIntermediate, CompoundWet:
		return Compound(s)
	default:
		return CompoundUnknown
	}
}

// SessionType classifies a session.
type SessionType string

const (
	SessionRace             SessionType = "Race"
	SessionQualifying       SessionType = "Qualifying"
	SessionPractice         SessionType = "Practice"
	SessionSprint           SessionType = "Sprint"
	SessionSprintQualifying SessionType = "SprintQualifying"
)

// ParseSessionType maps the upstream session type string. "Sprint Shootout"
// is the old name for sprint qualifying; anything unknown falls back to
// Practice.
func ParseSessionType(s string) SessionType {
	switch s {
	case "Race":
		return SessionRace
	case "Qualifying":
		return SessionQualifying
	case "Practice":
		return SessionPractice
	case "Sprint":
		return SessionSprint
	case "Sprint Qualifying", "Sprint Shootout":
		return SessionSprintQualifying
	default:
		return SessionPractice
	}
}
