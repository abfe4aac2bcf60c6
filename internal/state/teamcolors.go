package state

// teamColors is the season fallback palette, used when DriverList carries a
// team name but no colour. Keys match the upstream TeamName strings.
var teamColors = map[string]string{
	"Red Bull Racing": "3671C6",
	"Ferrari":         "E80020",
	"Mercedes":        "27F4D2",
	"McLaren":         "FF8000",
	"Aston Martin":    "229971",
	"Alpine":          "FF87BC",
	"Williams":        "64C4FF",
	"RB":              "6692FF",
	"Kick Sauber":     "52E252",
	"Haas F1 Team":    "B6BABD",
}

// TeamColor returns the season fallback colour for a team name.
func TeamColor(teamName string) (string, bool) {
	c, ok := teamColors[teamName]
	return c, ok
}
