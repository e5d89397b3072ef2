package aging

import "maps"

// Default career windows. Skill positions that rely on burst (RB, CB) peak
// and fall off earlier than positions that rely on technique (QB, OL, K).
var (
	defaultWindows = map[string]map[string]Window{
		"nfl": {
			"QB":   {27, 33, 37},
			"RB":   {23, 26, 29},
			"WR":   {24, 29, 32},
			"TE":   {25, 30, 33},
			"OL":   {25, 31, 34},
			"OT":   {25, 31, 34},
			"G":    {25, 31, 34},
			"C":    {25, 31, 34},
			"DL":   {25, 30, 33},
			"DE":   {25, 30, 33},
			"DT":   {25, 30, 33},
			"EDGE": {25, 30, 33},
			"LB":   {24, 29, 32},
			"CB":   {24, 28, 31},
			"S":    {25, 29, 32},
			"K":    {26, 36, 40},
			"P":    {26, 36, 40},
		},
		"nba": {
			"PG": {25, 30, 33},
			"C":  {25, 30, 33},
		},
		"mlb": {
			"SP": {26, 31, 34},
			"RP": {26, 31, 34},
			"1B": {27, 32, 35},
			"DH": {27, 32, 35},
		},
		"nhl": {
			"C":  {24, 28, 31},
			"LW": {24, 28, 31},
			"RW": {24, 28, 31},
			"F":  {24, 28, 31},
			"D":  {25, 30, 33},
			"G":  {27, 32, 35},
		},
	}

	defaultSportWindows = map[string]Window{
		"nfl": {25, 29, 32},
		"nba": {24, 29, 32},
		"mlb": {26, 30, 33},
		"nhl": {24, 28, 31},
	}

	defaultFallback = Window{25, 29, 32}
)

// DefaultCurve returns the built-in curve for nfl, nba, mlb and nhl.
func DefaultCurve() *Curve {
	return NewCurve(defaultWindows, defaultSportWindows, defaultFallback)
}

// DefaultWindows returns a copy of the built-in per-position windows, keyed
// by sport then position.
func DefaultWindows() map[string]map[string]Window {
	out := make(map[string]map[string]Window, len(defaultWindows))
	for sport, byPos := range defaultWindows {
		out[sport] = maps.Clone(byPos)
	}
	return out
}

// DefaultSportWindows returns a copy of the per-sport fallback windows.
func DefaultSportWindows() map[string]Window {
	return maps.Clone(defaultSportWindows)
}

// DefaultFallback returns the window used for unknown sports.
func DefaultFallback() Window {
	return defaultFallback
}
