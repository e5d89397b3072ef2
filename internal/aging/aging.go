// Package aging implements the positional aging curve used to discount or
// boost an asset's value by where a player sits in his career arc.
//
// Each position has a (PeakStart, PeakEnd, CliffAge) window:
//   - before PeakStart the multiplier climbs linearly from 0.5 toward 1.0
//   - inside the peak window the multiplier is 1.0
//   - between PeakEnd and CliffAge it decays linearly from 1.0 to 0.4
//   - past CliffAge it decays linearly from 0.4 to a floor of 0.1 at MaxAge
//
// Classify is total: any age, including out-of-range or NaN input, yields a
// bounded multiplier in [0.1, 1.0].
package aging

import (
	"fmt"
	"math"
	"strings"
)

// Phase is the career-arc classification of a player.
type Phase string

const (
	Developing Phase = "developing"
	InPrime    Phase = "in_prime"
	Declining  Phase = "declining"
	PastPrime  Phase = "past_prime"
)

const (
	// MinAge anchors the developing ramp: multiplier 0.5 at or below it.
	MinAge = 18.0
	// MaxAge anchors the past-prime decay: multiplier reaches Floor here.
	MaxAge = 45.0

	DevelopingStart = 0.5
	CliffMultiplier = 0.4
	Floor           = 0.1
)

// Window is the configured career window for one position.
type Window struct {
	PeakStart float64 `yaml:"peak_start"`
	PeakEnd   float64 `yaml:"peak_end"`
	CliffAge  float64 `yaml:"cliff_age"`
}

// Validate reports whether the window is ordered and inside [MinAge, MaxAge].
func (w Window) Validate() error {
	if w.PeakStart < MinAge || w.CliffAge > MaxAge {
		return fmt.Errorf("window %v-%v-%v must lie within [%v, %v]", w.PeakStart, w.PeakEnd, w.CliffAge, MinAge, MaxAge)
	}
	if w.PeakStart > w.PeakEnd || w.PeakEnd >= w.CliffAge {
		return fmt.Errorf("window requires peak_start <= peak_end < cliff_age, got %v-%v-%v", w.PeakStart, w.PeakEnd, w.CliffAge)
	}
	return nil
}

// Assessment is the result of classifying a player's age.
type Assessment struct {
	Phase               Phase   `json:"assessment"`
	Multiplier          float64 `json:"multiplier"`
	PrimeYearsRemaining int     `json:"prime_years_remaining"`
}

// Curve holds per-sport, per-position windows. It is immutable after
// construction and safe for concurrent use.
type Curve struct {
	windows  map[string]map[string]Window // sport → position → window
	defaults map[string]Window            // sport → fallback window
	fallback Window
}

// NewCurve builds a curve from explicit tables. Positions are matched
// case-insensitively. fallback applies to unknown sports.
func NewCurve(windows map[string]map[string]Window, defaults map[string]Window, fallback Window) *Curve {
	c := &Curve{
		windows:  make(map[string]map[string]Window, len(windows)),
		defaults: make(map[string]Window, len(defaults)),
		fallback: fallback,
	}
	for sport, byPos := range windows {
		norm := make(map[string]Window, len(byPos))
		for pos, w := range byPos {
			norm[strings.ToUpper(pos)] = w
		}
		c.windows[strings.ToLower(sport)] = norm
	}
	for sport, w := range defaults {
		c.defaults[strings.ToLower(sport)] = w
	}
	return c
}

// Window returns the career window for a sport and position.
func (c *Curve) Window(sport, position string) Window {
	sport = strings.ToLower(strings.TrimSpace(sport))
	if byPos, ok := c.windows[sport]; ok {
		if w, ok := byPos[strings.ToUpper(strings.TrimSpace(position))]; ok {
			return w
		}
	}
	if w, ok := c.defaults[sport]; ok {
		return w
	}
	return c.fallback
}

// Classify returns the phase and multiplier for a player of the given
// position and age.
func (c *Curve) Classify(sport, position string, age float64) Assessment {
	return c.Window(sport, position).Classify(age)
}

// Classify applies the window's piecewise-linear policy to age.
func (w Window) Classify(age float64) Assessment {
	if math.IsNaN(age) {
		age = MinAge
	}

	a := Assessment{}
	if age <= w.PeakEnd {
		a.PrimeYearsRemaining = int(math.Floor(w.PeakEnd - math.Max(age, 0)))
	}

	switch {
	case age < w.PeakStart:
		a.Phase = Developing
		a.Multiplier = lerp(DevelopingStart, 1.0, MinAge, w.PeakStart, age)
		// Never reach 1.0 before the window opens.
		if a.Multiplier >= 1.0 {
			a.Multiplier = math.Nextafter(1.0, 0)
		}
	case age <= w.PeakEnd:
		a.Phase = InPrime
		a.Multiplier = 1.0
	case age <= w.CliffAge:
		a.Phase = Declining
		a.Multiplier = lerp(1.0, CliffMultiplier, w.PeakEnd, w.CliffAge, age)
	default:
		a.Phase = PastPrime
		end := MaxAge
		if end <= w.CliffAge {
			end = w.CliffAge + 1
		}
		a.Multiplier = lerp(CliffMultiplier, Floor, w.CliffAge, end, age)
	}
	return a
}

// lerp maps x from [x0, x1] onto [y0, y1], clamping to the endpoints.
func lerp(y0, y1, x0, x1, x float64) float64 {
	if x1 <= x0 {
		if x < x1 {
			return y0
		}
		return y1
	}
	t := (x - x0) / (x1 - x0)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return y0 + (y1-y0)*t
}
