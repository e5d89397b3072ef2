package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// pickTickerRegex matches: {YYYY}-R{round}[-P{pick}][-{TEAM}]
// Example: 2026-R1-P12-CHI
var pickTickerRegex = regexp.MustCompile(
	`^(\d{4})-R(\d{1,2})(?:-P(\d{1,3}))?(?:-([A-Za-z]{2,4}))?$`,
)

var ErrInvalidPickTicker = errors.New("model: invalid draft pick ticker")

// ParsePickTicker parses draft pick shorthand such as "2026-R1" or
// "2027-R2-P40-NYJ".
func ParsePickTicker(ticker string) (*DraftPick, error) {
	matches := pickTickerRegex.FindStringSubmatch(ticker)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected YYYY-R{round}[-P{pick}][-TEAM])",
			ErrInvalidPickTicker, ticker)
	}

	year, _ := strconv.Atoi(matches[1])
	round, _ := strconv.Atoi(matches[2])
	if round < 1 {
		return nil, fmt.Errorf("%w: round must be >= 1 in %s", ErrInvalidPickTicker, ticker)
	}

	pick := &DraftPick{
		Year:         year,
		Round:        round,
		OriginalTeam: matches[4],
	}
	if matches[3] != "" {
		n, _ := strconv.Atoi(matches[3])
		if n < 1 {
			return nil, fmt.Errorf("%w: pick must be >= 1 in %s", ErrInvalidPickTicker, ticker)
		}
		pick.PickNumber = &n
	}
	return pick, nil
}

// Ticker renders the pick back into shorthand form.
func (p *DraftPick) Ticker() string {
	s := fmt.Sprintf("%04d-R%d", p.Year, p.Round)
	if p.PickNumber != nil {
		s += fmt.Sprintf("-P%d", *p.PickNumber)
	}
	if p.OriginalTeam != "" {
		s += "-" + p.OriginalTeam
	}
	return s
}
