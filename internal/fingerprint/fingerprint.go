// Package fingerprint derives the order-independent cache key of a trade
// proposal.
//
// The canonical form covers the sport, the home team, every participant and
// the multiset of directed flows. Team identifiers are case-folded, flows are
// sorted, and each asset is serialized from the fields that affect its value
// in a fixed per-kind order. Display-only fields (names, ids, pick conditions)
// are left out so cosmetic edits do not change the key.
package fingerprint

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
)

// Version prefixes the canonical form. Bump it whenever the serialization
// changes so old cache records stop matching.
const Version = "v1"

// Compute returns the fingerprint of p. It never fails: proposals are
// validated by the caller before they reach the cache.
func Compute(p model.TradeProposal) model.Fingerprint {
	sum := sha256.Sum256([]byte(Canonical(p)))
	return model.Fingerprint(hex.EncodeToString(sum[:]))
}

type flowKey struct {
	from, to, asset string
}

// Canonical returns the string Compute hashes.
func Canonical(p model.TradeProposal) string {
	participants := p.Participants()
	slices.Sort(participants)

	flows := make([]flowKey, 0, len(p.Flows))
	for _, f := range p.Flows {
		flows = append(flows, flowKey{
			from:  model.NormalizeTeam(f.From),
			to:    model.NormalizeTeam(f.To),
			asset: serializeAsset(f.Asset),
		})
	}
	slices.SortFunc(flows, func(a, b flowKey) int {
		return cmp.Or(
			strings.Compare(a.from, b.from),
			strings.Compare(a.to, b.to),
			strings.Compare(a.asset, b.asset),
		)
	})

	var sb strings.Builder
	sb.WriteString(Version)
	sb.WriteString("|sport=")
	sb.WriteString(strconv.Quote(model.NormalizeSport(p.Sport)))
	sb.WriteString("|home=")
	sb.WriteString(strconv.Quote(model.NormalizeTeam(p.Home)))
	sb.WriteString("|participants=")
	for i, team := range participants {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(team))
	}
	sb.WriteString("|flows=")
	for i, f := range flows {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strconv.Quote(f.from))
		sb.WriteByte('>')
		sb.WriteString(strconv.Quote(f.to))
		sb.WriteByte('>')
		sb.WriteString(f.asset)
	}
	return sb.String()
}

// serializeAsset writes value-affecting fields in a fixed order per kind.
func serializeAsset(a model.Asset) string {
	switch v := a.(type) {
	case *model.Player:
		return "player(" + strings.Join([]string{
			strconv.Quote(position(v.Position)),
			formatFloat(v.Age),
			strconv.Quote(string(v.Tier)),
			strconv.Itoa(v.ContractYearsRemaining),
			v.CapHit.String(),
		}, ",") + ")"
	case *model.DraftPick:
		slot := 0
		if v.PickNumber != nil {
			slot = *v.PickNumber
		}
		return "pick(" + strings.Join([]string{
			strconv.Itoa(v.Year),
			strconv.Itoa(v.Round),
			strconv.Itoa(slot),
		}, ",") + ")"
	case *model.Prospect:
		age := "-"
		if v.Age != nil {
			age = formatFloat(*v.Age)
		}
		return "prospect(" + strings.Join([]string{
			strconv.Quote(position(v.Position)),
			strconv.Itoa(v.OrganizationRank),
			strconv.Quote(string(v.Tier)),
			age,
		}, ",") + ")"
	default:
		return "none()"
	}
}

func position(p string) string {
	return strings.ToUpper(strings.TrimSpace(p))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
