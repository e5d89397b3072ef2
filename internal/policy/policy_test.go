package policy

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
)

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default policy should be valid: %v", err)
	}

	tests := []struct {
		name   string
		policy Policy
		want   error
	}{
		{"negative tolerance", Policy{AcceptTolerance: -0.1, DangerRatio: 0.6}, ErrInvalidTolerance},
		{"tolerance of one", Policy{AcceptTolerance: 1, DangerRatio: 0.6}, ErrInvalidTolerance},
		{"zero danger ratio", Policy{AcceptTolerance: 0.15, DangerRatio: 0}, ErrInvalidDangerRatio},
		{"danger ratio above one", Policy{AcceptTolerance: 0.15, DangerRatio: 1.5}, ErrInvalidDangerRatio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.policy.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestJudge(t *testing.T) {
	p := Default()

	tests := []struct {
		name    string
		ledgers []Ledger
		want    Verdict
	}{
		{
			name: "even swap",
			ledgers: []Ledger{
				{Team: "chi", Sent: 60, Received: 60},
				{Team: "gb", Sent: 60, Received: 60},
			},
			want: Verdict{Status: model.StatusAccepted},
		},
		{
			name: "counterparty within tolerance",
			ledgers: []Ledger{
				{Team: "chi", Sent: 52, Received: 60},
				{Team: "gb", Sent: 60, Received: 52},
			},
			want: Verdict{Status: model.StatusAccepted},
		},
		{
			name: "counterparty outside tolerance",
			ledgers: []Ledger{
				{Team: "chi", Sent: 40, Received: 60},
				{Team: "gb", Sent: 60, Received: 40},
			},
			want: Verdict{Status: model.StatusRejected, Rejecting: []string{"gb"}},
		},
		{
			name: "home overpays badly",
			ledgers: []Ledger{
				{Team: "chi", Sent: 100, Received: 30},
				{Team: "gb", Sent: 30, Received: 100},
			},
			want: Verdict{Status: model.StatusAccepted, IsDangerous: true, Endangered: []string{"chi"}},
		},
		{
			name: "three team with idle participant",
			ledgers: []Ledger{
				{Team: "chi", Sent: 50, Received: 48},
				{Team: "gb", Sent: 48, Received: 50},
				{Team: "det"},
			},
			want: Verdict{Status: model.StatusAccepted},
		},
		{
			name: "nothing moves",
			ledgers: []Ledger{
				{Team: "chi"},
				{Team: "gb"},
			},
			want: Verdict{Status: model.StatusRejected, Empty: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Judge("chi", tt.ledgers)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("verdict mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBalance(t *testing.T) {
	tests := []struct {
		received, sent float64
		want           int
	}{
		{0, 0, 50},
		{60, 60, 50},
		{100, 0, 100},
		{0, 100, 0},
		{100, 50, 75},
		{50, 100, 25},
		{80, 100, 40},
	}
	for _, tt := range tests {
		if got := Balance(tt.received, tt.sent); got != tt.want {
			t.Errorf("Balance(%v, %v): expected %d, got %d", tt.received, tt.sent, tt.want, got)
		}
	}
}

func TestLedgerNet(t *testing.T) {
	if got := (Ledger{Sent: 40, Received: 55.5}).Net(); got != 15.5 {
		t.Errorf("expected net 15.5, got %v", got)
	}
}
