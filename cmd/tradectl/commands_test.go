package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
	"github.com/sportsmockery/gm-trade-engine/internal/trade"
)

const proposalJSON = `{
	"sport": "nfl",
	"home_team": "CHI",
	"counterparties": ["GB"],
	"flows": [
		{"from": "CHI", "to": "GB", "asset": {"kind": "draft_pick", "ticker": "2026-R1-CHI"}},
		{"from": "GB", "to": "CHI", "asset": {"kind": "player", "id": "s1", "position": "S", "age": 27,
			"performance_tier": "pro_level", "contract_years_remaining": 2, "cap_hit": "0"}}
	]
}`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GRADER_PROVIDER", "heuristic")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFingerprintCmd(t *testing.T) {
	out, err := run(t, proposalJSON, "fingerprint")
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	fp := strings.TrimSpace(out)
	if len(fp) != 64 {
		t.Fatalf("expected 64-char hex fingerprint, got %q", fp)
	}

	// Re-cased team codes fingerprint identically.
	lower := strings.NewReplacer(`"home_team": "CHI"`, `"home_team": "chi"`, `"from": "CHI"`, `"from": "chi"`).Replace(proposalJSON)
	out2, _ := run(t, lower, "fingerprint")
	if strings.TrimSpace(out2) != fp {
		t.Errorf("fingerprint changed with team casing: %s vs %s", out2, fp)
	}

	out, err = run(t, proposalJSON, "fingerprint", "--canonical")
	if err != nil {
		t.Fatalf("fingerprint --canonical failed: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) < 2 {
		t.Errorf("expected canonical form after fingerprint, got %q", out)
	}
}

func TestFingerprintCmd_RejectsInvalid(t *testing.T) {
	bad := strings.Replace(proposalJSON, `"to": "GB"`, `"to": "CHI"`, 1)
	if _, err := run(t, bad, "fingerprint"); err == nil {
		t.Error("expected self-loop to be rejected")
	}
	if _, err := run(t, `{"sport": "nfl", "extra": true}`, "fingerprint"); err == nil {
		t.Error("expected unknown field to be rejected")
	}
}

func TestValuateCmd(t *testing.T) {
	out, err := run(t, "", "valuate", "--sport", "nfl", "--pick", "2026-R1-P1", "--draft-year", "2026")
	if err != nil {
		t.Fatalf("valuate failed: %v", err)
	}
	var b model.ValuationBreakdown
	if err := json.Unmarshal([]byte(out), &b); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if b.FinalValue != 90 {
		t.Errorf("expected 90, got %v", b.FinalValue)
	}

	// A year out is discounted.
	out, _ = run(t, "", "valuate", "--sport", "nfl", "--pick", "2027-R1-P1", "--draft-year", "2026")
	json.Unmarshal([]byte(out), &b)
	if b.FinalValue >= 90 {
		t.Errorf("expected a discount below 90, got %v", b.FinalValue)
	}
}

func TestValuateCmd_FlagErrors(t *testing.T) {
	tests := [][]string{
		{"valuate", "--pick", "2026-R1"},
		{"valuate", "--sport", "nfl"},
		{"valuate", "--sport", "nfl", "--pick", "2026-R1", "--asset", `{"kind":"draft_pick","year":2026,"round":1}`},
		{"valuate", "--sport", "nfl", "--pick", "round one"},
	}
	for _, args := range tests {
		if _, err := run(t, "", args...); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestGradeCmd(t *testing.T) {
	out, err := run(t, proposalJSON, "grade", "--draft-year", "2026")
	if err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	var sub trade.Submission
	if err := json.Unmarshal([]byte(out), &sub); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if sub.Grade.Status != model.StatusAccepted || sub.Grade.Score != 55 {
		t.Errorf("unexpected grade %+v", sub.Grade)
	}
	if sub.ShareCode != "" {
		t.Error("CLI grades are anonymous and carry no share code")
	}
}
