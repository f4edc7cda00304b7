package authz

import (
	"context"
	"errors"
	"strings"
	"testing"

	d "github.com/fbromtl/gouvernance-sub001/internal/decision"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
)

type fakeAgents map[string]AgentProfile

func (f fakeAgents) Profile(_ context.Context, org, agentID string) (AgentProfile, error) {
	p, ok := f[org+"/"+agentID]
	if !ok {
		return AgentProfile{}, errkind.E(errkind.ErrNotFound, "agent %q not found", agentID)
	}
	return p, nil
}

func TestEvaluateScenarios(t *testing.T) {
	tests := []struct {
		name         string
		level        d.AutonomyLevel
		typ          d.Type
		risk         d.RiskLevel
		want         Result
		wantOverride bool
		reason       string
	}{
		{"A3 D2 no risk", d.A3, d.D2, "", Authorized, false, ""},
		{"A4 D2 R4 escalates", d.A4, d.D2, d.R4, ApprovalRequired, true, "R4"},
		{"A5 D4 self modification", d.A5, d.D4, "", ApprovalRequired, true, "D4"},
		{"A1 D4 stays prohibited", d.A1, d.D4, d.R4, Prohibited, false, ""},
		{"A2 D2 already approval", d.A2, d.D2, d.R3, ApprovalRequired, false, ""},
		{"A4 D1 R2 untouched", d.A4, d.D1, d.R2, Authorized, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.level, tt.typ, tt.risk)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got.Result != tt.want {
				t.Errorf("Result = %q, want %q", got.Result, tt.want)
			}
			if got.OverrideApplied != tt.wantOverride {
				t.Errorf("OverrideApplied = %v, want %v", got.OverrideApplied, tt.wantOverride)
			}
			if tt.reason != "" {
				if len(got.Reasons) == 0 || !strings.Contains(got.Reasons[0], tt.reason) {
					t.Errorf("Reasons = %v, want one mentioning %q", got.Reasons, tt.reason)
				}
			}
			if !strings.HasPrefix(got.MatrixCell, string(tt.level)+" × "+string(tt.typ)) {
				t.Errorf("MatrixCell = %q", got.MatrixCell)
			}
		})
	}
}

func TestOverridesNeverLoosen(t *testing.T) {
	risks := append([]d.RiskLevel{""}, d.RiskLevels...)
	for _, level := range d.AutonomyLevels {
		for _, typ := range d.Types {
			base, _ := Cell(level, typ)
			for _, risk := range risks {
				got, err := Evaluate(level, typ, risk)
				if err != nil {
					t.Fatalf("Evaluate(%s,%s,%s): %v", level, typ, risk, err)
				}
				if got.Result.strictness() < base.strictness() {
					t.Errorf("%s/%s/%s loosened %s to %s", level, typ, risk, base, got.Result)
				}
				if base == Prohibited && got.Result != Prohibited {
					t.Errorf("%s/%s/%s changed prohibited to %s", level, typ, risk, got.Result)
				}
				if typ == d.D4 && got.Result == Authorized {
					t.Errorf("%s/D4/%s returned authorized", level, risk)
				}
				if risk.Escalating() && got.Result == Authorized {
					t.Errorf("%s/%s/%s returned authorized despite escalating risk", level, typ, risk)
				}
			}
		}
	}
}

func TestEvaluateInvalidInput(t *testing.T) {
	if _, err := Evaluate("A9", d.D1, ""); !errors.Is(err, errkind.ErrValidation) {
		t.Errorf("unknown level err = %v, want validation", err)
	}
	if _, err := Evaluate(d.A1, d.D1, "R7"); !errors.Is(err, errkind.ErrValidation) {
		t.Errorf("unknown risk err = %v, want validation", err)
	}
}

func TestEngineAuthorize(t *testing.T) {
	agents := fakeAgents{
		"org-1/planner":   {AgentID: "planner", AutonomyLevel: d.A3, Active: true},
		"org-1/suspended": {AgentID: "suspended", AutonomyLevel: d.A5, Active: false},
	}
	e := NewEngine(agents, nil)
	ctx := context.Background()

	got, err := e.Authorize(ctx, "org-1", "planner", d.D2, "")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if got.Result != Authorized {
		t.Errorf("Result = %q, want authorized", got.Result)
	}

	if _, err := e.Authorize(ctx, "org-1", "suspended", d.D1, ""); !errors.Is(err, errkind.ErrNotFound) {
		t.Errorf("inactive agent err = %v, want not found", err)
	}
	if _, err := e.Authorize(ctx, "org-2", "planner", d.D1, ""); !errors.Is(err, errkind.ErrNotFound) {
		t.Errorf("other org err = %v, want not found", err)
	}
	if _, err := e.Authorize(ctx, "org-1", "planner", "D0", ""); !errors.Is(err, errkind.ErrValidation) {
		t.Errorf("bad type err = %v, want validation", err)
	}
}

func TestDump(t *testing.T) {
	dump := Dump()
	if len(dump.Matrix) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(dump.Matrix))
	}
	if dump.Matrix["A3"]["D2"] != Authorized {
		t.Errorf("A3/D2 = %q", dump.Matrix["A3"]["D2"])
	}
	if len(dump.Overrides) != 2 || dump.Overrides[0].ID != "self_modification" {
		t.Errorf("Overrides = %+v", dump.Overrides)
	}
}
