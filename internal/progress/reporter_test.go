package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestLineReporter(t *testing.T) {
	var buf bytes.Buffer
	r := &LineReporter{Out: &buf, Description: "Verifying chains"}
	r.Start(2)
	r.Update(1, "org-1/planner")
	r.Update(2, "org-1/executor")
	r.Finish()

	want := []string{
		"Verifying chains: 2 item(s)",
		"[1/2] org-1/planner",
		"[2/2] org-1/executor",
		"Verifying chains: done",
	}
	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(got), len(want), buf.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewReporterInCI(t *testing.T) {
	t.Setenv("CI", "true")
	if _, ok := NewReporter("x").(*LineReporter); !ok {
		t.Error("expected a line reporter in CI")
	}
}

func TestTerminalReporterWithoutStart(t *testing.T) {
	r := &TerminalReporter{}
	r.Update(1, "ignored")
	r.Finish()
}
