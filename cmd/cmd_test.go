package cmd

import (
	"io"
	"strings"
	"testing"
)

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"init":    nil,
		"serve":   nil,
		"server":  nil,
		"agent":   {"register", "list", "suspend", "reactivate", "revoke", "rotate", "keys"},
		"session": {"issue"},
		"policy":  {"add", "list", "disable"},
		"trace":   {"show"},
		"verify":  nil,
		"report":  nil,
		"version": nil,
	}
	for name, subs := range want {
		c, _, err := rootCmd.Find([]string{name})
		if err != nil || c.Name() != name {
			t.Errorf("command %q not registered", name)
			continue
		}
		for _, sub := range subs {
			sc, _, err := rootCmd.Find([]string{name, sub})
			if err != nil || sc.Name() != sub {
				t.Errorf("command %q %q not registered", name, sub)
			}
		}
	}
}

func TestFlagValidationBeforeOpeningDatabase(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr string
	}{
		{[]string{"verify"}, "either --all or both --org and --agent"},
		{[]string{"verify", "--org", "org-1"}, "either --all or both --org and --agent"},
		{[]string{"report", "--org", "org-1", "--agent", "a", "--format", "pdf"}, "unknown format"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			rootCmd.SetArgs(tt.args)
			rootCmd.SetOut(io.Discard)
			rootCmd.SetErr(io.Discard)
			err := rootCmd.Execute()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
