// Package report renders an agent's compliance report: chain integrity,
// recent decisions, applicable policies and the authorization matrix.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/fbromtl/gouvernance-sub001/internal/authz"
	"github.com/fbromtl/gouvernance-sub001/internal/credential"
	"github.com/fbromtl/gouvernance-sub001/internal/policy"
	"github.com/fbromtl/gouvernance-sub001/internal/trace"
)

// Data is everything a report shows.
type Data struct {
	Agent        credential.Agent
	Verification trace.Verification
	ChainTotal   int
	Traces       []trace.Trace
	Policies     []policy.Policy
	Matrix       authz.MatrixDump
	GeneratedAt  time.Time
}

// Builder gathers report data from the stores.
type Builder struct {
	Agents   *credential.Store
	Traces   *trace.Store
	Policies *policy.Store
	// VerifyLimit caps how many records are verified. Zero verifies the
	// whole chain, up to the trace store's ceiling.
	VerifyLimit int
}

// Build collects the data for one agent. The chain is verified with content
// recomputation; the trace table lists the newest limit records.
func (b *Builder) Build(ctx context.Context, organizationID, agentID string, limit int) (*Data, error) {
	agent, err := b.Agents.Get(ctx, organizationID, agentID)
	if err != nil {
		return nil, err
	}
	total, err := b.Traces.Length(ctx, organizationID, agentID)
	if err != nil {
		return nil, err
	}
	verifyLimit := b.VerifyLimit
	if verifyLimit <= 0 {
		verifyLimit = total
	}
	v, err := b.Traces.Verify(ctx, organizationID, agentID, trace.VerifyOptions{
		Limit:           verifyLimit,
		RecomputeHashes: true,
	})
	if err != nil {
		return nil, err
	}
	latest, err := b.Traces.Latest(ctx, organizationID, agentID, limit)
	if err != nil {
		return nil, err
	}
	policies, err := b.Policies.ListActive(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return &Data{
		Agent:        *agent,
		Verification: *v,
		ChainTotal:   total,
		Traces:       latest,
		Policies:     policies,
		Matrix:       authz.Dump(),
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// Truncated reports whether verification covered only a prefix of the
// chain.
func (d *Data) Truncated() bool {
	return d.Verification.ChainLength < d.ChainTotal
}

// Markdown renders d as a Markdown document.
func Markdown(d *Data) (string, error) {
	var b strings.Builder
	a := d.Agent

	fmt.Fprintf(&b, "# Compliance report: %s\n\n", cell(a.Name))
	fmt.Fprintf(&b, "Generated %s\n\n", d.GeneratedAt.Format(time.RFC3339))

	b.WriteString("## Agent\n\n| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Organization | %s |\n", cell(a.OrganizationID))
	fmt.Fprintf(&b, "| Agent ID | `%s` |\n", cell(a.AgentID))
	fmt.Fprintf(&b, "| Autonomy level | %s |\n", a.AutonomyLevel)
	fmt.Fprintf(&b, "| Status | %s |\n", a.Status)
	fmt.Fprintf(&b, "| Owner | %s |\n", cell(a.Owner))
	fmt.Fprintf(&b, "| Registered | %s |\n\n", a.CreatedAt.Format(time.RFC3339))

	b.WriteString("## Audit chain\n\n")
	v := d.Verification
	if v.Valid {
		fmt.Fprintf(&b, "**Intact.** %d record(s) verified, linkage and content hashes.\n\n", v.ChainLength)
	} else {
		fmt.Fprintf(&b, "**Broken** at trace `%s`: %s.\n\n", deref(v.BrokenAtTraceID), v.Reason)
	}
	if d.Truncated() {
		fmt.Fprintf(&b, "Verification covered only the oldest %d of %d records; later records were not checked.\n\n",
			v.ChainLength, d.ChainTotal)
	}
	if len(d.Traces) > 0 && len(d.Traces) < d.ChainTotal {
		fmt.Fprintf(&b, "Showing the newest %d of %d records.\n\n", len(d.Traces), d.ChainTotal)
	}

	if len(d.Traces) > 0 {
		b.WriteString("| # | Time | Event | Classification | Description | Hash |\n|---|---|---|---|---|---|\n")
		for _, t := range d.Traces {
			code := t.Decision.ClassificationCode
			if code == "" {
				code = string(t.Decision.Type)
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | `%s` |\n",
				t.Seq, t.CreatedAt.Format(time.RFC3339), t.EventType, cell(code),
				cell(t.Decision.Description), short(t.EventHash))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Active policies\n\n")
	if len(d.Policies) == 0 {
		b.WriteString("No active policies.\n\n")
	} else {
		b.WriteString("| Policy | Name | Requires | Severity | Regulatory mapping |\n|---|---|---|---|---|\n")
		for _, p := range d.Policies {
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n",
				cell(p.PolicyID), cell(p.Name), p.Rule.Requires, cell(p.Severity),
				cell(strings.Join(p.RegulatoryMapping, ", ")))
		}
		b.WriteString("\n")
	}

	matrix, err := json.MarshalIndent(d.Matrix, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding matrix: %w", err)
	}
	b.WriteString("## Authorization matrix\n\n```json\n")
	b.Write(matrix)
	b.WriteString("\n```\n")

	return b.String(), nil
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: .3rem .6rem; text-align: left; }
code { font-size: .9em; }
</style>
</head>
<body>
{{.Content}}
</body>
</html>
`))

// HTML renders d as a standalone HTML page.
func HTML(d *Data) ([]byte, error) {
	src, err := Markdown(d)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	var body bytes.Buffer
	if err := md.Convert([]byte(src), &body); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}

	var out bytes.Buffer
	err = page.Execute(&out, struct {
		Title   string
		Content template.HTML
	}{
		Title:   "Compliance report: " + d.Agent.Name,
		Content: template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}
	return out.Bytes(), nil
}

// cell makes s safe inside a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
