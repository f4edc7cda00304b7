package adp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fbromtl/gouvernance-sub001/internal/authz"
	"github.com/fbromtl/gouvernance-sub001/internal/credential"
	"github.com/fbromtl/gouvernance-sub001/internal/db"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
	"github.com/fbromtl/gouvernance-sub001/internal/policy"
	"github.com/fbromtl/gouvernance-sub001/internal/session"
	"github.com/fbromtl/gouvernance-sub001/internal/trace"
)

type fixture struct {
	svc      *Service
	db       *db.DB
	feed     *trace.Feed
	sessions *session.Store
	token    string
}

func setup(t *testing.T, traceOpts ...trace.Option) *fixture {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	sessions := session.NewStore(database)
	ctx := context.Background()
	if err := sessions.UpsertProfile(ctx, session.Principal{UserID: "user-1", OrganizationID: "org-1", Email: "ops@example.com"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	token, err := sessions.Issue(ctx, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	feed := trace.NewFeed()
	svc := NewService(Deps{
		Agents:   credential.NewStore(database, nil),
		Sessions: sessions,
		Policies: policy.NewStore(database, nil),
		Traces:   trace.NewStore(database, nil, append(traceOpts, trace.WithPublisher(feed))...),
	})
	return &fixture{svc: svc, db: database, feed: feed, sessions: sessions, token: token}
}

// call runs a tool with a JSON body and decodes the result into out.
func (f *fixture) call(t *testing.T, tool string, creds Credentials, body string, out any) error {
	t.Helper()
	res, err := f.svc.CallTool(context.Background(), tool, creds, json.RawMessage(body))
	if err != nil {
		return err
	}
	if out != nil {
		raw, err := json.Marshal(res)
		if err != nil {
			t.Fatalf("marshal %s result: %v", tool, err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("unmarshal %s result: %v", tool, err)
		}
	}
	return nil
}

func (f *fixture) register(t *testing.T, agentID, level string) Credentials {
	t.Helper()
	var resp RegisterAgentResponse
	body := `{"agent_id":"` + agentID + `","name":"` + agentID + `","autonomy_level":"` + level + `"}`
	if err := f.call(t, ToolRegisterAgent, Credentials{SessionToken: f.token}, body, &resp); err != nil {
		t.Fatalf("register %s: %v", agentID, err)
	}
	return Credentials{APIKey: resp.APIKey}
}

func TestRegisterAgentRevealsKeyOnce(t *testing.T) {
	f := setup(t)
	var resp RegisterAgentResponse
	err := f.call(t, ToolRegisterAgent, Credentials{SessionToken: f.token},
		`{"agent_id":"planner","name":"Planner","autonomy_level":"A3"}`, &resp)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.HasPrefix(resp.APIKey, "adp_") || resp.KeyPrefix == "" || resp.Warning == "" {
		t.Errorf("unexpected registration response: %+v", resp)
	}
	if resp.Agent.OrganizationID != "org-1" || resp.Agent.Owner != "ops@example.com" {
		t.Errorf("organization and owner must come from the session: %+v", resp.Agent)
	}

	var agents []credential.Agent
	res, err := f.svc.ReadResource(context.Background(), ResourceAgents, Credentials{APIKey: resp.APIKey}, nil)
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	raw, _ := json.Marshal(res)
	json.Unmarshal(raw, &agents)
	if len(agents) != 1 || strings.Contains(string(raw), resp.APIKey) {
		t.Errorf("agents resource must list the agent without its key: %s", raw)
	}
}

func TestRegisterAgentRequiresSession(t *testing.T) {
	f := setup(t)
	body := `{"agent_id":"planner","name":"Planner","autonomy_level":"A3"}`
	for _, creds := range []Credentials{{}, {SessionToken: "sess_bogus"}, {APIKey: f.token}} {
		err := f.call(t, ToolRegisterAgent, creds, body, nil)
		if !errors.Is(err, errkind.ErrUnauthenticated) {
			t.Errorf("creds %+v: expected unauthenticated, got %v", creds, err)
		}
	}
}

func TestRegisterAgentDuplicate(t *testing.T) {
	f := setup(t)
	f.register(t, "planner", "A3")
	err := f.call(t, ToolRegisterAgent, Credentials{SessionToken: f.token},
		`{"agent_id":"planner","name":"again","autonomy_level":"A1"}`, nil)
	if !errors.Is(err, errkind.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterAgentValidation(t *testing.T) {
	f := setup(t)
	for _, body := range []string{
		`{"agent_id":"x","name":"x","autonomy_level":"A9"}`,
		`{"agent_id":"x","name":"x","autonomy_level":"A1","max_risk_level":"R5"}`,
		`{"agent_id":"x","name":"x","autonomy_level":"A1","allowed_decision_types":["D7"]}`,
		`{"name":"x","autonomy_level":"A1"}`,
		`not json`,
	} {
		if err := f.call(t, ToolRegisterAgent, Credentials{SessionToken: f.token}, body, nil); !errors.Is(err, errkind.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", body, err)
		}
	}
}

func TestToolsRequireAgentKey(t *testing.T) {
	f := setup(t)
	for _, tool := range ToolNames {
		if tool == ToolRegisterAgent {
			continue
		}
		err := f.call(t, tool, Credentials{APIKey: "adp_unknown"}, `{}`, nil)
		if !errors.Is(err, errkind.ErrUnauthenticated) && !errors.Is(err, errkind.ErrValidation) {
			t.Errorf("%s: expected rejection, got %v", tool, err)
		}
	}
	if _, err := f.svc.CallTool(context.Background(), ToolClassify, Credentials{},
		json.RawMessage(`{"decision_type":"D1","risk_level":"R1","reversibility":"total"}`)); !errors.Is(err, errkind.ErrUnauthenticated) {
		t.Errorf("expected unauthenticated without a key, got %v", err)
	}
}

func TestInvalidRequestsAreRejectedBeforeKeyUse(t *testing.T) {
	f := setup(t)
	key := f.register(t, "planner", "A3")

	bodies := map[string]string{
		ToolAuthorize:      `{"decision_type":"D0"}`,
		ToolClassify:       `{"decision_type":"D1","risk_level":"R9","reversibility":"total"}`,
		ToolEvaluatePolicy: `{"decision_type":"D1","risk_level":"high"}`,
		ToolLogTrace:       `{"event_type":"deletion","decision":{"type":"D1"}}`,
		ToolAddPolicy:      `{"policy_id":"P","name":"p","rule":{"requires":"maybe"}}`,
		ToolVerifyChain:    `{"limit":-1}`,
	}
	for tool, body := range bodies {
		if err := f.call(t, tool, key, body, nil); !errors.Is(err, errkind.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", tool, err)
		}
	}

	var used int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM agent_credentials WHERE last_used_at IS NOT NULL`).Scan(&used); err != nil {
		t.Fatal(err)
	}
	if used != 0 {
		t.Errorf("rejected requests must not record key use, %d credential(s) touched", used)
	}

	if err := f.call(t, ToolAuthorize, key, `{"decision_type":"D1"}`, nil); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM agent_credentials WHERE last_used_at IS NOT NULL`).Scan(&used); err != nil {
		t.Fatal(err)
	}
	if used != 1 {
		t.Errorf("a valid request should record key use, got %d", used)
	}
}

func TestUnknownToolAndResource(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.CallTool(context.Background(), "delete_trace", Credentials{}, nil); !errors.Is(err, errkind.ErrNotFound) {
		t.Errorf("expected not found for an unknown tool, got %v", err)
	}
	if _, err := f.svc.ReadResource(context.Background(), "secrets", Credentials{}, nil); !errors.Is(err, errkind.ErrNotFound) {
		t.Errorf("expected not found for an unknown resource, got %v", err)
	}
}

func TestClassifyTool(t *testing.T) {
	f := setup(t)
	key := f.register(t, "planner", "A3")

	var got struct {
		Code               string `json:"classification_code"`
		RiskOverride       bool   `json:"risk_override"`
		RequiresEscalation bool   `json:"requires_escalation"`
	}
	if err := f.call(t, ToolClassify, key, `{"decision_type":"D4","risk_level":"R1","reversibility":"total"}`, &got); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Code != "D4-R1-total" || !got.RequiresEscalation || got.RiskOverride {
		t.Errorf("unexpected classification: %+v", got)
	}
	if err := f.call(t, ToolClassify, key, `{"decision_type":"D2","risk_level":"R2"}`, nil); !errors.Is(err, errkind.ErrValidation) {
		t.Errorf("expected validation error for missing reversibility, got %v", err)
	}
}

func TestAuthorizeTool(t *testing.T) {
	f := setup(t)
	a3 := f.register(t, "planner", "A3")
	f.register(t, "operator", "A4")

	var dec authz.Decision
	if err := f.call(t, ToolAuthorize, a3, `{"decision_type":"D2"}`, &dec); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if dec.Result != authz.Authorized || dec.OverrideApplied {
		t.Errorf("A3 × D2 without risk: expected authorized, got %+v", dec)
	}

	if err := f.call(t, ToolAuthorize, a3, `{"agent_id":"operator","decision_type":"D2","risk_level":"R4"}`, &dec); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if dec.Result != authz.ApprovalRequired || !dec.OverrideApplied || len(dec.Reasons) != 1 || !strings.Contains(dec.Reasons[0], "R4") {
		t.Errorf("A4 × D2 at R4: expected approval with an R4 reason, got %+v", dec)
	}

	if err := f.call(t, ToolAuthorize, a3, `{"agent_id":"ghost","decision_type":"D1"}`, nil); !errors.Is(err, errkind.ErrNotFound) {
		t.Errorf("expected not found for an unknown agent, got %v", err)
	}
}

func TestAuthorizeOtherOrganizationIsNotFound(t *testing.T) {
	f := setup(t)
	key := f.register(t, "planner", "A3")

	ctx := context.Background()
	if err := f.sessions.UpsertProfile(ctx, session.Principal{UserID: "user-2", OrganizationID: "org-2"}); err != nil {
		t.Fatal(err)
	}
	token, err := f.sessions.Issue(ctx, "user-2", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.call(t, ToolRegisterAgent, Credentials{SessionToken: token}, `{"agent_id":"foreign","name":"f","autonomy_level":"A5"}`, nil); err != nil {
		t.Fatalf("register in org-2: %v", err)
	}

	if err := f.call(t, ToolAuthorize, key, `{"agent_id":"foreign","decision_type":"D1"}`, nil); !errors.Is(err, errkind.ErrNotFound) {
		t.Errorf("agents of another organization must be invisible, got %v", err)
	}
}

func TestLogTraceAndVerifyChain(t *testing.T) {
	f := setup(t)
	key := f.register(t, "planner", "A3")
	sub, cancel := f.feed.Subscribe("org-1", 8)
	defer cancel()

	var receipts []trace.Receipt
	for i := 0; i < 3; i++ {
		var r trace.Receipt
		body := `{"decision":{"type":"D2","risk_level":"R2","reversibility":"partial","description":"d","reasoning":"r"},
			"authorization":{"result":"authorized"},"context":{"step":` + string(rune('1'+i)) + `}}`
		if err := f.call(t, ToolLogTrace, key, body, &r); err != nil {
			t.Fatalf("log_trace %d: %v", i, err)
		}
		receipts = append(receipts, r)
	}
	if receipts[0].PreviousHash != nil || receipts[0].ChainLength != 1 {
		t.Errorf("first trace must be the genesis record: %+v", receipts[0])
	}
	if *receipts[2].PreviousHash != receipts[1].EventHash || receipts[2].ChainLength != 3 {
		t.Errorf("third trace must link to the second: %+v", receipts[2])
	}

	first := <-sub.C
	if first.Decision.ClassificationCode != "D2-R2-partial" {
		t.Errorf("expected a derived classification code, got %q", first.Decision.ClassificationCode)
	}

	var v trace.Verification
	if err := f.call(t, ToolVerifyChain, key, `{}`, &v); err != nil {
		t.Fatalf("verify_chain: %v", err)
	}
	if !v.Valid || v.ChainLength != 3 || v.BrokenAtTraceID != nil {
		t.Errorf("expected an intact chain of 3, got %+v", v)
	}

	if _, err := f.db.Exec(`UPDATE traces SET previous_hash = 'ffff' WHERE trace_id = ?`, receipts[1].TraceID); err != nil {
		t.Fatal(err)
	}
	if err := f.call(t, ToolVerifyChain, key, `{"deep":true}`, &v); err != nil {
		t.Fatalf("verify_chain: %v", err)
	}
	if v.Valid || v.BrokenAtTraceID == nil || *v.BrokenAtTraceID != receipts[1].TraceID {
		t.Errorf("expected a break at the second trace, got %+v", v)
	}

	res, err := f.svc.ReadResource(context.Background(), ResourceTraces, key, map[string]string{"limit": "2"})
	if err != nil {
		t.Fatalf("traces resource: %v", err)
	}
	list := res.(TraceList)
	if len(list.Traces) != 2 || list.Limit != 2 {
		t.Errorf("expected 2 traces, got %d (limit %d)", len(list.Traces), list.Limit)
	}
	if _, err := f.svc.ReadResource(context.Background(), ResourceTraces, key, map[string]string{"limit": "many"}); !errors.Is(err, errkind.ErrValidation) {
		t.Errorf("expected validation error for a bad limit, got %v", err)
	}
}

func TestTracesResourceUsesConfiguredLimit(t *testing.T) {
	f := setup(t, trace.WithRecentLimit(5))
	key := f.register(t, "planner", "A3")
	for i := 0; i < 7; i++ {
		if err := f.call(t, ToolLogTrace, key, `{"decision":{"type":"D1"}}`, nil); err != nil {
			t.Fatalf("log_trace %d: %v", i, err)
		}
	}

	res, err := f.svc.ReadResource(context.Background(), ResourceTraces, key, nil)
	if err != nil {
		t.Fatalf("traces resource: %v", err)
	}
	list := res.(TraceList)
	if len(list.Traces) != 5 || list.Limit != 5 {
		t.Errorf("expected the configured 5 traces, got %d (limit %d)", len(list.Traces), list.Limit)
	}

	res, err = f.svc.ReadResource(context.Background(), ResourceTraces, key, map[string]string{"limit": "7"})
	if err != nil {
		t.Fatalf("traces resource: %v", err)
	}
	if list := res.(TraceList); len(list.Traces) != 7 {
		t.Errorf("an explicit limit should override the default, got %d", len(list.Traces))
	}
}

func TestLogTraceValidation(t *testing.T) {
	f := setup(t)
	key := f.register(t, "planner", "A3")
	for _, body := range []string{
		`{"decision":{}}`,
		`{"event_type":"deletion","decision":{"type":"D1"}}`,
		`{"decision":{"type":"D1","risk_level":"R9"}}`,
	} {
		if err := f.call(t, ToolLogTrace, key, body, nil); !errors.Is(err, errkind.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", body, err)
		}
	}
}

func TestPolicyTools(t *testing.T) {
	f := setup(t)
	key := f.register(t, "planner", "A3")

	var ev policy.Evaluation
	if err := f.call(t, ToolEvaluatePolicy, key, `{"decision_type":"D3","risk_level":"R2"}`, &ev); err != nil {
		t.Fatalf("evaluate_policy: %v", err)
	}
	if !ev.Compliant || len(ev.Violations) != 0 || len(ev.ApplicablePolicyIDs) != 0 {
		t.Errorf("expected compliant with nothing applicable, got %+v", ev)
	}

	var added AddPolicyResponse
	err := f.call(t, ToolAddPolicy, key, `{"policy_id":"POL-001","name":"Ops sign-off","severity":"high",
		"rule":{"conditions":{"decision_type":"D3","min_risk_level":"R2"},"requires":"human_approval"}}`, &added)
	if err != nil {
		t.Fatalf("add_policy: %v", err)
	}
	if added.PolicyID != "POL-001" || !added.Active {
		t.Errorf("unexpected add_policy response: %+v", added)
	}
	if err := f.call(t, ToolAddPolicy, key, `{"policy_id":"POL-001","name":"dup","rule":{"requires":"prohibited"}}`, nil); !errors.Is(err, errkind.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if err := f.call(t, ToolAddPolicy, key, `{"policy_id":"POL-002","name":"bad","rule":{"requires":"never"}}`, nil); !errors.Is(err, errkind.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	if err := f.call(t, ToolEvaluatePolicy, key, `{"decision_type":"D3","risk_level":"R2"}`, &ev); err != nil {
		t.Fatalf("evaluate_policy: %v", err)
	}
	if ev.Compliant || len(ev.Violations) != 1 || ev.Violations[0].Requirement != policy.RequireHumanApproval {
		t.Errorf("expected one human approval violation, got %+v", ev)
	}

	res, err := f.svc.ReadResource(context.Background(), ResourcePolicies, key, nil)
	if err != nil {
		t.Fatalf("policies resource: %v", err)
	}
	if ps := res.([]policy.Policy); len(ps) != 1 {
		t.Errorf("expected one active policy, got %d", len(ps))
	}
}

func TestValidateTraceTool(t *testing.T) {
	f := setup(t)
	key := f.register(t, "planner", "A3")

	var res trace.ValidationResult
	body := `{"trace":{"event_type":"decision","decision":{"type":"D1","risk_level":"R1","reversibility":"total"}}}`
	if err := f.call(t, ToolValidateTrace, key, body, &res); err != nil {
		t.Fatalf("validate_trace: %v", err)
	}
	if !res.Valid || len(res.Warnings) != 2 {
		t.Errorf("expected valid with two warnings, got %+v", res)
	}
}

func TestMatrixResource(t *testing.T) {
	f := setup(t)
	key := f.register(t, "planner", "A1")
	res, err := f.svc.ReadResource(context.Background(), ResourceMatrix, key, nil)
	if err != nil {
		t.Fatalf("matrix resource: %v", err)
	}
	dump := res.(authz.MatrixDump)
	if dump.Matrix["A5"]["D4"] != authz.Authorized || len(dump.Overrides) != 2 {
		t.Errorf("unexpected matrix dump: %+v", dump)
	}
}
