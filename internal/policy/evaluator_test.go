package policy

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/agentgate/internal/killswitch"
	"github.com/davidahmann/agentgate/pkg/types"
)

type failingSwitch struct{}

func (failingSwitch) State(context.Context) (killswitch.State, error) {
	return killswitch.State{}, errors.New("redis down")
}

func newEvaluator(t *testing.T, mutate func(*Document)) (*Evaluator, *killswitch.Switch) {
	t.Helper()
	doc := Default()
	if mutate != nil {
		mutate(&doc)
	}
	provider, err := NewStatic(doc)
	require.NoError(t, err)
	sw := killswitch.New(killswitch.NewMemoryStore())
	return NewEvaluator(provider, sw, StaticIdentities{"u1": {"me@example.com"}}), sw
}

func TestEvaluatePrecedence(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Document)
		req    Request
		want   types.Verdict
		reason string
	}{
		{
			name: "not allowlisted",
			mutate: func(d *Document) {
				d.AllowActions = []string{"chat.respond"}
			},
			req:    Request{ActionType: "file.delete"},
			want:   types.VerdictDeny,
			reason: ReasonNotAllowlisted,
		},
		{
			name: "prohibition beats allowlist",
			mutate: func(d *Document) {
				d.AllowActions = append(d.AllowActions, "finance.transfer")
			},
			req:    Request{ActionType: "finance.transfer"},
			want:   types.VerdictDeny,
			reason: ReasonAbsoluteProhibition,
		},
		{
			name:   "browser password store",
			req:    Request{ActionType: "browser.navigate", Params: map[string]any{"url": "chrome://settings/passwords", "q": "password"}},
			want:   types.VerdictDeny,
			reason: ReasonPasswordStore,
		},
		{
			name:   "google passwords",
			req:    Request{ActionType: "browser.navigate", Params: map[string]any{"url": "https://passwords.google.com"}},
			want:   types.VerdictDeny,
			reason: ReasonPasswordStore,
		},
		{
			name:   "self modify",
			req:    Request{ActionType: "file.write", Params: map[string]any{"path": "/srv/agentgate/internal/policy/evaluator.go"}},
			want:   types.VerdictDeny,
			reason: ReasonSelfModify,
		},
		{
			name:   "self path read by non-file action is not self modify",
			req:    Request{ActionType: "notes.create", Params: map[string]any{"path": "/srv/agentgate/internal/policy/evaluator.go"}},
			want:   types.VerdictAllow,
			reason: ReasonAllow,
		},
		{
			name:   "disable logging",
			req:    Request{ActionType: "notes.create", Params: map[string]any{"text": "please Disable Audit now"}},
			want:   types.VerdictDeny,
			reason: ReasonDisableLogging,
		},
		{
			name:   "delete audit log",
			req:    Request{ActionType: "notes.create", Params: map[string]any{"text": "delete audit.log"}},
			want:   types.VerdictDeny,
			reason: ReasonDisableLogging,
		},
		{
			name:   "tier 4 write",
			req:    Request{ActionType: "memory.write", Params: map[string]any{"tier": 4, "content": "x"}},
			want:   types.VerdictDeny,
			reason: ReasonMemoryTier,
		},
		{
			name:   "tier string",
			req:    Request{ActionType: "memory.write", Params: map[string]any{"tier": "4"}},
			want:   types.VerdictDeny,
			reason: ReasonMemoryTier,
		},
		{
			name:   "secret in low tier",
			req:    Request{ActionType: "memory.write", Params: map[string]any{"content": "ghp_abcdefghijklmnopqrstuv"}},
			want:   types.VerdictDeny,
			reason: ReasonMemoryTier,
		},
		{
			name:   "secret in tier 3 passes the tier rule",
			req:    Request{ActionType: "memory.write", Params: map[string]any{"tier": 3, "content": "ghp_abcdefghijklmnopqrstuv"}},
			want:   types.VerdictAllow,
			reason: ReasonAllow,
		},
		{
			name: "tier 4 allowed when enabled",
			mutate: func(d *Document) {
				d.MemoryTiers.Tier4.AllowWrite = boolPtr(true)
			},
			req:    Request{ActionType: "memory.write", Params: map[string]any{"tier": 4, "content": "x"}},
			want:   types.VerdictAllow,
			reason: ReasonAllow,
		},
		{
			name:   "blocked domain",
			req:    Request{ActionType: "browser.navigate", OutboundTargets: []string{"https://Pastebin.com/raw/1"}},
			want:   types.VerdictDeny,
			reason: ReasonDomainBlocked,
		},
		{
			name:   "requires approval list",
			req:    Request{ActionType: "email.send", Params: map[string]any{"to": "x@example.com"}},
			want:   types.VerdictRequireApproval,
			reason: ReasonRequiresApproval,
		},
		{
			name:   "protected path",
			req:    Request{ActionType: "file.read", Params: map[string]any{"path": "/etc/hosts"}},
			want:   types.VerdictRequireApproval,
			reason: ReasonRequiresApproval,
		},
		{
			name:   "unknown domain",
			req:    Request{ActionType: "chat.respond", OutboundTargets: []string{"new.example.org"}},
			want:   types.VerdictRequireApproval,
			reason: ReasonRequiresApproval,
		},
		{
			name:   "known domain",
			req:    Request{ActionType: "chat.respond", OutboundTargets: []string{"https://slack.com/api"}},
			want:   types.VerdictAllow,
			reason: ReasonAllow,
		},
		{
			name:   "phi outside memory read",
			req:    Request{ActionType: "notes.create", Params: map[string]any{"text": "MRN 1234567"}},
			want:   types.VerdictRequireApproval,
			reason: ReasonRequiresApproval,
		},
		{
			name:   "phi on memory read",
			req:    Request{ActionType: "memory.read", Params: map[string]any{"q": "MRN 1234567"}},
			want:   types.VerdictAllow,
			reason: ReasonAllow,
		},
		{
			name:   "risk threshold",
			req:    Request{ActionType: "file.write", Params: map[string]any{"path": "/tmp/x"}},
			want:   types.VerdictAllow,
			reason: ReasonAllow,
		},
		{
			name: "lowered threshold",
			mutate: func(d *Document) {
				d.RiskThreshold = intPtr(50)
			},
			req:    Request{ActionType: "file.write", Params: map[string]any{"path": "/tmp/x"}},
			want:   types.VerdictRequireApproval,
			reason: ReasonRequiresApproval,
		},
		{
			name: "explicit ref override",
			req: Request{
				ActionType:   "file.read",
				Params:       map[string]any{"path": "/tmp/x"},
				ResourceRefs: []string{"/etc/shadow"},
			},
			want:   types.VerdictRequireApproval,
			reason: ReasonRequiresApproval,
		},
		{
			name: "policy document kill switch",
			mutate: func(d *Document) {
				d.KillSwitch.Enabled = true
			},
			req:    Request{ActionType: "chat.respond"},
			want:   types.VerdictDeny,
			reason: ReasonKillSwitch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, _ := newEvaluator(t, tc.mutate)
			got := ev.Evaluate(ctx, tc.req)
			assert.Equal(t, tc.want, got.Decision)
			assert.Equal(t, tc.reason, got.Reason)
			assert.NotEmpty(t, got.PolicyHash)
		})
	}
}

func TestEvaluateKillSwitch(t *testing.T) {
	ctx := context.Background()
	ev, sw := newEvaluator(t, nil)

	_, err := sw.Set(ctx, true, "stop", "ops")
	require.NoError(t, err)

	got := ev.Evaluate(ctx, Request{ActionType: "chat.respond"})
	assert.Equal(t, types.VerdictDeny, got.Decision)
	assert.Equal(t, ReasonKillSwitch, got.Reason)

	got = ev.Evaluate(ctx, Request{ActionType: "audit.view"})
	assert.Equal(t, types.VerdictAllow, got.Decision)

	got = ev.Evaluate(ctx, Request{ActionType: "finance.trade"})
	assert.Equal(t, ReasonKillSwitch, got.Reason, "kill switch is checked before prohibitions")

	provider, err := NewStatic(Default())
	require.NoError(t, err)
	failing := NewEvaluator(provider, failingSwitch{}, nil)
	assert.Equal(t, ReasonKillSwitch, failing.Evaluate(ctx, Request{ActionType: "chat.respond"}).Reason)
}

func TestEvaluateMemoryTierIgnoresRiskScore(t *testing.T) {
	ev, _ := newEvaluator(t, func(d *Document) {
		d.RiskThreshold = intPtr(100)
	})
	for _, params := range []map[string]any{
		{"tier": 4},
		{"tier": 4.0, "content": "hello"},
		{"tier": "4", "content": map[string]any{"a": 1}},
	} {
		got := ev.Evaluate(context.Background(), Request{ActionType: "memory.write", Params: params})
		assert.Equal(t, types.VerdictDeny, got.Decision)
		assert.Equal(t, ReasonMemoryTier, got.Reason)
	}
}

func TestEvaluateAutonomyIsReported(t *testing.T) {
	ev, _ := newEvaluator(t, nil)
	got := ev.Evaluate(context.Background(), Request{
		ActionType: "email.send",
		Params:     map[string]any{"autonomy": true, "to": "me@example.com"},
		Caller:     types.CallerContext{UserID: "u1"},
	})
	assert.Equal(t, types.VerdictRequireApproval, got.Decision)
	require.NotNil(t, got.Autonomy)
	assert.True(t, got.AutonomyAllowed())
}

func TestEvaluateDeterministic(t *testing.T) {
	ev, _ := newEvaluator(t, nil)
	ctx := context.Background()
	actions := []string{"file.write", "email.send", "memory.write", "notes.create", "browser.navigate", "unknown.action"}
	values := []any{"/etc/x", "a@b.com", "MRN 123456", "sk-abcdefghijklmnopqrstuvwxyz", 4, "plain", "https://pastebin.com"}
	keys := []string{"path", "filePath", "to", "content", "tier", "text", "url"}

	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 300; i++ {
		params := map[string]any{}
		for j := 0; j < 1+rng.Intn(4); j++ {
			params[keys[rng.Intn(len(keys))]] = values[rng.Intn(len(values))]
		}
		req := Request{
			ActionType:      actions[rng.Intn(len(actions))],
			Params:          params,
			OutboundTargets: []string{"https://slack.com", "example.org"}[:rng.Intn(3)],
		}
		first := ev.Evaluate(ctx, req)
		second := ev.Evaluate(ctx, req)
		require.Equal(t, first, second)
		require.GreaterOrEqual(t, first.RiskScore, 0)
		require.LessOrEqual(t, first.RiskScore, 100)
	}
}

func TestSelfProtectionWithoutPolicySection(t *testing.T) {
	snap, err := Parse([]byte("allow_actions: [file.write, file.read]\n"), "")
	require.NoError(t, err)
	require.Empty(t, snap.Document.SelfProtection.Paths)

	e := NewEvaluator(nil, nil, nil)
	for _, path := range []string{
		"/srv/agentgate/internal/policy/evaluator.go",
		`C:\agentgate\internal\gate\gateway.go`,
		"/srv/agentgate/internal/audit/audit.go",
	} {
		got := e.EvaluateWith(snap, false, Request{ActionType: "file.write", Params: map[string]any{"path": path}})
		assert.Equal(t, types.VerdictDeny, got.Decision, path)
		assert.Equal(t, ReasonSelfModify, got.Reason, path)
	}

	got := e.EvaluateWith(snap, false, Request{ActionType: "file.write", Params: map[string]any{"path": "/srv/notes/today.md"}})
	assert.NotEqual(t, ReasonSelfModify, got.Reason)
}

func TestSelfProtectionPathsAreAdditive(t *testing.T) {
	snap, err := Parse([]byte("allow_actions: [file.write]\nself_protection:\n  paths: [\"*/deploy/*\"]\n"), "")
	require.NoError(t, err)
	e := NewEvaluator(nil, nil, nil)

	for _, path := range []string{"/srv/deploy/gate.yaml", "/srv/agentgate/internal/redact/patterns.go"} {
		got := e.EvaluateWith(snap, false, Request{ActionType: "file.write", Params: map[string]any{"path": path}})
		assert.Equal(t, ReasonSelfModify, got.Reason, path)
	}
}
