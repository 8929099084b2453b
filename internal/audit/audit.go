// Package audit is the hash-chained audit log over the ledger.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/davidahmann/agentgate/internal/crypto"
	"github.com/davidahmann/agentgate/internal/ledger"
	"github.com/davidahmann/agentgate/internal/metrics"
	"github.com/davidahmann/agentgate/internal/redact"
	"github.com/davidahmann/agentgate/pkg/types"
)

const (
	DefaultListLimit   = 100
	DefaultVerifyLimit = 5000
)

// Entry is what a caller asks to be recorded. Payload and Result are
// redacted before they reach the store.
type Entry struct {
	TS           time.Time
	User         string
	Session      string
	ActionType   string
	Decision     string
	Reason       string
	RiskScore    *int
	ResourceRefs []string
	Payload      any
	Result       any
}

type Log struct {
	store     ledger.AuditStore
	redactors redact.Source
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
}

type Option func(*Log)

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

func WithIDs(newID func() string) Option {
	return func(l *Log) { l.newID = newID }
}

// New builds a Log. redactors supplies the current policy redactor; nil
// means the built-in patterns only.
func New(store ledger.AuditStore, redactors redact.Source, opts ...Option) *Log {
	if redactors == nil {
		redactors = redact.Static(redact.Default())
	}
	l := &Log{
		store:     store,
		redactors: redactors,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) redactor() *redact.Redactor {
	if r := l.redactors.Redactor(); r != nil {
		return r
	}
	return redact.Default()
}

// Append redacts e, links it to the newest stored event and persists it.
func (l *Log) Append(ctx context.Context, e Entry) (types.AuditEvent, error) {
	r := l.redactor()

	refs := make([]string, 0, len(e.ResourceRefs))
	for _, ref := range e.ResourceRefs {
		refs = append(refs, r.RedactString(ref))
	}
	refsJSON, err := crypto.CanonicalString(refs)
	if err != nil {
		return types.AuditEvent{}, fmt.Errorf("encode resource refs: %w", err)
	}
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	result := e.Result
	if result == nil {
		result = map[string]any{}
	}

	ts := e.TS
	if ts.IsZero() {
		ts = l.now()
	}
	base := ledger.AuditRecord{
		EventID:         l.newID(),
		TS:              ledger.FormatTime(ts),
		User:            e.User,
		Session:         e.Session,
		ActionType:      e.ActionType,
		Decision:        e.Decision,
		Reason:          e.Reason,
		RiskScore:       e.RiskScore,
		ResourceRefs:    refsJSON,
		RedactedPayload: r.RedactJSONString(payload),
		ResultRedacted:  r.RedactJSONString(result),
	}

	rec, err := l.store.AppendAudit(ctx, func(prevHash string) (ledger.AuditRecord, error) {
		rec := base
		rec.PrevHash = prevHash
		hash, err := RecordHash(prevHash, rec)
		if err != nil {
			return ledger.AuditRecord{}, err
		}
		rec.Hash = hash
		return rec, nil
	})
	if err != nil {
		return types.AuditEvent{}, fmt.Errorf("append audit event: %w", err)
	}
	l.metrics.IncrementAuditAppend(rec.Decision)
	return toEvent(rec), nil
}

// RecordHash computes sha256hex(prevHash || canonical(record without hash)).
func RecordHash(prevHash string, rec ledger.AuditRecord) (string, error) {
	fields := map[string]any{
		"id":               rec.EventID,
		"ts":               rec.TS,
		"user":             rec.User,
		"session":          rec.Session,
		"action_type":      rec.ActionType,
		"decision":         rec.Decision,
		"reason":           rec.Reason,
		"resource_refs":    rec.ResourceRefs,
		"redacted_payload": rec.RedactedPayload,
		"result_redacted":  rec.ResultRedacted,
		"prev_hash":        rec.PrevHash,
	}
	if rec.RiskScore != nil {
		fields["risk_score"] = *rec.RiskScore
	}
	canonical, err := crypto.Canonicalize(fields)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit record: %w", err)
	}
	return crypto.ChainHash(prevHash, canonical), nil
}

// List returns up to limit events newest first with their JSON fields
// decoded.
func (l *Log) List(ctx context.Context, limit int) ([]types.AuditEvent, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	recs, err := l.store.ListAudit(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.AuditEvent, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toEvent(rec))
	}
	return out, nil
}

// Verify replays up to limit events in sequence order. Each hash is
// recomputed from the previously computed hash, so a forged prev_hash is
// caught as well as any edited field.
func (l *Log) Verify(ctx context.Context, limit int) (types.ChainVerification, error) {
	if limit <= 0 {
		limit = DefaultVerifyLimit
	}
	recs, err := l.store.ListAuditChain(ctx, limit)
	if err != nil {
		return types.ChainVerification{}, err
	}

	prev := ""
	for _, rec := range recs {
		computed, err := RecordHash(prev, rec)
		if err != nil {
			return types.ChainVerification{}, err
		}
		if computed != rec.Hash {
			l.metrics.IncrementVerifyFailure()
			log.Warn().Str("event_id", rec.EventID).Int64("seq", rec.Seq).Msg("audit_chain_mismatch")
			return types.ChainVerification{OK: false, FailedAt: rec.EventID, Expected: computed, Actual: rec.Hash}, nil
		}
		prev = computed
	}
	return types.ChainVerification{OK: true, Count: len(recs), LastHash: prev}, nil
}

func toEvent(rec ledger.AuditRecord) types.AuditEvent {
	refs := []string{}
	if err := json.Unmarshal([]byte(rec.ResourceRefs), &refs); err != nil || refs == nil {
		refs = []string{}
	}
	return types.AuditEvent{
		Seq:             rec.Seq,
		ID:              rec.EventID,
		TS:              rec.TS,
		User:            rec.User,
		Session:         rec.Session,
		ActionType:      rec.ActionType,
		Decision:        rec.Decision,
		Reason:          rec.Reason,
		RiskScore:       rec.RiskScore,
		ResourceRefs:    refs,
		RedactedPayload: parseObject(rec.RedactedPayload),
		ResultRedacted:  parseObject(rec.ResultRedacted),
		PrevHash:        rec.PrevHash,
		Hash:            rec.Hash,
	}
}

func parseObject(raw string) any {
	if raw == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]any{}
	}
	return v
}
