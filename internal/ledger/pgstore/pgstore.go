package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/davidahmann/agentgate/internal/ledger"
)

// auditLockKey is the advisory lock that serializes chain appends across
// every gateway replica sharing the database.
const auditLockKey = 0x61676174

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) AppendAudit(ctx context.Context, build func(prevHash string) (ledger.AuditRecord, error)) (ledger.AuditRecord, error) {
	var out ledger.AuditRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, auditLockKey); err != nil {
			return fmt.Errorf("audit lock: %w", err)
		}

		var prev string
		err := tx.QueryRowContext(ctx, `SELECT hash FROM agentgate_audit_events ORDER BY seq DESC LIMIT 1`).Scan(&prev)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		rec, err := build(prev)
		if err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx, `INSERT INTO agentgate_audit_events(event_id, ts, user_id, session_id, action_type, decision, reason, risk_score, resource_refs, redacted_payload, result_redacted, prev_hash, hash)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
RETURNING seq`,
			rec.EventID, rec.TS, rec.User, rec.Session, rec.ActionType, rec.Decision, rec.Reason, ledger.RiskArg(rec.RiskScore),
			rec.ResourceRefs, rec.RedactedPayload, rec.ResultRedacted, rec.PrevHash, rec.Hash,
		).Scan(&rec.Seq)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]ledger.AuditRecord, error) {
	return s.queryAudit(ctx, `SELECT `+ledger.AuditColumns+` FROM agentgate_audit_events ORDER BY seq DESC LIMIT $1`, pgLimit(limit))
}

func (s *Store) ListAuditChain(ctx context.Context, limit int) ([]ledger.AuditRecord, error) {
	return s.queryAudit(ctx, `SELECT `+ledger.AuditColumns+` FROM agentgate_audit_events ORDER BY seq ASC LIMIT $1`, pgLimit(limit))
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]ledger.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.AuditRecord{}
	for rows.Next() {
		rec, err := ledger.ScanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) InsertApproval(ctx context.Context, rec ledger.ApprovalRecord) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO agentgate_approvals(`+ledger.ApprovalColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT(approval_id) DO NOTHING`,
		rec.ApprovalID, rec.ToolName, rec.ParamsJSON, rec.HumanSummary, rec.RiskLevel, rec.Status, rec.Token, rec.CreatedBy,
		rec.ApprovedBy, rec.ApprovedAt, rec.ExecutedAt, rec.RejectedBy, rec.RejectedAt, rec.RejectReason,
		rec.CorrelationID, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrConflict
	}
	return nil
}

func (s *Store) GetApproval(ctx context.Context, approvalID string) (ledger.ApprovalRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ledger.ApprovalColumns+` FROM agentgate_approvals WHERE approval_id = $1`, approvalID)
	rec, err := ledger.ScanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ApprovalRecord{}, ledger.ErrNotFound
	}
	return rec, err
}

func (s *Store) ListApprovals(ctx context.Context, status string) ([]ledger.ApprovalRecord, error) {
	query := `SELECT ` + ledger.ApprovalColumns + ` FROM agentgate_approvals`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY seq DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.ApprovalRecord{}
	for rows.Next() {
		rec, err := ledger.ScanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TransitionApproval locks the row, checks the expected status and updates
// it in one transaction.
func (s *Store) TransitionApproval(ctx context.Context, t ledger.ApprovalTransition) (ledger.ApprovalRecord, error) {
	var out ledger.ApprovalRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+ledger.ApprovalColumns+` FROM agentgate_approvals WHERE approval_id = $1 FOR UPDATE`, t.ApprovalID)
		rec, err := ledger.ScanApproval(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrNotFound
		}
		if err != nil {
			return err
		}
		if rec.Status != t.From {
			out = rec
			return ledger.ErrConflict
		}

		t.Apply(&rec)
		res, err := tx.ExecContext(ctx, `UPDATE agentgate_approvals SET status = $1, approved_by = $2, approved_at = $3, executed_at = $4, rejected_by = $5, rejected_at = $6, reject_reason = $7, updated_at = $8
WHERE approval_id = $9 AND status = $10`,
			rec.Status, rec.ApprovedBy, rec.ApprovedAt, rec.ExecutedAt, rec.RejectedBy, rec.RejectedAt, rec.RejectReason, rec.UpdatedAt,
			t.ApprovalID, t.From,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("transition %s: %w", t.ApprovalID, ledger.ErrConflict)
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *Store) PutHistory(ctx context.Context, rec ledger.HistoryRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO agentgate_tool_history(`+ledger.HistoryColumns+`) VALUES($1,$2,$3,$4,$5,$6,$7)`,
		rec.HistoryID, rec.Tool, rec.RequestJSON, rec.Status, rec.ResponseJSON, rec.Error, rec.CreatedAt,
	)
	return err
}

func (s *Store) ListHistory(ctx context.Context, limit int) ([]ledger.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ledger.HistoryColumns+` FROM agentgate_tool_history ORDER BY seq DESC LIMIT $1`, pgLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.HistoryRecord{}
	for rows.Next() {
		rec, err := ledger.ScanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// pgLimit maps "no limit" to NULL, which LIMIT treats as ALL.
func pgLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
