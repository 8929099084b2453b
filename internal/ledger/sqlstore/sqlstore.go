package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/davidahmann/agentgate/internal/ledger"
)

// Store is the SQLite ledger. SQLite has a single writer, so writes are
// serialized in process as well as by the database.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

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
		var prev string
		err := tx.QueryRowContext(ctx, `SELECT hash FROM audit_events ORDER BY seq DESC LIMIT 1`).Scan(&prev)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		rec, err := build(prev)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO audit_events(event_id, ts, user_id, session_id, action_type, decision, reason, risk_score, resource_refs, redacted_payload, result_redacted, prev_hash, hash)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			rec.EventID, rec.TS, rec.User, rec.Session, rec.ActionType, rec.Decision, rec.Reason, ledger.RiskArg(rec.RiskScore),
			rec.ResourceRefs, rec.RedactedPayload, rec.ResultRedacted, rec.PrevHash, rec.Hash,
		)
		if err != nil {
			return err
		}
		rec.Seq, err = res.LastInsertId()
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]ledger.AuditRecord, error) {
	return s.queryAudit(ctx, `SELECT `+ledger.AuditColumns+` FROM audit_events ORDER BY seq DESC LIMIT ?`, sqlLimit(limit))
}

func (s *Store) ListAuditChain(ctx context.Context, limit int) ([]ledger.AuditRecord, error) {
	return s.queryAudit(ctx, `SELECT `+ledger.AuditColumns+` FROM audit_events ORDER BY seq ASC LIMIT ?`, sqlLimit(limit))
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
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO approvals(`+ledger.ApprovalColumns+`)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(approval_id) DO NOTHING`,
			rec.ApprovalID, rec.ToolName, rec.ParamsJSON, rec.HumanSummary, rec.RiskLevel, rec.Status, rec.Token, rec.CreatedBy,
			rec.ApprovedBy, rec.ApprovedAt, rec.ExecutedAt, rec.RejectedBy, rec.RejectedAt, rec.RejectReason,
			rec.CorrelationID, rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ledger.ErrConflict
		}
		return nil
	})
}

func (s *Store) GetApproval(ctx context.Context, approvalID string) (ledger.ApprovalRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ledger.ApprovalColumns+` FROM approvals WHERE approval_id = ?`, approvalID)
	rec, err := ledger.ScanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ApprovalRecord{}, ledger.ErrNotFound
	}
	return rec, err
}

func (s *Store) ListApprovals(ctx context.Context, status string) ([]ledger.ApprovalRecord, error) {
	query := `SELECT ` + ledger.ApprovalColumns + ` FROM approvals`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY rowid DESC`

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

func (s *Store) TransitionApproval(ctx context.Context, t ledger.ApprovalTransition) (ledger.ApprovalRecord, error) {
	var out ledger.ApprovalRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+ledger.ApprovalColumns+` FROM approvals WHERE approval_id = ?`, t.ApprovalID)
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
		res, err := tx.ExecContext(ctx, `UPDATE approvals SET status = ?, approved_by = ?, approved_at = ?, executed_at = ?, rejected_by = ?, rejected_at = ?, reject_reason = ?, updated_at = ?
WHERE approval_id = ? AND status = ?`,
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
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO tool_history(`+ledger.HistoryColumns+`) VALUES(?,?,?,?,?,?,?)`,
			rec.HistoryID, rec.Tool, rec.RequestJSON, rec.Status, rec.ResponseJSON, rec.Error, rec.CreatedAt,
		)
		return err
	})
}

func (s *Store) ListHistory(ctx context.Context, limit int) ([]ledger.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ledger.HistoryColumns+` FROM tool_history ORDER BY seq DESC LIMIT ?`, sqlLimit(limit))
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

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
