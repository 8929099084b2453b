package ledger

import "database/sql"

// Column lists shared by the SQL stores, in scan order.
const (
	AuditColumns    = `seq, event_id, ts, user_id, session_id, action_type, decision, reason, risk_score, resource_refs, redacted_payload, result_redacted, prev_hash, hash`
	ApprovalColumns = `approval_id, tool_name, params_json, human_summary, risk_level, status, token, created_by, approved_by, approved_at, executed_at, rejected_by, rejected_at, reject_reason, correlation_id, created_at, updated_at`
	HistoryColumns  = `history_id, tool, request_json, status, response_json, error, created_at`
)

type RowScanner interface {
	Scan(dest ...any) error
}

func ScanAudit(row RowScanner) (AuditRecord, error) {
	var rec AuditRecord
	var risk sql.NullInt64
	if err := row.Scan(&rec.Seq, &rec.EventID, &rec.TS, &rec.User, &rec.Session, &rec.ActionType, &rec.Decision, &rec.Reason, &risk,
		&rec.ResourceRefs, &rec.RedactedPayload, &rec.ResultRedacted, &rec.PrevHash, &rec.Hash); err != nil {
		return AuditRecord{}, err
	}
	if risk.Valid {
		score := int(risk.Int64)
		rec.RiskScore = &score
	}
	return rec, nil
}

func ScanApproval(row RowScanner) (ApprovalRecord, error) {
	var rec ApprovalRecord
	err := row.Scan(&rec.ApprovalID, &rec.ToolName, &rec.ParamsJSON, &rec.HumanSummary, &rec.RiskLevel, &rec.Status, &rec.Token, &rec.CreatedBy,
		&rec.ApprovedBy, &rec.ApprovedAt, &rec.ExecutedAt, &rec.RejectedBy, &rec.RejectedAt, &rec.RejectReason,
		&rec.CorrelationID, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func ScanHistory(row RowScanner) (HistoryRecord, error) {
	var rec HistoryRecord
	err := row.Scan(&rec.HistoryID, &rec.Tool, &rec.RequestJSON, &rec.Status, &rec.ResponseJSON, &rec.Error, &rec.CreatedAt)
	return rec, err
}

// RiskArg converts an optional score to a driver value.
func RiskArg(score *int) any {
	if score == nil {
		return nil
	}
	return int64(*score)
}
