package gate

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/davidahmann/agentgate/internal/crypto"
	"github.com/davidahmann/agentgate/internal/ledger"
	"github.com/davidahmann/agentgate/pkg/types"
)

const DefaultHistoryLimit = 50

// record stores one history row. Failures are logged; history is a
// convenience view and the audit chain remains the record of truth.
func (g *Gateway) record(ctx context.Context, tool string, request map[string]any, status types.HistoryStatus, response any, errMsg string) {
	if g.history == nil {
		return
	}
	reqJSON, err := crypto.CanonicalString(request)
	if err != nil {
		reqJSON = `{"redacted":true}`
	}
	rec := ledger.HistoryRecord{
		HistoryID:   g.newID(),
		Tool:        tool,
		RequestJSON: reqJSON,
		Status:      string(status),
		CreatedAt:   ledger.FormatTime(g.now()),
	}
	if response != nil {
		resp := g.redactor().RedactJSONString(response)
		rec.ResponseJSON = &resp
	}
	if errMsg != "" {
		rec.Error = &errMsg
	}
	if err := g.history.PutHistory(ctx, rec); err != nil {
		log.Warn().Err(err).Str("tool", tool).Msg("history_write_failed")
	}
}

// History lists recent tool calls newest first.
func (g *Gateway) History(ctx context.Context, limit int) ([]types.HistoryEntry, error) {
	if g.history == nil {
		return []types.HistoryEntry{}, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	recs, err := g.history.ListHistory(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		entry := types.HistoryEntry{
			ID:        rec.HistoryID,
			Tool:      rec.Tool,
			Request:   decode(rec.RequestJSON),
			Status:    types.HistoryStatus(rec.Status),
			CreatedAt: rec.CreatedAt,
		}
		if rec.ResponseJSON != nil {
			entry.Response = decode(*rec.ResponseJSON)
		}
		if rec.Error != nil {
			entry.Error = *rec.Error
		}
		out = append(out, entry)
	}
	return out, nil
}

func decode(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]any{}
	}
	return v
}
