package ledger

import (
	"context"
	"sync"
)

// InMemoryStore keeps everything in process memory behind one mutex.
type InMemoryStore struct {
	mu sync.Mutex

	audit     []AuditRecord
	approvals map[string]ApprovalRecord
	order     []string
	history   []HistoryRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		approvals: make(map[string]ApprovalRecord),
	}
}

func (s *InMemoryStore) AppendAudit(_ context.Context, build func(prevHash string) (AuditRecord, error)) (AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := ""
	if n := len(s.audit); n > 0 {
		prev = s.audit[n-1].Hash
	}
	rec, err := build(prev)
	if err != nil {
		return AuditRecord{}, err
	}
	rec.Seq = int64(len(s.audit) + 1)
	s.audit = append(s.audit, rec)
	return rec, nil
}

func (s *InMemoryStore) ListAudit(_ context.Context, limit int) ([]AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AuditRecord, 0, capFor(limit, len(s.audit)))
	for i := len(s.audit) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.audit[i])
	}
	return out, nil
}

func (s *InMemoryStore) ListAuditChain(_ context.Context, limit int) ([]AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.audit)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]AuditRecord, n)
	copy(out, s.audit[:n])
	return out, nil
}

func (s *InMemoryStore) InsertApproval(_ context.Context, rec ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.approvals[rec.ApprovalID]; ok {
		return ErrConflict
	}
	s.approvals[rec.ApprovalID] = rec
	s.order = append(s.order, rec.ApprovalID)
	return nil
}

func (s *InMemoryStore) GetApproval(_ context.Context, approvalID string) (ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.approvals[approvalID]
	if !ok {
		return ApprovalRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) ListApprovals(_ context.Context, status string) ([]ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []ApprovalRecord{}
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.approvals[s.order[i]]
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *InMemoryStore) TransitionApproval(_ context.Context, t ApprovalTransition) (ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.approvals[t.ApprovalID]
	if !ok {
		return ApprovalRecord{}, ErrNotFound
	}
	if rec.Status != t.From {
		return rec, ErrConflict
	}
	t.Apply(&rec)
	s.approvals[t.ApprovalID] = rec
	return rec, nil
}

func (s *InMemoryStore) PutHistory(_ context.Context, rec HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	return nil
}

func (s *InMemoryStore) ListHistory(_ context.Context, limit int) ([]HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]HistoryRecord, 0, capFor(limit, len(s.history)))
	for i := len(s.history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.history[i])
	}
	return out, nil
}

func capFor(limit, n int) int {
	if limit > 0 && limit < n {
		return limit
	}
	return n
}
