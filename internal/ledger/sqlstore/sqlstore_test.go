package sqlstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/davidahmann/agentgate/internal/ledger"
	"github.com/davidahmann/agentgate/internal/ledger/ledgertest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { _ = s.Close() })

	if err := ledger.Migrate(context.Background(), s.DB(), ledger.DBSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestStoreBehavior(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		return openTestStore(t)
	})
}

func TestAuditSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "agentgate.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ledger.Migrate(ctx, s.DB(), ledger.DBSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	first, err := s.AppendAudit(ctx, func(prev string) (ledger.AuditRecord, error) {
		return ledger.AuditRecord{EventID: "e1", TS: "t", ResourceRefs: "[]", RedactedPayload: "{}", ResultRedacted: "{}", PrevHash: prev, Hash: "h1"}, nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.Seq == 0 {
		t.Fatalf("expected assigned seq")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if err := ledger.Migrate(ctx, s.DB(), ledger.DBSQLite); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	second, err := s.AppendAudit(ctx, func(prev string) (ledger.AuditRecord, error) {
		if prev != "h1" {
			t.Fatalf("expected prev h1, got %q", prev)
		}
		return ledger.AuditRecord{EventID: "e2", TS: "t", ResourceRefs: "[]", RedactedPayload: "{}", ResultRedacted: "{}", PrevHash: prev, Hash: "h2"}, nil
	})
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if second.RiskScore != nil {
		t.Fatalf("expected nil risk score, got %v", *second.RiskScore)
	}

	chain, err := s.ListAuditChain(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chain) != 2 || chain[1].PrevHash != "h1" {
		t.Fatalf("unexpected chain: %+v", chain)
	}
}

func TestOpenSQLiteBadPath(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "dir", "x.db")); err == nil {
		t.Fatalf("expected error")
	}
}
