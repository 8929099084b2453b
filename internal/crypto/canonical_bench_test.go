package crypto

import "testing"

func auditRecordFixture() map[string]any {
	return map[string]any{
		"id":          "9b2f7c1e-3d4a-4f0b-8e61-2a5c9d0e7f13",
		"ts":          "2026-10-14T09:30:00.123456Z",
		"user":        "u1",
		"session":     "s-42",
		"action_type": "email.send",
		"decision":    "require_approval",
		"reason":      "requires_approval",
		"risk_score":  72,
		"resource_refs": []any{
			"/home/u1/notes/today.md",
		},
		"redacted_payload": map[string]any{
			"to":      "[REDACTED_EMAIL]",
			"subject": "follow up",
			"body":    "call me at [REDACTED_PHONE]",
			"api_key": "[REDACTED]",
		},
		"result_redacted": nil,
		"policy_hash":     "sha256:3f1a",
		"prev_hash":       "sha256:0000000000000000000000000000000000000000000000000000000000000000",
	}
}

func BenchmarkCanonicalizeAuditRecord(b *testing.B) {
	record := auditRecordFixture()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Canonicalize(record); err != nil {
			b.Fatalf("canonicalize: %v", err)
		}
	}
}

func BenchmarkChainHashAuditRecord(b *testing.B) {
	canonical, err := Canonicalize(auditRecordFixture())
	if err != nil {
		b.Fatalf("canonicalize: %v", err)
	}
	prev := "sha256:0000000000000000000000000000000000000000000000000000000000000000"

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		prev = ChainHash(prev, canonical)
	}
}
