package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

func openTestAudit(t *testing.T) *AuditStore {
	t.Helper()
	store, err := OpenAuditStore(filepath.Join(t.TempDir(), "audit.db"), nil)
	if err != nil {
		t.Fatalf("OpenAuditStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func exception(category fact.CategoryID, status fact.ValidationStatus, seq int, reasons ...string) fact.ValidationResult {
	return fact.ValidationResult{
		Synthesis: fact.Synthesis{
			Category: category,
			RawSpan: fact.Snippet{Tokens: []fact.Token{
				{Text: "Total", Page: 1, Seq: seq},
				{Text: "-50.00", Page: 1, Seq: seq + 1},
			}},
		},
		Status:  status,
		Reasons: reasons,
	}
}

func TestRecordAndListExceptions(t *testing.T) {
	store := openTestAudit(t)
	ctx := context.Background()

	d := fact.Digest{
		SourceArtifactID: "artifact-1",
		Rejected: []fact.ValidationResult{
			exception("due_date", fact.StatusFlagged, 30, "semantic check failed"),
			exception("invoice_total", fact.StatusRejected, 10, "negative amount", "deterministic check failed"),
		},
	}
	if err := store.RecordExceptions(ctx, d); err != nil {
		t.Fatalf("RecordExceptions: %v", err)
	}

	rows, err := store.ListExceptions(ctx, "artifact-1")
	if err != nil {
		t.Fatalf("ListExceptions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	// Ordered by start_seq, not insertion order.
	if rows[0].Category != "invoice_total" || rows[1].Category != "due_date" {
		t.Fatalf("order = %s, %s", rows[0].Category, rows[1].Category)
	}
	if rows[0].Status != string(fact.StatusRejected) {
		t.Fatalf("status = %q", rows[0].Status)
	}
	if len(rows[0].Reasons) != 2 || rows[0].Reasons[0] != "negative amount" {
		t.Fatalf("reasons = %v", rows[0].Reasons)
	}
	if rows[0].Span != "Total -50.00" || rows[0].Page != 1 || rows[0].StartSeq != 10 {
		t.Fatalf("provenance = %q page=%d seq=%d", rows[0].Span, rows[0].Page, rows[0].StartSeq)
	}
	if rows[0].RecordedAt.IsZero() {
		t.Fatal("recorded_at not parsed")
	}
}

func TestRecordExceptionsSkipsCleanDigest(t *testing.T) {
	store := openTestAudit(t)
	ctx := context.Background()

	if err := store.RecordExceptions(ctx, fact.Digest{SourceArtifactID: "artifact-2"}); err != nil {
		t.Fatalf("RecordExceptions: %v", err)
	}
	rows, err := store.ListExceptions(ctx, "artifact-2")
	if err != nil {
		t.Fatalf("ListExceptions: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
}

func TestListExceptionsScopedToArtifact(t *testing.T) {
	store := openTestAudit(t)
	ctx := context.Background()

	for _, id := range []string{"artifact-a", "artifact-b"} {
		d := fact.Digest{
			SourceArtifactID: id,
			Rejected:         []fact.ValidationResult{exception("invoice_date", fact.StatusRejected, 0, "unparseable date")},
		}
		if err := store.RecordExceptions(ctx, d); err != nil {
			t.Fatalf("RecordExceptions(%s): %v", id, err)
		}
	}

	rows, err := store.ListExceptions(ctx, "artifact-a")
	if err != nil {
		t.Fatalf("ListExceptions: %v", err)
	}
	if len(rows) != 1 || rows[0].ArtifactID != "artifact-a" {
		t.Fatalf("rows = %+v", rows)
	}
}
