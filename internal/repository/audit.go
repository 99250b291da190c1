package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/common"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

// AuditStore keeps rejected and flagged results in a local SQLite file
// so reviewers can inspect provenance without a running Postgres.
type AuditStore struct {
	db  *sql.DB
	log *slog.Logger
}

const auditDDL = `
CREATE TABLE IF NOT EXISTS exceptions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	artifact_id TEXT NOT NULL,
	category    TEXT NOT NULL,
	status      TEXT NOT NULL,
	reasons     TEXT NOT NULL,
	span        TEXT NOT NULL,
	page        INTEGER NOT NULL,
	start_seq   INTEGER NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exceptions_artifact ON exceptions (artifact_id);`

func OpenAuditStore(path string, log *slog.Logger) (*AuditStore, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.WrapError(common.ErrDatabase, "open audit store", err)
	}
	// modernc sqlite is in-process; one writer connection avoids
	// SQLITE_BUSY under the worker pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(auditDDL); err != nil {
		_ = db.Close()
		return nil, common.WrapError(common.ErrDatabase, "init audit schema", err)
	}
	return &AuditStore{db: db, log: log}, nil
}

func (s *AuditStore) Close() error { return s.db.Close() }

// RecordExceptions appends every rejected and flagged result of the
// digest to the audit log.
func (s *AuditStore) RecordExceptions(ctx context.Context, d fact.Digest) error {
	if len(d.Rejected) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.WrapError(common.ErrDatabase, "begin audit tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO exceptions (artifact_id, category, status, reasons, span, page, start_seq, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return common.WrapError(common.ErrDatabase, "prepare audit insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, vr := range d.Rejected {
		reasons, err := json.Marshal(vr.Reasons)
		if err != nil {
			return common.WrapError(common.ErrInternal, "marshal reasons", err)
		}
		page := 0
		if len(vr.Synthesis.RawSpan.Tokens) > 0 {
			page = vr.Synthesis.RawSpan.Tokens[0].Page
		}
		_, err = stmt.ExecContext(ctx,
			d.SourceArtifactID,
			string(vr.Synthesis.Category),
			string(vr.Status),
			string(reasons),
			vr.Synthesis.RawSpan.Text(),
			page,
			vr.Synthesis.RawSpan.StartSeq(),
			now,
		)
		if err != nil {
			return common.WrapError(common.ErrDatabase, "insert audit row", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return common.WrapError(common.ErrDatabase, "commit audit tx", err)
	}
	s.log.Info("audit exceptions recorded", "artifact_id", d.SourceArtifactID, "count", len(d.Rejected))
	return nil
}

// AuditRow is one recorded exception.
type AuditRow struct {
	ArtifactID string
	Category   string
	Status     string
	Reasons    []string
	Span       string
	Page       int
	StartSeq   int
	RecordedAt time.Time
}

func (s *AuditStore) ListExceptions(ctx context.Context, artifactID string) ([]AuditRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT artifact_id, category, status, reasons, span, page, start_seq, recorded_at
		 FROM exceptions WHERE artifact_id = ? ORDER BY start_seq, id`, artifactID)
	if err != nil {
		return nil, common.WrapError(common.ErrDatabase, "list exceptions", err)
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var row AuditRow
		var reasons, recorded string
		if err := rows.Scan(&row.ArtifactID, &row.Category, &row.Status, &reasons, &row.Span, &row.Page, &row.StartSeq, &recorded); err != nil {
			return nil, common.WrapError(common.ErrDatabase, "scan exception", err)
		}
		if err := json.Unmarshal([]byte(reasons), &row.Reasons); err != nil {
			// Old rows may carry plain text, keep them readable.
			row.Reasons = []string{strings.TrimSpace(reasons)}
		}
		if ts, err := time.Parse(time.RFC3339, recorded); err == nil {
			row.RecordedAt = ts
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
