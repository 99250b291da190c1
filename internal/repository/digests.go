package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/constants"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/common"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

type DigestRepository interface {
	SaveDigest(ctx context.Context, d fact.Digest) error
	GetDigest(ctx context.Context, artifactID string) (fact.Digest, error)
	MarkJob(ctx context.Context, artifactID string, status constants.JobStatus, message string) error
	ListJobs(ctx context.Context, status constants.JobStatus, limit int) ([]JobRecord, error)
}

// JobRecord mirrors one row of extraction_jobs.
type JobRecord struct {
	ArtifactID string
	Status     constants.JobStatus
	Message    string
	UpdatedAt  time.Time
}

type digestRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewDigestRepository(db *sql.DB, log *slog.Logger) DigestRepository {
	if log == nil {
		log = slog.Default()
	}
	return &digestRepo{db: db, log: log}
}

const digestsDDL = `
CREATE TABLE IF NOT EXISTS digests (
	source_artifact_id TEXT PRIMARY KEY,
	payload            JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS extraction_jobs (
	artifact_id TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the digest tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, digestsDDL)
	return err
}

func (r *digestRepo) SaveDigest(ctx context.Context, d fact.Digest) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return common.WrapError(common.ErrInternal, "marshal digest", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO digests (source_artifact_id, payload, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (source_artifact_id)
		 DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`,
		d.SourceArtifactID, payload, d.CreatedAt,
	)
	if err != nil {
		r.log.Error("digest save failed", "artifact_id", d.SourceArtifactID, "err", err)
		return common.WrapError(common.ErrDatabase, "save digest", err)
	}
	r.log.Info("digest saved", "artifact_id", d.SourceArtifactID, "accepted", len(d.Syntheses), "rejected", len(d.Rejected))
	return r.MarkJob(ctx, d.SourceArtifactID, constants.JobStatusDigestOK, "")
}

func (r *digestRepo) GetDigest(ctx context.Context, artifactID string) (fact.Digest, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM digests WHERE source_artifact_id = $1`, artifactID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fact.Digest{}, common.WrapError(common.ErrNotFound, "digest not found", err)
	}
	if err != nil {
		return fact.Digest{}, common.WrapError(common.ErrDatabase, "load digest", err)
	}
	var d fact.Digest
	if err := json.Unmarshal(payload, &d); err != nil {
		return fact.Digest{}, common.WrapError(common.ErrInternal, "decode digest", err)
	}
	return d, nil
}

func (r *digestRepo) MarkJob(ctx context.Context, artifactID string, status constants.JobStatus, message string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO extraction_jobs (artifact_id, status, message, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (artifact_id)
		 DO UPDATE SET status = EXCLUDED.status, message = EXCLUDED.message, updated_at = EXCLUDED.updated_at`,
		artifactID, string(status), message, time.Now().UTC(),
	)
	if err != nil {
		r.log.Error("job status update failed", "artifact_id", artifactID, "status", status, "err", err)
		return common.WrapError(common.ErrDatabase, "mark job", err)
	}
	return nil
}

func (r *digestRepo) ListJobs(ctx context.Context, status constants.JobStatus, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT artifact_id, status, message, updated_at
		 FROM extraction_jobs
		 WHERE status = $1
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, common.WrapError(common.ErrDatabase, "list jobs", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var rec JobRecord
		var st string
		if err := rows.Scan(&rec.ArtifactID, &st, &rec.Message, &rec.UpdatedAt); err != nil {
			return nil, common.WrapError(common.ErrDatabase, "scan job", err)
		}
		rec.Status = constants.JobStatus(st)
		out = append(out, rec)
	}
	return out, rows.Err()
}
