package repository

import (
	"context"
	"log/slog"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

// PersistenceSink fans a finished digest out to the Postgres store and
// the audit log. Audit failures are logged, not propagated: the digest
// of record is the Postgres row.
type PersistenceSink struct {
	digests DigestRepository
	audit   *AuditStore
	log     *slog.Logger
}

func NewPersistenceSink(digests DigestRepository, audit *AuditStore, log *slog.Logger) *PersistenceSink {
	if log == nil {
		log = slog.Default()
	}
	return &PersistenceSink{digests: digests, audit: audit, log: log}
}

func (s *PersistenceSink) SaveDigest(ctx context.Context, d fact.Digest) error {
	if err := s.digests.SaveDigest(ctx, d); err != nil {
		return err
	}
	if s.audit != nil {
		if err := s.audit.RecordExceptions(ctx, d); err != nil {
			s.log.Error("audit record failed", "artifact_id", d.SourceArtifactID, "error", err)
		}
	}
	return nil
}
