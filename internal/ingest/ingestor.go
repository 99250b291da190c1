package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/async"
)

// Enqueuer is the slice of the queue the ingestor needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}

// Ingestor turns discovered paths into queue jobs. Content hashing
// keeps re-delivered events (editor save bursts, rescans) from
// producing duplicate jobs for unchanged files.
type Ingestor struct {
	queue  Enqueuer
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]string // content hash -> artifact id
}

func NewIngestor(queue Enqueuer, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		queue:  queue,
		logger: logger,
		seen:   map[string]string{},
	}
}

// Stats aggregates one ingestion pass.
type Stats struct {
	Scanned      uint32
	Enqueued     uint32
	Deduplicated uint32
	Failed       uint32
}

// IngestPath hashes the file, assigns an artifact id and enqueues a
// job. A previously seen content hash is reported as a duplicate and
// the original artifact id is returned.
func (in *Ingestor) IngestPath(ctx context.Context, path string) (artifactID string, dedup bool, err error) {
	hash, err := hashFile(path)
	if err != nil {
		return "", false, err
	}

	in.mu.Lock()
	if id, ok := in.seen[hash]; ok {
		in.mu.Unlock()
		in.logger.Info("skipping duplicate artifact", "path", path, "artifact_id", id)
		return id, true, nil
	}
	artifactID = uuid.NewString()
	in.seen[hash] = artifactID
	in.mu.Unlock()

	err = in.queue.Enqueue(ctx, async.Job{
		ArtifactID:  artifactID,
		Path:        path,
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", false, err
	}
	return artifactID, false, nil
}

// Run consumes watcher events until the channel closes or ctx is
// cancelled. Per-path failures are logged and counted, never fatal.
func (in *Ingestor) Run(ctx context.Context, paths <-chan string) Stats {
	var stats Stats
	for {
		select {
		case <-ctx.Done():
			return stats
		case path, ok := <-paths:
			if !ok {
				return stats
			}
			stats.Scanned++
			_, dedup, err := in.IngestPath(ctx, path)
			switch {
			case err != nil:
				stats.Failed++
				in.logger.Error("ingest failed", "path", path, "error", err)
			case dedup:
				stats.Deduplicated++
			default:
				stats.Enqueued++
			}
		}
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
