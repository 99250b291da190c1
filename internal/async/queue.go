// Package async runs the pipeline behind a bounded in-process queue so
// ingestion bursts do not translate into unbounded concurrent OCR and
// model calls.
package async

import (
	"context"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/pipeline"
)

// Job is the smallest useful unit: one artifact to process. The
// artifact id comes from the ingestion layer, not from the pipeline.
type Job struct {
	ArtifactID  string
	Path        string
	SubmittedAt time.Time
}

// DigestSink receives finished digests. Implemented by the repository
// layer and by the batch file writer.
type DigestSink interface {
	SaveDigest(ctx context.Context, d fact.Digest) error
}

type ProcessorQueue struct {
	proc    *pipeline.Processor
	sink    DigestSink
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(proc *pipeline.Processor, sink DigestSink, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		sink:    sink,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := q.processJob(ctx, job)
					cancel()

					if err != nil {
						q.logger.Error("processing failed", "worker_id", workerID, "artifact_id", job.ArtifactID, "error", err)
					} else {
						q.logger.Info("processed artifact", "worker_id", workerID, "artifact_id", job.ArtifactID)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) processJob(ctx context.Context, job Job) error {
	artifact, err := os.ReadFile(job.Path)
	if err != nil {
		return err
	}
	digest, err := q.proc.Process(ctx, pipeline.Request{
		SourceArtifactID: job.ArtifactID,
		Artifact:         artifact,
		MIMEType:         mimeForPath(job.Path),
	})
	if err != nil {
		return err
	}
	if q.sink == nil {
		return nil
	}
	return q.sink.SaveDigest(ctx, digest)
}

func (q *ProcessorQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "artifact_id", job.ArtifactID)
		return nil
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued artifact for processing", "artifact_id", job.ArtifactID)
	default:
		q.logger.Warn("queue full, applying backpressure", "artifact_id", job.ArtifactID)
		q.ch <- job
	}
	return nil
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

func mimeForPath(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	switch filepath.Ext(path) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
