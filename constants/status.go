package constants

// JobStatus is the canonical status for extraction jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued   JobStatus = "QUEUED"    // queued for processing
	JobStatusRunning  JobStatus = "RUNNING"   // in progress
	JobStatusTokensOK JobStatus = "TOKENS_OK" // stage 1 completed (tokens extracted)
	JobStatusDigestOK JobStatus = "DIGEST_OK" // pipeline completed (digest assembled)
	JobStatusFailed   JobStatus = "FAILED"    // terminal failure
)
