package metrics

import "time"

// Transfer directions for RecordBytesTransferred.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// WorkerMetrics provides observability for engine operations.
//
// Implementations must be safe for concurrent use: every peer session
// records into the same instance. Passing nil where a WorkerMetrics is
// accepted selects the no-op implementation.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewWorkerMetrics()
//	engine := worker.New(deps, m)
//
//	// Without metrics (no-op)
//	engine := worker.New(deps, nil)
type WorkerMetrics interface {
	// RecordRequest records a completed protocol request.
	//
	// Parameters:
	//   - op: Operation name (e.g., "LIST_DIR", "RESOLVE")
	//   - duration: Time taken to process the request
	//   - errorCode: Error code if the request failed, empty on success
	RecordRequest(op string, duration time.Duration, errorCode string)

	// RecordBytesTransferred records payload bytes moved over a channel.
	//
	// Parameters:
	//   - direction: DirectionUpload or DirectionDownload
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// RecordUpload records a finished upload session.
	//
	// Parameters:
	//   - outcome: "complete", "mismatch", "error" or "aborted"
	RecordUpload(outcome string)

	// RecordCacheLookup records an upload cache check.
	//
	// Parameters:
	//   - result: "hit" or "miss"
	RecordCacheLookup(result string)

	// RecordSearch records a finished search.
	RecordSearch(duration time.Duration, timedOut bool)

	// SetActivePeers updates the number of connected peers.
	SetActivePeers(count int32)

	// RecordRateLimited counts a request rejected by the per-peer limiter.
	RecordRateLimited()
}

// noopWorkerMetrics discards everything.
type noopWorkerMetrics struct{}

// NewNoopWorkerMetrics returns a WorkerMetrics with zero overhead.
func NewNoopWorkerMetrics() WorkerMetrics {
	return noopWorkerMetrics{}
}

func (noopWorkerMetrics) RecordRequest(string, time.Duration, string) {}
func (noopWorkerMetrics) RecordBytesTransferred(string, int64)        {}
func (noopWorkerMetrics) RecordUpload(string)                         {}
func (noopWorkerMetrics) RecordCacheLookup(string)                    {}
func (noopWorkerMetrics) RecordSearch(time.Duration, bool)            {}
func (noopWorkerMetrics) SetActivePeers(int32)                        {}
func (noopWorkerMetrics) RecordRateLimited()                          {}
