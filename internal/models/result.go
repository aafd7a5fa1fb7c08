package models

// ErrorKind classifies the failure modes a remote operation or sync run can
// surface. Business failures travel inside SyncResult rather than as Go
// errors so callers always receive a value they can inspect.
type ErrorKind string

const (
	// ErrorKindNone means no error occurred
	ErrorKindNone ErrorKind = ""

	// ErrorKindOffline means the connectivity probe reported no network
	ErrorKindOffline ErrorKind = "offline"

	// ErrorKindTimeout means a remote call exceeded its timeout budget
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindDNS means hostname resolution failed
	ErrorKindDNS ErrorKind = "dns_failure"

	// ErrorKindServerUnavailable means the server answered with a 5xx status
	ErrorKindServerUnavailable ErrorKind = "server_unavailable"

	// ErrorKindRateLimited means the server answered with 429
	ErrorKindRateLimited ErrorKind = "rate_limited"

	// ErrorKindClientError means the server answered with a non-retryable 4xx
	ErrorKindClientError ErrorKind = "client_error"

	// ErrorKindUnauthorized means the call was rejected with 401 even after
	// the one reactive token refresh
	ErrorKindUnauthorized ErrorKind = "unauthorized"

	// ErrorKindSerialization means the response body did not match the
	// expected shape
	ErrorKindSerialization ErrorKind = "serialization_mismatch"

	// ErrorKindAlreadyInProgress means a top-level sync was rejected because
	// another one is running
	ErrorKindAlreadyInProgress ErrorKind = "already_in_progress"

	// ErrorKindStorage means the local cache could not be read or written
	ErrorKindStorage ErrorKind = "storage_failure"

	// ErrorKindCancelled means the operation's context was cancelled, for
	// example because the user navigated away from the record being synced
	ErrorKindCancelled ErrorKind = "cancelled"
)

// Retryable reports whether the kind is transient and worth another attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindTimeout, ErrorKindDNS, ErrorKindServerUnavailable, ErrorKindRateLimited:
		return true
	default:
		return false
	}
}

// SyncResult is the outcome of a single sync operation. It is always
// returned by value; Err is ErrorKindNone on success.
type SyncResult struct {
	Success bool
	Added   int
	Updated int
	Deleted int
	Err     ErrorKind
}

// Merge combines two phase results into an aggregate, keeping the first
// error kind encountered.
func (r SyncResult) Merge(other SyncResult) SyncResult {
	out := SyncResult{
		Success: r.Success && other.Success,
		Added:   r.Added + other.Added,
		Updated: r.Updated + other.Updated,
		Deleted: r.Deleted + other.Deleted,
		Err:     r.Err,
	}
	if out.Err == ErrorKindNone {
		out.Err = other.Err
	}
	return out
}

// FailedResult builds an unsuccessful SyncResult for the given kind.
func FailedResult(kind ErrorKind) SyncResult {
	return SyncResult{Success: false, Err: kind}
}

// SyncPhase represents the current phase of the top-level sync state machine.
type SyncPhase string

const (
	// SyncPhaseIdle means no sync is running
	SyncPhaseIdle SyncPhase = "Idle"

	// SyncPhaseSyncing means a sync is currently in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseSucceeded means the last sync completed successfully
	SyncPhaseSucceeded SyncPhase = "Succeeded"

	// SyncPhaseFailed means the last sync failed
	SyncPhaseFailed SyncPhase = "Failed"
)

// SyncState is the tagged value published to orchestrator observers.
// Result is set only for SyncPhaseSucceeded; Message only for SyncPhaseFailed.
type SyncState struct {
	Phase   SyncPhase
	Result  SyncResult
	Message string
}
