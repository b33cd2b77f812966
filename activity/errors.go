package activity

// Batch-level failure codes. These abort the whole batch before any ledger
// effect, unlike the per-event soft codes in types.go.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeDuplicateBatch   = "DUPLICATE_BATCH"
	CodeCommitFailed     = "COMMIT_FAILED"
)

// BatchError aborts an entire batch with a machine-readable code.
type BatchError struct {
	Code    string
	Message string
}

func (e *BatchError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	// ErrUnauthenticated means no verified caller identity was supplied.
	ErrUnauthenticated = &BatchError{Code: CodeUnauthenticated, Message: "user must be authenticated"}
	// ErrPermissionDenied means the caller may not act for the target child.
	ErrPermissionDenied = &BatchError{Code: CodePermissionDenied, Message: "not authorized to sync for this child"}
	// ErrRateLimited means the per-child request window is exhausted.
	ErrRateLimited = &BatchError{Code: CodeRateLimited, Message: "too many sync requests"}
	// ErrDuplicateBatch means the batch id was already applied. Callers
	// treat it as already-applied success rather than a hard failure.
	ErrDuplicateBatch = &BatchError{Code: CodeDuplicateBatch, Message: "batch already processed"}
)

func invalidArgument(msg string) *BatchError {
	return &BatchError{Code: CodeInvalidArgument, Message: msg}
}
