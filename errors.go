package finalize

import (
	stderrors "errors"
	"time"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeExecutionNotFound     = "EXECUTION_NOT_FOUND"
	ErrCodeExecutionLoadFailed   = "EXECUTION_LOAD_FAILED"
	ErrCodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
	ErrCodeAccountLookupFailed   = "ACCOUNT_LOOKUP_FAILED"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeUserLookupFailed      = "USER_LOOKUP_FAILED"
	ErrCodeLockNotAcquired       = "LOCK_NOT_ACQUIRED"
	ErrCodeTagApplyFailed        = "TAG_APPLY_FAILED"
	ErrCodeTagLoadFailed         = "TAG_LOAD_FAILED"
	ErrCodeAnalyticsReport       = "ANALYTICS_REPORT_FAILED"
	ErrCodeIdentifyFailed        = "IDENTIFY_FAILED"
	ErrCodeIdentityPersistFailed = "IDENTITY_PERSIST_FAILED"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeStepFailed            = "FINALIZE_STEP_FAILED"
	ErrCodeStepPanic             = "FINALIZE_STEP_PANIC"
)

// NotFound builds a categorised not-found error for the given record kind.
func NotFound(code, message string, metadata map[string]any) *apperrors.Error {
	err := apperrors.New(message, apperrors.CategoryNotFound).
		WithTextCode(code)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// External wraps a failure raised by a persistence or transport collaborator.
func External(source error, code, message string, metadata map[string]any) *apperrors.Error {
	return Wrap(source, apperrors.CategoryExternal, code, message, metadata)
}

// Wrap layers a new coded error over source. Unlike apperrors.Wrap, which
// clones a go-errors source in place, the source and its text code stay
// reachable through Unwrap.
func Wrap(source error, category apperrors.Category, code, message string, metadata map[string]any) *apperrors.Error {
	if source == nil {
		return nil
	}
	err := &apperrors.Error{
		Category:  category,
		TextCode:  code,
		Message:   message,
		Source:    source,
		Timestamp: time.Now(),
		Severity:  apperrors.SeverityError,
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of the outermost go-errors error in err.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether any go-errors error wrapped in err carries code.
// Joined errors are searched branch by branch.
func HasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if HasCode(e, code) {
				return true
			}
		}
		return false
	}
	var ge *apperrors.Error
	if !stderrors.As(err, &ge) {
		return false
	}
	if ge.TextCode == code {
		return true
	}
	return HasCode(ge.Source, code)
}
