package engine

import (
	"errors"
	"fmt"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

// OpErrorCode categorizes engine operation failures.
type OpErrorCode string

const (
	// ErrCodeUnknownScope means the operation targeted a scope that was
	// never opened or has been closed.
	ErrCodeUnknownScope OpErrorCode = "UNKNOWN_SCOPE"

	// ErrCodeRolledBack means a remote mutation failed and the optimistic
	// change was reverted. The user-visible message lives in Err.
	ErrCodeRolledBack OpErrorCode = "ROLLED_BACK"

	// ErrCodeFetchFailed means a remote fetch failed; the previous view is
	// untouched.
	ErrCodeFetchFailed OpErrorCode = "FETCH_FAILED"

	// ErrCodeMediaRepair means a targeted re-hydration failed; the affected
	// locators stay missing until the next repair opportunity.
	ErrCodeMediaRepair OpErrorCode = "MEDIA_REPAIR_FAILED"
)

// OpError is a categorized engine operation failure with the scope and post
// it concerned.
type OpError struct {
	Code  OpErrorCode
	Scope cache.Scope
	Post  post.ID
	Err   error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	switch {
	case e.Post != "":
		return fmt.Sprintf("%s: scope=%s post=%s: %v", e.Code, e.Scope, e.Post, e.Err)
	case e.Scope != "":
		return fmt.Sprintf("%s: scope=%s: %v", e.Code, e.Scope, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
}

// Unwrap exposes the underlying error to errors.Is/As chains.
func (e *OpError) Unwrap() error { return e.Err }

// IsRolledBack reports whether err is a rolled-back mutation.
// Uses errors.As to handle wrapped errors.
func IsRolledBack(err error) bool {
	var oe *OpError
	return errors.As(err, &oe) && oe.Code == ErrCodeRolledBack
}

// IsUnknownScope reports whether err targeted an unopened scope.
func IsUnknownScope(err error) bool {
	var oe *OpError
	return errors.As(err, &oe) && oe.Code == ErrCodeUnknownScope
}

func opError(code OpErrorCode, scope cache.Scope, id post.ID, err error) *OpError {
	return &OpError{Code: code, Scope: scope, Post: id, Err: err}
}
