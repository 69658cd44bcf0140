package engine

import (
	"errors"
	"fmt"

	"github.com/soimon/notion-todoist/internal/diff"
)

// SyncError is an error that aborted a pass.
//
// SyncError carries a code so callers can tell a retryable store outage
// from input that will fail the same way on every retry.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// Store is "source", "target" or "state" when the error is tied to one.
	Store string

	// Err is the underlying cause.
	Err error
}

// SyncErrorCode categorizes pass errors.
type SyncErrorCode string

const (
	// ErrCodeTransientStore indicates a fetch failed (network, 5xx, maintenance).
	ErrCodeTransientStore SyncErrorCode = "TRANSIENT_STORE"

	// ErrCodeMalformedData indicates input that cannot be paired safely,
	// such as a sync id used twice on one side.
	ErrCodeMalformedData SyncErrorCode = "MALFORMED_DATA"

	// ErrCodeAmbiguousDiscriminator indicates an entity tagged with both or
	// neither store origin.
	ErrCodeAmbiguousDiscriminator SyncErrorCode = "AMBIGUOUS_DISCRIMINATOR"

	// ErrCodeCommitFailed indicates a store write aborted mid-commit. Stores
	// committed before the failure keep their changes.
	ErrCodeCommitFailed SyncErrorCode = "COMMIT_FAILED"

	// ErrCodeStateStore indicates the boundary or pause flag could not be
	// read or written.
	ErrCodeStateStore SyncErrorCode = "STATE_STORE"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Store != "" {
		msg = fmt.Sprintf("%s (store=%s)", msg, e.Store)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a store outage worth retrying later.
func IsTransient(err error) bool { return hasCode(err, ErrCodeTransientStore) }

// IsMalformed reports whether err was caused by unpairable input, including
// ambiguous origins.
func IsMalformed(err error) bool {
	return hasCode(err, ErrCodeMalformedData) || hasCode(err, ErrCodeAmbiguousDiscriminator)
}

// IsCommitFailure reports whether err aborted a commit.
func IsCommitFailure(err error) bool { return hasCode(err, ErrCodeCommitFailed) }

func hasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func fetchError(store string, err error) *SyncError {
	return &SyncError{Code: ErrCodeTransientStore, Message: "fetch failed", Store: store, Err: err}
}

func stateError(msg string, err error) *SyncError {
	return &SyncError{Code: ErrCodeStateStore, Message: msg, Store: "state", Err: err}
}

func commitError(store string, err error) *SyncError {
	return &SyncError{Code: ErrCodeCommitFailed, Message: "commit failed", Store: store, Err: err}
}

// pairingError classifies a diff or strategy failure.
func pairingError(class string, err error) *SyncError {
	code := ErrCodeMalformedData
	if errors.Is(err, diff.ErrAmbiguousOrigin) {
		code = ErrCodeAmbiguousDiscriminator
	}
	return &SyncError{Code: code, Message: "cannot pair " + class, Err: err}
}
