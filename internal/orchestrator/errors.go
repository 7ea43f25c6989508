package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/tasktalk/internal/storage"
)

// Kind is the category of a failed turn. API layers map it to a status code.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindNotFound           Kind = "not_found"
	KindServiceUnavailable Kind = "service_unavailable"
	KindStoreError         Kind = "store_error"
	KindAlreadyCompleted   Kind = "already_completed"
)

// Error is the only error type RunTurn returns. Detail is safe to show to
// the caller; Err is for logs.
type Error struct {
	Kind   Kind
	Field  string
	Detail string
	// ConversationID is set when the failure happened after the conversation
	// was resolved, so the caller can retry on it.
	ConversationID string
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindStoreError for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStoreError
}

func validation(field, detail string) *Error {
	return &Error{Kind: KindValidation, Field: field, Detail: field + " " + detail}
}

// storeError classifies a storage failure. Internal detail stays in Err.
func storeError(op string, err error) *Error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Kind: KindNotFound, Detail: "conversation not found", Err: err}
	case errors.Is(err, storage.ErrContentTooLarge):
		return &Error{Kind: KindValidation, Field: "utterance", Detail: "utterance is too long", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindServiceUnavailable, Detail: "storage timed out, try again", Err: fmt.Errorf("%s: %w", op, err)}
	}
	return &Error{Kind: KindStoreError, Detail: "storage failure", Err: fmt.Errorf("%s: %w", op, err)}
}
