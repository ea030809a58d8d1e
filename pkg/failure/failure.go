// Package failure defines the stable error categories surfaced by event handling.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Kind is a stable failure category. Kinds are reported to webhook callers and
// used as metric labels, so values must not change.
type Kind string

const (
	UnknownEventType         Kind = "unknown_event_type"
	UnknownMessageSubtype    Kind = "unknown_message_subtype"
	PermissionDenied         Kind = "permission_denied"
	DisambiguationRequired   Kind = "disambiguation_required"
	InvalidValue             Kind = "invalid_value"
	StorageUploadFailed      Kind = "storage_upload_failed"
	PersistenceWriteFailed   Kind = "persistence_write_failed"
	UpstreamInvocationFailed Kind = "upstream_invocation_failed"
	ReplyTokenReused         Kind = "reply_token_reused"
	ReplyTokenExpired        Kind = "reply_token_expired"
	MalformedPayload         Kind = "malformed_payload"
	Internal                 Kind = "internal"
)

// Error is a categorized failure. Detail is operator-facing and never sent to
// the webhook caller.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	switch {
	case e.Detail == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Detail == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a categorized error.
func New(kind Kind, detail string) error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf creates a categorized error with a formatted detail.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap categorizes err. A nil err yields nil.
func Wrap(kind Kind, err error, detail string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the category of err. Uncategorized errors report Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamInvocationFailed
	}

	return Internal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
