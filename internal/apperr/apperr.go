package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers. The string value is what clients
// see in the "kind" field of an RPC error.
type Kind string

const (
	// KindInternal is the zero classification for errors nobody tagged.
	KindInternal Kind = "internal"
	// KindUnauthorized means no session or an invalid one.
	KindUnauthorized Kind = "unauthorized"
	// KindValidation means malformed input; Fields carries the details.
	KindValidation Kind = "validation"
	// KindNotFound means a listing, recipient or message is absent.
	KindNotFound Kind = "not_found"
	// KindForbidden means the caller may not touch the target.
	KindForbidden Kind = "forbidden"
	// KindStorage means the backing store failed or rejected a write.
	KindStorage Kind = "storage"
	// KindFeatureUnavailable means an optional store (archive overlay) is missing.
	KindFeatureUnavailable Kind = "feature_unavailable"
	// KindRateLimited means the caller exceeded the send rate.
	KindRateLimited Kind = "rate_limited"
)

// Status returns the HTTP-style status associated with the kind.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return 401
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindForbidden:
		return 403
	case KindStorage:
		return 503
	case KindFeatureUnavailable:
		return 501
	case KindRateLimited:
		return 429
	default:
		return 500
	}
}

// Retryable reports whether a client may retry the same request unchanged.
func (k Kind) Retryable() bool {
	return k == KindStorage || k == KindRateLimited
}

// Error is a classified error. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string // field name -> problem, for validation errors
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind-only sentinels below, e.g. errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrStorage            = &Error{Kind: KindStorage}
	ErrFeatureUnavailable = &Error{Kind: KindFeatureUnavailable}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
)

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind with a message prefix.
// A nil err returns nil.
func Wrap(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Forbidden creates a forbidden error.
func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

// FeatureUnavailable creates a feature-unavailable error.
func FeatureUnavailable(format string, args ...any) *Error {
	return New(KindFeatureUnavailable, format, args...)
}

// Storage classifies a backing store failure.
func Storage(err error, op string) error {
	return Wrap(err, KindStorage, "%s", op)
}

// Validation creates a validation error with per-field details.
func Validation(fields map[string]string) *Error {
	msg := "invalid request"
	if len(fields) == 1 {
		for name, problem := range fields {
			msg = fmt.Sprintf("invalid %s: %s", name, problem)
		}
	}
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// InvalidField is shorthand for a single-field validation error.
func InvalidField(field, problem string) *Error {
	return Validation(map[string]string{field: problem})
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when the error was never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FieldsOf returns the validation fields of err, if any.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// OrStorage returns err unchanged if it is already classified; otherwise it
// wraps it as a storage failure. Used at the RPC boundary so unexpected
// store errors surface as retryable rather than internal.
func OrStorage(err error, op string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal {
		return err
	}
	return Storage(err, op)
}
