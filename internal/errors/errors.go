package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel markers. Errors built with this package are marked with exactly one of these so that
// callers can branch with errors.Is regardless of how much wrapping happened in between.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrVersionConflict  = errors.New("version conflict")
	ErrValidation       = errors.New("validation error")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPermissionDenied = errors.New("permission denied")
	ErrProcessor        = errors.New("payment processor error")
	ErrDatabase         = errors.New("database error")
	ErrInternal         = errors.New("internal error")
)

// InternalError carries the hint and reportable details that are safe to show to an operator.
type InternalError struct {
	Err     error
	Hint    string
	Details map[string]any
}

func (e *InternalError) Error() string {
	return e.Err.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// ErrorBuilder provides a fluent way to attach context before marking an error.
type ErrorBuilder struct {
	err     error
	hint    string
	details map[string]any
}

// NewError starts a builder from a fresh message.
func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.NewWithDepth(1, msg)}
}

// NewErrorf starts a builder from a formatted message.
func NewErrorf(format string, args ...any) *ErrorBuilder {
	return &ErrorBuilder{err: errors.NewWithDepthf(1, format, args...)}
}

// WithError starts a builder wrapping an existing error.
func WithError(err error) *ErrorBuilder {
	if err == nil {
		err = errors.NewWithDepth(1, "unknown error")
	}
	return &ErrorBuilder{err: err}
}

func (b *ErrorBuilder) WithMessage(msg string) *ErrorBuilder {
	b.err = errors.WrapWithDepth(1, b.err, msg)
	return b
}

func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.hint = hint
	b.err = errors.WithHint(b.err, hint)
	return b
}

func (b *ErrorBuilder) WithHintf(format string, args ...any) *ErrorBuilder {
	return b.WithHint(fmt.Sprintf(format, args...))
}

func (b *ErrorBuilder) WithReportableDetails(details map[string]any) *ErrorBuilder {
	if b.details == nil {
		b.details = make(map[string]any, len(details))
	}
	for k, v := range details {
		b.details[k] = v
	}
	return b
}

// Mark finalizes the builder. The reference should be one of the sentinels above.
func (b *ErrorBuilder) Mark(reference error) error {
	marked := errors.Mark(b.err, reference)
	if b.hint == "" && len(b.details) == 0 {
		return marked
	}
	return &InternalError{
		Err:     marked,
		Hint:    b.hint,
		Details: b.details,
	}
}

// Is reports whether err is marked with the reference.
func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

func IsNotFound(err error) bool        { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool   { return errors.Is(err, ErrAlreadyExists) }
func IsVersionConflict(err error) bool { return errors.Is(err, ErrVersionConflict) }
func IsValidation(err error) bool      { return errors.Is(err, ErrValidation) }
func IsProcessor(err error) bool       { return errors.Is(err, ErrProcessor) }
func IsUnauthorized(err error) bool    { return errors.Is(err, ErrUnauthorized) }

// GetHint returns the outermost hint attached to err, if any.
func GetHint(err error) string {
	var ie *InternalError
	if errors.As(err, &ie) && ie.Hint != "" {
		return ie.Hint
	}
	hints := errors.GetAllHints(err)
	if len(hints) > 0 {
		return hints[0]
	}
	return ""
}

// GetReportableDetails merges every detail map found on the chain, outermost wins.
func GetReportableDetails(err error) map[string]any {
	merged := map[string]any{}
	for err != nil {
		if ie, ok := err.(*InternalError); ok {
			for k, v := range ie.Details {
				if _, exists := merged[k]; !exists {
					merged[k] = v
				}
			}
		}
		err = errors.UnwrapOnce(err)
	}
	return merged
}
