package errors

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// ErrorBuilder provides a fluent interface for building errors.
// It deliberately does not implement the error interface: Mark must be the
// last call in the chain so every built error carries exactly one sentinel.
type ErrorBuilder struct {
	err error
}

// NewError starts a builder chain from a message.
func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.New(msg)}
}

// NewErrorf starts a builder chain from a formatted message.
func NewErrorf(format string, args ...any) *ErrorBuilder {
	return &ErrorBuilder{err: errors.Newf(format, args...)}
}

// WithError starts a builder chain from an existing error.
func WithError(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// WithMessage adds internal context to the error.
func (b *ErrorBuilder) WithMessage(msg string) *ErrorBuilder {
	b.err = errors.WithMessage(b.err, msg)
	return b
}

// WithHint adds a caller-facing hint.
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

// WithHintf adds a formatted caller-facing hint.
func (b *ErrorBuilder) WithHintf(format string, args ...any) *ErrorBuilder {
	b.err = errors.WithHintf(b.err, format, args...)
	return b
}

// WithReportableDetails attaches structured details safe to surface in logs
// and API responses.
func (b *ErrorBuilder) WithReportableDetails(details map[string]any) *ErrorBuilder {
	marshaled, err := json.Marshal(details)
	if err != nil {
		return b
	}
	b.err = errors.WithSafeDetails(b.err, "__json__:%s", errors.Safe(string(marshaled)))
	return b
}

// Mark stamps the error with a sentinel kind and terminates the chain.
func (b *ErrorBuilder) Mark(reference error) error {
	return errors.Mark(b.err, reference)
}
