// Package fault defines the error categories surfaced by an HDS fetch.
//
// Callers classify a failure with errors.Is against the sentinels below;
// every error produced inside the fetch path wraps exactly one of them.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat reports malformed or desynchronized binary data.
	ErrFormat = errors.New("format error")
	// ErrLookup reports a missing table or an unresolved reference.
	ErrLookup = errors.New("lookup error")
	// ErrTransport reports network failures and unexpected HTTP statuses.
	ErrTransport = errors.New("transport error")
	// ErrCancelled reports that the caller stopped the fetch.
	ErrCancelled = errors.New("fetch cancelled")
	// ErrUnsupported reports a protocol feature this client does not implement.
	ErrUnsupported = errors.New("unsupported feature")
)

// FormatError carries the box type and stream offset at which parsing failed.
type FormatError struct {
	Box    string
	Offset int64
	Msg    string
}

func (e *FormatError) Error() string {
	if e.Box == "" {
		return fmt.Sprintf("format error at offset %d: %s", e.Offset, e.Msg)
	}
	return fmt.Sprintf("format error in %q box at offset %d: %s", e.Box, e.Offset, e.Msg)
}

// Is makes a FormatError match ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// Format builds a FormatError.
func Format(box string, offset int64, format string, v ...interface{}) error {
	return &FormatError{Box: box, Offset: offset, Msg: fmt.Sprintf(format, v...)}
}

// Lookup wraps ErrLookup with a message.
func Lookup(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrLookup, fmt.Sprintf(format, v...))
}

// Transport wraps ErrTransport around a cause.
func Transport(err error, format string, v ...interface{}) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrTransport, fmt.Sprintf(format, v...))
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, fmt.Sprintf(format, v...), err)
}

// Cancelled wraps ErrCancelled around the context error that triggered it.
func Cancelled(cause error) error {
	if cause == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// Unsupported wraps ErrUnsupported with a message.
func Unsupported(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, v...))
}
