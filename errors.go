package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/op-harness/discovery"
	"github.com/ethereum-optimism/infra/op-harness/options"
)

// IOError is returned when an output destination cannot be written.
// The previous content of the destination, if any, is left intact.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error: %s: %v", e.Path, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(path string, err error) *IOError {
	return &IOError{Path: path, Err: err}
}

// IsIOError checks if the error is or wraps an IOError
func IsIOError(err error) bool {
	var ioErr *IOError
	return err != nil && errors.As(err, &ioErr)
}

// DefectError represents an unexpected failure, such as a panic or an error
// no component knows how to report. It is the only error that should lead
// to a non-zero exit code.
type DefectError struct {
	Err error
}

func (e *DefectError) Error() string {
	return fmt.Sprintf("defect: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *DefectError) Unwrap() error {
	return e.Err
}

// NewDefectError creates a new DefectError
func NewDefectError(err error) *DefectError {
	return &DefectError{Err: err}
}

// IsDefectError checks if the error is or wraps a DefectError
func IsDefectError(err error) bool {
	var defectErr *DefectError
	return err != nil && errors.As(err, &defectErr)
}

// IsExpected reports whether err belongs to the reported, non-fatal error
// taxonomy: configuration, discovery and output errors
func IsExpected(err error) bool {
	if err == nil || IsDefectError(err) {
		return false
	}
	return options.IsConfigError(err) || discovery.IsDiscoveryError(err) || IsIOError(err)
}

// Classify returns expected errors unchanged and wraps everything else as
// a defect
func Classify(err error) error {
	if err == nil || IsExpected(err) || IsDefectError(err) {
		return err
	}
	return NewDefectError(err)
}

// recoverDefect turns a panic of the calling operation into a DefectError.
// It must be deferred directly.
func recoverDefect(op string, errp *error) {
	if r := recover(); r != nil {
		*errp = NewDefectError(fmt.Errorf("panic in %s: %v", op, r))
	}
}

var newlines = strings.NewReplacer("\r\n", " | ", "\n", " | ", "\r", " | ")

// Diagnostic renders err as a single line suitable for the error channel
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(newlines.Replace(strings.TrimSpace(err.Error())))
}
