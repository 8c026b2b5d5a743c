package domain

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Error kinds shared by every component. Check them with errors.Is.
var (
	// ErrValidation malformed input: non-positive price or amount, missing credentials.
	ErrValidation = errors.New("validation error")
	// ErrBackend exchange or network failure during an order or query call.
	ErrBackend = errors.New("backend error")
	// ErrInsufficientData balance or symbol metadata absent where required.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNotSupported the backend lacks the requested capability.
	ErrNotSupported = errors.New("not supported")
)

// NewValidationError returns an error of kind ErrValidation.
func NewValidationError(format string, args ...any) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

// NewInsufficientDataError returns an error of kind ErrInsufficientData.
func NewInsufficientDataError(format string, args ...any) error {
	return errors.Wrapf(ErrInsufficientData, format, args...)
}

// NewNotSupportedError returns an error of kind ErrNotSupported for the given backend operation.
func NewNotSupportedError(platform, op string) error {
	return errors.Wrapf(ErrNotSupported, "%s does not support %s", platform, op)
}

// BackendError wraps a vendor failure with the order context needed to act on it.
type BackendError struct {
	Platform string
	Op       string
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
	Err      error
}

// NewBackendError wraps err for a query call that carries no order context.
func NewBackendError(platform, op, symbol string, err error) *BackendError {
	return &BackendError{Platform: platform, Op: op, Symbol: symbol, Err: err}
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Platform, e.Op)
	if e.Symbol != "" {
		msg += " " + e.Symbol
	}
	if e.Side != "" {
		msg += fmt.Sprintf(" side=%s qty=%s", e.Side, e.Quantity.String())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the vendor cause.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is makes every BackendError match ErrBackend.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// IsClassified reports whether err already carries one of the known kinds.
func IsClassified(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrBackend) ||
		errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrNotSupported)
}
