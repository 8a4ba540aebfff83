package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shashiranjanraj/ventas/app/ledger"
	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/pkg/database"
)

// Validation failures are raised before any transaction starts.
var (
	ErrEmptyCart            = errors.New("sale: cart is empty")
	ErrInvalidQuantity      = errors.New("sale: invalid quantity")
	ErrInvalidPrice         = errors.New("sale: invalid unit price")
	ErrInvalidPaymentMethod = errors.New("sale: payment method not accepted")
	ErrInvalidDraft         = errors.New("sale: malformed draft")
)

var (
	ErrSaleNotFound       = errors.New("sale: not found")
	ErrSaleNotCancellable = errors.New("sale: only completed sales can be cancelled")
	ErrTransient          = errors.New("sale: temporary failure, retry later")
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
)

// Stock errors come from the ledger unchanged.
var (
	ErrInsufficientStock = ledger.ErrInsufficientStock
	ErrProductNotFound   = ledger.ErrProductNotFound
)

// ValidationError ties a validation failure to the offending field.
type ValidationError struct {
	Field  string
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v (%s)", e.Field, e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error, detail string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Err: err, Detail: fmt.Sprintf(detail, args...)}
}

// PersistenceError wraps a storage failure. Transient ones (lock wait,
// timeout, dropped connection) match ErrTransient.
type PersistenceError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("sale: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool {
	return target == ErrTransient && e.Transient
}

// classify passes domain errors through and wraps everything else.
func classify(op string, err error) error {
	if err == nil || isDomain(err) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{
		Op:        op,
		Err:       err,
		Transient: database.IsTransient(err) || errors.Is(err, context.Canceled),
	}
}

func isDomain(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrSaleNotFound) ||
		errors.Is(err, ErrSaleNotCancellable) ||
		errors.Is(err, ledger.ErrInsufficientStock) ||
		errors.Is(err, ledger.ErrProductNotFound) ||
		errors.Is(err, ledger.ErrInvalidMovement) ||
		errors.Is(err, models.ErrSaleTypeMix)
}

// IsTransient reports whether retrying the same call may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) ||
		database.IsTransient(err) ||
		errors.Is(err, context.Canceled)
}

// IsPermanent reports whether err will fail the same way on every retry.
func IsPermanent(err error) bool {
	return err != nil && !IsTransient(err)
}

// ─── Stable codes ─────────────────────────────────────────────────────────────

// Error codes carried in API responses and sync failure reports.
const (
	CodeEmptyCart            = "empty_cart"
	CodeInvalidQuantity      = "invalid_quantity"
	CodeInvalidPrice         = "invalid_price"
	CodeInvalidPaymentMethod = "invalid_payment_method"
	CodeInvalidDraft         = "invalid_draft"
	CodeInsufficientStock    = "insufficient_stock"
	CodeProductNotFound      = "product_not_found"
	CodeSaleNotFound         = "sale_not_found"
	CodeSaleNotCancellable   = "sale_not_cancellable"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeTransient            = "transient"
	CodePersistence          = "persistence_error"
)

var codes = []struct {
	code string
	err  error
}{
	{CodeEmptyCart, ErrEmptyCart},
	{CodeInvalidQuantity, ErrInvalidQuantity},
	{CodeInvalidPrice, ErrInvalidPrice},
	{CodeInvalidPaymentMethod, ErrInvalidPaymentMethod},
	{CodeInvalidDraft, ErrInvalidDraft},
	{CodeInsufficientStock, ledger.ErrInsufficientStock},
	{CodeProductNotFound, ledger.ErrProductNotFound},
	{CodeSaleNotFound, ErrSaleNotFound},
	{CodeSaleNotCancellable, ErrSaleNotCancellable},
	{CodeInvalidCredentials, ErrInvalidCredentials},
	{CodeInvalidQuantity, models.ErrSaleTypeMix},
	{CodeInvalidQuantity, ledger.ErrInvalidMovement},
}

// Code maps err to its stable code. It returns "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	if IsTransient(err) {
		return CodeTransient
	}
	return CodePersistence
}

// FromCode rebuilds an error from a code received over the wire so that
// errors.Is and IsTransient work on the client side.
func FromCode(code, message string) error {
	if code == CodeTransient {
		return fmt.Errorf("%w: %s", ErrTransient, message)
	}
	for _, c := range codes {
		if c.code == code {
			return fmt.Errorf("%w: %s", c.err, message)
		}
	}
	return fmt.Errorf("sale: %s: %s", code, message)
}
