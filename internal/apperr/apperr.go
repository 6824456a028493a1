// Package apperr defines the error kinds returned by the inventory core.
// Every failure crossing a component boundary is an *Error carrying a Kind,
// so callers can decide between retrying, correcting input or giving up.
package apperr

import (
	"errors"
	"fmt"

	"inventory-service/internal/models"
)

// Kind classifies an error
type Kind string

const (
	KindNotFound            Kind = "NotFound"
	KindInsufficientStock   Kind = "InsufficientStock"
	KindReferentialConflict Kind = "ReferentialConflict"
	KindValidation          Kind = "ValidationError"
	KindTransport           Kind = "TransportFailure"
	KindDuplicate           Kind = "DuplicateSubmission"
)

// NoLine marks errors that are not tied to a sale line
const NoLine = -1

// Sentinels for errors.Is matching on kind
var (
	ErrNotFound            = &Error{Kind: KindNotFound, LineIndex: NoLine}
	ErrInsufficientStock   = &Error{Kind: KindInsufficientStock, LineIndex: NoLine}
	ErrReferentialConflict = &Error{Kind: KindReferentialConflict, LineIndex: NoLine}
	ErrValidation          = &Error{Kind: KindValidation, LineIndex: NoLine}
	ErrTransport           = &Error{Kind: KindTransport, LineIndex: NoLine}
	ErrDuplicate           = &Error{Kind: KindDuplicate, LineIndex: NoLine}
)

// Error is a tagged core error
type Error struct {
	Kind      Kind
	Message   string
	LineIndex int
	ProductID int64

	// Blocking lists the products preventing a supplier deletion
	Blocking []models.ProductRef

	// Sale is the already committed sale for duplicate submissions
	Sale *models.Sale

	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the caller may retry the operation unchanged
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport
}

// AtLine returns a copy of e bound to a sale line
func (e *Error) AtLine(index int) *Error {
	c := *e
	c.LineIndex = index
	return &c
}

// NotFound builds a NotFound error
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), LineIndex: NoLine}
}

// ProductNotFound builds a NotFound error for a product
func ProductNotFound(productID int64) *Error {
	return &Error{
		Kind:      KindNotFound,
		Message:   fmt.Sprintf("product not found: %d", productID),
		LineIndex: NoLine,
		ProductID: productID,
	}
}

// InsufficientStock builds an InsufficientStock error for a product
func InsufficientStock(productID int64, available, requested int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for product %d: available=%d, requested=%d", productID, available, requested),
		LineIndex: NoLine,
		ProductID: productID,
	}
}

// Validation builds a ValidationError
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...), LineIndex: NoLine}
}

// ReferentialConflict builds a conflict listing the blocking products
func ReferentialConflict(supplierID int64, blocking []models.ProductRef) *Error {
	return &Error{
		Kind:      KindReferentialConflict,
		Message:   fmt.Sprintf("supplier %d is referenced by %d product(s)", supplierID, len(blocking)),
		LineIndex: NoLine,
		Blocking:  blocking,
	}
}

// Duplicate builds a DuplicateSubmission error carrying the sale that first used the key
func Duplicate(key string, sale *models.Sale) *Error {
	return &Error{
		Kind:      KindDuplicate,
		Message:   fmt.Sprintf("sale already committed for idempotency key %q", key),
		LineIndex: NoLine,
		Sale:      sale,
	}
}

// Transport wraps an infrastructure failure
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Message: op, LineIndex: NoLine, Err: err}
}

// As extracts the *Error from err
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindTransport for untagged errors
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindTransport
}
