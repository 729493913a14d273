package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Errores de dominio. Los errores tipados de abajo los igualan vía errors.Is.
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrDuplicate         = errors.New("movimiento duplicado")
	ErrInsufficientStock = errors.New("stock insuficiente")
	ErrContention        = errors.New("llave de stock ocupada, reintente")
	ErrInconsistent      = errors.New("el agregado de stock no coincide con su detalle")
	ErrStorage           = errors.New("falla de almacenamiento")
)

// ValidationError rejects a malformed movement at the ingestion boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid movement: " + e.Reason
	}
	return fmt.Sprintf("invalid movement: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError is returned when an outbound movement would drive
// quantityOnHand below zero and negative stock is disallowed.
type InsufficientStockError struct {
	VariantID   string
	WarehouseID string
	OnHand      decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s in warehouse %s: on hand %s, requested %s",
		e.VariantID, e.WarehouseID, e.OnHand, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// DuplicateMovementError signals that (referenceId, type) was already recorded for the key.
type DuplicateMovementError struct {
	VariantID   string
	WarehouseID string
	ReferenceID string
	Type        string
}

func (e *DuplicateMovementError) Error() string {
	return fmt.Sprintf("movement %s/%s already recorded for variant %s in warehouse %s",
		e.Type, e.ReferenceID, e.VariantID, e.WarehouseID)
}

func (e *DuplicateMovementError) Is(target error) bool { return target == ErrDuplicate }

// ContentionError means the key lock (or row lock) could not be acquired in time.
// Callers retry with backoff.
type ContentionError struct {
	Key    string
	Waited time.Duration
}

func (e *ContentionError) Error() string {
	if e.Waited > 0 {
		return fmt.Sprintf("stock key %s is busy (waited %s), please retry", e.Key, e.Waited)
	}
	return fmt.Sprintf("stock key %s is busy, please retry", e.Key)
}

func (e *ContentionError) Is(target error) bool { return target == ErrContention }

// ConsistencyError reports a ProductAggregate that differs from the sum of its
// variant/warehouse rows. It is never healed automatically.
type ConsistencyError struct {
	ProductID string
	Recorded  decimal.Decimal
	Computed  decimal.Decimal
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("product %s aggregate mismatch: recorded %s, computed %s",
		e.ProductID, e.Recorded, e.Computed)
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrInconsistent }

// StorageError wraps a durable write/read failure. Nothing of the unit was committed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError unless it already carries a domain meaning.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsDomainError reports whether err already belongs to the taxonomy.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInvalidInput, ErrDuplicate, ErrInsufficientStock,
		ErrContention, ErrInconsistent, ErrStorage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
