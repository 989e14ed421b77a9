package store

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicate         = errors.New("already exists")
	ErrAlreadyApplied    = errors.New("purchase already recorded")
	ErrAlreadyCancelled  = errors.New("purchase is already cancelled")
)

// InsufficientStockError names the product that could not cover a request.
type InsufficientStockError struct {
	ProductID primitive.ObjectID
	Name      string
	Available int
	Requested int
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", e.Name, e.Available, e.Requested)
}

func (e InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// NotFoundError identifies which lookup missed.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e NotFoundError) Unwrap() error {
	return ErrNotFound
}

func productNotFound(id primitive.ObjectID) error {
	return NotFoundError{Kind: "product", Key: id.Hex()}
}
