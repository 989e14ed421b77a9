package pos

import (
	"errors"
	"fmt"
)

var (
	ErrOffline         = errors.New("remote store is unreachable")
	ErrRemote          = errors.New("remote store error")
	ErrEmptyBill       = errors.New("bill has no items")
	ErrNoCustomer      = errors.New("a customer must be selected")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidPayment  = errors.New("invalid payment method")
	ErrOutOfStock      = errors.New("product is out of stock")
	ErrNotInBill       = errors.New("product is not on the bill")
	ErrCheckoutBusy    = errors.New("bill is being checked out")
	ErrInvalidProduct  = errors.New("invalid product")
	ErrInvalidCustomer = errors.New("invalid customer")
)

// remoteError marks a failure that came back from the remote store so the
// HTTP layer can tell it apart from validation problems.
func remoteError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrRemote, err)
}
