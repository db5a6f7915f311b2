package library

import (
	"errors"
	"fmt"
)

var (
	// ErrItemNotFound is returned when a command names an item that is not in the catalog.
	ErrItemNotFound = errors.New("item not found")

	// ErrInvalidQuantity is returned for borrow/return quantities that are not positive.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInsufficientCopies is returned when a borrow asks for more copies than are available.
	ErrInsufficientCopies = errors.New("insufficient copies")

	// ErrExcessReturn is returned when a return exceeds the borrower's tracked quantity.
	ErrExcessReturn = errors.New("return exceeds active loan")

	// ErrNoActiveLoan is returned when the borrower holds no copies of the item at all.
	ErrNoActiveLoan = fmt.Errorf("no active loan: %w", ErrExcessReturn)

	// ErrInvalidItem is returned when an item definition fails validation.
	ErrInvalidItem = errors.New("invalid item")

	// ErrDuplicateItem is returned when an item id is already in the catalog.
	ErrDuplicateItem = errors.New("duplicate item id")
)

// errorKind maps an error to the short label used in metrics and logs.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInsufficientCopies):
		return "insufficient_copies"
	case errors.Is(err, ErrNoActiveLoan):
		return "no_active_loan"
	case errors.Is(err, ErrExcessReturn):
		return "excess_return"
	case errors.Is(err, ErrInvalidItem):
		return "invalid_item"
	case errors.Is(err, ErrDuplicateItem):
		return "duplicate_item"
	default:
		return "error"
	}
}
