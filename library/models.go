package library

import (
	"time"

	"github.com/google/uuid"
)

// UnknownUser is stamped into events for borrowers that never registered a name.
const UnknownUser = "Unknown User"

// DeletedItemTitle is the title of the placeholder shown for loans whose item
// was removed from the catalog.
const DeletedItemTitle = "Deleted Item"

// Item is a catalog entry with a finite number of copies on the shelf.
type Item struct {
	ID              int64  `json:"id" yaml:"id"`
	Title           string `json:"title" yaml:"title"`
	Author          string `json:"author" yaml:"author"`
	AvailableCopies int    `json:"available_copies" yaml:"copies"`
	Deleted         bool   `json:"deleted,omitempty" yaml:"-"`
}

// ActiveLoan is the outstanding quantity of one item held by one borrower.
type ActiveLoan struct {
	UserID     int64     `json:"user_id"`
	ItemID     int64     `json:"item_id"`
	Quantity   int       `json:"quantity"`
	BorrowedAt time.Time `json:"borrowed_at"`
}

// BorrowedItem is an active loan resolved against the catalog for display.
type BorrowedItem struct {
	Item       Item      `json:"item"`
	Quantity   int       `json:"quantity"`
	BorrowedAt time.Time `json:"borrowed_at"`
}

// Holder is one borrower currently holding copies of an item.
type Holder struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	Quantity int    `json:"quantity"`
}

// ItemStatus summarises who holds an item and how many copies are out.
type ItemStatus struct {
	ItemID        int64    `json:"item_id"`
	TotalBorrowed int      `json:"total_borrowed"`
	BorrowedBy    []Holder `json:"borrowed_by"`
}

// LoanEvent records a successful borrow. Never mutated once appended.
type LoanEvent struct {
	ID        uuid.UUID `json:"id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	ItemID    int64     `json:"item_id"`
	ItemTitle string    `json:"item_title"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// ReturnEvent records a successful return. Never mutated once appended.
type ReturnEvent struct {
	ID        uuid.UUID `json:"id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	ItemID    int64     `json:"item_id"`
	ItemTitle string    `json:"item_title"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats aggregates the full loan history.
type Stats struct {
	TotalBorrowed int `json:"total_borrowed"`
	UniqueUsers   int `json:"unique_users"`
	UniqueItems   int `json:"unique_items"`
}

// loanKey identifies an active loan entry.
type loanKey struct {
	userID int64
	itemID int64
}
