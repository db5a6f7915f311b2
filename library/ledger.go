package library

import (
	"fmt"
	"slices"
	"strings"
)

// Borrow lends quantity copies of an item to a borrower. Copies leave the
// shelf, the borrower's active loan for the item grows (or is opened) and a
// LoanEvent is appended.
func (e *Engine) Borrow(userID, itemID int64, quantity int) error {
	e.mu.Lock()
	if quantity <= 0 {
		return e.reject("borrow", fmt.Errorf("borrow %d of item %d: %w", quantity, itemID, ErrInvalidQuantity))
	}
	it, ok := e.st.items[itemID]
	if !ok {
		return e.reject("borrow", fmt.Errorf("borrow item %d: %w", itemID, ErrItemNotFound))
	}
	if it.AvailableCopies < quantity {
		return e.reject("borrow", fmt.Errorf("borrow %d of item %d with %d available: %w",
			quantity, itemID, it.AvailableCopies, ErrInsufficientCopies))
	}
	id, err := e.newID()
	if err != nil {
		return e.reject("borrow", fmt.Errorf("event id: %w", err))
	}

	now := e.clock.now()
	it.AvailableCopies -= quantity
	e.st.items[itemID] = it

	key := loanKey{userID: userID, itemID: itemID}
	if loan, ok := e.st.loans[key]; ok {
		loan.Quantity += quantity
	} else {
		e.st.loans[key] = &ActiveLoan{UserID: userID, ItemID: itemID, Quantity: quantity, BorrowedAt: now}
		e.st.loanOrder = append(e.st.loanOrder, key)
	}

	e.st.loanLog = append(e.st.loanLog, LoanEvent{
		ID:        id,
		UserID:    userID,
		UserName:  e.st.nameOf(userID, ""),
		ItemID:    itemID,
		ItemTitle: it.Title,
		Quantity:  quantity,
		Timestamp: now,
	})
	e.commit("borrow", topicCatalog|topicLoans|topicLoanHistory)

	e.log.Debug().Int64("user_id", userID).Int64("item_id", itemID).Int("quantity", quantity).Msg("borrowed")
	return nil
}

// Return takes quantity copies of an item back from a borrower. The display
// name and title are used for the ReturnEvent when the engine has nothing
// better: a registered name wins over userName, and itemTitle wins over the
// catalog title.
func (e *Engine) Return(userID, itemID int64, quantity int, userName, itemTitle string) error {
	e.mu.Lock()
	if quantity <= 0 {
		return e.reject("return", fmt.Errorf("return %d of item %d: %w", quantity, itemID, ErrInvalidQuantity))
	}
	it, ok := e.st.items[itemID]
	if !ok {
		return e.reject("return", fmt.Errorf("return item %d: %w", itemID, ErrItemNotFound))
	}
	key := loanKey{userID: userID, itemID: itemID}
	loan, ok := e.st.loans[key]
	if !ok {
		return e.reject("return", fmt.Errorf("user %d item %d: %w", userID, itemID, ErrNoActiveLoan))
	}
	if quantity > loan.Quantity {
		return e.reject("return", fmt.Errorf("return %d of item %d with %d on loan: %w",
			quantity, itemID, loan.Quantity, ErrExcessReturn))
	}
	id, err := e.newID()
	if err != nil {
		return e.reject("return", fmt.Errorf("event id: %w", err))
	}

	now := e.clock.now()
	it.AvailableCopies += quantity
	e.st.items[itemID] = it

	loan.Quantity -= quantity
	if loan.Quantity == 0 {
		delete(e.st.loans, key)
		if i := slices.Index(e.st.loanOrder, key); i >= 0 {
			e.st.loanOrder = slices.Delete(e.st.loanOrder, i, i+1)
		}
	}

	if strings.TrimSpace(itemTitle) == "" {
		itemTitle = it.Title
	}
	e.st.returnLog = append(e.st.returnLog, ReturnEvent{
		ID:        id,
		UserID:    userID,
		UserName:  e.st.nameOf(userID, userName),
		ItemID:    itemID,
		ItemTitle: itemTitle,
		Quantity:  quantity,
		Timestamp: now,
	})
	e.commit("return", topicCatalog|topicLoans|topicReturnHistory)

	e.log.Debug().Int64("user_id", userID).Int64("item_id", itemID).Int("quantity", quantity).Msg("returned")
	return nil
}

// ActiveLoans is the feed of the whole ledger in insertion order.
func (e *Engine) ActiveLoans() Feed[[]ActiveLoan] {
	return Feed[[]ActiveLoan]{engine: e, topics: topicLoans, view: loansView}
}

// ActiveLoansForUser is the feed of one borrower's loans resolved against the
// catalog. It ticks on every ledger or catalog mutation, whoever it affects.
func (e *Engine) ActiveLoansForUser(userID int64) Feed[[]BorrowedItem] {
	return Feed[[]BorrowedItem]{
		engine: e,
		topics: topicLoans | topicCatalog,
		view: func(st *state) []BorrowedItem {
			out := []BorrowedItem{}
			for _, key := range st.loanOrder {
				if key.userID != userID {
					continue
				}
				loan := st.loans[key]
				out = append(out, BorrowedItem{
					Item:       st.resolve(key.itemID),
					Quantity:   loan.Quantity,
					BorrowedAt: loan.BorrowedAt,
				})
			}
			return out
		},
	}
}

// BorrowingStatus is the feed of outstanding quantities grouped by item.
// Items appear in the order their first open loan was made; holders within
// an item keep ledger order.
func (e *Engine) BorrowingStatus() Feed[[]ItemStatus] {
	return Feed[[]ItemStatus]{engine: e, topics: topicLoans, view: statusView}
}

func loansView(st *state) []ActiveLoan {
	out := make([]ActiveLoan, 0, len(st.loanOrder))
	for _, key := range st.loanOrder {
		out = append(out, *st.loans[key])
	}
	return out
}

func statusView(st *state) []ItemStatus {
	out := []ItemStatus{}
	pos := make(map[int64]int)
	for _, key := range st.loanOrder {
		loan := st.loans[key]
		i, ok := pos[key.itemID]
		if !ok {
			i = len(out)
			pos[key.itemID] = i
			out = append(out, ItemStatus{ItemID: key.itemID})
		}
		out[i].TotalBorrowed += loan.Quantity
		out[i].BorrowedBy = append(out[i].BorrowedBy, Holder{
			UserID:   key.userID,
			UserName: st.nameOf(key.userID, ""),
			Quantity: loan.Quantity,
		})
	}
	return out
}

func outstanding(st *state) int {
	total := 0
	for _, loan := range st.loans {
		total += loan.Quantity
	}
	return total
}
