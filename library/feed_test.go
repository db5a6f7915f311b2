package library

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeDeliversCurrentValue(t *testing.T) {
	e := newEngine(t)
	seed(t, e, Item{ID: 1, Title: "X", Author: "Y", AvailableCopies: 5})

	var got [][]Item
	sub := e.Catalog().Subscribe(func(items []Item) { got = append(got, items) })
	defer sub.Unsubscribe()

	require.Len(t, got, 1)
	assert.Len(t, got[0], 1)
}

func TestSubscribeOneTickPerMutation(t *testing.T) {
	e := newEngine(t)
	seed(t, e, Item{ID: 1, Title: "X", Author: "Y", AvailableCopies: 5})

	var catalog, loans, mine, history, returns int
	subs := []*Subscription{
		e.Catalog().Subscribe(func([]Item) { catalog++ }),
		e.ActiveLoans().Subscribe(func([]ActiveLoan) { loans++ }),
		e.ActiveLoansForUser(1).Subscribe(func([]BorrowedItem) { mine++ }),
		e.LoanHistory().Subscribe(func([]LoanEvent) { history++ }),
		e.ReturnHistory().Subscribe(func([]ReturnEvent) { returns++ }),
	}
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	require.NoError(t, e.Borrow(1, 1, 2))
	require.NoError(t, e.Return(1, 1, 1, "", ""))
	require.NoError(t, e.EditItem(1, Item{Title: "X2", Author: "Y", AvailableCopies: 4}))

	assert.Equal(t, 4, catalog, "initial + borrow + return + edit")
	assert.Equal(t, 3, loans, "initial + borrow + return")
	assert.Equal(t, 4, mine, "user loans also tick on catalog edits")
	assert.Equal(t, 2, history, "initial + borrow")
	assert.Equal(t, 2, returns, "initial + return")
}

func TestSubscribersSeeMutationsInOrder(t *testing.T) {
	e := newEngine(t)
	seed(t, e, Item{ID: 1, Title: "X", Author: "Y", AvailableCopies: 5})

	var log []string
	c := e.Catalog().Subscribe(func(items []Item) {
		log = append(log, fmt.Sprintf("catalog:%d", items[0].AvailableCopies))
	})
	l := e.ActiveLoans().Subscribe(func(loans []ActiveLoan) {
		log = append(log, fmt.Sprintf("loans:%d", len(loans)))
	})
	defer c.Unsubscribe()
	defer l.Unsubscribe()

	require.NoError(t, e.Borrow(1, 1, 2))
	require.NoError(t, e.Return(1, 1, 2, "", ""))

	assert.Equal(t, []string{
		"catalog:5", "loans:0",
		"catalog:3", "loans:1",
		"catalog:5", "loans:0",
	}, log)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	e := newEngine(t)
	seed(t, e, Item{ID: 1, Title: "X", Author: "Y", AvailableCopies: 5})

	var ticks int
	sub := e.Catalog().Subscribe(func([]Item) { ticks++ })
	sub.Unsubscribe()
	sub.Unsubscribe()

	require.NoError(t, e.Borrow(1, 1, 1))
	assert.Equal(t, 1, ticks)
	assert.Equal(t, 4, available(t, e, 1), "unsubscribing never touches state")
}

func TestUnsubscribeDropsQueuedDeliveries(t *testing.T) {
	e := newEngine(t)
	seed(t, e, Item{ID: 1, Title: "X", Author: "Y", AvailableCopies: 5})

	var second *Subscription
	var secondTicks int
	first := e.Catalog().Subscribe(func(items []Item) {
		if items[0].AvailableCopies == 4 && second != nil {
			second.Unsubscribe()
		}
	})
	defer first.Unsubscribe()
	second = e.Catalog().Subscribe(func([]Item) { secondTicks++ })

	require.NoError(t, e.Borrow(1, 1, 1))
	assert.Equal(t, 1, secondTicks, "the borrow tick was queued behind first and dropped")
}

func TestCallbackMayCallEngine(t *testing.T) {
	e := newEngine(t)
	seed(t, e, Item{ID: 1, Title: "X", Author: "Y", AvailableCopies: 5})

	// Borrow another copy every time the catalog shows more than three.
	var seen []int
	sub := e.Catalog().Subscribe(func(items []Item) {
		seen = append(seen, items[0].AvailableCopies)
		if items[0].AvailableCopies > 3 {
			require.NoError(t, e.Borrow(2, 1, 1))
		}
	})
	defer sub.Unsubscribe()

	assert.Equal(t, []int{5, 4, 3}, seen)
	assert.Equal(t, 2, loanQuantity(e, 2, 1))
	assert.Equal(t, 2, len(e.LoanHistory().Snapshot()))
}

func TestPanickingSubscriberDoesNotBreakDelivery(t *testing.T) {
	e := newEngine(t)
	seed(t, e, Item{ID: 1, Title: "X", Author: "Y", AvailableCopies: 5})

	bad := e.Catalog().Subscribe(func([]Item) { panic("boom") })
	defer bad.Unsubscribe()

	var ticks int
	good := e.Catalog().Subscribe(func([]Item) { ticks++ })
	defer good.Unsubscribe()

	require.NoError(t, e.Borrow(1, 1, 1))
	assert.Equal(t, 2, ticks)
}

func TestConcurrentCommands(t *testing.T) {
	e := newEngine(t)
	seed(t, e, Item{ID: 1, Title: "X", Author: "Y", AvailableCopies: 100})

	var mu sync.Mutex
	var last []Item
	sub := e.Catalog().Subscribe(func(items []Item) {
		mu.Lock()
		last = items
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for u := int64(0); u < 10; u++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = e.Borrow(user, 1, 1)
				_ = e.Return(user, 1, 1, "", "")
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 100, available(t, e, 1))
	assert.Empty(t, e.ActiveLoans().Snapshot())
	assert.Len(t, e.LoanHistory().Snapshot(), 200)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 100, last[0].AvailableCopies, "the final tick carries the final state")
}

func TestResetRepublishes(t *testing.T) {
	e := newEngine(t)
	seed(t, e, Item{ID: 1, Title: "X", Author: "Y", AvailableCopies: 5})
	require.NoError(t, e.Borrow(1, 1, 1))

	var last []LoanEvent
	sub := e.LoanHistory().Subscribe(func(ev []LoanEvent) { last = ev })
	defer sub.Unsubscribe()
	require.Len(t, last, 1)

	e.Reset()
	assert.Empty(t, last)
	assert.Empty(t, e.Catalog().Snapshot())
	assert.Empty(t, e.ActiveLoans().Snapshot())
}
