package library

// LoanHistory is the feed of every borrow in the order it happened.
func (e *Engine) LoanHistory() Feed[[]LoanEvent] {
	return Feed[[]LoanEvent]{engine: e, topics: topicLoanHistory, view: func(st *state) []LoanEvent {
		out := make([]LoanEvent, len(st.loanLog))
		copy(out, st.loanLog)
		return out
	}}
}

// ReturnHistory is the feed of every return in the order it happened.
func (e *Engine) ReturnHistory() Feed[[]ReturnEvent] {
	return Feed[[]ReturnEvent]{engine: e, topics: topicReturnHistory, view: func(st *state) []ReturnEvent {
		out := make([]ReturnEvent, len(st.returnLog))
		copy(out, st.returnLog)
		return out
	}}
}

// UserHistory is the loan history of a single borrower.
func (e *Engine) UserHistory(userID int64) Feed[[]LoanEvent] {
	return Feed[[]LoanEvent]{engine: e, topics: topicLoanHistory, view: func(st *state) []LoanEvent {
		out := []LoanEvent{}
		for _, ev := range st.loanLog {
			if ev.UserID == userID {
				out = append(out, ev)
			}
		}
		return out
	}}
}

// Stats is recomputed from the full loan history on every tick.
func (e *Engine) Stats() Feed[Stats] {
	return Feed[Stats]{engine: e, topics: topicLoanHistory, view: statsView}
}

func statsView(st *state) Stats {
	users := make(map[int64]struct{})
	items := make(map[int64]struct{})
	var s Stats
	for _, ev := range st.loanLog {
		s.TotalBorrowed += ev.Quantity
		users[ev.UserID] = struct{}{}
		items[ev.ItemID] = struct{}{}
	}
	s.UniqueUsers = len(users)
	s.UniqueItems = len(items)
	return s
}
