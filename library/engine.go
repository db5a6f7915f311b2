package library

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// state is everything the engine owns. It is only touched with Engine.mu held.
type state struct {
	items     map[int64]Item
	itemOrder []int64

	loans     map[loanKey]*ActiveLoan
	loanOrder []loanKey

	loanLog   []LoanEvent
	returnLog []ReturnEvent

	names map[int64]string
}

func newState() state {
	return state{
		items: make(map[int64]Item),
		loans: make(map[loanKey]*ActiveLoan),
		names: make(map[int64]string),
	}
}

// nameOf returns the registered display name, or fallback when none is known.
func (st *state) nameOf(userID int64, fallback string) string {
	if name, ok := st.names[userID]; ok {
		return name
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback
	}
	return UnknownUser
}

// resolve looks an item up for display, substituting the deleted-item placeholder.
func (st *state) resolve(itemID int64) Item {
	if it, ok := st.items[itemID]; ok {
		return it
	}
	return Item{ID: itemID, Title: DeletedItemTitle, Deleted: true}
}

// Engine owns the catalog, the active-loan ledger and both history logs, and
// keeps them consistent. Every command validates before it mutates; a failed
// command changes nothing and publishes nothing.
//
// All methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex
	st state

	clock   monotonic
	newID   func() (uuid.UUID, error)
	log     zerolog.Logger
	metrics *Metrics

	subs        []*subscriber
	outbox      []delivery
	dispatching bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the source of loan and event timestamps.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = monotonic{clock: c}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithIDGenerator replaces the UUIDv7 generator used for history event ids.
func WithIDGenerator(gen func() (uuid.UUID, error)) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		st:    newState(),
		clock: monotonic{clock: systemClock{}},
		newID: uuid.NewV7,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics.observe(&e.st)
	return e
}

// Reset discards all state, including registered names, and republishes
// every feed. Subscriptions stay attached.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.st = newState()
	e.metrics.observe(&e.st)
	e.publishLocked(topicAll)
	e.mu.Unlock()
	e.flush()
	e.log.Info().Msg("engine reset")
}

// RegisterBorrowerName records the display name stamped into the borrower's
// history events. Calling it again replaces the name; blank names are ignored.
func (e *Engine) RegisterBorrowerName(userID int64, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	e.mu.Lock()
	e.st.names[userID] = name
	e.mu.Unlock()
	e.log.Debug().Int64("user_id", userID).Str("name", name).Msg("borrower name registered")
}

// BorrowerName returns the registered name for userID, or UnknownUser.
func (e *Engine) BorrowerName(userID int64) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.nameOf(userID, "")
}

// commit publishes t, updates metrics and delivers queued snapshots.
// Caller must hold e.mu; commit releases it.
func (e *Engine) commit(command string, t topic) {
	e.metrics.observe(&e.st)
	e.metrics.command(command, nil)
	e.publishLocked(t)
	e.mu.Unlock()
	e.flush()
}

// reject logs and counts a failed command. Caller must hold e.mu; reject
// releases it and returns err unchanged.
func (e *Engine) reject(command string, err error) error {
	e.metrics.command(command, err)
	e.mu.Unlock()
	e.log.Warn().Err(err).Str("command", command).Msg("command rejected")
	return err
}
