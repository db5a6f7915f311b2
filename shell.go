package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"lending-ledger/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// shellOptions holds flags for the shell command.
type shellOptions struct {
	*rootOptions
	Catalog     string
	Archive     string
	MetricsAddr string
}

func newShellCommand(root *rootOptions) *cobra.Command {
	opts := &shellOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive lending session",
		Long: `Start an interactive session over stdin.

The ledger lives in memory for the lifetime of the session. A catalog file
can seed the items, and an archive database receives a copy of every borrow
and return for later reporting.

Example:
  lending shell --catalog ./catalog.yaml
  lending shell --archive ./history.db --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "YAML catalog to load at start")
	cmd.Flags().StringVar(&opts.Archive, "archive", "", "SQLite file that archives loan and return history")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runShell(opts *shellOptions, cmd *cobra.Command) error {
	log := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	reg := prometheus.NewRegistry()
	metrics, err := library.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	eng := library.New(library.WithLogger(log), library.WithMetrics(metrics))

	if opts.Catalog != "" {
		items, err := library.ReadCatalogFile(opts.Catalog)
		if err != nil {
			return fmt.Errorf("read catalog: %w", err)
		}
		loaded := 0
		for _, res := range eng.LoadCatalog(items) {
			if res.Err != nil {
				log.Warn().Err(res.Err).Int64("item_id", res.Item.ID).Msg("catalog entry skipped")
				continue
			}
			loaded++
		}
		log.Info().Str("path", opts.Catalog).Int("items", loaded).Msg("catalog loaded")
	}

	if opts.Archive != "" {
		archive, err := library.OpenArchive(opts.Archive, log)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer archive.Close()
		archive.Attach(eng)
		log.Info().Str("path", opts.Archive).Msg("archive attached")
	}

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(opts.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	sh := newShell(eng, cmd.InOrStdin(), cmd.OutOrStdout(), opts.Format)
	defer sh.close()
	sh.run()
	return nil
}

// idGenerator hands out millisecond timestamps as item ids, bumping past the
// previous id when two are requested within the same millisecond.
type idGenerator struct {
	now  func() time.Time
	last int64
}

func (g *idGenerator) Next() int64 {
	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// shell is the presentation layer. It keeps no state of its own beyond the
// session identity: every list it prints is the last snapshot it received.
type shell struct {
	eng    *library.Engine
	sc     *bufio.Scanner
	out    io.Writer
	format string
	ids    *idGenerator

	loggedIn bool
	userID   int64
	userName string

	catalog []library.Item
	status  []library.ItemStatus
	loans   []library.LoanEvent
	returns []library.ReturnEvent
	stats   library.Stats
	mine    []library.BorrowedItem

	subs    []*library.Subscription
	mineSub *library.Subscription
}

func newShell(eng *library.Engine, in io.Reader, out io.Writer, format string) *shell {
	s := &shell{
		eng:    eng,
		sc:     bufio.NewScanner(in),
		out:    out,
		format: format,
		ids:    &idGenerator{now: time.Now},
	}
	s.subs = append(s.subs,
		eng.Catalog().Subscribe(func(v []library.Item) { s.catalog = v }),
		eng.BorrowingStatus().Subscribe(func(v []library.ItemStatus) { s.status = v }),
		eng.LoanHistory().Subscribe(func(v []library.LoanEvent) { s.loans = v }),
		eng.ReturnHistory().Subscribe(func(v []library.ReturnEvent) { s.returns = v }),
		eng.Stats().Subscribe(func(v library.Stats) { s.stats = v }),
	)
	return s
}

func (s *shell) close() {
	s.dropSession()
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *shell) run() {
	fmt.Fprintln(s.out, "Welcome to the Lending Ledger!")
	fmt.Fprintln(s.out, "Type 'help' to see the available commands.")

	for {
		fmt.Fprint(s.out, "\n> ")
		if !s.sc.Scan() {
			return
		}
		cmd := strings.TrimSpace(s.sc.Text())

		switch cmd {
		case "":
			continue
		case "help":
			s.handleHelp()
		case "login":
			s.handleLogin()
		case "logout":
			s.handleLogout()
		case "add item":
			s.handleAddItem()
		case "edit item":
			s.handleEditItem()
		case "delete item":
			s.handleDeleteItem()
		case "list items":
			s.handleListItems()
		case "borrow":
			s.handleBorrow()
		case "return":
			s.handleReturn()
		case "my loans":
			s.handleMyLoans()
		case "status":
			s.handleStatus()
		case "history":
			s.handleHistory()
		case "user history":
			s.handleUserHistory()
		case "returns":
			s.handleReturns()
		case "stats":
			s.handleStats()
		case "exit":
			fmt.Fprintln(s.out, "Goodbye!")
			return
		default:
			fmt.Fprintln(s.out, "Unknown command. Type 'help' to see the available commands.")
		}
	}
}

// ------------------ Prompts ------------------

func (s *shell) prompt(label string) (string, bool) {
	fmt.Fprint(s.out, label)
	if !s.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.sc.Text()), true
}

func (s *shell) promptInt(label, what string) (int64, bool) {
	raw, ok := s.prompt(label)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fmt.Fprintf(s.out, "Invalid %s: %s\n", what, raw)
		return 0, false
	}
	return n, true
}

func (s *shell) requireLogin() bool {
	if !s.loggedIn {
		fmt.Fprintln(s.out, "Please 'login' first.")
		return false
	}
	return true
}

// ------------------ Session ------------------

func (s *shell) handleHelp() {
	fmt.Fprintln(s.out, "Available commands:")
	fmt.Fprintln(s.out, "  Session: login, logout")
	fmt.Fprintln(s.out, "  Catalog: add item, edit item, delete item, list items")
	fmt.Fprintln(s.out, "  Lending: borrow, return, my loans, status")
	fmt.Fprintln(s.out, "  History: history, user history, returns, stats")
	fmt.Fprintln(s.out, "  System: help, exit")
}

func (s *shell) handleLogin() {
	userID, ok := s.promptInt("User ID: ", "user ID")
	if !ok {
		return
	}
	name, ok := s.prompt("Name: ")
	if !ok {
		return
	}
	if name == "" {
		fmt.Fprintln(s.out, "Error: Name cannot be empty")
		return
	}

	s.dropSession()
	s.eng.RegisterBorrowerName(userID, name)
	s.loggedIn, s.userID, s.userName = true, userID, name
	s.mineSub = s.eng.ActiveLoansForUser(userID).Subscribe(func(v []library.BorrowedItem) { s.mine = v })
	fmt.Fprintf(s.out, "Logged in as %s (ID: %d)\n", name, userID)
}

func (s *shell) handleLogout() {
	if !s.requireLogin() {
		return
	}
	name := s.userName
	s.dropSession()
	fmt.Fprintf(s.out, "Goodbye, %s.\n", name)
}

func (s *shell) dropSession() {
	if s.mineSub != nil {
		s.mineSub.Unsubscribe()
		s.mineSub = nil
	}
	s.loggedIn, s.userID, s.userName, s.mine = false, 0, "", nil
}

// ------------------ Catalog ------------------

func (s *shell) handleAddItem() {
	title, ok := s.prompt("Title: ")
	if !ok {
		return
	}
	author, ok := s.prompt("Author: ")
	if !ok {
		return
	}
	copies, ok := s.promptInt("Copies: ", "copy count")
	if !ok {
		return
	}

	id := s.ids.Next()
	if err := s.eng.AddItem(library.Item{ID: id, Title: title, Author: author, AvailableCopies: int(copies)}); err != nil {
		fmt.Fprintf(s.out, "Error adding item: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Added item ID %d: '%s' by %s (%d copies)\n", id, title, author, copies)
}

func (s *shell) handleEditItem() {
	id, ok := s.promptInt("Item ID: ", "item ID")
	if !ok {
		return
	}
	current, found := s.lookup(id)
	if !found {
		fmt.Fprintf(s.out, "Error: Item with ID %d not found\n", id)
		return
	}

	// Blank answers keep the current value.
	title, ok := s.prompt(fmt.Sprintf("Title [%s]: ", current.Title))
	if !ok {
		return
	}
	if title == "" {
		title = current.Title
	}
	author, ok := s.prompt(fmt.Sprintf("Author [%s]: ", current.Author))
	if !ok {
		return
	}
	if author == "" {
		author = current.Author
	}
	raw, ok := s.prompt(fmt.Sprintf("Copies [%d]: ", current.AvailableCopies))
	if !ok {
		return
	}
	copies := current.AvailableCopies
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Fprintf(s.out, "Invalid copy count: %s\n", raw)
			return
		}
		copies = n
	}

	if err := s.eng.EditItem(id, library.Item{Title: title, Author: author, AvailableCopies: copies}); err != nil {
		fmt.Fprintf(s.out, "Error editing item: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Item %d updated\n", id)
}

func (s *shell) handleDeleteItem() {
	id, ok := s.promptInt("Item ID: ", "item ID")
	if !ok {
		return
	}
	if err := s.eng.DeleteItem(id); err != nil {
		fmt.Fprintf(s.out, "Error deleting item: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Item %d deleted\n", id)
}

func (s *shell) handleListItems() {
	if s.format == "json" {
		s.printJSON(s.catalog)
		return
	}
	if len(s.catalog) == 0 {
		fmt.Fprintln(s.out, "No items in the catalog.")
		return
	}
	fmt.Fprintf(s.out, "%-15s %-30s %-25s %s\n", "ID", "Title", "Author", "Available")
	fmt.Fprintln(s.out, strings.Repeat("-", 80))
	for _, it := range s.catalog {
		fmt.Fprintf(s.out, "%-15d %-30s %-25s %d\n", it.ID, truncateString(it.Title, 30), truncateString(it.Author, 25), it.AvailableCopies)
	}
}

// lookup finds an item in the last catalog snapshot.
func (s *shell) lookup(id int64) (library.Item, bool) {
	for _, it := range s.catalog {
		if it.ID == id {
			return it, true
		}
	}
	return library.Item{}, false
}

// ------------------ Lending ------------------

func (s *shell) handleBorrow() {
	if !s.requireLogin() {
		return
	}
	id, ok := s.promptInt("Item ID: ", "item ID")
	if !ok {
		return
	}
	q, ok := s.promptInt("Quantity: ", "quantity")
	if !ok {
		return
	}

	if err := s.eng.Borrow(s.userID, id, int(q)); err != nil {
		switch {
		case errors.Is(err, library.ErrInsufficientCopies):
			it, _ := s.lookup(id)
			fmt.Fprintf(s.out, "Not enough copies: %d requested, %d available\n", q, it.AvailableCopies)
		default:
			fmt.Fprintf(s.out, "Error borrowing item: %v\n", err)
		}
		return
	}
	it, _ := s.lookup(id)
	fmt.Fprintf(s.out, "Borrowed %d x '%s'. %d left on the shelf.\n", q, it.Title, it.AvailableCopies)
}

func (s *shell) handleReturn() {
	if !s.requireLogin() {
		return
	}
	id, ok := s.promptInt("Item ID: ", "item ID")
	if !ok {
		return
	}
	q, ok := s.promptInt("Quantity: ", "quantity")
	if !ok {
		return
	}

	it, _ := s.lookup(id)
	if err := s.eng.Return(s.userID, id, int(q), s.userName, it.Title); err != nil {
		fmt.Fprintf(s.out, "Error returning item: %v\n", err)
		return
	}
	it, _ = s.lookup(id)
	fmt.Fprintf(s.out, "Returned %d x '%s'. %d now on the shelf.\n", q, it.Title, it.AvailableCopies)
}

func (s *shell) handleMyLoans() {
	if !s.requireLogin() {
		return
	}
	if s.format == "json" {
		s.printJSON(s.mine)
		return
	}
	if len(s.mine) == 0 {
		fmt.Fprintf(s.out, "%s has nothing on loan.\n", s.userName)
		return
	}
	fmt.Fprintf(s.out, "%-15s %-30s %-25s %s\n", "ID", "Title", "Author", "Quantity")
	fmt.Fprintln(s.out, strings.Repeat("-", 80))
	for _, b := range s.mine {
		fmt.Fprintf(s.out, "%-15d %-30s %-25s %d\n", b.Item.ID, truncateString(b.Item.Title, 30), truncateString(b.Item.Author, 25), b.Quantity)
	}
}

func (s *shell) handleStatus() {
	if s.format == "json" {
		s.printJSON(s.status)
		return
	}
	if len(s.status) == 0 {
		fmt.Fprintln(s.out, "Nothing is on loan.")
		return
	}
	fmt.Fprintf(s.out, "%-15s %-30s %-8s %s\n", "ID", "Title", "On loan", "Borrowed by")
	fmt.Fprintln(s.out, strings.Repeat("-", 100))
	for _, st := range s.status {
		title := library.DeletedItemTitle
		if it, ok := s.lookup(st.ItemID); ok {
			title = it.Title
		}
		holders := make([]string, 0, len(st.BorrowedBy))
		for _, h := range st.BorrowedBy {
			holders = append(holders, fmt.Sprintf("%s (ID: %d) x%d", h.UserName, h.UserID, h.Quantity))
		}
		fmt.Fprintf(s.out, "%-15d %-30s %-8d %s\n", st.ItemID, truncateString(title, 30), st.TotalBorrowed, strings.Join(holders, ", "))
	}
}

// ------------------ History ------------------

func (s *shell) handleHistory() {
	s.printLoans(s.loans, "No borrows recorded yet.")
}

func (s *shell) handleUserHistory() {
	userID, ok := s.promptInt("User ID: ", "user ID")
	if !ok {
		return
	}
	s.printLoans(s.eng.UserHistory(userID).Snapshot(), fmt.Sprintf("No borrows recorded for user %d.", userID))
}

func (s *shell) printLoans(events []library.LoanEvent, empty string) {
	if s.format == "json" {
		s.printJSON(events)
		return
	}
	if len(events) == 0 {
		fmt.Fprintln(s.out, empty)
		return
	}
	fmt.Fprintf(s.out, "%-20s %-25s %-30s %-8s %s\n", "When", "Borrower", "Item", "Quantity", "User ID")
	fmt.Fprintln(s.out, strings.Repeat("-", 100))
	for _, ev := range events {
		fmt.Fprintf(s.out, "%-20s %-25s %-30s %-8d %d\n", ev.Timestamp.Format(time.DateTime), truncateString(ev.UserName, 25), truncateString(ev.ItemTitle, 30), ev.Quantity, ev.UserID)
	}
}

func (s *shell) handleReturns() {
	if s.format == "json" {
		s.printJSON(s.returns)
		return
	}
	if len(s.returns) == 0 {
		fmt.Fprintln(s.out, "No returns recorded yet.")
		return
	}
	fmt.Fprintf(s.out, "%-20s %-25s %-30s %s\n", "When", "Borrower", "Item", "Quantity")
	fmt.Fprintln(s.out, strings.Repeat("-", 90))
	for _, ev := range s.returns {
		fmt.Fprintf(s.out, "%-20s %-25s %-30s %d\n", ev.Timestamp.Format(time.DateTime), truncateString(ev.UserName, 25), truncateString(ev.ItemTitle, 30), ev.Quantity)
	}
}

func (s *shell) handleStats() {
	if s.format == "json" {
		s.printJSON(s.stats)
		return
	}
	fmt.Fprintf(s.out, "Total borrowed: %d | Borrowers: %d | Distinct items: %d\n",
		s.stats.TotalBorrowed, s.stats.UniqueUsers, s.stats.UniqueItems)
}

// ------------------ Utilities ------------------

func (s *shell) printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(s.out, "Error encoding output: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, string(data))
}

func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength-3] + "..."
}
