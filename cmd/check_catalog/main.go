// Command check_catalog loads a YAML catalog into a scratch ledger and reports
// which entries the shell would accept.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"lending-ledger/library"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: check_catalog <catalog.yaml>")
		os.Exit(2)
	}
	rejected, err := run(os.Args[1], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if rejected > 0 {
		os.Exit(1)
	}
}

// run returns the number of rejected entries.
func run(path string, out io.Writer) (int, error) {
	items, err := library.ReadCatalogFile(path)
	if err != nil {
		return 0, err
	}

	fmt.Fprintf(out, "Checking %d entries from %s...\n", len(items), path)
	eng := library.New()
	accepted, rejected := 0, 0
	for _, res := range eng.LoadCatalog(items) {
		fmt.Fprintf(out, "Loading: %s by %s... ", res.Item.Title, res.Item.Author)
		if res.Err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", res.Err)
			rejected++
			continue
		}
		fmt.Fprintf(out, "OK (ID: %d)\n", res.Item.ID)
		accepted++
	}

	fmt.Fprintf(out, "\nCheck complete!\n")
	fmt.Fprintf(out, "Accepted: %d items\n", accepted)
	fmt.Fprintf(out, "Rejected: %d\n", rejected)

	if accepted > 0 {
		fmt.Fprintln(out, "\nCatalog:")
		fmt.Fprintf(out, "%-6s %-50s %-30s %s\n", "ID", "Title", "Author", "Copies")
		fmt.Fprintln(out, strings.Repeat("-", 95))
		for _, it := range eng.Catalog().Snapshot() {
			fmt.Fprintf(out, "%-6d %-50s %-30s %d\n", it.ID, truncateString(it.Title, 50), truncateString(it.Author, 30), it.AvailableCopies)
		}
	}
	return rejected, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
