// Command tdbtool is an offline maintenance and inspection CLI for tdbgo
// databases: check, summary, and repack, each a thin wrapper over the
// matching pkg/tdb operation.
//
// Grounded on calvinalkan-agent-task's cmd/ layout, which drives its
// daemon through github.com/spf13/pflag-parsed subcommands; tdbtool
// follows the same flag style (long GNU-style flags, a leading
// subcommand argument) rather than the standard library's flag package.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/iamNilotpal/tdbgo/pkg/attrs"
	"github.com/iamNilotpal/tdbgo/pkg/options"
	"github.com/iamNilotpal/tdbgo/pkg/tdb"
)

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(2)
	}

	subcommand := os.Args[1]
	dbPath := os.Args[2]
	fs := pflag.NewFlagSet(subcommand, pflag.ExitOnError)
	verbose := fs.BoolP("verbose", "v", false, "print per-record detail")
	if err := fs.Parse(os.Args[3:]); err != nil {
		os.Exit(2)
	}

	readOnly := subcommand != "repack"
	h, err := tdb.Open(dbPath, false, readOnly, 0o600, attrs.List{}, options.NewDefaultOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "tdbtool: open %s: %v\n", dbPath, err)
		os.Exit(1)
	}
	defer h.Close()

	switch subcommand {
	case "check":
		runCheck(h, *verbose)
	case "summary":
		runSummary(h, *verbose)
	case "repack":
		runRepack(h)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tdbtool <check|summary|repack> <database> [flags]")
}

func runCheck(h *tdb.Handle, verbose bool) {
	var cb tdb.CheckFunc
	if verbose {
		cb = func(key, data []byte) error {
			fmt.Printf("record: key=%q data=%d bytes\n", key, len(data))
			return nil
		}
	}

	report, err := h.Check(cb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tdbtool: check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("records visited:      %d\n", report.RecordsVisited)
	fmt.Printf("free records visited: %d\n", report.FreeRecordsVisited)
	if report.OK {
		fmt.Println("database is consistent")
		return
	}
	fmt.Printf("inconsistency found: %s\n", report.FirstProblem)
	os.Exit(1)
}

func runSummary(h *tdb.Handle, verbose bool) {
	flags := tdb.SummaryBasic
	if verbose {
		flags = tdb.SummaryHistograms
	}

	text, err := h.Summary(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tdbtool: summary failed: %v\n", err)
		os.Exit(1)
	}
	if version, err := h.Version(); err == nil {
		fmt.Printf("format:      v%d\n", version)
	}
	fmt.Print(text)
}

func runRepack(h *tdb.Handle) {
	if err := h.Repack(); err != nil {
		fmt.Fprintf(os.Stderr, "tdbtool: repack failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("repack complete")
}
