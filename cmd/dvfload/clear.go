package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/opendvf/dvfload/internal/config"
)

// runClear deletes one year's rows, typically before a forced re-import.
func runClear(args []string) int {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	sf := registerStoreFlags(fs)
	year := fs.Int("year", 0, "Year to clear (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dvfload clear -year <year> [options]

Delete every record of one year from the store.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitFailure
	}

	if *year == 0 {
		fmt.Fprintln(os.Stderr, "Error: -year is required")
		fs.Usage()
		return ExitFailure
	}

	cfg, err := sf.loadConfig(config.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitFailure
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg, sf.logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to store: %v\n", err)
		return ExitFailure
	}
	defer st.Close()

	deleted, err := st.ClearYear(ctx, *year)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error clearing year %d: %v\n", *year, err)
		return ExitFailure
	}

	fmt.Fprintf(os.Stderr, "[dvfload] Deleted %d records for year %d\n", deleted, *year)
	return ExitSuccess
}
