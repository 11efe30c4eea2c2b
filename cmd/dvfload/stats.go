package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/opendvf/dvfload/internal/config"
)

// runStats prints aggregate statistics for the whole table.
func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	sf := registerStoreFlags(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dvfload stats [options]

Show aggregate statistics: record counts, date span, property types, and
on-disk table size.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
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

	stats, err := st.TableStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading table stats: %v\n", err)
		return ExitFailure
	}

	fmt.Printf("Total records:   %d\n", stats.TotalRecords)
	fmt.Printf("Years imported:  %d\n", stats.YearsImported)
	if stats.EarliestDate != nil && stats.LatestDate != nil {
		fmt.Printf("Date range:      %s to %s\n",
			stats.EarliestDate.Format("2006-01-02"),
			stats.LatestDate.Format("2006-01-02"))
	}
	fmt.Printf("Apartments:      %d\n", stats.Apartments)
	fmt.Printf("Houses:          %d\n", stats.Houses)
	fmt.Printf("Table size:      %s\n", stats.TableSize)

	return ExitSuccess
}
