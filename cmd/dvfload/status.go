package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/opendvf/dvfload/internal/config"
)

// runStatus prints per-year record counts and import timestamps.
func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	sf := registerStoreFlags(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dvfload status [options]

Show how many records each year holds and when they were imported.

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

	status, err := st.ImportStatus(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading import status: %v\n", err)
		return ExitFailure
	}

	if len(status) == 0 {
		fmt.Println("No years imported yet.")
		return ExitSuccess
	}

	years := make([]int, 0, len(status))
	for y := range status {
		years = append(years, y)
	}
	sort.Ints(years)

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "YEAR\tRECORDS\tFIRST IMPORT\tLAST IMPORT")
	for _, y := range years {
		ys := status[y]
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n",
			y, ys.Records,
			ys.FirstImport.Format("2006-01-02 15:04"),
			ys.LastImport.Format("2006-01-02 15:04"))
	}
	tw.Flush()

	return ExitSuccess
}
