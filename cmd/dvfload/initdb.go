package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/opendvf/dvfload/internal/config"
)

// runInit provisions the dvf_data table and its secondary indexes.
func runInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	sf := registerStoreFlags(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dvfload init [options]

Create the dvf_data table, its natural-key constraint, and the secondary
indexes the query layer relies on. Safe to run repeatedly.

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

	if err := st.InitSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating schema: %v\n", err)
		return ExitFailure
	}
	fmt.Fprintln(os.Stderr, "[dvfload] Table dvf_data ready")

	if err := st.CreateIndexes(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating indexes: %v\n", err)
		return ExitFailure
	}
	fmt.Fprintln(os.Stderr, "[dvfload] Indexes ready")

	return ExitSuccess
}
