package main

import (
	"fmt"
	"os"
)

// Exit codes. A run that imported some years but not all exits 2; a run
// where nothing was committed, or that could not start, exits 1.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitPartial = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitFailure
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "import":
		return runImport(cmdArgs)
	case "init":
		return runInit(cmdArgs)
	case "status":
		return runStatus(cmdArgs)
	case "stats":
		return runStats(cmdArgs)
	case "clear":
		return runClear(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitFailure
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: dvfload <command> [options]

Commands:
  import    Stream yearly DVF exports into PostgreSQL
  init      Create the dvf_data table and secondary indexes
  status    Show per-year record counts and import timestamps
  stats     Show aggregate table statistics
  clear     Delete one year's rows before a re-import

Run 'dvfload <command> -h' for command-specific help.`)
}
