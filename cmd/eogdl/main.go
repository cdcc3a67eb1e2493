package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitInvalidArgs     = 2
	ExitAuthFailed      = 3
	ExitScanError       = 4
	ExitTransferError   = 5
	ExitRoundsExhausted = 6
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "scan":
		return runScan(cmdArgs)
	case "download":
		return runDownload(cmdArgs)
	case "fetch":
		return runFetch(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: eogdl <command> [options]

Commands:
  scan      Crawl the remote directory tree and write the manifest cache
  download  Download everything in the manifest cache, resuming partials
  fetch     Scan if no cache exists, then download (the usual one-shot)

Credentials come from EOGDL_USERNAME / EOGDL_PASSWORD or the -username
and -password flags; they are never stored.

Run 'eogdl <command> -h' for command-specific help.`)
}
