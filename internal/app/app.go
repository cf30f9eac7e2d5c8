// Package app implements the lessonbank CLI commands.
package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "submit":
		return runSubmit(args[1:])
	case "detect":
		return runDetect(args[1:])
	case "embed":
		return runEmbed(args[1:])
	case "backfill":
		return runBackfill(args[1:])
	case "cluster":
		return runCluster(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "lessonbank CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  lessonbank <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  validate  Validate lesson submission JSON files against v1 schema")
	fmt.Fprintln(os.Stderr, "  submit    Store one submission and score it against the catalog")
	fmt.Fprintln(os.Stderr, "  detect    Score a payload against the catalog without storing it")
	fmt.Fprintln(os.Stderr, "  embed     Generate embeddings for lessons missing one")
	fmt.Fprintln(os.Stderr, "  backfill  Compute fingerprints for lessons missing one")
	fmt.Fprintln(os.Stderr, "  cluster   Sweep the catalog for duplicate groups")
	fmt.Fprintln(os.Stderr, "  serve     Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"lessonbank <command> -h\" for command-specific flags.")
}
