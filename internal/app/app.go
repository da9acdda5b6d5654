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
	case "ingest":
		return runIngest(args[1:])
	case "enrich":
		return runEnrich(args[1:])
	case "process", "run-once":
		return runProcess(args[1:])
	case "forget":
		return runForget(args[1:])
	case "expire":
		return runExpire(args[1:])
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "techwatch CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  techwatch <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity and apply migrations")
	fmt.Fprintln(os.Stderr, "  ingest    Load items from a JSON file as pending work")
	fmt.Fprintln(os.Stderr, "  enrich    Rank new items and promote them to ready")
	fmt.Fprintln(os.Stderr, "  process   Deduplicate and score pending items per topic")
	fmt.Fprintln(os.Stderr, "  run-once  Alias for process")
	fmt.Fprintln(os.Stderr, "  forget    Reset items so the next run treats them as unseen")
	fmt.Fprintln(os.Stderr, "  expire    Mark old unprocessed items as ignored_old")
	fmt.Fprintln(os.Stderr, "  stats     Show per-topic lifecycle counts")
	fmt.Fprintln(os.Stderr, "  serve     Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"techwatch <command> -h\" for command-specific flags.")
}
