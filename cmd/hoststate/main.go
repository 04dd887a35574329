package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	startedAt := time.Now()
	correlationID := newCorrelationID()
	setCurrentCorrelationID(correlationID)
	configureLogging()
	exitCode := runDispatch(arguments)
	slog.Debug("command finished",
		"command", commandName(arguments),
		"correlation_id", correlationID,
		"exit_code", exitCode,
		"elapsed", time.Since(startedAt).String())
	setCurrentCorrelationID("")
	return exitCode
}

func runDispatch(arguments []string) int {
	if len(arguments) < 2 {
		printUsage()
		return exitInvalidInput
	}

	switch arguments[1] {
	case "load":
		return runLoad(arguments[2:])
	case "save":
		return runSave(arguments[2:])
	case "update":
		return runUpdate(arguments[2:])
	case "compare":
		return runCompare(arguments[2:])
	case "diff":
		return runDiff(arguments[2:])
	case "export":
		return runExport(arguments[2:])
	case "import":
		return runImport(arguments[2:])
	case "watch":
		return runWatch(arguments[2:])
	case "serve":
		return runServe(arguments[2:])
	case "version", "--version", "-v":
		fmt.Println("hoststate", version)
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func commandName(arguments []string) string {
	if len(arguments) < 2 {
		return "usage"
	}
	command := strings.TrimSpace(arguments[1])
	if command == "" {
		return "unknown"
	}
	return command
}

func configureLogging() {
	level := slog.LevelWarn
	switch strings.ToLower(strings.TrimSpace(os.Getenv("HOSTSTATE_LOG_LEVEL"))) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	// Logs go to stderr: stdout carries command output and the MCP stream.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func printUsage() {
	fmt.Println("Usage: hoststate <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  load      print the stored state document")
	fmt.Println("  save      scan the host and persist a state document")
	fmt.Println("  update    set one field by dotted path")
	fmt.Println("  compare   diff stored state against a fresh scan")
	fmt.Println("  diff      diff stored state against a supplied document")
	fmt.Println("  export    print the stored document in canonical JSON")
	fmt.Println("  import    replace stored state with a supplied document")
	fmt.Println("  watch     print one field, optionally following changes")
	fmt.Println("  serve     run the MCP server on stdio")
	fmt.Println("  version   print the CLI version")
}
