package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/davidahmann/hoststate/core/docvalue"
	coreerrors "github.com/davidahmann/hoststate/core/errors"
	"github.com/davidahmann/hoststate/core/scancache"
	"github.com/davidahmann/hoststate/core/stateman"
	"github.com/davidahmann/hoststate/core/statediff"
	"github.com/davidahmann/hoststate/core/storewatch"
)

type stateOutput struct {
	OK            bool              `json:"ok"`
	Action        string            `json:"action,omitempty"`
	Message       string            `json:"message,omitempty"`
	Document      json.RawMessage   `json:"document,omitempty"`
	Diff          *statediff.Result `json:"diff,omitempty"`
	Value         *docvalue.Value   `json:"value,omitempty"`
	CapturedAt    string            `json:"captured_at,omitempty"`
	CacheStats    *scancache.Stats  `json:"cache_stats,omitempty"`
	Error         string            `json:"error,omitempty"`
	ErrorCode     string            `json:"error_code,omitempty"`
	ErrorCategory string            `json:"error_category,omitempty"`
	Retryable     *bool             `json:"retryable,omitempty"`
	Hint          string            `json:"hint,omitempty"`
}

func failureOutput(action string, err error) stateOutput {
	output := stateOutput{OK: false, Action: action, Error: err.Error()}
	if code := coreerrors.CodeOf(err); code != "" {
		output.ErrorCode = code
		output.ErrorCategory = string(coreerrors.CategoryOf(err))
		retryable := coreerrors.RetryableOf(err)
		output.Retryable = &retryable
		output.Hint = coreerrors.HintOf(err)
	}
	return output
}

func successOutput(res stateman.Response) stateOutput {
	output := stateOutput{
		OK:         true,
		Action:     string(res.Action),
		Message:    res.Message,
		Document:   res.Document,
		Diff:       res.Diff,
		Value:      res.Value,
		CacheStats: res.CacheStats,
	}
	if res.CapturedAt != nil {
		output.CapturedAt = res.CapturedAt.UTC().Format(time.RFC3339)
	}
	return output
}

func writeStateOutput(jsonOutput bool, output stateOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if !output.OK {
		fmt.Printf("hoststate error: %s\n", output.Error)
		if output.Hint != "" {
			fmt.Printf("hint: %s\n", output.Hint)
		}
		return exitCode
	}
	switch {
	case output.Diff != nil:
		printDiff(output.Diff)
	case output.Value != nil:
		encoded, err := json.Marshal(output.Value)
		if err != nil {
			fmt.Printf("hoststate error: %v\n", err)
			return exitInternalFailure
		}
		fmt.Println(string(encoded))
		if output.CapturedAt != "" {
			fmt.Printf("captured at %s\n", output.CapturedAt)
		}
	case output.Document != nil:
		fmt.Println(strings.TrimRight(string(output.Document), "\n"))
	default:
		fmt.Println(output.Message)
	}
	return exitCode
}

func printDiff(result *statediff.Result) {
	if result.Empty() {
		fmt.Println("no differences")
		return
	}
	for _, path := range sortedKeys(result.Added) {
		fmt.Printf("added   %s = %s\n", path, mustMarshalValue(result.Added[path]))
	}
	for _, path := range sortedChangeKeys(result.Changed) {
		change := result.Changed[path]
		fmt.Printf("changed %s: %s -> %s\n", path, mustMarshalValue(change.Old), mustMarshalValue(change.New))
	}
	for _, path := range sortedKeys(result.Removed) {
		fmt.Printf("removed %s\n", path)
	}
}

func sortedKeys(entries map[string]docvalue.Value) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedChangeKeys(entries map[string]statediff.Change) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func mustMarshalValue(value docvalue.Value) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return value.Describe()
	}
	return string(encoded)
}

// dispatchRequest builds the manager and runs one request with the scan
// timeout applied.
func dispatchRequest(flags commonFlags, req stateman.Request) int {
	manager, scanTimeout, err := buildManager(flags)
	if err != nil {
		return writeStateOutput(flags.jsonOutput, failureOutput(string(req.Action), err), exitCodeForError(err, exitInvalidInput))
	}
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	res, err := manager.Do(ctx, req)
	if err != nil {
		return writeStateOutput(flags.jsonOutput, failureOutput(string(req.Action), err), exitCodeForError(err, exitInternalFailure))
	}
	return writeStateOutput(flags.jsonOutput, successOutput(res), exitOK)
}

func parseCommandFlags(name string, arguments []string, register func(*flag.FlagSet)) (commonFlags, []string, bool) {
	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var flags commonFlags
	registerCommonFlags(flagSet, &flags)
	if register != nil {
		register(flagSet)
	}
	if err := flagSet.Parse(arguments); err != nil {
		fmt.Printf("hoststate %s: %v\n", name, err)
		return commonFlags{}, nil, false
	}
	return flags, flagSet.Args(), true
}

func runLoad(arguments []string) int {
	flags, rest, ok := parseCommandFlags("load", arguments, nil)
	if !ok || len(rest) > 0 {
		return exitInvalidInput
	}
	return dispatchRequest(flags, stateman.Request{Action: stateman.ActionLoad})
}

func runSave(arguments []string) int {
	var force bool
	flags, rest, ok := parseCommandFlags("save", arguments, func(flagSet *flag.FlagSet) {
		flagSet.BoolVar(&force, "force", false, "re-scan every category, bypassing the cache")
	})
	if !ok || len(rest) > 0 {
		return exitInvalidInput
	}
	return dispatchRequest(flags, stateman.Request{Action: stateman.ActionSave, ForceScan: force})
}

func runUpdate(arguments []string) int {
	var path string
	var valueText string
	flags, rest, ok := parseCommandFlags("update", arguments, func(flagSet *flag.FlagSet) {
		flagSet.StringVar(&path, "path", "", "dotted field path, e.g. system.hostname")
		flagSet.StringVar(&valueText, "value", "", "new value as JSON; bare text is taken as a string")
	})
	if !ok {
		return exitInvalidInput
	}
	// Allow `hoststate update system.hostname pi2` without flag names.
	if path == "" && len(rest) == 2 {
		path, valueText = rest[0], rest[1]
		rest = nil
	}
	if len(rest) > 0 {
		fmt.Println("hoststate update: unexpected positional arguments")
		return exitInvalidInput
	}

	raw := json.RawMessage(valueText)
	if !json.Valid(raw) {
		quoted, err := json.Marshal(valueText)
		if err != nil {
			fmt.Printf("hoststate update: %v\n", err)
			return exitInvalidInput
		}
		raw = quoted
	}
	return dispatchRequest(flags, stateman.Request{
		Action: stateman.ActionUpdate,
		Path:   path,
		Value:  raw,
	})
}

func runCompare(arguments []string) int {
	flags, rest, ok := parseCommandFlags("compare", arguments, nil)
	if !ok || len(rest) > 0 {
		return exitInvalidInput
	}
	return dispatchRequest(flags, stateman.Request{Action: stateman.ActionCompare})
}

func runDiff(arguments []string) int {
	var filePath string
	flags, rest, ok := parseCommandFlags("diff", arguments, func(flagSet *flag.FlagSet) {
		flagSet.StringVar(&filePath, "file", "", "document to diff against (- for stdin)")
	})
	if !ok {
		return exitInvalidInput
	}
	if filePath == "" && len(rest) == 1 {
		filePath = rest[0]
		rest = nil
	}
	if len(rest) > 0 || filePath == "" {
		fmt.Println("hoststate diff: missing required --file <path|->")
		return exitInvalidInput
	}
	document, err := readDocumentInput(filePath)
	if err != nil {
		return writeStateOutput(flags.jsonOutput, failureOutput("diff", err), exitInvalidInput)
	}
	return dispatchRequest(flags, stateman.Request{Action: stateman.ActionDiff, Document: document})
}

func runExport(arguments []string) int {
	var outPath string
	flags, rest, ok := parseCommandFlags("export", arguments, func(flagSet *flag.FlagSet) {
		flagSet.StringVar(&outPath, "out", "", "write to a file instead of stdout")
	})
	if !ok || len(rest) > 0 {
		return exitInvalidInput
	}

	manager, scanTimeout, err := buildManager(flags)
	if err != nil {
		return writeStateOutput(flags.jsonOutput, failureOutput("export", err), exitCodeForError(err, exitInvalidInput))
	}
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	if outPath == "" {
		if err := manager.Export(ctx, os.Stdout); err != nil {
			return writeStateOutput(flags.jsonOutput, failureOutput("export", err), exitCodeForError(err, exitInternalFailure))
		}
		return exitOK
	}
	file, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return writeStateOutput(flags.jsonOutput, failureOutput("export", err), exitInternalFailure)
	}
	exportErr := manager.Export(ctx, file)
	if closeErr := file.Close(); exportErr == nil {
		exportErr = closeErr
	}
	if exportErr != nil {
		return writeStateOutput(flags.jsonOutput, failureOutput("export", exportErr), exitCodeForError(exportErr, exitInternalFailure))
	}
	if flags.jsonOutput {
		return writeJSONOutput(stateOutput{OK: true, Action: "export", Message: "exported to " + outPath}, exitOK)
	}
	fmt.Println("exported to", outPath)
	return exitOK
}

func runImport(arguments []string) int {
	var filePath string
	flags, rest, ok := parseCommandFlags("import", arguments, func(flagSet *flag.FlagSet) {
		flagSet.StringVar(&filePath, "file", "", "document to import (- for stdin)")
	})
	if !ok {
		return exitInvalidInput
	}
	if filePath == "" && len(rest) == 1 {
		filePath = rest[0]
		rest = nil
	}
	if len(rest) > 0 || filePath == "" {
		fmt.Println("hoststate import: missing required --file <path|->")
		return exitInvalidInput
	}
	document, err := readDocumentInput(filePath)
	if err != nil {
		return writeStateOutput(flags.jsonOutput, failureOutput("import", err), exitInvalidInput)
	}
	return dispatchRequest(flags, stateman.Request{Action: stateman.ActionImport, Document: document})
}

func runWatch(arguments []string) int {
	var path string
	var follow bool
	flags, rest, ok := parseCommandFlags("watch", arguments, func(flagSet *flag.FlagSet) {
		flagSet.StringVar(&path, "path", "", "dotted field path to watch")
		flagSet.BoolVar(&follow, "follow", false, "keep following the field across external rewrites")
	})
	if !ok {
		return exitInvalidInput
	}
	if path == "" && len(rest) == 1 {
		path = rest[0]
		rest = nil
	}
	if len(rest) > 0 || path == "" {
		fmt.Println("hoststate watch: missing required --path <dotted.path>")
		return exitInvalidInput
	}
	if !follow {
		return dispatchRequest(flags, stateman.Request{Action: stateman.ActionWatch, Path: path})
	}
	return followField(flags, path)
}

func followField(flags commonFlags, path string) int {
	manager, _, err := buildManager(flags)
	if err != nil {
		return writeStateOutput(flags.jsonOutput, failureOutput("watch", err), exitCodeForError(err, exitInvalidInput))
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	watcher := storewatch.New(manager.StatePath(), func(ctx context.Context) (docvalue.Value, time.Time, error) {
		return manager.Watch(ctx, path)
	})
	followErr := watcher.Follow(ctx, func(event storewatch.Event) {
		if event.Err != nil {
			output := failureOutput("watch", event.Err)
			if flags.jsonOutput {
				encoded, err := marshalOutputWithErrorEnvelope(output, exitCodeForError(event.Err, exitInternalFailure))
				if err == nil {
					fmt.Println(string(encoded))
				}
				return
			}
			fmt.Printf("hoststate watch: %v\n", event.Err)
			return
		}
		capturedAt := event.CapturedAt.UTC().Format(time.RFC3339)
		if flags.jsonOutput {
			value := event.Value
			writeJSONOutput(stateOutput{OK: true, Action: "watch", Value: &value, CapturedAt: capturedAt}, exitOK)
			return
		}
		fmt.Printf("%s %s\n", capturedAt, mustMarshalValue(event.Value))
	})
	if followErr != nil {
		return writeStateOutput(flags.jsonOutput, failureOutput("watch", followErr), exitInternalFailure)
	}
	return exitOK
}

func readDocumentInput(filePath string) ([]byte, error) {
	if filePath == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filePath) // #nosec G304 -- local path supplied by the operator.
}
