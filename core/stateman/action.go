package stateman

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/davidahmann/hoststate/core/docvalue"
	"github.com/davidahmann/hoststate/core/errors"
	"github.com/davidahmann/hoststate/core/fieldpath"
	"github.com/davidahmann/hoststate/core/scancache"
	"github.com/davidahmann/hoststate/core/statediff"
)

type Action string

const (
	ActionLoad    Action = "load"
	ActionSave    Action = "save"
	ActionUpdate  Action = "update"
	ActionCompare Action = "compare"
	ActionDiff    Action = "diff"
	ActionExport  Action = "export"
	ActionImport  Action = "import"
	ActionWatch   Action = "watch"
)

// Actions lists every supported action in a stable order.
func Actions() []Action {
	return []Action{
		ActionLoad, ActionSave, ActionUpdate, ActionCompare,
		ActionDiff, ActionExport, ActionImport, ActionWatch,
	}
}

// Request is the uniform argument envelope shared by the CLI and the MCP
// tool. Fields beyond Action apply only to the actions that use them.
type Request struct {
	Action    Action          `json:"action"`
	Path      string          `json:"path,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	ForceScan bool            `json:"force_scan,omitempty"`
	Document  json.RawMessage `json:"document,omitempty"`
}

// Response is the uniform success envelope. Exactly the fields relevant to
// the action are populated.
type Response struct {
	Action     Action            `json:"action"`
	Message    string            `json:"message,omitempty"`
	Document   json.RawMessage   `json:"document,omitempty"`
	Diff       *statediff.Result `json:"diff,omitempty"`
	Value      *docvalue.Value   `json:"value,omitempty"`
	CapturedAt *time.Time        `json:"captured_at,omitempty"`
	CacheStats *scancache.Stats  `json:"cache_stats,omitempty"`
}

// Do dispatches a Request to the matching operation.
func (m *Manager) Do(ctx context.Context, req Request) (Response, error) {
	switch req.Action {
	case ActionLoad:
		return m.doLoad(ctx, req)
	case ActionSave:
		return m.doSave(ctx, req)
	case ActionUpdate:
		return m.doUpdate(ctx, req)
	case ActionCompare:
		return m.doCompare(ctx, req)
	case ActionDiff:
		return m.doDiff(ctx, req)
	case ActionExport:
		return m.doExport(ctx, req)
	case ActionImport:
		return m.doImport(ctx, req)
	case ActionWatch:
		return m.doWatch(ctx, req)
	default:
		return Response{}, errors.Wrap(
			fmt.Errorf("unknown action %q", req.Action),
			errors.CategoryInvalidInput, CodeInvalidAction,
			"supported actions: load, save, update, compare, diff, export, import, watch", false)
	}
}

// CodeInvalidAction reports an action name outside the supported set.
const CodeInvalidAction = "invalid_action"

// CodeMissingArgument reports a required request field left empty.
const CodeMissingArgument = "missing_argument"

func missingArgument(action Action, detail string) error {
	return errors.Wrap(
		fmt.Errorf("%s: %s", action, detail),
		errors.CategoryInvalidInput, CodeMissingArgument, detail, false)
}

func (m *Manager) doLoad(ctx context.Context, req Request) (Response, error) {
	document, found, err := m.Load(ctx)
	if err != nil {
		return Response{}, err
	}
	if !found {
		return Response{Action: ActionLoad, Message: "no stored state; run save first"}, nil
	}
	encoded, err := document.Encode()
	if err != nil {
		return Response{}, classify(err, "load")
	}
	return Response{Action: ActionLoad, Document: encoded}, nil
}

func (m *Manager) doSave(ctx context.Context, req Request) (Response, error) {
	document, err := m.Save(ctx, req.ForceScan)
	if err != nil {
		return Response{}, err
	}
	encoded, err := document.Encode()
	if err != nil {
		return Response{}, classify(err, "save")
	}
	stats := m.CacheStats()
	return Response{
		Action:     ActionSave,
		Message:    "state saved",
		Document:   encoded,
		CacheStats: &stats,
	}, nil
}

func (m *Manager) doUpdate(ctx context.Context, req Request) (Response, error) {
	if req.Path == "" || len(req.Value) == 0 {
		return Response{}, missingArgument(ActionUpdate, "update requires both path and value")
	}
	var value docvalue.Value
	if err := json.Unmarshal(req.Value, &value); err != nil {
		return Response{}, classify(&fieldpath.InvalidPathError{
			Path: req.Path, Reason: fmt.Sprintf("value: %v", err),
		}, "update")
	}
	document, err := m.Update(ctx, req.Path, value)
	if err != nil {
		return Response{}, err
	}
	encoded, err := document.Encode()
	if err != nil {
		return Response{}, classify(err, "update")
	}
	return Response{
		Action:   ActionUpdate,
		Message:  fmt.Sprintf("updated %s", req.Path),
		Document: encoded,
	}, nil
}

func (m *Manager) doCompare(ctx context.Context, req Request) (Response, error) {
	result, err := m.Compare(ctx)
	if err != nil {
		return Response{}, err
	}
	message := "no drift detected"
	if !result.Empty() {
		message = fmt.Sprintf("%d field(s) drifted", result.Count())
	}
	return Response{Action: ActionCompare, Message: message, Diff: &result}, nil
}

func (m *Manager) doDiff(ctx context.Context, req Request) (Response, error) {
	if len(req.Document) == 0 {
		return Response{}, missingArgument(ActionDiff, "diff requires a document")
	}
	result, err := m.Diff(ctx, req.Document)
	if err != nil {
		return Response{}, err
	}
	return Response{Action: ActionDiff, Diff: &result}, nil
}

func (m *Manager) doExport(ctx context.Context, req Request) (Response, error) {
	var buf bytes.Buffer
	if err := m.Export(ctx, &buf); err != nil {
		return Response{}, err
	}
	return Response{Action: ActionExport, Document: bytes.TrimRight(buf.Bytes(), "\n")}, nil
}

func (m *Manager) doImport(ctx context.Context, req Request) (Response, error) {
	if len(req.Document) == 0 {
		return Response{}, missingArgument(ActionImport, "import requires a document")
	}
	document, err := m.Import(ctx, req.Document)
	if err != nil {
		return Response{}, err
	}
	encoded, err := document.Encode()
	if err != nil {
		return Response{}, classify(err, "import")
	}
	return Response{Action: ActionImport, Message: "state imported", Document: encoded}, nil
}

func (m *Manager) doWatch(ctx context.Context, req Request) (Response, error) {
	if req.Path == "" {
		return Response{}, missingArgument(ActionWatch, "watch requires a path")
	}
	value, capturedAt, err := m.Watch(ctx, req.Path)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Action:     ActionWatch,
		Value:      &value,
		CapturedAt: &capturedAt,
	}, nil
}
