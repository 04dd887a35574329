package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	coreerrors "github.com/davidahmann/hoststate/core/errors"
	"github.com/davidahmann/hoststate/core/stateman"
)

// manageStateSchema must stay "type":"object" or the SDK rejects it.
const manageStateSchema = `{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["load", "save", "update", "compare", "diff", "export", "import", "watch"],
      "description": "state operation to perform"
    },
    "path": {
      "type": "string",
      "description": "dotted field path, e.g. system.hostname (update, watch)"
    },
    "value": {
      "description": "new field value (update)"
    },
    "force_scan": {
      "type": "boolean",
      "description": "re-scan every category, bypassing the cache (save)"
    },
    "document": {
      "type": "object",
      "description": "full state document (diff, import)"
    }
  },
  "required": ["action"]
}`

func newMCPServer(manager *stateman.Manager) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "hoststate",
		Version: version,
	}, nil)
	registerManageStateTool(srv, manager)
	return srv
}

func registerManageStateTool(srv *mcp.Server, manager *stateman.Manager) {
	tool := &mcp.Tool{
		Name:        "manage_state",
		Description: "Load, save, update, compare, diff, export, import, or watch the persisted host state document.",
		InputSchema: json.RawMessage(manageStateSchema),
	}
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var request stateman.Request
		if req.Params.Arguments != nil {
			if err := json.Unmarshal(req.Params.Arguments, &request); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("manage_state: invalid arguments: %w", err))
				return &res, nil
			}
		}

		response, err := manager.Do(ctx, request)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(toolError(err))
			return &res, nil
		}
		encoded, err := json.Marshal(response)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("manage_state: encode response: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(encoded)}},
		}, nil
	})
}

// toolError keeps the stable error code and hint visible to MCP clients,
// which only see the message text.
func toolError(err error) error {
	code := coreerrors.CodeOf(err)
	if code == "" {
		return err
	}
	hint := coreerrors.HintOf(err)
	if hint == "" {
		return fmt.Errorf("%w [%s]", err, code)
	}
	return fmt.Errorf("%w [%s] hint: %s", err, code, hint)
}

func runServe(arguments []string) int {
	flags, rest, ok := parseCommandFlags("serve", arguments, nil)
	if !ok || len(rest) > 0 {
		return exitInvalidInput
	}
	manager, _, err := buildManager(flags)
	if err != nil {
		return writeStateOutput(flags.jsonOutput, failureOutput("serve", err), exitCodeForError(err, exitInvalidInput))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("mcp server starting", "state_path", manager.StatePath(), "version", version)
	srv := newMCPServer(manager)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		slog.Error("mcp server stopped", "error", err)
		return exitInternalFailure
	}
	return exitOK
}
