// Package mcpserver exposes the attention engine as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lazypower/attend/internal/engine"
	"github.com/lazypower/attend/internal/event"
	"github.com/lazypower/attend/internal/focus"
	"github.com/lazypower/attend/internal/pool"
)

// New builds an MCP server with every attend tool registered.
func New(eng *engine.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"attend",
		version,
		server.WithToolCapabilities(true),
	)
	t := &tools{engine: eng}
	s.AddTool(ingestTool(), t.handleIngest)
	s.AddTool(retrieveTool(), t.handleRetrieve)
	s.AddTool(activationTool(), t.handleActivation)
	s.AddTool(focusesTool(), t.handleFocuses)
	s.AddTool(addEventTool(), t.handleAddEvent)
	return s
}

// Serve runs the MCP server on stdin/stdout until the client disconnects.
func Serve(eng *engine.Engine, version string) error {
	return server.ServeStdio(New(eng, version))
}

type tools struct {
	engine *engine.Engine
}

func ingestTool() mcp.Tool {
	return mcp.NewTool("attend_ingest",
		mcp.WithDescription("Feed one conversational turn to the focus tracker. Updates tracked focuses and refreshes the candidate pool for the top focuses. Returns what changed, the active focuses and the pool."),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The user's utterance"),
		),
		mcp.WithArray("entities",
			mcp.Description("Entity names already recognised in the turn"),
		),
		mcp.WithString("intent",
			mcp.Description("Recognised intent, used as a topic hint"),
		),
		mcp.WithString("emotion",
			mcp.Description("Emotion label such as worried, excited or angry"),
		),
	)
}

func retrieveTool() mcp.Tool {
	return mcp.NewTool("attend_retrieve",
		mcp.WithDescription("Run a retrieval round and return the candidate pool. Topics default to the current top focuses."),
		mcp.WithArray("topics",
			mcp.Description("Topic labels to retrieve for"),
		),
		mcp.WithString("text",
			mcp.Description("Query text; temporal expressions such as 'yesterday' boost recent events"),
		),
		mcp.WithString("location",
			mcp.Description("Required location (case-insensitive substring match)"),
		),
		mcp.WithArray("entity_ids",
			mcp.Description("Entities every result must mention"),
		),
	)
}

func activationTool() mcp.Tool {
	return mcp.NewTool("attend_record_activation",
		mcp.WithDescription("Record that an event was relevant now. Optionally link it to a related event with a revisit edge."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Event id"),
		),
		mcp.WithNumber("similarity",
			mcp.Required(),
			mcp.Description("Similarity observed for this activation, in [-1, 1]"),
		),
		mcp.WithString("related_id",
			mcp.Description("Related event id"),
		),
	)
}

func focusesTool() mcp.Tool {
	return mcp.NewTool("attend_focuses",
		mcp.WithDescription("List tracked focuses, best first."),
		mcp.WithString("tier",
			mcp.Description("all (default), active, latent, top or forecast"),
		),
		mcp.WithNumber("n",
			mcp.Description("Maximum focuses to return"),
		),
	)
}

func addEventTool() mcp.Tool {
	return mcp.NewTool("attend_add_event",
		mcp.WithDescription("Store an event so it can be retrieved. Returns the event id."),
		mcp.WithString("purpose",
			mcp.Description("What the event was about"),
		),
		mcp.WithString("result",
			mcp.Description("How it turned out"),
		),
		mcp.WithString("location",
			mcp.Description("Where it happened"),
		),
		mcp.WithString("start_at",
			mcp.Description("RFC 3339 start time"),
		),
		mcp.WithArray("entities",
			mcp.Description("People, places or things involved"),
		),
	)
}

func (t *tools) handleIngest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	content, _ := args["content"].(string)
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("content is required"), nil
	}
	intent, _ := args["intent"].(string)
	emotion, _ := args["emotion"].(string)

	res, snap := t.engine.Ingest(ctx, focus.Turn{
		Content:  content,
		Entities: stringSlice(args["entities"]),
		Intent:   intent,
		Emotion:  emotion,
	})
	return jsonResult(map[string]any{
		"result": res,
		"active": t.engine.Tracker.Active(),
		"pool":   snap,
	})
}

func (t *tools) handleRetrieve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	text, _ := args["text"].(string)
	location, _ := args["location"].(string)

	snap := t.engine.Retrieve(ctx, stringSlice(args["topics"]), pool.Query{
		Text:      text,
		Location:  location,
		EntityIDs: stringSlice(args["entity_ids"]),
	})
	return jsonResult(map[string]any{"pool": snap})
}

func (t *tools) handleActivation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	id, _ := args["id"].(string)
	sim, ok := args["similarity"].(float64)
	if id == "" || !ok {
		return mcp.NewToolResultError("id and similarity are required"), nil
	}
	related, _ := args["related_id"].(string)

	n, err := t.engine.RecordActivation(ctx, id, sim, related)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to record activation: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Recorded activation for %s (%d in history)", n.ID, len(n.Activations))), nil
}

func (t *tools) handleFocuses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	tier, _ := args["tier"].(string)
	n := 0
	if v, ok := args["n"].(float64); ok && v > 0 {
		n = int(v)
	}

	var foci []focus.FocusPoint
	switch tier {
	case "", "all":
		foci = t.engine.Tracker.All()
	case "active":
		foci = t.engine.Tracker.Active()
	case "latent":
		foci = t.engine.Tracker.Latent()
	case "top":
		foci = t.engine.Tracker.Top(max(n, 1))
	case "forecast":
		foci = t.engine.Tracker.Forecast(max(n, 1))
	default:
		return mcp.NewToolResultError("tier must be one of all, active, latent, top, forecast"), nil
	}
	if n > 0 && len(foci) > n {
		foci = foci[:n]
	}
	if foci == nil {
		foci = []focus.FocusPoint{}
	}
	return jsonResult(map[string]any{"focuses": foci})
}

func (t *tools) handleAddEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	n := event.Node{Entities: stringSlice(args["entities"])}
	n.Purpose, _ = args["purpose"].(string)
	n.Result, _ = args["result"].(string)
	n.Location, _ = args["location"].(string)
	if s, _ := args["start_at"].(string); s != "" {
		at, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("start_at: %v", err)), nil
		}
		n.StartAt = &at
	}

	if err := t.engine.AddEvent(ctx, &n); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add event: %v", err)), nil
	}
	return mcp.NewToolResultText(n.ID), nil
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
