package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"offload/pkg/protocol"
	"offload/pkg/workpkg"
)

// DelegateTool handles the delegate_task MCP tool.
type DelegateTool struct {
	service Service
	factory PackageFactory
	queue   Queue
	logger  *zap.Logger
}

// NewDelegateTool creates a DelegateTool.
func NewDelegateTool(service Service, factory PackageFactory, queue Queue, logger *zap.Logger) *DelegateTool {
	return &DelegateTool{service: service, factory: factory, queue: queue, logger: logger}
}

// Definition returns the MCP tool definition for registration.
func (t *DelegateTool) Definition() mcp.Tool {
	return mcp.NewTool("delegate_task",
		mcp.WithDescription(
			"Queue a well-scoped coding task for the local model. "+
				"Returns immediately with a package id and queue position. "+
				"Poll task_status for the result.",
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What to build. May contain a tag such as 'IMPLEMENT:' or a '/delegate/<kind>' command."),
		),
		mcp.WithString("task_type",
			mcp.Description("Optional task type, e.g. function_implementation, bug_fix, test_generation. "+
				"Detected from the description when omitted."),
		),
		mcp.WithString("language",
			mcp.Description("Target language. Detected from current_file or the project when omitted."),
		),
		mcp.WithString("project_root",
			mcp.Description("Absolute path of the project the code is for."),
		),
		mcp.WithString("current_file",
			mcp.Description("File the assistant is working in, used for language detection."),
		),
	)
}

// Handle processes the delegate_task tool call.
func (t *DelegateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description := strings.TrimSpace(req.GetString("description", ""))
	if description == "" {
		return mcp.NewToolResultError("description is required"), nil
	}

	if t.service != nil && !t.service.Healthy(ctx) {
		return mcp.NewToolResultError(fmt.Sprintf(
			"generation service at %s is not responding; start it and retry", t.service.BaseURL())), nil
	}

	cand := candidateFor(description, req.GetString("task_type", ""))
	in := workpkg.Input{
		ProjectRoot: req.GetString("project_root", ""),
		CurrentFile: req.GetString("current_file", ""),
		Language:    req.GetString("language", ""),
	}

	p, err := t.factory.Create(ctx, cand, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := t.queue.Submit(ctx, p)
	if err != nil {
		t.logger.Warn("delegate_task rejected", zap.String("package_id", p.ID), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("package %s not queued: %v", p.ID, err)), nil
	}

	t.logger.Info("delegate_task queued", zap.String("package_id", id), zap.String("task_type", string(p.TaskType)))

	var b strings.Builder
	fmt.Fprintf(&b, "Queued package %s\n", id)
	fmt.Fprintf(&b, "- task type: %s\n", p.TaskType)
	fmt.Fprintf(&b, "- language: %s\n", p.Context.Language)
	if p.Command != "" {
		fmt.Fprintf(&b, "- command: %s\n", p.Command)
	}
	fmt.Fprintf(&b, "- queue position: %d\n", t.queue.Position(id))
	fmt.Fprintf(&b, "\nCall task_status with package_id %q to follow progress.", id)
	return mcp.NewToolResultText(b.String()), nil
}

// candidateFor picks the candidate for description: an explicit task type
// wins, then the first detected trigger, then general implementation.
func candidateFor(description, taskType string) workpkg.Candidate {
	if taskType != "" {
		return workpkg.Candidate{TaskType: protocol.ParseTaskType(taskType), Description: description}
	}
	if cands := workpkg.Detect(description); len(cands) > 0 {
		return cands[0]
	}
	return workpkg.Candidate{TaskType: protocol.TaskGeneral, Description: description}
}

// StatusTool handles the task_status MCP tool.
type StatusTool struct {
	status StatusReader
	queue  Queue
}

// NewStatusTool creates a StatusTool. queue may be nil.
func NewStatusTool(status StatusReader, queue Queue) *StatusTool {
	return &StatusTool{status: status, queue: queue}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("task_status",
		mcp.WithDescription(
			"Report the status record of a delegated package. "+
				"Without package_id, lists the packages that are queued or processing.",
		),
		mcp.WithString("package_id",
			mcp.Description("Id returned by delegate_task."),
		),
	)
}

// Handle processes the task_status tool call.
func (t *StatusTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("package_id", ""))
	if id == "" {
		return t.active()
	}

	rec, err := t.status.Get(id)
	if err != nil {
		var nf *protocol.PackageNotFoundError
		if errors.As(err, &nf) {
			return mcp.NewToolResultError(fmt.Sprintf("no package with id %s", id)), nil
		}
		return nil, fmt.Errorf("reading status %s: %w", id, err)
	}
	if rec.Status == protocol.StatusQueued && t.queue != nil {
		if pos := t.queue.Position(id); pos > 0 {
			rec.QueuePosition = pos
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding status %s: %w", id, err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *StatusTool) active() (*mcp.CallToolResult, error) {
	recs, err := t.status.Active()
	if err != nil {
		return nil, fmt.Errorf("listing active packages: %w", err)
	}
	if len(recs) == 0 {
		return mcp.NewToolResultText("No active packages."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d active package(s):\n", len(recs))
	for _, r := range recs {
		fmt.Fprintf(&b, "- %s [%s] %s: %s\n", r.PackageID, r.Status, r.TaskType, r.Message)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ModelsTool handles the list_models MCP tool.
type ModelsTool struct {
	service Service
}

// NewModelsTool creates a ModelsTool.
func NewModelsTool(service Service) *ModelsTool {
	return &ModelsTool{service: service}
}

// Definition returns the MCP tool definition for registration.
func (t *ModelsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_models",
		mcp.WithDescription("List the models installed on the local generation service."),
	)
}

// Handle processes the list_models tool call.
func (t *ModelsTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.service == nil {
		return mcp.NewToolResultError("no generation service configured"), nil
	}
	models, err := t.service.ListModels(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("generation service at %s: %v", t.service.BaseURL(), err)), nil
	}
	if len(models) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No models installed at %s.", t.service.BaseURL())), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Models at %s:\n- %s", t.service.BaseURL(), strings.Join(models, "\n- "))), nil
}
