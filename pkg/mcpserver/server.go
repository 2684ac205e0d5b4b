// Package mcpserver exposes the delegation pipeline to a primary assistant
// over the Model Context Protocol. Each tool is a small struct with a
// Definition and a Handle method.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"offload/pkg/protocol"
	"offload/pkg/workpkg"
)

// ServerName is the MCP implementation name.
const ServerName = "offload"

// Service is the generation service as seen by the tools.
type Service interface {
	Healthy(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
	BaseURL() string
}

// PackageFactory creates persisted work packages.
type PackageFactory interface {
	Create(ctx context.Context, c workpkg.Candidate, in workpkg.Input) (protocol.WorkPackage, error)
}

// Queue accepts packages for background processing.
type Queue interface {
	Submit(ctx context.Context, p protocol.WorkPackage) (string, error)
	Position(id string) int
}

// StatusReader reads status records.
type StatusReader interface {
	Get(id string) (protocol.StatusRecord, error)
	Active() ([]protocol.StatusRecord, error)
}

// Deps are the collaborators shared by the tools.
type Deps struct {
	Service Service // nil skips health checks
	Factory PackageFactory
	Queue   Queue
	Status  StatusReader
	Logger  *zap.Logger
}

// New builds the MCP server with every tool registered.
func New(version string, deps Deps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	delegate := NewDelegateTool(deps.Service, deps.Factory, deps.Queue, deps.Logger)
	s.AddTool(delegate.Definition(), delegate.Handle)

	status := NewStatusTool(deps.Status, deps.Queue)
	s.AddTool(status.Definition(), status.Handle)

	models := NewModelsTool(deps.Service)
	s.AddTool(models.Definition(), models.Handle)

	return s
}

const instructions = "offload runs well-scoped coding tasks on a local model. " +
	"Call delegate_task with a self-contained description, then poll task_status " +
	"with the returned package id until the status is completed or error. " +
	"Completed packages carry the artifact path, quality checks, and the validator verdict."
