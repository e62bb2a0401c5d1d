package mcptools

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with the task tools registered.
func NewMCPServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "voyager",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_stages",
		Description: "List every deployment stage in canonical order with its label and description, plus the default stage selection.",
	}, svc.ListStages)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_run",
		Description: "Submit a deployment run for the given stages. Returns the task immediately; poll get_task for progress.",
	}, svc.SubmitRun)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_task",
		Description: "Get the state, completed stages and progress feed of a task. Optionally wait for it to finish.",
	}, svc.GetTask)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks in submission order, optionally filtered by status.",
	}, svc.ListTasks)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "abort_task",
		Description: "Request cancellation of a running task. The task stops at the next stage boundary or abort check.",
	}, svc.AbortTask)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_task",
		Description: "Delete a task record. A still running run is not stopped.",
	}, svc.DeleteTask)

	return server
}

// RunStdio serves on stdio, blocking until stdin is closed or ctx is
// cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is done.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
