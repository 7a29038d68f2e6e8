// Package mcp exposes agentlens to agent runtimes as MCP tools, so a
// runtime that speaks MCP can report its lifecycle without linking the SDK.
package mcp

import (
	"context"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/agentlens/internal/bridge"
)

// Version is reported in the MCP implementation info.
const Version = "0.1.0"

// Server wraps the MCP SDK server around one Bridge.
type Server struct {
	mcpServer *mcpsdk.Server
	bridge    *bridge.Bridge
	seq       int64
	mu        sync.Mutex
}

// New creates an MCP server that feeds b.
func New(b *bridge.Bridge) *Server {
	s := &Server{bridge: b}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "agentlens",
			Version: Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves on stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "agentlens_emit",
		Description: "Report one agent runtime event (lifecycle, tool, assistant or error stream) to the visualization server. Delivery is best-effort and never fails the call.",
	}, s.handleEmit)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "agentlens_status",
		Description: "Show whether forwarding is enabled, where events go, and event counters.",
	}, s.handleStatus)
}

// nextSeq numbers events whose caller left seq unset.
func (s *Server) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}
