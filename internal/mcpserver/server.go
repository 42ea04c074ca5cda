// Package mcpserver exposes the Messages database to MCP clients over
// stdio. Tools are registered explicitly at construction time.
package mcpserver

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hannesrudolph/imessage-query-mcp/internal/chatdb"
	"github.com/hannesrudolph/imessage-query-mcp/internal/config"
)

// Server wires the chat.db manager to the MCP tool surface.
type Server struct {
	cfg     *config.Config
	mgr     *chatdb.Manager
	mcp     *server.MCPServer
	version string
}

// New builds a server and registers its tools. The database is not opened
// until the first tool call needs it.
func New(cfg *config.Config, mgr *chatdb.Manager, version string) *Server {
	s := &Server{cfg: cfg, mgr: mgr, version: version}

	m := server.NewMCPServer("iMessage Query", version,
		server.WithToolCapabilities(false),
	)

	m.AddTool(mcp.NewTool("get_chat_transcript",
		mcp.WithDescription("Get the message transcript for a contact (phone number, email, or group chat name) within an optional date range. When no dates are given, the last 7 days are returned."),
		mcp.WithString("contact",
			mcp.Required(),
			mcp.Description("Phone number (any common format), email address, or group chat name"),
		),
		mcp.WithString("start_date",
			mcp.Description("Start date, inclusive (YYYY-MM-DD or RFC 3339). Absent means unbounded."),
		),
		mcp.WithString("end_date",
			mcp.Description("End date, inclusive (YYYY-MM-DD or RFC 3339). Absent means unbounded."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to return; keeps the most recent ones within the range."),
		),
	), s.handleGetChatTranscript)

	m.AddTool(mcp.NewTool("list_chats",
		mcp.WithDescription("List chats in the message store, optionally filtered by a contact reference. Useful for disambiguating group names."),
		mcp.WithString("contact",
			mcp.Description("Optional phone number, email address, or group chat name to filter by"),
		),
	), s.handleListChats)

	m.AddTool(mcp.NewTool("check_db_access",
		mcp.WithDescription("Report whether the Messages database exists and is readable, with remediation hints."),
	), s.handleCheckDBAccess)

	s.mcp = m
	return s
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout. The session
// is announced here rather than in New so one-off CLI queries do not emit
// a server startup line.
func (s *Server) ServeStdio() error {
	log.Printf("imessage-query-mcp %s: session %s, database %s", s.version, uuid.New(), s.cfg.ResolveDBPath())
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleGetChatTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contact, err := request.RequireString("contact")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.GetChatTranscript(ctx, TranscriptRequest{
		Contact:   contact,
		StartDate: request.GetString("start_date", ""),
		EndDate:   request.GetString("end_date", ""),
		Limit:     request.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(result)
}

func (s *Server) handleListChats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chats, err := s.ListChats(ctx, request.GetString("contact", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"chats":       chats,
		"total_count": len(chats),
	})
}

func (s *Server) handleCheckDBAccess(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(chatdb.CheckAccess(s.cfg.ResolveDBPath()))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
