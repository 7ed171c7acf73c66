package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/joescharf/codelens/internal/apperr"
	"github.com/joescharf/codelens/internal/models"
	"github.com/joescharf/codelens/internal/review"
)

// Server exposes the review pipeline as MCP tools for a single local identity.
type Server struct {
	reviews  *review.Service
	identity models.Identity
	version  string
	logger   *zap.Logger
}

// NewServer creates the MCP server wrapper acting as identity.
func NewServer(svc *review.Service, identity models.Identity, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		reviews:  svc,
		identity: identity,
		version:  version,
		logger:   logger.Named("mcp"),
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("codelens", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.submitReviewTool())
	srv.AddTool(s.listReviewsTool())
	srv.AddTool(s.getReviewTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// codelens_submit_review
func (s *Server) submitReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("codelens_submit_review",
		mcp.WithDescription("Submit a code snippet for AI review. Stores and returns the review: issues with category, severity, explanation and optional refactored example, plus a severityScore from 0 to 100 where 100 is best."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Source code to review")),
		mcp.WithString("language", mcp.Description("Programming language, e.g. Go, Python, TypeScript")),
		mcp.WithString("context", mcp.Description("Where the code runs, e.g. Frontend, Backend, API, Utility")),
	)
	return tool, s.handleSubmitReview
}

func (s *Server) handleSubmitReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sub := review.Submission{
		Code:     request.GetString("code", ""),
		Language: request.GetString("language", ""),
		Context:  request.GetString("context", ""),
	}
	r, err := s.reviews.Submit(ctx, s.identity, sub)
	if err != nil {
		return s.toolError(err), nil
	}
	return jsonResult(r)
}

// codelens_list_reviews
func (s *Server) listReviewsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("codelens_list_reviews",
		mcp.WithDescription("List your stored code reviews, newest first. Returns a JSON array of id, language, context, severityScore, issueCount and createdAt."),
	)
	return tool, s.handleListReviews
}

func (s *Server) handleListReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reviews, err := s.reviews.List(ctx, s.identity)
	if err != nil {
		return s.toolError(err), nil
	}

	type reviewOut struct {
		ID            string `json:"id"`
		Language      string `json:"language"`
		Context       string `json:"context"`
		SeverityScore int    `json:"severityScore"`
		IssueCount    int    `json:"issueCount"`
		CreatedAt     string `json:"createdAt"`
	}

	out := make([]reviewOut, len(reviews))
	for i, r := range reviews {
		out[i] = reviewOut{
			ID:            r.ID,
			Language:      r.Language,
			Context:       r.Context,
			SeverityScore: r.SeverityScore,
			IssueCount:    len(r.Issues),
			CreatedAt:     r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	return jsonResult(out)
}

// codelens_get_review
func (s *Server) getReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("codelens_get_review",
		mcp.WithDescription("Get one of your stored code reviews by id, including the original code and every issue."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Review id")),
	)
	return tool, s.handleGetReview
}

func (s *Server) handleGetReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	r, err := s.reviews.Get(ctx, s.identity, id)
	if err != nil {
		return s.toolError(err), nil
	}
	return jsonResult(r)
}

// toolError reports err to the MCP client with its client-safe message only.
func (s *Server) toolError(err error) *mcp.CallToolResult {
	if apperr.KindOf(err) == apperr.KindInternal {
		s.logger.Error("tool call failed", zap.Error(err))
	}
	return mcp.NewToolResultError(apperr.Message(err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
