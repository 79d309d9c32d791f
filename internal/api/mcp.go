package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fjsoftlab/cvextract/internal/extraction"
	"github.com/fjsoftlab/cvextract/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store      *storage.Store
	OCR        PDFExtractor
	Extraction Extractor
}

// NewMCPServer creates an MCP server exposing the extraction pipelines as tools.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"cvextract",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("cvextract: OCR uploaded resumes and extract structured candidate data."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("extract_pdf",
			mcp.WithDescription("Run OCR over an uploaded document and store its markdown."),
			mcp.WithString("filePath", mcp.Description("Blob key of the uploaded PDF"), mcp.Required()),
		),
		mcpExtractPDF(deps),
	)

	s.AddTool(
		mcp.NewTool("launch_extraction",
			mcp.WithDescription("Run one AI extraction task over a user's completed documents."),
			mcp.WithString("key", mcp.Description("Task key, e.g. extract-formations"), mcp.Required()),
			mcp.WithString("userId", mcp.Description("Owner of the documents")),
			mcp.WithArray("documentIds", mcp.Description("Documents to include")),
			mcp.WithString("prompt", mcp.Description("Custom question for the openai-assistant task")),
		),
		mcpLaunchExtraction(deps),
	)

	s.AddTool(
		mcp.NewTool("list_prompt_results",
			mcp.WithDescription("List the stored extraction results of a user."),
			mcp.WithString("userId", mcp.Description("User id"), mcp.Required()),
		),
		mcpListPromptResults(deps),
	)

	return s
}

func mcpExtractPDF(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filePath, err := req.RequireString("filePath")
		if err != nil {
			return mcpError("filePath is required"), nil
		}

		res, err := deps.OCR.Extract(ctx, filePath)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if !res.Success {
			return mcpError(res.ExtractionError), nil
		}
		return mcpJSON(res)
	}
}

func mcpLaunchExtraction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		resp, err := deps.Extraction.Launch(ctx, key, extraction.Request{
			UserID:      req.GetString("userId", ""),
			DocumentIDs: req.GetStringSlice("documentIds", nil),
			Prompt:      req.GetString("prompt", ""),
		})
		if err != nil {
			var e *extraction.Error
			if errors.As(err, &e) {
				return mcpError(fmt.Sprintf("%s: %s", e.Kind, e.Message)), nil
			}
			return mcpError(err.Error()), nil
		}
		return mcpJSON(resp)
	}
}

func mcpListPromptResults(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("userId")
		if err != nil {
			return mcpError("userId is required"), nil
		}

		results, err := listPromptResults(ctx, deps.Store, userID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list prompt results: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("No results stored for this user."), nil
		}
		return mcpJSON(results)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
