// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the linker to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/crosslink/internal/apperr"
	"github.com/starford/crosslink/internal/linker"
	"github.com/starford/crosslink/internal/linkservice"
	"github.com/starford/crosslink/internal/relevance"
)

const contractURI = "crosslink://link-format"

// Server wraps the MCP server with the linker tools.
type Server struct {
	mcp *server.MCPServer
	svc *linkservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *linkservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Crosslink",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("suggest_links",
		mcp.WithDescription("List the wikilinks the linker would insert into a vault document, "+
			"with every candidate mention and the reason rejected ones were skipped. Nothing is written."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. folder/note.md)")),
	), s.suggestLinks)

	s.mcp.AddTool(mcp.NewTool("preview_links",
		mcp.WithDescription("Link unsaved Markdown content against the vault as if it were stored at path. "+
			"Returns the rewritten content. Nothing is written."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path the content would live at")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content, optionally with a YAML header")),
	), s.previewLinks)

	s.mcp.AddTool(mcp.NewTool("resolve_alias",
		mcp.WithDescription("Resolve a phrase to the document it refers to (file name or declared alias)."),
		mcp.WithString("phrase", mcp.Required(), mcp.Description("Phrase to resolve, case-insensitive")),
	), s.resolveAlias)

	s.mcp.AddTool(mcp.NewTool("relevance_distance",
		mcp.WithDescription("Number of shared-tag hops between two documents."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Relative path of the first document")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Relative path of the second document")),
	), s.relevanceDistance)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List all documents or documents in a specific folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("link_vault",
		mcp.WithDescription("Run the linker over the whole vault and write the changed documents. "+
			"Returns a run summary. Respects the server's dry-run setting."),
	), s.linkVault)

	s.mcp.AddTool(mcp.NewTool("get_link_contract",
		mcp.WithDescription("Returns how documents become link targets and what the linker writes. "+
			"Read this before adding aliases or tags."),
	), s.getLinkContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Link Format",
			mcp.WithResourceDescription("How aliases and tags drive automatic wikilinks."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found: " + err.Error())
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

type linkSummary struct {
	Path     string   `json:"path"`
	Changed  bool     `json:"changed"`
	Output   string   `json:"output,omitempty"`
	Accepted []string `json:"accepted"`
	Rejected []string `json:"rejected"`
}

func summarize(res *linker.Result, withOutput bool) linkSummary {
	sum := linkSummary{Path: res.Path, Changed: res.Changed, Accepted: []string{}, Rejected: []string{}}
	if withOutput {
		sum.Output = res.Output
	}
	for _, c := range res.Accepted {
		sum.Accepted = append(sum.Accepted, fmt.Sprintf("%q -> %s (distance %d)", c.Phrase, c.Target, c.Distance))
	}
	for _, c := range res.Rejected {
		sum.Rejected = append(sum.Rejected, fmt.Sprintf("%q -> %s (%s)", c.Phrase, c.Target, c.Reason))
	}
	return sum
}

func (s *Server) suggestLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Suggest(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(summarize(res, false)), nil
}

func (s *Server) previewLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Preview(ctx, path, content)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(summarize(res, true)), nil
}

func (s *Server) resolveAlias(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phrase, err := req.RequireString("phrase")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, ok, err := s.svc.ResolveAlias(ctx, phrase)
	if err != nil {
		return toolError(err), nil
	}
	if !ok {
		return mcp.NewToolResultText("no document for alias"), nil
	}
	return mcp.NewToolResultText(target), nil
}

func (s *Server) relevanceDistance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Distance(ctx, source, target)
	if err != nil {
		return toolError(err), nil
	}
	if d == relevance.Unreachable {
		return mcp.NewToolResultText("unreachable"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d", d)), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := ""
	if f, err := req.RequireString("folder"); err == nil {
		folder = f
	}

	paths, err := s.svc.Documents(folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) linkVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.svc.LinkVault(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(out.Run), nil
}

func (s *Server) getLinkContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LinkFormatContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     LinkFormatContract,
		},
	}, nil
}
