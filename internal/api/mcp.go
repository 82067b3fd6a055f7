package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/shortlist/internal/output"
	"github.com/kalambet/shortlist/internal/ranking"
	"github.com/kalambet/shortlist/internal/storage"
	"github.com/kalambet/shortlist/internal/worker"
)

const defaultPageChars = 8000

// NewMCPServer creates an MCP server exposing the curated shortlist.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"shortlist",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("shortlist: a ranked reading list curated from RSS, search and video feeds."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_curated",
			mcp.WithDescription("List items of the latest curated shortlist in rank order."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 10)")),
			mcp.WithNumber("offset", mcp.Description("Number of items to skip")),
		),
		mcpListCurated(deps),
	)

	s.AddTool(
		mcp.NewTool("ledger_stats",
			mcp.WithDescription("Report fetch ledger totals and the latest curated run."),
		),
		mcpLedgerStats(deps),
	)

	s.AddTool(
		mcp.NewTool("read_page",
			mcp.WithDescription("Return the fetched text of a curated item."),
			mcp.WithNumber("rank", mcp.Description("1-based rank in the latest shortlist"), mcp.Required()),
			mcp.WithNumber("max_chars", mcp.Description("Truncate the text to this many characters (default 8000)")),
		),
		mcpReadPage(deps),
	)

	s.AddTool(
		mcp.NewTool("start_run",
			mcp.WithDescription("Queue a background run that optionally crawls pending candidates and then re-curates."),
			mcp.WithBoolean("crawl", mcp.Description("Crawl pending candidates before curating (default true)")),
		),
		mcpStartRun(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"shortlist://latest",
			"Latest Shortlist",
			mcp.WithResourceDescription("The latest curated shortlist rendered as markdown"),
			mcp.WithMIMEType("text/markdown"),
		),
		mcpResourceLatest(deps),
	)

	return s
}

func latestItems(ctx context.Context, store *storage.Store, limit, offset int) (storage.Run, []ranking.Item, error) {
	run, err := store.LatestRun(ctx)
	if err != nil {
		return storage.Run{}, nil, err
	}
	items, err := store.ListItems(ctx, run.ID, limit, offset)
	if err != nil {
		return storage.Run{}, nil, err
	}
	return run, items, nil
}

func mcpListCurated(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}
		offset := max(req.GetInt("offset", 0), 0)

		_, items, err := latestItems(ctx, deps.Store, limit, offset)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("no curated run yet; run `shortlist run` first"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("listing curated items failed: %v", err)), nil
		}

		type itemResult struct {
			Rank    int      `json:"rank"`
			Title   string   `json:"title"`
			URL     string   `json:"url"`
			Domain  string   `json:"domain"`
			Score   float64  `json:"score"`
			Reasons []string `json:"reasons"`
			Snippet string   `json:"snippet,omitempty"`
		}
		results := make([]itemResult, len(items))
		for i, it := range items {
			results[i] = itemResult{
				Rank:    offset + i + 1,
				Title:   it.Title,
				URL:     it.URL,
				Domain:  it.Domain,
				Score:   it.Score,
				Reasons: it.Reasons,
				Snippet: it.Snippet,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLedgerStats(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := stats(ctx, deps)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpReadPage(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rank := req.GetInt("rank", 0)
		if rank < 1 {
			return mcpError("rank must be a positive integer"), nil
		}
		maxChars := req.GetInt("max_chars", defaultPageChars)
		if maxChars <= 0 {
			maxChars = defaultPageChars
		}

		run, err := deps.Store.LatestRun(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("no curated run yet"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading latest run failed: %v", err)), nil
		}
		item, err := deps.Store.GetItem(ctx, run.ID, rank)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("no item at rank %d", rank)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading item failed: %v", err)), nil
		}
		if item.MarkdownPath == "" {
			return mcpError("item has no stored page"), nil
		}

		body, err := deps.Pages.Read(item.MarkdownPath)
		if err != nil {
			return mcpError(fmt.Sprintf("reading page failed: %v", err)), nil
		}
		if utf8.RuneCountInString(body) > maxChars {
			body = string([]rune(body)[:maxChars]) + "…"
		}
		return mcpText(fmt.Sprintf("# %s\n%s\n\n%s", item.Title, item.URL, body)), nil
	}
}

func mcpStartRun(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		job, err := enqueueRun(ctx, deps.Store, worker.RunRequest{Crawl: req.GetBool("crawl", true)})
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Queued run job %s", job.ID)), nil
	}
}

func mcpResourceLatest(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		_, items, err := latestItems(ctx, deps.Store, 0, 0)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load latest run: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/markdown",
				Text:     output.Markdown(items),
			},
		}, nil
	}
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
