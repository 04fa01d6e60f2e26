package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/EaziSpace/gen-toc/export"
	"github.com/EaziSpace/gen-toc/headings"
	"github.com/EaziSpace/gen-toc/kit"
	"github.com/EaziSpace/gen-toc/pageagent"
)

// RegisterMCP registers the table-of-contents tools on an MCP server.
func (c *Coordinator) RegisterMCP(srv *mcp.Server) {
	c.registerPagesTool(srv)
	c.registerHeadingsTool(srv)
	c.registerToggleTool(srv)
	c.registerRefreshTool(srv)
	c.registerScrollTool(srv)
	c.registerExportTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var pageIDProp = map[string]any{
	"type": "string", "description": "Page id returned by toc_pages",
}

// --- pages ---

func (c *Coordinator) registerPagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "toc_pages",
		Description: "List tracked pages with their injection state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"pages": c.Pages()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- headings ---

type pageReq struct {
	PageID string `json:"page_id"`
}

func decodePageReq(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r pageReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	if r.PageID == "" {
		return nil, fmt.Errorf("page_id is required")
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

func (c *Coordinator) registerHeadingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "toc_headings",
		Description: "Return the extracted table of contents for a page.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageReq)
		resp, err := c.Relay(ctx, Command{Action: "getHeadings", PageID: r.PageID})
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		return map[string]any{"headings": resp.Headings}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodePageReq)
}

// --- toggle ---

func (c *Coordinator) registerToggleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "toc_toggle",
		Description: "Toggle sidebar visibility on a page.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageReq)
		resp, err := c.Relay(ctx, Command{Action: "toggleTOC", PageID: r.PageID})
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		return map[string]any{"visibility": resp.Visibility}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodePageReq)
}

// --- refresh ---

func (c *Coordinator) registerRefreshTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "toc_refresh",
		Description: "Force a rescan of a page's headings and return the result.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageReq)
		resp, err := c.Relay(ctx, Command{Action: "refreshTOC", PageID: r.PageID})
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		return map[string]any{"headings": resp.Headings}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodePageReq)
}

// --- scroll ---

type scrollReq struct {
	PageID   string  `json:"page_id"`
	ID       string  `json:"id"`
	Position float64 `json:"position"`
}

func (c *Coordinator) registerScrollTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "toc_scroll",
		Description: "Scroll a page to a heading by id, falling back to the recorded offset.",
		InputSchema: inputSchema(map[string]any{
			"page_id":  pageIDProp,
			"id":       map[string]any{"type": "string", "description": "Heading element id"},
			"position": map[string]any{"type": "number", "description": "Fallback vertical offset"},
		}, []string{"page_id", "id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*scrollReq)
		resp, err := c.Relay(ctx, Command{
			Action: "scrollToHeading",
			PageID: r.PageID,
			Scroll: &pageagent.ScrollRequest{ID: r.ID, Position: r.Position},
		})
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		return map[string]any{"scrolled": true}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r scrollReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.PageID == "" || r.ID == "" {
			return nil, fmt.Errorf("page_id and id are required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- export ---

type exportReq struct {
	PageID string `json:"page_id"`
	Title  string `json:"title"`
}

func (c *Coordinator) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "toc_export",
		Description: "Export a page's table of contents as a markdown outline.",
		InputSchema: inputSchema(map[string]any{
			"page_id": pageIDProp,
			"title":   map[string]any{"type": "string", "description": "Optional document title"},
		}, []string{"page_id"}),
	}

	exporter := export.New()

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*exportReq)
		resp, err := c.Relay(ctx, Command{Action: "getHeadings", PageID: r.PageID})
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		title := r.Title
		if title == "" {
			if rec, ok := c.Page(r.PageID); ok {
				title = rec.URL
			}
		}
		md, err := exporter.Markdown(title, entryRecords(resp.Headings))
		if err != nil {
			return nil, err
		}
		return map[string]any{"markdown": md}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r exportReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.PageID == "" {
			return nil, fmt.Errorf("page_id is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func entryRecords(entries []pageagent.HeadingEntry) []headings.Record {
	recs := make([]headings.Record, len(entries))
	for i, e := range entries {
		recs[i] = headings.Record{Text: e.Text, Level: e.Level, ID: e.ID, VerticalPos: e.Position}
	}
	return recs
}
