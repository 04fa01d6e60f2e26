package coordinator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "gentoc-test", Version: "0.1.0"}

func mcpSession(t *testing.T, c *Coordinator) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	c.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_PagesAndHeadings(t *testing.T) {
	c := newCoordinator(t, &fakeInjector{}, nil)
	session := mcpSession(t, c)

	id, _ := c.Attach(context.Background(), "https://example.com/doc")

	text := mcpCallTool(t, session, "toc_pages", map[string]any{})
	var pages struct {
		Pages []InjectionRecord `json:"pages"`
	}
	if err := json.Unmarshal([]byte(text), &pages); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(pages.Pages) != 1 || pages.Pages[0].PageID != id {
		t.Fatalf("pages: %+v", pages.Pages)
	}

	text = mcpCallTool(t, session, "toc_headings", map[string]any{"page_id": id})
	var hs struct {
		Headings []struct {
			Text  string `json:"text"`
			Level int    `json:"level"`
		} `json:"headings"`
	}
	if err := json.Unmarshal([]byte(text), &hs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hs.Headings) != 1 || hs.Headings[0].Text != "Alpha" {
		t.Fatalf("headings: %+v", hs.Headings)
	}
}

func TestMCP_Toggle(t *testing.T) {
	c := newCoordinator(t, &fakeInjector{}, nil)
	session := mcpSession(t, c)

	id, _ := c.Attach(context.Background(), "https://example.com/doc")
	// fakeAgent answers toggle with Success but no visibility; the tool
	// passes it through.
	_ = mcpCallTool(t, session, "toc_toggle", map[string]any{"page_id": id})
}

func TestMCP_Export(t *testing.T) {
	c := newCoordinator(t, &fakeInjector{}, nil)
	session := mcpSession(t, c)

	id, _ := c.Attach(context.Background(), "https://example.com/doc")
	text := mcpCallTool(t, session, "toc_export", map[string]any{"page_id": id, "title": "Doc"})

	var resp struct {
		Markdown string `json:"markdown"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(resp.Markdown, "# Doc") || !strings.Contains(resp.Markdown, "Alpha") {
		t.Errorf("markdown:\n%s", resp.Markdown)
	}
}

func TestMCP_MissingPageID(t *testing.T) {
	c := newCoordinator(t, &fakeInjector{}, nil)
	session := mcpSession(t, c)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "toc_headings",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing page_id")
	}
}
