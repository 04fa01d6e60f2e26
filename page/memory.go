package page

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/EaziSpace/gen-toc/headings"
)

// MemorySurface is a Surface backed by a mutable in-memory HTML document.
// It powers tests and dry runs: the document can be swapped or grown, and
// synthetic events pushed, without a browser.
type MemorySurface struct {
	mu      sync.Mutex
	url     string
	doc     *html.Node
	sidebar string
	offsets map[string]float64
	events  chan Event
	closed  bool

	// Scroll bookkeeping, inspected by tests.
	ScrolledTo     string
	ScrolledOffset float64
	Highlighted    string
}

// NewMemorySurface parses src as the initial live document.
func NewMemorySurface(url, src string) (*MemorySurface, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("page: parse document: %w", err)
	}
	return &MemorySurface{
		url:     url,
		doc:     doc,
		offsets: make(map[string]float64),
		events:  make(chan Event, 64),
	}, nil
}

// SetDocument replaces the live document, simulating navigation or a full
// DOM rewrite.
func (m *MemorySurface) SetDocument(src string) error {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("page: parse document: %w", err)
	}
	m.mu.Lock()
	m.doc = doc
	m.sidebar = ""
	m.mu.Unlock()
	return nil
}

// SetOffset records a measured vertical offset for an id.
func (m *MemorySurface) SetOffset(id string, y float64) {
	m.mu.Lock()
	m.offsets[id] = y
	m.mu.Unlock()
}

// Push delivers a synthetic event to the agent.
func (m *MemorySurface) Push(ev Event) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if !closed {
		m.events <- ev
	}
}

func (m *MemorySurface) URL() string { return m.url }

func (m *MemorySurface) DocumentHTML(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, m.doc); err != nil {
		return "", fmt.Errorf("page: render document: %w", err)
	}
	return buf.String(), nil
}

func (m *MemorySurface) BodyLength(ctx context.Context) (int, error) {
	s, err := m.DocumentHTML(ctx)
	return len(s), err
}

func (m *MemorySurface) ApplyHeadingIDs(_ context.Context, scope headings.Scope, assigns []headings.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	root := m.doc
	if !scope.WholeDoc && scope.Selector != "" {
		if c, _ := headings.FindContainer(m.doc, []string{scope.Selector}); c != nil {
			root = c
		}
	}
	matched := headings.QueryHeadings(root, scope.MaxLevel)
	for _, a := range assigns {
		if a.Ordinal < 0 || a.Ordinal >= len(matched) {
			continue
		}
		n := matched[a.Ordinal]
		if hasID(n) {
			continue
		}
		n.Attr = append(n.Attr, html.Attribute{Key: "id", Val: a.ID})
	}
	return nil
}

func (m *MemorySurface) HeadingOffsets(_ context.Context, ids []string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if headings.ElementByID(m.doc, id) == nil {
			continue
		}
		out[id] = m.offsets[id]
	}
	return out, nil
}

func (m *MemorySurface) ApplySidebar(_ context.Context, fragment string) error {
	m.mu.Lock()
	m.sidebar = fragment
	m.mu.Unlock()
	return nil
}

// LastScrolledTo returns the id of the most recent ScrollToHeading target.
func (m *MemorySurface) LastScrolledTo() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ScrolledTo
}

// Sidebar returns the last applied sidebar fragment.
func (m *MemorySurface) Sidebar() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sidebar
}

func (m *MemorySurface) SidebarPresent(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sidebar != "", nil
}

func (m *MemorySurface) ScrollToHeading(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if headings.ElementByID(m.doc, id) == nil {
		return false, nil
	}
	m.ScrolledTo = id
	m.Highlighted = id
	return true, nil
}

func (m *MemorySurface) ScrollToOffset(_ context.Context, y float64) error {
	m.mu.Lock()
	m.ScrolledOffset = y
	m.mu.Unlock()
	return nil
}

func (m *MemorySurface) Events() <-chan Event { return m.events }

func (m *MemorySurface) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return nil
}

func hasID(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "id" {
			return true
		}
	}
	return false
}
