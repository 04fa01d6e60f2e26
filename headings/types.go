// Package headings locates the main content container of a parsed HTML
// document and extracts an ordered heading hierarchy from it.
//
// Extraction is read-only except for anchor id assignment: headings without
// an id receive a generated "toc-heading-<ordinal>" id so they can be
// navigated to. Existing ids are never overwritten, and re-running Extract
// on an unchanged document yields identical ids.
package headings

// Record is one navigable table-of-contents entry.
type Record struct {
	// Text is the trimmed heading text. Never empty.
	Text string `json:"text"`
	// Level is the heading level, 1–4.
	Level int `json:"level"`
	// ID is the DOM anchor id. Either the heading's own id or a
	// generated "toc-heading-<ordinal>" one.
	ID string `json:"id"`
	// VerticalPos is the document-relative vertical offset of the
	// heading, used as a scroll fallback when the id no longer resolves.
	VerticalPos float64 `json:"vertical_position"`
}

// Assignment records a generated id that must be applied to the live
// document: the heading at Ordinal (index within the matched heading list,
// document order) gets ID if it still has none.
type Assignment struct {
	Ordinal int    `json:"ordinal"`
	ID      string `json:"id"`
}

// Scope describes where the headings were found, so the same query can be
// replayed against the live document when applying id assignments.
type Scope struct {
	// Selector is the container selector that matched, or "" when the
	// whole document was searched.
	Selector string `json:"selector"`
	// WholeDoc is true when the container yielded zero headings and the
	// search fell back to the entire document.
	WholeDoc bool `json:"whole_doc"`
	// MaxLevel is the deepest heading level queried (3 or 4).
	MaxLevel int `json:"max_level"`
}

// Result is the output of Extract.
type Result struct {
	Records  []Record
	Assigned []Assignment
	Scope    Scope
}
