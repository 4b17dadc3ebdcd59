// internal/browser/dom/tree.go
package dom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ElementNode is one element record in the arena. Parent and Children are
// plain arena indices, never pointers, so a tree with parent back-links
// remains an acyclic value graph for the garbage collector and for
// serialization.
type ElementNode struct {
	Index          int               `json:"index"`
	Parent         int               `json:"parent"` // -1 for the root element
	Children       []int             `json:"children,omitempty"`
	Tag            string            `json:"tag"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Text           string            `json:"text,omitempty"`
	XPath          string            `json:"xpath,omitempty"`
	Visible        bool              `json:"visible"`
	Interactive    bool              `json:"interactive"`
	HighlightIndex int               `json:"highlight_index"` // -1 when not interactive
	BranchPathHash string            `json:"branch_path_hash"`
}

// HasHighlight reports whether the node was assigned a selector-map index.
func (n *ElementNode) HasHighlight() bool { return n.HighlightIndex >= 0 }

// ElementTree is an arena of element records parsed from a single page
// observation. Highlight indices are only stable within one tree.
type ElementTree struct {
	Nodes []ElementNode `json:"nodes"`

	// selectorMap maps highlight index to arena index. Rebuilt on demand.
	selectorMap map[int]int
}

// interactiveTags is the set of tags considered interactive regardless of
// attributes.
var interactiveTags = map[string]bool{
	"a":        true,
	"button":   true,
	"input":    true,
	"select":   true,
	"textarea": true,
	"option":   true,
	"label":    true,
}

// stableAttributes are the attributes that feed the structural fingerprint.
// Presentation attributes (class, style) are deliberately excluded: they churn
// across reloads while the logical element stays the same.
var stableAttributes = []string{
	"id", "name", "type", "role", "aria-label", "placeholder", "title", "alt", "href", "for",
}

// BuildTree parses an HTML document and produces the element arena with
// interactivity flags, highlight indices and branch-path fingerprints
// assigned. Highlight indices are allocated in document order, starting at 0.
func BuildTree(rawHTML string) (*ElementTree, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	root := findRootElement(doc)
	if root == nil {
		return nil, fmt.Errorf("document has no root element")
	}

	t := &ElementTree{}
	t.addSubtree(root, -1, "")

	t.assignFingerprints()
	t.assignHighlightIndices()
	return t, nil
}

// findRootElement locates the <html> element under the document node.
func findRootElement(doc *html.Node) *html.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}

// addSubtree appends node and its element descendants to the arena,
// depth-first, threading parent indices and xpath prefixes.
func (t *ElementTree) addSubtree(n *html.Node, parent int, parentXPath string) int {
	tag := strings.ToLower(n.Data)

	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[strings.ToLower(a.Key)] = a.Val
	}

	idx := len(t.Nodes)
	node := ElementNode{
		Index:          idx,
		Parent:         parent,
		Tag:            tag,
		Attributes:     attrs,
		Text:           directText(n),
		XPath:          childXPath(n, parentXPath),
		Visible:        isVisible(tag, attrs),
		HighlightIndex: -1,
	}
	node.Interactive = node.Visible && isInteractive(tag, attrs)
	t.Nodes = append(t.Nodes, node)

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		childIdx := t.addSubtree(c, idx, t.Nodes[idx].XPath)
		t.Nodes[idx].Children = append(t.Nodes[idx].Children, childIdx)
	}
	return idx
}

// childXPath extends the parent xpath with a positional step for n. Elements
// with an id get an absolute anchor instead, matching how selectors are
// generated elsewhere in the session layer.
func childXPath(n *html.Node, parentXPath string) string {
	tag := strings.ToLower(n.Data)
	if id := htmlquery.SelectAttr(n, "id"); id != "" {
		return fmt.Sprintf(`//*[@id=%q]`, id)
	}

	// Position among same-tag element siblings, 1-based as XPath requires.
	pos := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && strings.EqualFold(s.Data, n.Data) {
			pos++
		}
	}
	return fmt.Sprintf("%s/%s[%d]", parentXPath, tag, pos)
}

// directText collects the immediate text children of n, trimmed and collapsed.
func directText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	text := strings.Join(strings.Fields(b.String()), " ")
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func isInteractive(tag string, attrs map[string]string) bool {
	if interactiveTags[tag] {
		// Disabled controls cannot be interacted with.
		if _, disabled := attrs["disabled"]; disabled {
			return false
		}
		if attrs["aria-disabled"] == "true" {
			return false
		}
		return true
	}
	if _, ok := attrs["onclick"]; ok {
		return true
	}
	if _, ok := attrs["role"]; ok {
		return true
	}
	if _, ok := attrs["tabindex"]; ok {
		return true
	}
	if v, ok := attrs["contenteditable"]; ok && v != "false" {
		return true
	}
	return false
}

// isVisible is a structural approximation: without layout information only
// explicit hiding can be detected.
func isVisible(tag string, attrs map[string]string) bool {
	switch tag {
	case "script", "style", "head", "meta", "link", "noscript", "template":
		return false
	}
	if tag == "input" && attrs["type"] == "hidden" {
		return false
	}
	if _, ok := attrs["hidden"]; ok {
		return false
	}
	if attrs["aria-hidden"] == "true" {
		return false
	}
	style := strings.ReplaceAll(attrs["style"], " ", "")
	if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
		return false
	}
	return true
}

// assignHighlightIndices numbers interactive elements in document order.
func (t *ElementTree) assignHighlightIndices() {
	next := 0
	for i := range t.Nodes {
		if t.Nodes[i].Interactive {
			t.Nodes[i].HighlightIndex = next
			next++
		}
	}
	t.selectorMap = nil
}

// SelectorMap returns the mapping from highlight index to element node.
// The returned pointers reference the arena; callers must treat them as
// read-only.
func (t *ElementTree) SelectorMap() map[int]*ElementNode {
	if t.selectorMap == nil {
		t.selectorMap = make(map[int]int)
		for i := range t.Nodes {
			if t.Nodes[i].HasHighlight() {
				t.selectorMap[t.Nodes[i].HighlightIndex] = i
			}
		}
	}
	out := make(map[int]*ElementNode, len(t.selectorMap))
	for hi, idx := range t.selectorMap {
		out[hi] = &t.Nodes[idx]
	}
	return out
}

// Node returns the arena node at idx, or nil when out of range.
func (t *ElementTree) Node(idx int) *ElementNode {
	if idx < 0 || idx >= len(t.Nodes) {
		return nil
	}
	return &t.Nodes[idx]
}

// signature produces the stable per-node component of the branch path. The
// attribute subset is fixed and sorted so the signature is deterministic.
func signature(n *ElementNode) string {
	parts := make([]string, 0, len(stableAttributes))
	for _, key := range stableAttributes {
		if v, ok := n.Attributes[key]; ok && v != "" {
			parts = append(parts, key+"="+v)
		}
	}
	sort.Strings(parts)
	return n.Tag + "[" + strings.Join(parts, ";") + "]"
}
