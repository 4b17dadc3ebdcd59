// internal/browser/dom/history.go
package dom

// HistoryElement is the durable projection of an element that an action
// interacted with. It carries everything needed to re-resolve the element
// against a future, possibly renumbered DOM: the structural fingerprint plus
// enough identity to debug a failed match.
type HistoryElement struct {
	Tag            string            `json:"tag"`
	XPath          string            `json:"xpath,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	HighlightIndex int               `json:"highlight_index"`
	BranchPathHash string            `json:"branch_path_hash"`
}

// NewHistoryElement projects an arena node into its durable form.
func NewHistoryElement(n *ElementNode) *HistoryElement {
	if n == nil {
		return nil
	}
	attrs := make(map[string]string, len(n.Attributes))
	for k, v := range n.Attributes {
		attrs[k] = v
	}
	return &HistoryElement{
		Tag:            n.Tag,
		XPath:          n.XPath,
		Attributes:     attrs,
		HighlightIndex: n.HighlightIndex,
		BranchPathHash: n.BranchPathHash,
	}
}

// FindHistoryElement searches a live tree for the recorded element by
// branch-path hash. Returns nil when no element in the tree carries the same
// fingerprint, which callers treat as the element having left the page.
func FindHistoryElement(recorded *HistoryElement, tree *ElementTree) *ElementNode {
	if recorded == nil || tree == nil {
		return nil
	}
	for i := range tree.Nodes {
		if tree.Nodes[i].BranchPathHash == recorded.BranchPathHash {
			return &tree.Nodes[i]
		}
	}
	return nil
}
