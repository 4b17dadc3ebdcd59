// internal/browser/dom/fingerprint.go
package dom

import (
	"hash"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
)

var hasherPool = sync.Pool{
	New: func() interface{} { return fnv.New64a() },
}

// hashBranchPath hashes the chain of ancestor signatures from the root down
// to the element. Two elements with the same hash are treated as the same
// logical element across page reloads, independent of highlight index.
func hashBranchPath(path []string) string {
	hasher := hasherPool.Get().(hash.Hash64)
	defer func() {
		hasher.Reset()
		hasherPool.Put(hasher)
	}()

	_, _ = hasher.Write([]byte(strings.Join(path, "/")))
	return strconv.FormatUint(hasher.Sum64(), 16)
}

// assignFingerprints computes the branch-path hash for every node in a single
// root-to-leaf pass over the arena. Each node's signature chain extends its
// parent's, so ancestor chains are never re-walked per node.
func (t *ElementTree) assignFingerprints() {
	// paths[i] holds the signature chain for node i. Children extend a copy
	// of the parent chain by exactly one entry.
	paths := make([][]string, len(t.Nodes))
	for i := range t.Nodes {
		n := &t.Nodes[i]
		sig := signature(n)
		if n.Parent < 0 {
			paths[i] = []string{sig}
		} else {
			parentPath := paths[n.Parent]
			chain := make([]string, len(parentPath)+1)
			copy(chain, parentPath)
			chain[len(parentPath)] = sig
			paths[i] = chain
		}
		n.BranchPathHash = hashBranchPath(paths[i])
	}
}

// FingerprintSet collects the branch-path hashes of every element in a
// selector map. The executor compares these sets to detect page drift
// between planning and execution of an action batch.
func FingerprintSet(selectorMap map[int]*ElementNode) map[string]struct{} {
	set := make(map[string]struct{}, len(selectorMap))
	for _, n := range selectorMap {
		set[n.BranchPathHash] = struct{}{}
	}
	return set
}

// IsSubset reports whether every fingerprint in sub also appears in super.
func IsSubset(sub, super map[string]struct{}) bool {
	for fp := range sub {
		if _, ok := super[fp]; !ok {
			return false
		}
	}
	return true
}
