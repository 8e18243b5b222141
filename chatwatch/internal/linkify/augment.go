package linkify

import "fmt"

// Link element attributes. Every link opens in a new browsing context and
// gives the destination neither referrer nor opener.
const (
	LinkTarget = "_blank"
	LinkRel    = "noopener noreferrer"
)

// Tree is a message subtree the augmenter may rewrite.
type Tree interface {
	// Reserved reports whether the root is the typing indicator, which is
	// never processed.
	Reserved() bool
	// Leaves returns the rewritable text leaves in document order. The
	// result is a snapshot: replacing one leaf must not change the others.
	Leaves() ([]Leaf, error)
}

// Leaf is a single text node.
type Leaf interface {
	Text() string
	// Replace swaps the leaf for the given runs in one step.
	Replace(segs []Segment) error
}

// Augment rewrites every leaf of t that contains links and returns the
// number of links created. Leaves are collected before the first mutation.
// A leaf that fails to rewrite is skipped; the first such error is returned
// after the remaining leaves have been processed.
func Augment(t Tree) (int, error) {
	if t == nil || t.Reserved() {
		return 0, nil
	}
	leaves, err := t.Leaves()
	if err != nil {
		return 0, fmt.Errorf("linkify: collect leaves: %w", err)
	}

	var firstErr error
	links := 0
	for _, leaf := range leaves {
		segs := Scan(leaf.Text())
		if segs == nil {
			continue
		}
		if err := leaf.Replace(segs); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("linkify: replace leaf: %w", err)
			}
			continue
		}
		links += CountLinks(segs)
	}
	return links, firstErr
}
