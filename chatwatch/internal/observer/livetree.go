package observer

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/linkify"
)

const (
	nodeElement = 1
	nodeText    = 3
)

// replaceLeafJS swaps a text node for its segments. Elements are built with
// createElement and textContent so no markup from the message is parsed.
const replaceLeafJS = `function (segs, target, rel) {
	const parent = this.parentNode;
	if (!parent) return 0;
	const frag = document.createDocumentFragment();
	let links = 0;
	for (const s of segs) {
		if (s.href) {
			const a = document.createElement('a');
			a.href = s.href;
			a.target = target;
			a.rel = rel;
			a.textContent = s.text;
			frag.appendChild(a);
			links++;
		} else {
			frag.appendChild(document.createTextNode(s.text));
		}
	}
	parent.replaceChild(frag, this);
	return links;
}`

// liveTree is a linkify.Tree over a described element of a live page. The
// description is taken once, so Leaves is a snapshot by construction.
type liveTree struct {
	ctx        context.Context
	page       *rod.Page
	root       *proto.DOMNode
	reservedID string
}

func newLiveTree(ctx context.Context, page *rod.Page, el *rod.Element, reservedID string) (*liveTree, error) {
	root, err := el.Context(ctx).Describe(-1, true)
	if err != nil {
		return nil, fmt.Errorf("observer: describe node: %w", err)
	}
	return &liveTree{ctx: ctx, page: page, root: root, reservedID: reservedID}, nil
}

func (t *liveTree) Reserved() bool {
	return isReserved(t.root, t.reservedID)
}

func (t *liveTree) Leaves() ([]linkify.Leaf, error) {
	nodes := collectLeaves(t.root, t.reservedID)
	leaves := make([]linkify.Leaf, len(nodes))
	for i, n := range nodes {
		leaves[i] = &liveLeaf{tree: t, node: n}
	}
	return leaves, nil
}

type liveLeaf struct {
	tree *liveTree
	node *proto.DOMNode
}

func (l *liveLeaf) Text() string { return l.node.NodeValue }

func (l *liveLeaf) Replace(segs []linkify.Segment) error {
	page := l.tree.page.Context(l.tree.ctx)
	res, err := proto.DOMResolveNode{BackendNodeID: l.node.BackendNodeID}.Call(page)
	if err != nil {
		return fmt.Errorf("observer: resolve text node: %w", err)
	}
	el, err := page.ElementFromObject(res.Object)
	if err != nil {
		return fmt.Errorf("observer: wrap text node: %w", err)
	}
	if _, err := el.Eval(replaceLeafJS, segs, linkify.LinkTarget, linkify.LinkRel); err != nil {
		return fmt.Errorf("observer: replace text node: %w", err)
	}
	return nil
}

// collectLeaves returns the text nodes under root in document order,
// skipping anchors, non-rendered elements and the reserved indicator.
func collectLeaves(root *proto.DOMNode, reservedID string) []*proto.DOMNode {
	var out []*proto.DOMNode
	var walk func(n *proto.DOMNode)
	walk = func(n *proto.DOMNode) {
		switch n.NodeType {
		case nodeText:
			if n.NodeValue != "" {
				out = append(out, n)
			}
			return
		case nodeElement:
			if skipElement(n) || isReserved(n, reservedID) {
				return
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

func skipElement(n *proto.DOMNode) bool {
	switch strings.ToUpper(n.NodeName) {
	case "A", "SCRIPT", "STYLE", "TEXTAREA", "TITLE", "HEAD":
		return true
	}
	return false
}

func isReserved(n *proto.DOMNode, reservedID string) bool {
	if n == nil || reservedID == "" {
		return false
	}
	return attr(n, "id") == reservedID
}

// attr reads a flat name/value attribute list as returned by DOM.describeNode.
func attr(n *proto.DOMNode, name string) string {
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		if n.Attributes[i] == name {
			return n.Attributes[i+1]
		}
	}
	return ""
}
