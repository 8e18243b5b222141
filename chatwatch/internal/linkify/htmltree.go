package linkify

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLTree adapts a parsed golang.org/x/net/html subtree to Tree.
type HTMLTree struct {
	Root *html.Node
	// ReservedID is the id attribute of the typing indicator.
	ReservedID string
}

// Reserved reports whether Root is the indicator element.
func (t HTMLTree) Reserved() bool {
	return t.Root == nil || isReserved(t.Root, t.ReservedID)
}

// Leaves walks Root and collects text nodes. Text inside links, scripts,
// styles and the indicator is not collected: a second pass over an already
// augmented subtree finds nothing to rewrite.
func (t HTMLTree) Leaves() ([]Leaf, error) {
	var leaves []Leaf
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if n.Parent != nil {
				leaves = append(leaves, htmlLeaf{n})
			}
			return
		case html.ElementNode:
			if skipSubtree(n) || isReserved(n, t.ReservedID) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(t.Root)
	return leaves, nil
}

func skipSubtree(n *html.Node) bool {
	switch n.DataAtom {
	case atom.A, atom.Script, atom.Style, atom.Textarea, atom.Title, atom.Head:
		return true
	}
	return false
}

func isReserved(n *html.Node, id string) bool {
	if id == "" || n.Type != html.ElementNode {
		return false
	}
	return attr(n, "id") == id
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

type htmlLeaf struct{ n *html.Node }

func (l htmlLeaf) Text() string { return l.n.Data }

func (l htmlLeaf) Replace(segs []Segment) error {
	parent := l.n.Parent
	for _, s := range segs {
		parent.InsertBefore(segmentNode(s), l.n)
	}
	parent.RemoveChild(l.n)
	return nil
}

func segmentNode(s Segment) *html.Node {
	if !s.IsLink() {
		return &html.Node{Type: html.TextNode, Data: s.Text}
	}
	a := &html.Node{
		Type:     html.ElementNode,
		Data:     "a",
		DataAtom: atom.A,
		Attr: []html.Attribute{
			{Key: "href", Val: s.Href},
			{Key: "target", Val: LinkTarget},
			{Key: "rel", Val: LinkRel},
		},
	}
	a.AppendChild(&html.Node{Type: html.TextNode, Data: s.Text})
	return a
}

// AugmentHTML parses an HTML fragment in a <div> context, augments it and
// renders it back. It returns the rendered markup and the number of links
// created.
func AugmentHTML(fragment, reservedID string) (string, int, error) {
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), root)
	if err != nil {
		return "", 0, err
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	links, err := Augment(HTMLTree{Root: root, ReservedID: reservedID})
	if err != nil {
		return "", links, err
	}

	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", links, err
		}
	}
	return buf.String(), links, nil
}

// AugmentDocument parses a complete HTML document from r, augments every
// text leaf in it and writes the result to w.
func AugmentDocument(r io.Reader, w io.Writer, reservedID string) (int, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return 0, err
	}
	links, err := Augment(HTMLTree{Root: doc, ReservedID: reservedID})
	if err != nil {
		return links, err
	}
	return links, html.Render(w, doc)
}
