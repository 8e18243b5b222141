package chatwatch

import (
	"io"

	"github.com/hazyhaar/widgetwatch/chatwatch/internal/linkify"
)

// AugmentHTML rewrites markdown links and bare URLs in an HTML fragment.
// It returns the rewritten fragment and the number of links created.
func AugmentHTML(fragment, reservedID string) (string, int, error) {
	return linkify.AugmentHTML(fragment, reservedID)
}

// AugmentDocument rewrites links in a full HTML document read from r and
// writes the result to w.
func AugmentDocument(r io.Reader, w io.Writer, reservedID string) (int, error) {
	return linkify.AugmentDocument(r, w, reservedID)
}
