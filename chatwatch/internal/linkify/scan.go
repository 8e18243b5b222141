// Package linkify rewrites markdown links and bare URLs found in message
// text into link elements, without touching any other visible text.
package linkify

import (
	"regexp"
	"strings"
)

// Marker is the substring every rewritable text contains. Leaves without it
// are skipped before the pattern runs.
const Marker = "http"

// space is the whitespace a browser's regexp engine treats as \s. RE2's \s
// is ASCII only, so no-break and ideographic spaces need listing.
const space = `\s\x0B\p{Z}\x{FEFF}`

// linkRe matches [label](url) or a bare http(s) URL in one pass.
// Groups 1+2: markdown link. Group 3: bare URL, which stops at whitespace,
// angle brackets, quotes, a closing paren or a closing square bracket.
var linkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)` + space + `]+)\)|(https?://[^` + space + `<>"')\]]+)`)

// Segment is one run of a rewritten text leaf. Href is empty for plain text.
type Segment struct {
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// IsLink reports whether the segment becomes a link element.
func (s Segment) IsLink() bool { return s.Href != "" }

// HasMarker is the cheap short-circuit applied before Scan.
func HasMarker(text string) bool {
	return strings.Contains(text, Marker)
}

// Scan splits text into plain runs and links, left to right. It returns nil
// when nothing matched, so callers can leave the leaf untouched. URLs are
// passed through verbatim.
func Scan(text string) []Segment {
	if !HasMarker(text) {
		return nil
	}
	matches := linkRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	segs := make([]Segment, 0, 2*len(matches)+1)
	last := 0
	for _, m := range matches {
		if m[0] > last {
			segs = append(segs, Segment{Text: text[last:m[0]]})
		}
		if m[2] >= 0 {
			segs = append(segs, Segment{Text: text[m[2]:m[3]], Href: text[m[4]:m[5]]})
		} else {
			u := text[m[6]:m[7]]
			segs = append(segs, Segment{Text: u, Href: u})
		}
		last = m[1]
	}
	if last < len(text) {
		segs = append(segs, Segment{Text: text[last:]})
	}
	return segs
}

// CountLinks returns the number of link segments.
func CountLinks(segs []Segment) int {
	n := 0
	for _, s := range segs {
		if s.IsLink() {
			n++
		}
	}
	return n
}
