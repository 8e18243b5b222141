package config

import "github.com/microcosm-cc/bluemonday"

const defaultIndicatorMarkup = `<div class="chatwatch-typing">` +
	`<span class="chatwatch-typing__dot"></span>` +
	`<span class="chatwatch-typing__dot"></span>` +
	`<span class="chatwatch-typing__dot"></span>` +
	`</div>`

// Phone handset, Feather/Lucide style.
const defaultPhoneIcon = `<svg viewBox="0 0 24 24" fill="none" stroke="currentColor" ` +
	`stroke-width="2" stroke-linecap="round" stroke-linejoin="round" aria-hidden="true">` +
	`<path d="M22 16.92v3a2 2 0 01-2.18 2 19.79 19.79 0 01-8.63-3.07 ` +
	`19.5 19.5 0 01-5.99-5.99 19.79 19.79 0 01-3.07-8.67A2 2 0 014 2h3a2 2 0 ` +
	`012 1.72c.127.96.361 1.903.7 2.81a2 2 0 01-.45 2.11L8.09 9.91a16 16 0 006 ` +
	`6l1.27-1.27a2 2 0 012.11-.45c.907.339 1.85.573 2.81.7A2 2 0 0122 16.92z"/>` +
	`</svg>`

// markupPolicy admits the decorative elements the indicator and the phone
// icon are made of. Anything else (scripts, handlers, links) is stripped
// before the markup is handed to the page.
var markupPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("div", "span", "svg", "path", "circle", "g")
	p.AllowAttrs("class", "aria-hidden").Globally()
	p.AllowAttrs("viewbox", "fill", "stroke", "stroke-width", "stroke-linecap",
		"stroke-linejoin", "xmlns", "width", "height").OnElements("svg")
	p.AllowAttrs("d", "fill", "stroke").OnElements("path")
	p.AllowAttrs("cx", "cy", "r", "fill").OnElements("circle")
	return p
}()

// SanitizeMarkup strips everything the indicator or icon markup has no use for.
func SanitizeMarkup(s string) string {
	return markupPolicy.Sanitize(s)
}
