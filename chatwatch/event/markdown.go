package event

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

// maxTextLen bounds Event.Text. Long replies are cut on a rune boundary.
const maxTextLen = 4096

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// Markdown renders a message node's outer HTML as markdown for Event.Text.
// Conversion failures fall back to an empty string: the text is informative
// only and never blocks an event.
func Markdown(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	md, err := mdConverter.ConvertString(html)
	if err != nil {
		return ""
	}
	md = strings.TrimSpace(md)
	if len(md) > maxTextLen {
		cut := maxTextLen
		for cut > 0 && !utf8RuneStart(md[cut]) {
			cut--
		}
		md = md[:cut]
	}
	return md
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
