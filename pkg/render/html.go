package render

import (
	"html"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/sipeed/billabee/pkg/conversation"
)

// HTML converts markdown to an HTML fragment. Raw HTML in the source is
// dropped.
func HTML(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank | mdhtml.SkipHTML,
	})
	return strings.TrimSpace(string(markdown.ToHTML([]byte(md), p, r)))
}

// MessageHTML renders a transcript entry for the web widget. User text is
// escaped verbatim; bot text goes through markdown when enabled.
func MessageHTML(m conversation.Message, useMarkdown bool) string {
	if m.Sender == conversation.SenderBot && useMarkdown {
		return HTML(m.Text)
	}
	return "<p>" + html.EscapeString(m.Text) + "</p>"
}
