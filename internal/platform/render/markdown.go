package render

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// md renders note content. Raw HTML in the source is dropped and dangerous
// link schemes are neutralised because WithUnsafe is not set.
var md = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Markdown renders free text that may contain markup into safe HTML. If
// conversion fails the text is escaped verbatim.
func Markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

// MarkdownCell renders src as a table cell, or the placeholder when blank.
func MarkdownCell(src string) Cell {
	c := Text(src)
	if c.Text == Placeholder {
		return c
	}
	c.HTML = Markdown(src)
	return c
}
