// ABOUTME: Markdown heading outline for memory bank files
// ABOUTME: Walks the goldmark AST and collects heading levels and plain titles

package memorybank

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section is one markdown heading.
type Section struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

// Outline returns the headings of a markdown document in document order.
// Headings inside fenced code blocks are not headings and are skipped.
func Outline(src []byte) []Section {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var sections []Section
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if title := inlineText(h, src); title != "" {
			sections = append(sections, Section{Level: h.Level, Title: title})
		}
		return ast.WalkSkipChildren, nil
	})
	return sections
}

// inlineText flattens the inline children of n, dropping markup.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			b.WriteString(inlineText(c, src))
		}
	}
	return strings.TrimSpace(b.String())
}
