// Package markdown cleans up README content fetched from source hosts.
package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// Normalize converts inline HTML in a README to plain markdown: <img> tags
// become markdown images and every other complete <...> tag is dropped.
// Text between tags, including entities and a stray '<' with no closing
// '>', is kept as written.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for {
		i := strings.IndexByte(s, '<')
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i:], '>')
		if j < 0 {
			break
		}
		b.WriteString(s[:i])
		writeTag(&b, s[i:i+j+1])
		s = s[i+j+1:]
	}
	b.WriteString(s)
	return b.String()
}

// writeTag writes the markdown form of a single tag, which is empty for
// anything but an <img> with a src.
func writeTag(b *strings.Builder, tag string) {
	z := html.NewTokenizer(strings.NewReader(tag))
	switch z.Next() {
	case html.StartTagToken, html.SelfClosingTagToken:
	default:
		return
	}
	tok := z.Token()
	if tok.Data != "img" {
		return
	}
	var src, alt string
	for _, a := range tok.Attr {
		switch a.Key {
		case "src":
			src = a.Val
		case "alt":
			alt = a.Val
		}
	}
	if src != "" {
		b.WriteString("![" + alt + "](" + src + ")")
	}
}

var parser = goldmark.New().Parser()

// FirstParagraph returns the text of the first paragraph of a markdown
// document, or "" if it has none. Headings, images, code and HTML blocks
// are skipped.
func FirstParagraph(md string) string {
	src := []byte(md)
	doc := parser.Parse(text.NewReader(src))

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() != ast.KindParagraph {
			continue
		}
		var b bytes.Buffer
		collectText(&b, n, src)
		if t := strings.Join(strings.Fields(b.String()), " "); t != "" {
			return t
		}
	}
	return ""
}

func collectText(b *bytes.Buffer, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Image, *ast.RawHTML:
			continue
		case *ast.Text:
			b.Write(c.Segment.Value(src))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		default:
			collectText(b, c, src)
		}
	}
}
