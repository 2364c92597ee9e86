package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "# Title\n\nbody", "# Title\n\nbody"},
		{"image", `<img src="https://x/y.png" alt="logo" width="20">`, "![logo](https://x/y.png)"},
		{"self closing", `a <img src="p.gif"/> b`, "a ![](p.gif) b"},
		{"strips tags", `<p align="center"><b>bold</b> text</p>`, "bold text"},
		{"entities kept", `<div>Tom &amp; Jerry</div>`, "Tom &amp; Jerry"},
		{"entities kept without tags", "Tom &amp; Jerry", "Tom &amp; Jerry"},
		{"escaped markup stays escaped", "use &lt;div&gt; here", "use &lt;div&gt; here"},
		{"image without src", `<img alt="x">`, ""},
		{"unterminated lt", "If x<y then swap.", "If x<y then swap."},
		{"unterminated lt keeps rest", "<img src=\"a.png\" alt=\"x\">\n\nIf x<y then swap.\n\n## Usage\n\nRun it.",
			"![x](a.png)\n\nIf x<y then swap.\n\n## Usage\n\nRun it."},
		{"comment", "a<!-- hidden -->b", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestFirstParagraph(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"after heading", "# pipe-meeting\n\nSummarizes your\nmeetings.\n\nMore.", "Summarizes your meetings."},
		{"emphasis and links", "Uses *local* [models](https://x).", "Uses local models."},
		{"skips image only paragraph", "![banner](b.png)\n\nReal text.", "Real text."},
		{"no paragraph", "# Only a heading\n\n```\ncode\n```", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FirstParagraph(tt.in))
		})
	}
}
