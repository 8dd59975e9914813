package assets

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Inject places the collected CSS in a <style> element before </head> and
// the collected JS in a <script> element before </body>. A document
// without </head> gets the style prepended; one without </body> gets the
// script appended. Nothing is added for an empty collector.
func Inject(doc string, c *Collector) string {
	if c == nil {
		return doc
	}
	css, js := c.CombinedCSS(), c.CombinedJS()
	if css == "" && js == "" {
		return doc
	}

	headEnd, bodyEnd := closingTags(doc)

	var b strings.Builder
	b.Grow(len(doc) + len(css) + len(js) + 40)
	style := ""
	if css != "" {
		style = "<style>" + css + "</style>"
	}
	script := ""
	if js != "" {
		script = "<script>" + js + "</script>"
	}

	pos := 0
	if style != "" {
		if headEnd < 0 {
			b.WriteString(style)
		} else {
			b.WriteString(doc[:headEnd])
			b.WriteString(style)
			pos = headEnd
		}
	}
	if script != "" && bodyEnd >= pos {
		b.WriteString(doc[pos:bodyEnd])
		b.WriteString(script)
		pos = bodyEnd
		script = ""
	}
	b.WriteString(doc[pos:])
	b.WriteString(script)
	return b.String()
}

// closingTags returns the byte offsets of the first </head> and the last
// </body> end tags, or -1. Tags inside script, style and comments are not
// matched.
func closingTags(doc string) (headEnd, bodyEnd int) {
	headEnd, bodyEnd = -1, -1
	z := html.NewTokenizer(strings.NewReader(doc))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a malformed tail; offsets found so far stand
			return headEnd, bodyEnd
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Head:
				if headEnd < 0 {
					headEnd = offset
				}
			case atom.Body:
				bodyEnd = offset
			}
		}
		offset += raw
	}
}
