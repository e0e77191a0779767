package tokentext

import (
	"fmt"
	"html"
	"io"
	"strings"

	nethtml "golang.org/x/net/html"
)

const chipClass = "token-chip"

// contenteditable inserts zero-width and non-breaking spaces around caret positions
var textCleaner = strings.NewReplacer("\u200b", "", "\u00a0", " ")

// HTML renders the document for a contenteditable editor. Chips are
// non-editable spans carrying their key in data-token.
func (d Document) HTML() string {
	var b strings.Builder
	for _, n := range d.Nodes {
		if n.IsChip() {
			t, _ := Lookup(n.Token)
			fmt.Fprintf(&b, `<span class="%s" contenteditable="false" data-token="%s">%s</span>`,
				chipClass, html.EscapeString(t.Key), html.EscapeString(t.Label))
			continue
		}
		lines := strings.Split(n.Text, "\n")
		for i, line := range lines {
			if i > 0 {
				b.WriteString("<br>")
			}
			b.WriteString(html.EscapeString(line))
		}
	}
	return b.String()
}

// ParseHTML reads editor markup back into a document. Spans with a known
// data-token become chips regardless of their visible text; line-breaking
// elements become newlines.
func ParseHTML(src string) (Document, error) {
	var d Document
	z := nethtml.NewTokenizer(strings.NewReader(src))

	// depth of span nesting inside a chip, 0 when outside any chip
	chipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case nethtml.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return Document{}, fmt.Errorf("failed to parse editor html: %w", err)
			}
			return d, nil

		case nethtml.TextToken:
			if chipDepth > 0 {
				continue
			}
			d.appendText(textCleaner.Replace(string(z.Text())))

		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)

			if chipDepth > 0 {
				if tag == "span" && tt == nethtml.StartTagToken {
					chipDepth++
				}
				continue
			}

			switch tag {
			case "br":
				d.appendText("\n")
			case "div", "p":
				if d.Len() > 0 && !d.endsWithNewline() {
					d.appendText("\n")
				}
			case "span":
				if key := tokenAttr(z, hasAttr); key != "" {
					d.Nodes = append(d.Nodes, Node{Token: key})
					if tt == nethtml.StartTagToken {
						chipDepth = 1
					}
				}
			}

		case nethtml.EndTagToken:
			if chipDepth > 0 {
				name, _ := z.TagName()
				if string(name) == "span" {
					chipDepth--
				}
			}
		}
	}
}

func tokenAttr(z *nethtml.Tokenizer, hasAttr bool) string {
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if string(key) != "data-token" {
			continue
		}
		if _, ok := Lookup(string(val)); ok {
			return string(val)
		}
		return ""
	}
	return ""
}

func (d Document) endsWithNewline() bool {
	if len(d.Nodes) == 0 {
		return false
	}
	last := d.Nodes[len(d.Nodes)-1]
	return !last.IsChip() && strings.HasSuffix(last.Text, "\n")
}
