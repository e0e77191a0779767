// Package tokentext converts message templates between their stored form
// ("Dear {{applicant_name}}") and an editor form where each placeholder is
// a single atomic chip.
package tokentext

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Token is a known placeholder
type Token struct {
	Key   string
	Label string
}

// Tokens lists the placeholders the editor offers, in toolbar order
var Tokens = []Token{
	{Key: "applicant_name", Label: "応募者名"},
	{Key: "job_title", Label: "求人タイトル"},
	{Key: "company", Label: "会社名"},
}

var ErrUnknownToken = errors.New("unknown token")

// Lookup returns the token for key
func Lookup(key string) (Token, bool) {
	for _, t := range Tokens {
		if t.Key == key {
			return t, true
		}
	}
	return Token{}, false
}

// Placeholder returns the stored form of key
func Placeholder(key string) string {
	return "{{" + key + "}}"
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Node is either a run of text or a chip
type Node struct {
	Text  string
	Token string // token key when the node is a chip
}

func (n Node) IsChip() bool {
	return n.Token != ""
}

// Document is an editor value
type Document struct {
	Nodes []Node
}

// Parse converts stored text to a document. Known placeholders become
// chips; unknown ones stay as literal text.
func Parse(stored string) Document {
	var d Document
	last := 0
	for _, m := range placeholderPattern.FindAllStringSubmatchIndex(stored, -1) {
		key := stored[m[2]:m[3]]
		if _, ok := Lookup(key); !ok {
			continue
		}
		d.appendText(stored[last:m[0]])
		d.Nodes = append(d.Nodes, Node{Token: key})
		last = m[1]
	}
	d.appendText(stored[last:])
	return d
}

func (d *Document) appendText(s string) {
	if s == "" {
		return
	}
	if n := len(d.Nodes); n > 0 && !d.Nodes[n-1].IsChip() {
		d.Nodes[n-1].Text += s
		return
	}
	d.Nodes = append(d.Nodes, Node{Text: s})
}

// String returns the stored form
func (d Document) String() string {
	var b strings.Builder
	for _, n := range d.Nodes {
		if n.IsChip() {
			b.WriteString(Placeholder(n.Token))
			continue
		}
		b.WriteString(n.Text)
	}
	return b.String()
}

// Len is the logical length: runes of text plus one per chip
func (d Document) Len() int {
	total := 0
	for _, n := range d.Nodes {
		total += n.len()
	}
	return total
}

func (n Node) len() int {
	if n.IsChip() {
		return 1
	}
	return utf8.RuneCountInString(n.Text)
}

// ChipPositions returns the logical offset of every chip
func (d Document) ChipPositions() []int {
	var out []int
	pos := 0
	for _, n := range d.Nodes {
		if n.IsChip() {
			out = append(out, pos)
		}
		pos += n.len()
	}
	return out
}

// Insert places a chip for key at logical offset pos (clamped to the
// document) and returns the offset just after it
func (d *Document) Insert(pos int, key string) (int, error) {
	if _, ok := Lookup(key); !ok {
		return pos, ErrUnknownToken
	}
	if pos < 0 {
		pos = 0
	}
	if l := d.Len(); pos > l {
		pos = l
	}

	chip := Node{Token: key}
	offset := 0
	for i, n := range d.Nodes {
		nl := n.len()
		if pos == offset {
			d.Nodes = append(d.Nodes[:i], append([]Node{chip}, d.Nodes[i:]...)...)
			return pos + 1, nil
		}
		if !n.IsChip() && pos < offset+nl {
			runes := []rune(n.Text)
			cut := pos - offset
			before := Node{Text: string(runes[:cut])}
			after := Node{Text: string(runes[cut:])}
			rest := append([]Node{before, chip, after}, d.Nodes[i+1:]...)
			d.Nodes = append(d.Nodes[:i], rest...)
			return pos + 1, nil
		}
		offset += nl
	}
	d.Nodes = append(d.Nodes, chip)
	return pos + 1, nil
}

// VisibleText is what the user sees: text with chip labels in place
func (d Document) VisibleText() string {
	var b strings.Builder
	for _, n := range d.Nodes {
		if n.IsChip() {
			t, _ := Lookup(n.Token)
			b.WriteString(t.Label)
			continue
		}
		b.WriteString(n.Text)
	}
	return b.String()
}

// InsertAtCaret inserts the placeholder for key into a plain text field.
// When the field is focused it goes at caret (a rune offset), otherwise at
// the end. It returns the new value and the caret just after the insertion.
func InsertAtCaret(value string, caret int, focused bool, key string) (string, int, error) {
	if _, ok := Lookup(key); !ok {
		return value, caret, ErrUnknownToken
	}

	runes := []rune(value)
	if !focused || caret < 0 || caret > len(runes) {
		caret = len(runes)
	}
	ph := []rune(Placeholder(key))

	out := make([]rune, 0, len(runes)+len(ph))
	out = append(out, runes[:caret]...)
	out = append(out, ph...)
	out = append(out, runes[caret:]...)
	return string(out), caret + len(ph), nil
}

// Render substitutes known placeholders with values; missing values
// render empty and unknown placeholders pass through unchanged
func Render(stored string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(stored, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		if _, ok := Lookup(key); !ok {
			return m
		}
		return values[key]
	})
}

var detailSynonyms = map[string][]string{
	"applicant_name": {"applicant_name", "name", "氏名"},
	"job_title":      {"job_title", "求人タイトル", "jobTitle", "職種"},
	"company":        {"company", "account_name", "アカウント名", "会社名"},
}

// ValuesFromDetail maps applicant detail fields onto token values,
// accepting the field names the scraper and forms use
func ValuesFromDetail(detail map[string]string) map[string]string {
	values := make(map[string]string, len(detailSynonyms))
	for key, names := range detailSynonyms {
		for _, name := range names {
			if v := strings.TrimSpace(detail[name]); v != "" {
				values[key] = v
				break
			}
		}
	}
	return values
}
