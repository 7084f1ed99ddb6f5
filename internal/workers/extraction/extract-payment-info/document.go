// internal/workers/extraction/extract-payment-info/document.go
package extractpaymentinfo

import (
	"strings"

	"golang.org/x/net/html"

	"transfer-reconciler/internal/models"
)

// Document is the prepared view of one email that strategies read from.
type Document struct {
	Subject  string
	From     string
	Text     string
	HTML     string
	HTMLText string
	// Rows holds the cell texts of every HTML table row, in order.
	Rows      [][]string
	Templates []models.BankTemplate
}

func newDocument(e *models.InboundEmail, templates []models.BankTemplate) *Document {
	doc := &Document{
		Subject:   e.Subject,
		From:      e.FromEmail,
		Text:      e.TextBody,
		HTML:      e.HTMLBody,
		Templates: templates,
	}
	if e.HTMLBody != "" {
		doc.HTMLText, doc.Rows = parseHTML(e.HTMLBody)
	}
	return doc
}

// Bodies returns the plain text and the HTML-derived text, skipping empties.
func (d *Document) Bodies() []string {
	out := make([]string, 0, 2)
	if strings.TrimSpace(d.Text) != "" {
		out = append(out, d.Text)
	}
	if strings.TrimSpace(d.HTMLText) != "" {
		out = append(out, d.HTMLText)
	}
	return out
}

// Combined is subject, text and HTML-derived text joined by newlines.
func (d *Document) Combined() string {
	return strings.Join(append([]string{d.Subject}, d.Bodies()...), "\n")
}

// Lines returns every non-empty trimmed line of both bodies.
func (d *Document) Lines() []string {
	var lines []string
	for _, body := range d.Bodies() {
		for _, l := range strings.Split(body, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}
	}
	return lines
}

// LookupLabel finds the value next to label. Table cells are checked first
// (<td>label</td><td>value</td>, then "label: value" inside one cell), then
// "label: value" text lines.
func (d *Document) LookupLabel(label string) (string, bool) {
	want := normalizeLabel(label)
	if want == "" {
		return "", false
	}

	for _, row := range d.Rows {
		for i, cell := range row {
			if normalizeLabel(cell) == want && i+1 < len(row) && strings.TrimSpace(row[i+1]) != "" {
				return strings.TrimSpace(row[i+1]), true
			}
			if v, ok := splitLabelled(cell, want); ok {
				return v, true
			}
		}
	}

	for _, line := range d.Lines() {
		if v, ok := splitLabelled(line, want); ok {
			return v, true
		}
	}
	return "", false
}

func splitLabelled(s, want string) (string, bool) {
	idx := strings.Index(s, ":")
	if idx <= 0 {
		return "", false
	}
	if normalizeLabel(s[:idx]) != want {
		return "", false
	}
	v := strings.TrimSpace(s[idx+1:])
	return v, v != ""
}

func normalizeLabel(s string) string {
	s = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ":"))
	return models.NormalizeName(s)
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "li": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// parseHTML flattens markup to line-oriented text and collects table rows.
// Unparseable markup yields whatever text was recovered.
func parseHTML(src string) (string, [][]string) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", nil
	}

	var (
		sb   strings.Builder
		rows [][]string
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head":
				return
			case "tr":
				var cells []string
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
						cells = append(cells, collapse(textContent(c)))
					}
				}
				if len(cells) > 0 {
					rows = append(rows, cells)
				}
			case "td", "th":
				sb.WriteString(" ")
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteString("\n")
		}
	}
	walk(root)

	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = collapse(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n"), rows
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
