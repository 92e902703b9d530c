package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FromHTML builds a Document from an HTML rendering of a contract.
// Paragraphs, headings and list items become running text; each table becomes a
// region whose rows are written into the text as "cell: cell" lines.
func FromHTML(r io.Reader) (Document, error) {
	page, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Document{}, fmt.Errorf("parse html: %w", err)
	}
	page.Find("script, style, head, noscript").Remove()

	var (
		b       strings.Builder
		regions []Region
	)
	page.Find("p, h1, h2, h3, h4, h5, h6, li, table").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("li, table").Length() > 0 {
			return
		}
		if goquery.NodeName(s) != "table" {
			text := collapse(s.Text())
			if text == "" {
				return
			}
			if goquery.NodeName(s) == "li" {
				text = "- " + text
			}
			b.WriteString(text)
			b.WriteString("\n\n")
			return
		}

		start := b.Len()
		var rows [][]string
		s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Find("th, td").Each(func(_ int, td *goquery.Selection) {
				if c := collapse(td.Text()); c != "" {
					cells = append(cells, c)
				}
			})
			if len(cells) == 0 {
				return
			}
			rows = append(rows, cells)
			b.WriteString(strings.Join(cells, ": "))
			b.WriteString("\n")
		})
		if len(rows) == 0 {
			return
		}
		regions = append(regions, Region{
			ID:    fmt.Sprintf("table-%d", len(regions)+1),
			Kind:  "table",
			Start: start,
			End:   b.Len(),
			Rows:  rows,
		})
		b.WriteString("\n")
	})

	return Document{Text: b.String(), Regions: regions}, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
