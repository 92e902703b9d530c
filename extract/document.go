package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/liamcoop/loanlens/contract"
)

// Region is a layout hint supplied with the text, such as a table of terms.
// Start and End are byte offsets of the region within Document.Text.
type Region struct {
	ID    string     `json:"id"`
	Kind  string     `json:"kind"`
	Start int        `json:"start"`
	End   int        `json:"end"`
	Rows  [][]string `json:"rows,omitempty"`
}

// Document is the input to extraction: the contract text plus optional layout regions
type Document struct {
	Text    string   `json:"text"`
	Regions []Region `json:"regions,omitempty"`

	// offset of Text within the original document, for tranche sections
	offset    int
	lines     []int
	inTranche bool
}

// NewDocument wraps plain text
func NewDocument(text string) Document {
	return Document{Text: text}
}

// slice returns the part of the document between start and end, keeping source offsets absolute
func (d Document) slice(start, end int) Document {
	sub := Document{Text: d.Text[start:end], offset: d.offset + start, lines: d.lineIndex()}
	for _, r := range d.Regions {
		if r.Start >= start && r.End <= end {
			r.Start -= start
			r.End -= start
			sub.Regions = append(sub.Regions, r)
		}
	}
	return sub
}

func (d Document) lineIndex() []int {
	if d.lines != nil {
		return d.lines
	}
	lines := []int{0}
	for i, c := range d.Text {
		if c == '\n' {
			lines = append(lines, d.offset+i+1)
		}
	}
	return lines
}

func (d Document) lineAt(abs int) int {
	lines := d.lineIndex()
	return sort.SearchInts(lines, abs+1)
}

const maxSnippet = 160

// source builds a reference to the text between start and end, relative to d.Text
func (d Document) source(s sentence, start, end int) *contract.SourceRef {
	snippet := strings.TrimSpace(s.text)
	if len(snippet) > maxSnippet {
		snippet = strings.TrimSpace(snippet[:maxSnippet]) + "…"
	}
	abs := d.offset + start
	return &contract.SourceRef{
		Start:   abs,
		End:     d.offset + end,
		Line:    d.lineAt(abs),
		Snippet: snippet,
		Region:  s.region,
	}
}

// sentence is a search scope: a sentence of running text or one table row
type sentence struct {
	text   string
	start  int
	region string
}

var (
	sentenceEnd = regexp.MustCompile(`[.;]\s+|\n\s*`)
	// a line break starts a new scope before a list item or a "Label: value" line
	newScope = regexp.MustCompile(`^(?:\d+(?:\.\d+)*[.)]\s|[a-z]\)\s|[-•*]\s|\p{Lu}[\p{L} ]{1,40}:\s)`)
)

// sentences splits the text into search scopes. Table rows of layout regions are
// appended as "cell: cell" scopes tagged with their region.
func (d Document) sentences() []sentence {
	var out []sentence
	text := d.Text
	prev := 0
	emit := func(end int) {
		if s := text[prev:end]; strings.TrimSpace(s) != "" {
			out = append(out, sentence{text: s, start: prev})
		}
		prev = end
	}

	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if loc[0] < prev || loc[1] >= len(text) {
			continue
		}
		rest := text[loc[1]:]
		if text[loc[0]] == '\n' {
			if strings.Count(text[loc[0]:loc[1]], "\n") > 1 || newScope.MatchString(rest) {
				emit(loc[1])
			}
			continue
		}
		next, _ := utf8.DecodeRuneInString(rest)
		if unicode.IsUpper(next) || unicode.IsDigit(next) || strings.ContainsRune("(¿\"“", next) {
			emit(loc[1])
		}
	}
	emit(len(text))

	for _, r := range d.Regions {
		for _, row := range r.Rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				if c = strings.TrimSpace(c); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) == 0 {
				continue
			}
			out = append(out, sentence{text: strings.Join(cells, ": "), start: r.Start, region: r.ID})
		}
	}
	return out
}
