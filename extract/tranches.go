package extract

import (
	"regexp"
	"strings"
)

var trancheHeader = regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.[ \t]*)?(?:tranche|tramo)[ \t]+([A-Z0-9])\b`)

type trancheSection struct {
	label string
	doc   Document
}

// trancheSections splits a multi-tranche facility into one section per tranche header.
// A document with fewer than two distinct tranche headers is a single-tranche contract.
func trancheSections(doc Document) []trancheSection {
	var (
		starts []int
		labels []string
		seen   = map[string]bool{}
	)
	for _, m := range trancheHeader.FindAllStringSubmatchIndex(doc.Text, -1) {
		label := strings.ToUpper(doc.Text[m[2]:m[3]])
		if seen[label] {
			continue
		}
		seen[label] = true
		starts = append(starts, m[0])
		labels = append(labels, label)
	}
	if len(starts) < 2 {
		return nil
	}

	sections := make([]trancheSection, len(starts))
	for i, start := range starts {
		end := len(doc.Text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		sub := doc.slice(start, end)
		sub.inTranche = true
		sections[i] = trancheSection{label: labels[i], doc: sub}
	}
	return sections
}
