package refdata

import (
	"fmt"
	"math"
	"strings"
	"text/template"
)

// TemplateFuncs are available inside narrative fragment templates
var TemplateFuncs = template.FuncMap{
	"pct":   func(v any) string { return fmt.Sprintf("%.2f%%", number(v)) },
	"bps":   func(v any) string { return fmt.Sprintf("%.0f bps", number(v)) },
	"money": func(v any) string { return formatMoney(number(v)) },
	"abs":   func(v any) float64 { return math.Abs(number(v)) },
	"int":   func(v any) int { return int(math.Round(number(v))) },
	"join":  func(items []string, sep string) string { return strings.Join(items, sep) },
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func formatMoney(v float64) string {
	neg := v < 0
	s := fmt.Sprintf("%.2f", math.Abs(v))
	whole, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := b.String() + frac
	if neg {
		return "-" + out
	}
	return out
}

func parseTemplate(id, text string) (*template.Template, error) {
	return template.New(id).Funcs(TemplateFuncs).Option("missingkey=error").Parse(text)
}
