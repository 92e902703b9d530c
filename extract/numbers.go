package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var accents = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ñ", "n",
)

// fold lowercases and strips Spanish diacritics so lexicon lookups match either spelling
func fold(s string) string {
	return accents.Replace(strings.ToLower(s))
}

// parseNumeral reads a digit string with thousands and decimal separators in either
// convention. A lone separator followed by exactly three digits is a thousands
// separator when thousands is true.
func parseNumeral(s string, thousands bool) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	var intPart, fracPart string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec := lastDot
		sep := ","
		if lastComma > lastDot {
			dec = lastComma
			sep = "."
		}
		intPart = strings.ReplaceAll(s[:dec], sep, "")
		fracPart = s[dec+1:]
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep = ","
			idx = lastComma
		}
		tail := s[idx+1:]
		if strings.Count(s, sep) > 1 || (thousands && len(tail) == 3) {
			intPart = strings.ReplaceAll(s, sep, "")
		} else {
			intPart = s[:idx]
			fracPart = tail
		}
	default:
		intPart = s
	}

	num := intPart
	if fracPart != "" {
		num += "." + fracPart
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// scale words that may follow a numeral, as in "1.5 million"
var scaleWords = map[string]float64{
	"thousand": 1e3,
	"mil":      1e3,
	"million":  1e6,
	"millions": 1e6,
	"millon":   1e6,
	"millones": 1e6,
	"billion":  1e9,
}

var units = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15, "sixteen": 16,
	"seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,

	"cero": 0, "un": 1, "uno": 1, "una": 1, "dos": 2, "tres": 3, "cuatro": 4, "cinco": 5, "seis": 6, "siete": 7,
	"ocho": 8, "nueve": 9, "diez": 10, "once": 11, "doce": 12, "trece": 13, "catorce": 14, "quince": 15,
	"dieciseis": 16, "diecisiete": 17, "dieciocho": 18, "diecinueve": 19, "veinte": 20, "veintiun": 21,
	"veintiuno": 21, "veintiuna": 21, "veintidos": 22, "veintitres": 23, "veinticuatro": 24, "veinticinco": 25,
	"veintiseis": 26, "veintisiete": 27, "veintiocho": 28, "veintinueve": 29, "treinta": 30, "cuarenta": 40,
	"cincuenta": 50, "sesenta": 60, "setenta": 70, "ochenta": 80, "noventa": 90,
	"cien": 100, "ciento": 100, "doscientos": 200, "doscientas": 200, "trescientos": 300, "trescientas": 300,
	"cuatrocientos": 400, "cuatrocientas": 400, "quinientos": 500, "quinientas": 500, "seiscientos": 600,
	"seiscientas": 600, "setecientos": 700, "setecientas": 700, "ochocientos": 800, "ochocientas": 800,
	"novecientos": 900, "novecientas": 900,
}

var (
	tokenPattern = regexp.MustCompile(`\p{L}+`)
	gapPattern   = regexp.MustCompile(`^[\s\-]+$`)
)

type token struct {
	word       string
	start, end int
}

func tokenize(s string) []token {
	locs := tokenPattern.FindAllStringIndex(s, -1)
	out := make([]token, len(locs))
	for i, l := range locs {
		out[i] = token{word: fold(s[l[0]:l[1]]), start: l[0], end: l[1]}
	}
	return out
}

// wordNumber is a spelled-out number found in text
type wordNumber struct {
	Value      float64
	Start, End int
}

// wordNumbers finds every maximal run of spelled-out number words in s, in English or Spanish.
// "one million fifty thousand" is 1050000; "doce punto cinco" is 12.5.
func wordNumbers(s string) []wordNumber {
	toks := tokenize(s)
	var out []wordNumber
	for i := 0; i < len(toks); {
		n, v := readNumber(s, toks[i:])
		if n == 0 {
			i++
			continue
		}
		out = append(out, wordNumber{Value: v, Start: toks[i].start, End: toks[i+n-1].end})
		i += n
	}
	return out
}

func adjacent(s string, a, b token) bool {
	return gapPattern.MatchString(s[a.end:b.start])
}

func isUnit(toks []token, j int) bool {
	if j >= len(toks) {
		return false
	}
	_, ok := units[toks[j].word]
	return ok
}

// readNumber consumes the longest number phrase at the start of toks and returns
// how many tokens it used
func readNumber(s string, toks []token) (int, float64) {
	var (
		total, current float64
		fraction       string
		consumed       int
		inFraction     bool
	)
	seen := func() bool { return consumed > 0 }

	for j := 0; j < len(toks); j++ {
		if j > 0 && !adjacent(s, toks[j-1], toks[j]) {
			break
		}
		w := toks[j].word

		if inFraction {
			v, ok := units[w]
			if !ok || v > 9 {
				break
			}
			fraction += strconv.Itoa(int(v))
			consumed = j + 1
			continue
		}

		if v, ok := units[w]; ok {
			current += v
			consumed = j + 1
			continue
		}

		switch {
		case w == "hundred" && seen():
			current *= 100
		case w == "thousand" || w == "mil":
			if current == 0 {
				current = 1
			}
			total += current * 1e3
			current = 0
		case w == "million" || w == "millions" || w == "millon" || w == "millones":
			if current == 0 && total == 0 {
				current = 1
			}
			total = (total + current) * 1e6
			current = 0
		case w == "billion":
			if current == 0 && total == 0 {
				current = 1
			}
			total = (total + current) * 1e9
			current = 0
		case (w == "point" || w == "punto" || w == "coma") && seen() && isUnit(toks, j+1):
			inFraction = true
			continue
		case (w == "and" || w == "y") && seen():
			if isUnit(toks, j+1) && adjacent(s, toks[j], toks[j+1]) {
				continue
			}
			if j+1 < len(toks) && (toks[j+1].word == "medio" || toks[j+1].word == "media") {
				current += 0.5
				consumed = j + 2
				j++
				continue
			}
			if j+2 < len(toks) && toks[j+1].word == "a" && toks[j+2].word == "half" {
				current += 0.5
				consumed = j + 3
				j += 2
				continue
			}
			return finish(consumed, total, current, fraction)
		default:
			return finish(consumed, total, current, fraction)
		}
		consumed = j + 1
	}
	return finish(consumed, total, current, fraction)
}

func finish(consumed int, total, current float64, fraction string) (int, float64) {
	if consumed == 0 {
		return 0, 0
	}
	v := total + current
	if fraction != "" {
		f, _ := strconv.ParseFloat("0."+fraction, 64)
		v += f
	}
	return consumed, v
}
