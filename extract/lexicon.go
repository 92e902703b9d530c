package extract

import (
	"regexp"
	"strings"

	"github.com/liamcoop/loanlens/contract"
)

// currencyCode maps a currency symbol or word to its ISO code. "$" alone is resolved by the caller.
func currencyCode(s string) string {
	switch fold(strings.TrimSpace(s)) {
	case "usd", "us$", "u.s.$", "dollars", "dollar", "dolares", "dolar":
		return "USD"
	case "mxn", "mx$", "pesos", "peso":
		return "MXN"
	case "eur", "€", "euros", "euro":
		return "EUR"
	}
	return ""
}

var (
	mxnHint = regexp.MustCompile(`(?i)\bMXN\b|\bpesos?\b|moneda\s+nacional`)
	eurHint = regexp.MustCompile(`(?i)\bEUR\b|€|\beuros?\b`)
)

// documentCurrency decides what a bare "$" means in this document
func documentCurrency(text string) string {
	switch {
	case mxnHint.MatchString(text):
		return "MXN"
	case eurHint.MatchString(text):
		return "EUR"
	default:
		return "USD"
	}
}

var sectorAliases = map[string]string{
	"manufacturing": "manufacturing", "manufactura": "manufacturing", "manufacturera": "manufacturing",
	"industrial": "manufacturing",
	"services": "services", "service": "services", "servicios": "services",
	"agriculture": "agriculture", "agricultura": "agriculture", "agropecuario": "agriculture",
	"agropecuaria": "agriculture", "agribusiness": "agriculture", "agroindustria": "agriculture",
	"real estate": "real_estate", "inmobiliario": "real_estate", "inmobiliaria": "real_estate",
	"construction": "real_estate", "construccion": "real_estate",
	"retail": "commerce", "commerce": "commerce", "comercio": "commerce", "commercial": "commerce",
	"technology": "technology", "tecnologia": "technology", "software": "technology",
}

// normalizeSector maps a sector description to the market table's vocabulary
func normalizeSector(s string) string {
	key := strings.TrimSpace(fold(s))
	if v, ok := sectorAliases[key]; ok {
		return v
	}
	for alias, v := range sectorAliases {
		if strings.Contains(key, alias) && len(alias) > 5 {
			return v
		}
	}
	return strings.ReplaceAll(key, " ", "_")
}

// spreadBps converts a stated spread to basis points. Without a unit, values under 10
// are read as percentage points.
func spreadBps(value float64, unit string) float64 {
	u := fold(strings.TrimSpace(unit))
	switch {
	case u == "":
		if value < 10 {
			return value * 100
		}
		return value
	case strings.HasPrefix(u, "%"), strings.Contains(u, "porcentual"), strings.Contains(u, "percentage"), u == "pp":
		return value * 100
	default:
		return value
	}
}

// resetFromTenor derives the reset period from an index tenor such as "28 days" or "3M"
func resetFromTenor(n int, unit string) int {
	u := fold(unit)
	if strings.HasPrefix(u, "d") {
		switch {
		case n <= 31:
			return 1
		case n <= 92:
			return 3
		case n <= 182:
			return 6
		default:
			return 12
		}
	}
	if n > 0 {
		return n
	}
	return 0
}

// frequencyWord maps an adjective such as "quarterly" or "mensuales" to a frequency
func frequencyWord(w string) (contract.Frequency, bool) {
	w = fold(w)
	switch {
	case strings.HasPrefix(w, "semi"), strings.HasPrefix(w, "semestral"):
		return contract.Semiannual, true
	case strings.HasPrefix(w, "month"), strings.HasPrefix(w, "mensual"):
		return contract.Monthly, true
	case strings.HasPrefix(w, "quarter"), strings.HasPrefix(w, "trimestral"):
		return contract.Quarterly, true
	case strings.HasPrefix(w, "annual"), strings.HasPrefix(w, "anual"), w == "yearly":
		return contract.Annual, true
	}
	return "", false
}

// guaranteeType classifies a set of guarantee kinds
func guaranteeType(kinds []string) contract.GuaranteeType {
	var real, personal bool
	for _, k := range kinds {
		switch k {
		case contract.KindMortgage, contract.KindPledge:
			real = true
		case contract.KindGuarantor:
			personal = true
		}
	}
	switch {
	case real && personal:
		return contract.GuaranteeMixed
	case real:
		return contract.GuaranteeReal
	case personal:
		return contract.GuaranteePersonal
	default:
		return contract.GuaranteeNone
	}
}

// rankWords maps ordinal words to a mortgage rank
var rankWords = map[string]int{
	"first": 1, "1st": 1, "primer": 1, "primero": 1, "primera": 1, "1": 1,
	"second": 2, "2nd": 2, "segundo": 2, "segunda": 2, "2": 2,
	"third": 3, "3rd": 3, "tercer": 3, "tercero": 3, "tercera": 3, "3": 3,
}
