package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/loanlens/contract"
)

// SemanticStrategy reads terms by locating concept words in each sentence and
// interpreting the quantities around them. Spelled-out numbers are preferred over
// digits because legal text states the binding amount in words.
type SemanticStrategy struct{}

// Name implements Strategy
func (SemanticStrategy) Name() string { return "semantic" }

const (
	spelledConfidence = 0.85
	digitConfidence   = 0.75
	conceptConfidence = 0.75
)

// concepts maps each field to the folded stems that signal it
var concepts = map[string][]string{
	"principal": {"principal", "loan amount", "amount of", "facility amount", "total amount", "monto", "importe", "suma de",
		"cantidad de", "credito por", "prestamo por", "facility of", "loan of"},
	"rate":         {"interest", "interes", "tasa", "per annum"},
	"notRate":      {"default interest", "moratori", "penalt", "penaliz", "fee", "comision", "prepay", "prepago", "anticipad"},
	"bound":        {"cap", "ceiling", "techo", "floor", "piso", "tasa maxima", "tasa minima", "maximum rate", "minimum rate"},
	"term":         {"term", "tenor", "plazo", "duration", "vigencia", "maturity"},
	"payment":      {"payment", "installment", "instalment", "repa", "pago", "cuota", "amortiz", "payable", "pagader"},
	"grace":        {"grace", "gracia"},
	"balloon":      {"balloon", "final payment", "pago final", "globo"},
	"fee":          {"fee", "commission", "comision", "charge", "cargo", "insurance", "seguro"},
	"prepayment":   {"prepay", "early repayment", "repay early", "prepago", "pago anticipado", "amortizacion anticipada", "anticipadamente"},
	"prohibited":   {"not permitted", "not allowed", "not be permitted", "not be allowed", "prohibited", "shall not", "may not", "no se permite", "no permitira", "no podra", "prohibid", "no esta permitid"},
	"penalty":      {"penalt", "penaliz", "pena ", "premium", "comision", "fee"},
	"default":      {"default", "incumplimiento", "vencimiento anticipado", "causas de vencimiento"},
	"acceleration": {"accelerat", "immediately due and payable", "vencimiento anticipado", "exigible de inmediato", "dar por vencid"},
	"cure":         {"cure", "remedy", "remedied", "subsan", "remediar"},
	"crossDefault": {"cross default", "cross-default", "crossdefault", "incumplimiento cruzado"},
	"negPledge":    {"negative pledge", "no gravar", "abstenerse de gravar", "no constituira gravamen", "no constituir gravamen"},
	"unsecured":    {"unsecured", "without collateral", "without any collateral", "without security", "without guarantee", "sin garantia"},
	"business":     {"engaged in", "dedicated to", "business of", "dedicada a", "dedicado a", "se dedica a", "cuyo giro", "sector", "industry", "industria", "giro"},
}

// guaranteeLexicon groups guarantee kinds by their stems
var guaranteeLexicon = []struct {
	kind  string
	stems []string
}{
	{contract.KindMortgage, []string{"mortgage", "hipoteca", "hipotecaria", "hipotecario"}},
	{contract.KindPledge, []string{"pledge", "prenda", "prendaria", "prendario", "security interest", "garantia mobiliaria"}},
	{contract.KindGuarantor, []string{"guarantor", "personal guarantee", "aval", "fiador", "fianza", "obligado solidario", "obligada solidaria", "joint and several"}},
}

// feeLexicon labels fee lines
var feeLexicon = []struct {
	label string
	stems []string
}{
	{"opening", []string{"opening", "arrangement", "origination", "upfront", "commitment", "apertura", "disposicion"}},
	{"study", []string{"study", "appraisal", "estudio", "analisis", "investigacion"}},
	{"maintenance", []string{"maintenance", "administration", "management", "mantenimiento", "administracion"}},
	{"insurance", []string{"insurance", "seguro"}},
}

// triggerLexicon names events of default, in reporting order
var triggerLexicon = []struct {
	name  string
	stems []string
}{
	{"non_payment", []string{"failure to pay", "non-payment", "nonpayment", "non payment", "payment default", "falta de pago", "impago", "incumplimiento en el pago", "incumplimiento de pago", " mora "}},
	{"insolvency", []string{"insolven", "bankrupt", "concurso mercantil", "quiebra", "liquidation", "liquidacion"}},
	{"covenant_breach", []string{"breach of covenant", "breach of any covenant", "breach of obligation", "breach of any obligation", "incumplimiento de cualquier obligaci", "incumplimiento de las obligaci", "incumplimiento de sus obligaci", "incumplimiento de obligaci"}},
	{"change_of_control", []string{"change of control", "change in control", "cambio de control"}},
	{"misrepresentation", []string{"misrepresentation", "false or misleading", "false statement", "false representation", "incorrect statement", "incorrect representation", "declaracion falsa", "declaraciones falsas", "declaracion incorrecta", "declaraciones incorrectas"}},
	{"cross_default", []string{"cross default", "cross-default", "crossdefault", "incumplimiento cruzado"}},
	{"material_adverse_change", []string{"material adverse change", "material adverse effect", "cambio adverso", "cambio material adverso"}},
	{"judgment", []string{"judgment", "attachment", "embargo", "sentencia"}},
	{"cessation", []string{"cessation of business", "cease to carry on", "cease operations", "cese de operaciones", "cese de actividades", "suspension de actividades"}},
}

// covenantLexicon names financial covenants
var covenantLexicon = []struct {
	metric   string
	operator string
	stems    []string
}{
	{"dscr", ">=", []string{"dscr", "debt service coverage", "cobertura del servicio de la deuda", "cobertura de servicio de deuda", "cobertura del servicio de deuda"}},
	{"leverage", "<=", []string{"debt/ebitda", "debt / ebitda", "debt to ebitda", "leverage ratio", "deuda/ebitda", "deuda / ebitda", "deuda neta/ebitda", "deuda neta / ebitda", "apalancamiento"}},
	{"interest_coverage", ">=", []string{"interest coverage", "ebitda/interest", "ebitda / interest", "ebitda/intereses", "ebitda / intereses", "cobertura de intereses"}},
	{"current_ratio", ">=", []string{"current ratio", "razon circulante", "liquidez corriente"}},
	{"net_worth", ">=", []string{"minimum net worth", "minimum tangible net worth", "capital contable minimo"}},
}

// frequencyLexicon lists periodicity phrases; longer phrases come first so
// "every three months" is not read as "every month"
var frequencyLexicon = []struct {
	freq    contract.Frequency
	phrases []string
}{
	{contract.Quarterly, []string{"every three months", "every 3 months", "cada tres meses", "cada 3 meses", "quarterly",
		"trimestral", "trimestrales", "trimestralmente"}},
	{contract.Semiannual, []string{"every six months", "every 6 months", "twice a year", "cada seis meses", "cada 6 meses",
		"dos veces al ano", "semi-annual", "semi-annually", "semiannual", "semiannually", "semestral", "semestrales", "semestralmente"}},
	{contract.Annual, []string{"once a year", "every year", "each year", "cada ano", "una vez al ano", "annually", "annual",
		"anual", "anuales", "anualmente"}},
	{contract.Monthly, []string{"every month", "each month", "cada mes", "monthly", "mensual", "mensuales", "mensualmente"}},
}

var bulletLexicon = []string{"bullet", "single payment", "single repayment", "lump sum", "pago unico", "una sola exhibicion", "en una sola exhibicion"}
var maturityLexicon = []string{"at maturity", "upon maturity", "al vencimiento"}

var rateIndices = []string{"tiie", "euribor", "libor", "sofr", "prime", "cetes"}

// isWordByte treats hyphens as part of a word so "annual" is not found inside "semi-annual"
func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= 0x80 || b == '-'
}

// indexWord finds w in text as a whole word
func indexWord(text, w string) int {
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], w)
		if j < 0 {
			return -1
		}
		j += i
		end := j + len(w)
		if (j == 0 || !isWordByte(text[j-1])) && (end == len(text) || !isWordByte(text[end])) {
			return j
		}
		i = j + 1
	}
	return -1
}

// hasWord is has for whole words
func hasWord(text string, words ...string) bool {
	for _, w := range words {
		if indexWord(text, w) >= 0 {
			return true
		}
	}
	return false
}

// has reports whether text contains any stem; stems may be word prefixes
func has(text string, stems ...string) bool {
	for _, s := range stems {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// firstIndex returns the earliest position of any stem in text, or -1
func firstIndex(text string, stems ...string) int {
	best := -1
	for _, s := range stems {
		if i := strings.Index(text, s); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

// quantity is a number found in a sentence together with the unit that follows it
type quantity struct {
	value      float64
	start, end int
	spelled    bool
	unit       string
	currency   string
}

var (
	digitNumber    = regexp.MustCompile(`\d{1,3}(?:[,.]\d{3})+(?:[.,]\d+)?|\d+(?:[.,]\d+)?`)
	parenthetical  = regexp.MustCompile(`^\s*\([^)]*\)`)
	closing        = regexp.MustCompile(`^[\s)"”]+`)
	scaleAfter     = regexp.MustCompile(`^\s*(millones|millon|millions|million|thousand|mil)\b`)
	currencyAfter  = regexp.MustCompile(`^\s*(?:de\s+)?(?:u\.?s\.?\s+)?(dollars?|dolares|dolar|usd|pesos?|mxn|euros?|eur)\b`)
	currencyBefore = regexp.MustCompile(`(us\$|u\.s\.\$|mx\$|usd|mxn|eur|€|\$)\s?$`)
	unitAfter      = []struct {
		unit string
		re   *regexp.Regexp
	}{
		{"percent", regexp.MustCompile(`^\s*(?:%|por\s*ciento\b|percent\b|per\s+cent\b)`)},
		{"bps", regexp.MustCompile(`^\s*(?:bps\b|pb\b|p\.b\.|puntos\s+base\b|basis\s+points?\b)`)},
		{"points", regexp.MustCompile(`^\s*(?:puntos\s+porcentuales\b|percentage\s+points?\b|pp\b)`)},
		{"month", regexp.MustCompile(`^\s*(?:months?|meses|mes)\b`)},
		{"year", regexp.MustCompile(`^\s*(?:years?|anos?)\b`)},
		{"day", regexp.MustCompile(`^\s*(?:calendar\s+|business\s+|natural(?:es)?\s+|habiles\s+)?(?:days?|dias?)\b`)},
		{"payment", regexp.MustCompile(`^\s*(?:\p{L}+\s+){0,2}?(?:payments|installments|instalments|pagos|cuotas|amortizaciones|exhibiciones)\b`)},
	}
)

// quantities lists every digit and spelled-out number in s with its unit, in text order
func quantities(s, currency string) []quantity {
	var out []quantity
	for _, m := range digitNumber.FindAllStringIndex(s, -1) {
		v, ok := parseNumeral(s[m[0]:m[1]], true)
		if !ok {
			continue
		}
		q := quantity{value: v, start: m[0], end: m[1]}
		classify(&q, s, currency)
		out = append(out, q)
	}
	for _, w := range wordNumbers(s) {
		q := quantity{value: w.Value, start: w.Start, end: w.End, spelled: true}
		classify(&q, s, currency)
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func classify(q *quantity, s, currency string) {
	after := s[q.end:]
	if len(after) > 80 {
		after = after[:80]
	}
	after = fold(after)
	if q.spelled {
		after = closing.ReplaceAllString(after, " ")
	} else {
		if m := parenthetical.FindString(after); m != "" {
			after = after[len(m):]
		}
		if m := scaleAfter.FindStringSubmatch(after); m != nil {
			q.value *= scaleWords[m[1]]
			after = after[len(m[0]):]
		}
	}
	for _, u := range unitAfter {
		if u.re.MatchString(after) {
			q.unit = u.unit
			return
		}
	}
	if m := currencyAfter.FindStringSubmatch(after); m != nil {
		q.unit = "currency"
		q.currency = currencyCode(m[1])
		return
	}
	before := fold(s[max(0, q.start-8):q.start])
	if m := currencyBefore.FindStringSubmatch(before); m != nil {
		q.unit = "currency"
		if q.currency = currencyCode(m[1]); q.currency == "" {
			q.currency = currency
		}
	}
}

// pick returns the first spelled quantity accepted by ok, or else the first digit one
func pick(qs []quantity, ok func(quantity) bool) (quantity, bool) {
	var digit *quantity
	for i := range qs {
		if !ok(qs[i]) {
			continue
		}
		if qs[i].spelled {
			return qs[i], true
		}
		if digit == nil {
			digit = &qs[i]
		}
	}
	if digit != nil {
		return *digit, true
	}
	return quantity{}, false
}

func confidenceOf(q quantity) float64 {
	if q.spelled {
		return spelledConfidence
	}
	return digitConfidence
}

func unitIs(units ...string) func(quantity) bool {
	return func(q quantity) bool {
		for _, u := range units {
			if q.unit == u {
				return true
			}
		}
		return false
	}
}

// scope is a sentence prepared for concept search
type scope struct {
	sentence
	folded string
	qs     []quantity
}

// at maps a byte offset in the original sentence to the folded text
func (s scope) at(i int) int {
	return len(fold(s.text[:i]))
}

func (s scope) ref(doc Document) *contract.SourceRef {
	return doc.source(s.sentence, s.start, s.start+len(s.text))
}

func (s scope) quantityRef(doc Document, q quantity) *contract.SourceRef {
	return doc.source(s.sentence, s.start+q.start, s.start+q.end)
}

// Extract implements Strategy
func (st SemanticStrategy) Extract(doc Document) Findings {
	currency := documentCurrency(doc.Text)
	sents := doc.sentences()
	scopes := make([]scope, len(sents))
	for i, s := range sents {
		scopes[i] = scope{sentence: s, folded: fold(s.text), qs: quantities(s.text, currency)}
	}

	f := Findings{Strategy: st.Name()}
	f.Principal = st.principal(doc, scopes)
	f.Rate = st.rate(doc, scopes)
	f.TermMonths = st.term(doc, scopes)
	f.Frequency = st.frequency(doc, scopes)
	f.GraceMonths = st.grace(doc, scopes)
	f.PaymentCount = st.paymentCount(doc, scopes)
	f.Balloon = st.balloon(doc, scopes)
	f.Guarantee = st.guarantee(doc, scopes)
	f.Fees = st.fees(doc, scopes)
	f.Prepayment = st.prepayment(doc, scopes)
	f.Default = st.defaultClause(doc, scopes)
	f.SpecialClauses = st.specialClauses(doc, scopes, f.Default)
	f.Lender, f.Borrower = st.parties(doc, scopes)
	f.Jurisdiction = st.jurisdiction(doc, scopes)
	f.Sector = st.sector(doc, scopes)
	return f
}

func (st SemanticStrategy) principal(doc Document, scopes []scope) *contract.Candidate[contract.Money] {
	for _, s := range scopes {
		if !has(s.folded, concepts["principal"]...) || has(s.folded, concepts["fee"]...) ||
			has(s.folded, concepts["balloon"]...) || has(s.folded, concepts["penalty"]...) ||
			!doc.inTranche && hasWord(s.folded, "tranche", "tranches", "tramo", "tramos") {
			continue
		}
		q, ok := pick(s.qs, func(q quantity) bool { return q.unit == "currency" && q.value > 0 })
		if !ok {
			continue
		}
		money := contract.Money{Amount: decimal.NewFromFloat(q.value).Round(2), Currency: q.currency}
		return candidate(st.Name(), money, confidenceOf(q), s.quantityRef(doc, q))
	}
	return nil
}

func (st SemanticStrategy) rate(doc Document, scopes []scope) *contract.Candidate[contract.Rate] {
	for _, s := range scopes {
		if !has(s.folded, concepts["rate"]...) || has(s.folded, concepts["notRate"]...) {
			continue
		}
		if r, q, ok := st.variable(scopes, s); ok {
			return candidate(st.Name(), r, confidenceOf(q), s.ref(doc))
		}
		if hasWord(s.folded, concepts["bound"]...) {
			continue
		}
		q, ok := pick(s.qs, unitIs("percent"))
		if !ok {
			continue
		}
		r := contract.Rate{Annual: q.value / 100, Basis: contract.BasisNominal, Behavior: contract.RateFixed}
		if has(s.folded, "effective", "efectiv") {
			r.Basis = contract.BasisEffective
		}
		return candidate(st.Name(), r, confidenceOf(q), s.quantityRef(doc, q))
	}
	return nil
}

// variable reads an index plus spread formula from s. Caps, floors and resets
// may be stated in any sentence.
func (st SemanticStrategy) variable(scopes []scope, s scope) (contract.Rate, quantity, bool) {
	idx := -1
	var index string
	for _, name := range rateIndices {
		if i := strings.Index(s.folded, name); i >= 0 && (idx < 0 || i < idx) {
			idx, index = i, name
		}
	}
	if idx < 0 {
		return contract.Rate{}, quantity{}, false
	}
	if firstIndex(s.folded[idx:], "+", " plus ", " mas ") < 0 {
		return contract.Rate{}, quantity{}, false
	}

	f := &contract.RateFormula{Index: strings.ToUpper(index)}
	var spread quantity
	found := false
	for _, q := range s.qs {
		switch {
		case q.unit == "day" || q.unit == "month":
			if f.ResetMonths == 0 && !found {
				f.Tenor = s.text[q.start:q.end] + " " + q.unit + "s"
				f.ResetMonths = resetFromTenor(int(q.value), q.unit)
			}
		case !found && (q.unit == "percent" || q.unit == "bps" || q.unit == "points" || q.unit == ""):
			if q.value <= 0 || q.spelled && q.unit == "" {
				continue
			}
			if !spreadCandidate(s, q, idx) {
				continue
			}
			spread, found = q, true
		}
	}
	if !found {
		return contract.Rate{}, quantity{}, false
	}
	unit := ""
	switch spread.unit {
	case "percent", "points":
		unit = "%"
	case "bps":
		unit = "bps"
	}
	f.SpreadBps = spreadBps(spread.value, unit)

	for _, other := range scopes {
		if f.Cap == nil && (hasWord(other.folded, "cap", "ceiling", "techo") || has(other.folded, "tasa maxima", "maximum rate")) {
			if q, ok := pick(other.qs, unitIs("percent")); ok {
				v := q.value / 100
				f.Cap = &v
			}
		}
		if f.Floor == nil && (hasWord(other.folded, "floor", "piso") || has(other.folded, "tasa minima", "minimum rate")) {
			if q, ok := pick(other.qs, unitIs("percent")); ok {
				v := q.value / 100
				f.Floor = &v
			}
		}
		if has(other.folded, "reset", "revised", "adjusted", "revisar", "ajustar", "revision", "ajuste") {
			for _, fl := range frequencyLexicon {
				if hasWord(other.folded, fl.phrases...) {
					f.ResetMonths = 12 / fl.freq.PeriodsPerYear()
					break
				}
			}
		}
	}

	basis := contract.BasisNominal
	if has(s.folded, "effective", "efectiv") {
		basis = contract.BasisEffective
	}
	return contract.Rate{Basis: basis, Behavior: contract.RateVariable, Formula: f}, spread, true
}

// spreadCandidate tells whether q follows the index and a "plus" connector
func spreadCandidate(s scope, q quantity, idx int) bool {
	before := fold(s.text[:q.start])
	if len(before) <= idx {
		return false
	}
	tail := strings.TrimRight(before, " (")
	return strings.HasSuffix(tail, "+") || strings.HasSuffix(tail, "plus") || strings.HasSuffix(tail, "mas") ||
		strings.HasSuffix(tail, "de") && has(before[idx:], "+", " plus ", " mas ")
}

func (st SemanticStrategy) term(doc Document, scopes []scope) *contract.Candidate[int] {
	for _, s := range scopes {
		if !hasWord(s.folded, concepts["term"]...) || has(s.folded, concepts["grace"]...) {
			continue
		}
		q, ok := pick(s.qs, func(q quantity) bool { return (q.unit == "month" || q.unit == "year") && q.value >= 1 })
		if !ok {
			continue
		}
		months := int(q.value)
		if q.unit == "year" {
			months = int(q.value * 12)
		}
		return candidate(st.Name(), months, confidenceOf(q), s.quantityRef(doc, q))
	}
	return nil
}

func (st SemanticStrategy) frequency(doc Document, scopes []scope) *contract.Candidate[contract.Frequency] {
	for _, s := range scopes {
		if has(s.folded, bulletLexicon...) ||
			has(s.folded, maturityLexicon...) && has(s.folded, "principal") && !periodic(s.folded) {
			return candidate(st.Name(), contract.Bullet, 0.8, s.ref(doc))
		}
	}
	for _, s := range scopes {
		pay := firstIndex(s.folded, concepts["payment"]...)
		if pay < 0 {
			continue
		}
		best, dist := contract.Frequency(""), -1
		for _, fl := range frequencyLexicon {
			for _, ph := range fl.phrases {
				i := indexWord(s.folded, ph)
				if i < 0 {
					continue
				}
				d := i - pay
				if d < 0 {
					d = -d
				}
				if dist < 0 || d < dist {
					best, dist = fl.freq, d
				}
			}
		}
		if best != "" && dist <= 60 {
			return candidate(st.Name(), best, 0.8, s.ref(doc))
		}
	}
	return nil
}

// periodic reports whether text names a payment frequency
func periodic(text string) bool {
	for _, fl := range frequencyLexicon {
		if hasWord(text, fl.phrases...) {
			return true
		}
	}
	return hasWord(text, "installments", "cuotas", "amortizaciones")
}

func (st SemanticStrategy) grace(doc Document, scopes []scope) *contract.Candidate[int] {
	for _, s := range scopes {
		if !has(s.folded, concepts["grace"]...) {
			continue
		}
		if q, ok := pick(s.qs, unitIs("month")); ok {
			return candidate(st.Name(), int(q.value), confidenceOf(q), s.quantityRef(doc, q))
		}
	}
	return nil
}

func (st SemanticStrategy) paymentCount(doc Document, scopes []scope) *contract.Candidate[int] {
	for _, s := range scopes {
		if q, ok := pick(s.qs, func(q quantity) bool { return q.unit == "payment" && q.value > 1 }); ok {
			return candidate(st.Name(), int(q.value), confidenceOf(q), s.quantityRef(doc, q))
		}
	}
	return nil
}

func (st SemanticStrategy) balloon(doc Document, scopes []scope) *contract.Candidate[contract.Balloon] {
	for _, s := range scopes {
		if !has(s.folded, concepts["balloon"]...) {
			continue
		}
		if q, ok := pick(s.qs, unitIs("currency")); ok {
			b := contract.Balloon{Amount: decimal.NewFromFloat(q.value).Round(2)}
			return candidate(st.Name(), b, confidenceOf(q), s.quantityRef(doc, q))
		}
	}
	return nil
}

var ordinalRank = []struct {
	rank  int
	words []string
}{
	{1, []string{"first", "1st", "primer", "primera", "1er"}},
	{2, []string{"second", "2nd", "segundo", "segunda"}},
	{3, []string{"third", "3rd", "tercer", "tercera", "3er"}},
}

func (st SemanticStrategy) guarantee(doc Document, scopes []scope) *contract.Candidate[contract.Guarantee] {
	var (
		g     contract.Guarantee
		first *scope
		seen  = map[string]bool{}
	)
	unsecured := false
	for i := range scopes {
		s := &scopes[i]
		text := s.folded
		for _, neg := range concepts["negPledge"] {
			text = strings.ReplaceAll(text, neg, "")
		}
		for _, gl := range guaranteeLexicon {
			if !hasWord(text, gl.stems...) {
				continue
			}
			if !seen[gl.kind] {
				seen[gl.kind] = true
				g.Kinds = append(g.Kinds, gl.kind)
			}
			if first == nil {
				first = s
			}
			ranked := strings.ReplaceAll(text, "-", " ")
			if gl.kind == contract.KindMortgage && g.MortgageRank == 0 && hasWord(ranked, "rank", "ranking", "lien", "priority", "grado", "lugar") {
				for _, o := range ordinalRank {
					if hasWord(ranked, o.words...) {
						g.MortgageRank = o.rank
						break
					}
				}
			}
		}
		if first == nil && has(text, concepts["unsecured"]...) {
			unsecured = true
			first = s
		}
	}
	if first == nil {
		return nil
	}
	if unsecured && len(g.Kinds) == 0 {
		g.Type = contract.GuaranteeNone
	} else {
		g.Type = guaranteeType(g.Kinds)
	}
	g.Detail = strings.TrimSpace(first.text)
	return candidate(st.Name(), g, conceptConfidence, first.ref(doc))
}

func (st SemanticStrategy) fees(doc Document, scopes []scope) *contract.Candidate[[]contract.Fee] {
	var (
		fees  []contract.Fee
		first *scope
		seen  = map[string]bool{}
	)
	for i := range scopes {
		s := &scopes[i]
		if !has(s.folded, concepts["fee"]...) {
			continue
		}
		type mention struct {
			label string
			at    int
		}
		var mentions []mention
		for _, fl := range feeLexicon {
			if at := firstIndex(s.folded, fl.stems...); at >= 0 {
				mentions = append(mentions, mention{fl.label, at})
			}
		}
		sort.Slice(mentions, func(a, b int) bool { return mentions[a].at < mentions[b].at })

		for mi, m := range mentions {
			if seen[m.label] {
				continue
			}
			limit := len(s.folded)
			if mi+1 < len(mentions) {
				limit = mentions[mi+1].at
			}
			var chosen *quantity
			for qi := range s.qs {
				q := &s.qs[qi]
				if pos := s.at(q.start); pos < m.at || pos >= limit {
					continue
				}
				if q.unit == "percent" || (m.label == "insurance" && q.unit == "currency") {
					chosen = q
					break
				}
			}
			if chosen == nil {
				continue
			}
			fee := contract.Fee{Label: m.label, Timing: contract.FeeUpfront}
			if chosen.unit == "percent" {
				if m.label == "insurance" {
					continue
				}
				fee.Kind = contract.FeePercent
				fee.Percent = chosen.value
			} else {
				fee.Kind = contract.FeeFixed
				fee.Amount = decimal.NewFromFloat(chosen.value).Round(2)
			}
			if m.label == "maintenance" || m.label == "insurance" {
				fee.Timing = contract.FeePeriodic
				if has(s.folded, "annual", "per year", "anual", "al ano") {
					fee.Timing = contract.FeeAnnual
				}
			}
			seen[m.label] = true
			fees = append(fees, fee)
			if first == nil {
				first = s
			}
		}
	}
	if first == nil {
		return nil
	}
	return candidate(st.Name(), fees, conceptConfidence, first.ref(doc))
}

func (st SemanticStrategy) prepayment(doc Document, scopes []scope) *contract.Candidate[contract.Prepayment] {
	var (
		pp    = contract.Prepayment{Allowed: true}
		first *scope
	)
	for i := range scopes {
		s := &scopes[i]
		if !has(s.folded, concepts["prepayment"]...) {
			continue
		}
		if first == nil {
			first = s
		}
		if has(s.folded, concepts["prohibited"]...) && !has(s.folded, concepts["penalty"]...) {
			pp.Allowed = false
			pp.PenaltyPct = 0
			first = s
			break
		}
		if pp.PenaltyPct == 0 {
			if q, ok := pick(s.qs, unitIs("percent")); ok {
				pp.PenaltyPct = q.value
				first = s
			}
		}
		if pp.PenaltyMonths == 0 && has(s.folded, "first", "primer") {
			if q, ok := pick(s.qs, unitIs("month")); ok {
				pp.PenaltyMonths = int(q.value)
			}
		}
	}
	if first == nil {
		return nil
	}
	return candidate(st.Name(), pp, conceptConfidence, first.ref(doc))
}

func (st SemanticStrategy) defaultClause(doc Document, scopes []scope) *contract.Candidate[contract.DefaultClause] {
	var (
		d         contract.DefaultClause
		first     *scope
		inSection bool
		hit       = map[string]bool{}
	)
	for i := range scopes {
		s := &scopes[i]
		padded := " " + s.folded + " "
		matched := false
		if has(s.folded, concepts["default"]...) {
			inSection = true
		}
		if has(s.folded, concepts["acceleration"]...) {
			d.Acceleration = true
			matched = true
		}
		if inSection || d.Acceleration {
			for _, t := range triggerLexicon {
				if has(padded, t.stems...) {
					hit[t.name] = true
					matched = true
				}
			}
		}
		if d.CureDays == 0 && has(s.folded, concepts["cure"]...) {
			if q, ok := pick(s.qs, unitIs("day")); ok {
				d.CureDays = int(q.value)
			}
		}
		if matched && first == nil {
			first = s
		}
	}
	if first == nil {
		return nil
	}
	for _, t := range triggerLexicon {
		if hit[t.name] {
			d.Triggers = append(d.Triggers, t.name)
		}
	}
	d.TriggerCount = len(d.Triggers)
	folded := fold(doc.Text)
	if d.Acceleration {
		d.Consequences = append(d.Consequences, "acceleration")
	}
	if has(folded, "default interest", "intereses moratorios", "interes moratorio") {
		d.Consequences = append(d.Consequences, "default_interest")
	}
	if has(folded, "enforce the collateral", "enforce the security", "enforce the guarantee", "enforce collateral", "ejecutar la garantia", "ejecutar las garantias", "ejecucion de la garantia") {
		d.Consequences = append(d.Consequences, "collateral_enforcement")
	}
	return candidate(st.Name(), d, conceptConfidence, first.ref(doc))
}

func (st SemanticStrategy) specialClauses(doc Document, scopes []scope, def *contract.Candidate[contract.DefaultClause]) *contract.Candidate[[]contract.SpecialClause] {
	var (
		clauses []contract.SpecialClause
		src     *contract.SourceRef
		seen    = map[string]bool{}
	)
	add := func(ref *contract.SourceRef, c contract.SpecialClause) {
		key := string(c.Kind) + "/" + c.Metric
		if seen[key] {
			return
		}
		seen[key] = true
		clauses = append(clauses, c)
		if src == nil {
			src = ref
		}
	}
	for _, s := range scopes {
		detail := strings.TrimSpace(s.text)
		if has(s.folded, concepts["crossDefault"]...) {
			add(s.ref(doc), contract.SpecialClause{Kind: contract.ClauseCrossDefault, Detail: detail})
		}
		if has(s.folded, concepts["negPledge"]...) {
			add(s.ref(doc), contract.SpecialClause{Kind: contract.ClauseNegativePledge, Detail: detail})
		}
		for _, cv := range covenantLexicon {
			at := firstIndex(s.folded, cv.stems...)
			if at < 0 {
				continue
			}
			c := contract.SpecialClause{Kind: contract.ClauseCovenant, Detail: detail, Metric: cv.metric, Operator: cv.operator}
			for _, q := range s.qs {
				if s.at(q.start) >= at && !q.spelled {
					c.Threshold = q.value
					break
				}
			}
			add(s.ref(doc), c)
		}
	}
	if def != nil && def.Value.Acceleration {
		add(def.Source, contract.SpecialClause{Kind: contract.ClauseAcceleration, Detail: def.Source.Snippet})
	}
	if len(clauses) == 0 {
		return nil
	}
	return candidate(st.Name(), clauses, conceptConfidence, src)
}

const nameChain = `[\p{Lu}][\p{L}\d.&'-]*(?:,?\s+(?:[\p{Lu}][\p{L}\d.&'-]*|de|del|la|y|and|of))*`

var (
	partyRe = regexp.MustCompile(`(` + nameChain + `),?\s*\((?i:(?:in\s+)?(?:the\s+|el\s+|la\s+|en\s+lo\s+sucesivo\s+(?:el\s+|la\s+)?)?)["“]?` +
		`(?i:(lender|borrower|prestamista|prestatario|acreditante|acreditad[oa]))["”]?\)`)
	courtRe = regexp.MustCompile(`(?i:jurisdiction\s+of|jurisdicci[oó]n\s+de|courts\s+(?:of|in)|tribunales\s+(?:competentes\s+)?(?:de|en))\s+(?i:(?:the|la|el)\s+)?(` +
		`[\p{Lu}][\p{L}]*(?:\s+(?:[\p{Lu}][\p{L}]*|de|del))*)`)
)

func (st SemanticStrategy) parties(doc Document, scopes []scope) (lender, borrower *contract.Candidate[string]) {
	for _, s := range scopes {
		for _, m := range partyRe.FindAllStringSubmatchIndex(s.text, -1) {
			name := strings.TrimRight(strings.TrimSpace(s.text[m[2]:m[3]]), ",")
			ref := doc.source(s.sentence, s.start+m[2], s.start+m[3])
			switch fold(s.text[m[4]:m[5]]) {
			case "lender", "prestamista", "acreditante":
				if lender == nil {
					lender = candidate(st.Name(), name, 0.8, ref)
				}
			default:
				if borrower == nil {
					borrower = candidate(st.Name(), name, 0.8, ref)
				}
			}
		}
	}
	return lender, borrower
}

func (st SemanticStrategy) jurisdiction(doc Document, scopes []scope) *contract.Candidate[string] {
	for _, s := range scopes {
		if m := courtRe.FindStringSubmatchIndex(s.text); m != nil {
			v := strings.TrimSpace(s.text[m[2]:m[3]])
			return candidate(st.Name(), v, 0.7, doc.source(s.sentence, s.start+m[2], s.start+m[3]))
		}
	}
	return nil
}

func (st SemanticStrategy) sector(doc Document, scopes []scope) *contract.Candidate[string] {
	aliases := make([]string, 0, len(sectorAliases))
	for a := range sectorAliases {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	for _, s := range scopes {
		at := -1
		for _, stem := range concepts["business"] {
			if i := indexWord(s.folded, stem); i >= 0 && (at < 0 || i+len(stem) < at) {
				at = i + len(stem)
			}
		}
		if at < 0 {
			continue
		}
		best, pos := "", -1
		for _, a := range aliases {
			i := indexWord(s.folded[at:], a)
			if i >= 0 && (pos < 0 || i < pos) {
				best, pos = sectorAliases[a], i
			}
		}
		if best != "" {
			return candidate(st.Name(), best, 0.7, s.ref(doc))
		}
	}
	return nil
}
