package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/loanlens/contract"
)

// PatternStrategy reads terms with a catalogue of canonical expressions in English and Spanish
type PatternStrategy struct{}

// Name implements Strategy
func (PatternStrategy) Name() string { return "pattern" }

const (
	// aside skips a spelled-out restatement such as "60 (sixty) months"
	aside        = `(?:\([^)]*\)\s*)?`
	amountNumber = `\d{1,3}(?:[,.]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d+)?`
	amountScale  = `(?:\s*(millones|mill[oó]n|million|thousand|mil)\b)?`
)

var (
	amountPattern = regexp.MustCompile(`(?i)(US\$|U\.S\.\$|MX\$|USD|MXN|EUR|€|\$)\s?(` + amountNumber + `)` + amountScale +
		`|(` + amountNumber + `)` + amountScale + `\s*(USD|MXN|EUR|euros?|pesos?|d[oó]lares|dollars)\b`)

	principalKeyword = regexp.MustCompile(`(?i)\b(?:principal|loan amount|amount of the loan|facility amount|credit amount|` +
		`total amount|sum of|monto|importe|cantidad|l[ií]nea de cr[eé]dito|cr[eé]dito por|pr[eé]stamo por|suma de)\b`)
	notPrincipal = regexp.MustCompile(`(?i)\b(?:fee|comisi[oó]n|insurance|seguro|penalty|pena|balloon|globo|pago final|final payment)\b`)
	trancheWord  = regexp.MustCompile(`(?i)\b(?:tranche|tramo)s?\b`)

	rateKeyword = regexp.MustCompile(`(?i)\binterest\b|\btasa\b|\binter[eé]s(?:es)?\b|per\s+annum|\bfixed\s+rate\b`)
	notRate     = regexp.MustCompile(`(?i)default interest|moratori|penalt|penaliz|\bfees?\b|comisi[oó]n|prepay|prepago|anticipad`)
	percentRe   = regexp.MustCompile(`(?i)\b(\d{1,2}(?:[.,]\d{1,4})?)\s*(?:%|por\s+ciento\b|percent\b|per\s+cent\b)`)
	effectiveRe = regexp.MustCompile(`(?i)\beffective\b|\befectiv[ao]\b`)
	variableRe  = regexp.MustCompile(`(?i)\b(TIIE|EURIBOR|LIBOR|SOFR|PRIME|CETES)\b(?:\s*(?:a\s+)?(\d{1,3})\s*(d[ií]as|days|meses|months?|D|M)\b)?` +
		`[^.\n+]{0,20}?(?:\+|\bplus\b|\bm[aá]s\b)\s*(\d+(?:[.,]\d+)?)\s*(%|bps|pb|p\.b\.|puntos\s+base|basis\s+points|puntos\s+porcentuales|percentage\s+points|pp)?`)
	capRe   = regexp.MustCompile(`(?i)\b(?:cap|ceiling|techo|tasa m[aá]xima|maximum rate)\b[^%\d]{0,30}(\d+(?:[.,]\d+)?)\s*%`)
	floorRe = regexp.MustCompile(`(?i)\b(?:floor|piso|tasa m[ií]nima|minimum rate)\b[^%\d]{0,30}(\d+(?:[.,]\d+)?)\s*%`)
	resetRe = regexp.MustCompile(`(?i)(?:reset|revised|adjusted|revisar[aá]|ajustar[aá]|revisi[oó]n|ajuste)[^.\n]{0,30}?` +
		`\b(monthly|quarterly|semi-?annually|annually|mensual(?:mente)?|trimestral(?:mente)?|semestral(?:mente)?|anual(?:mente)?|every\s+(\d+)\s+months|cada\s+(\d+)\s+meses)`)

	termKeyword  = regexp.MustCompile(`(?i)\b(?:term|tenor|plazo|duration|vigencia|maturity)\b[^.\n]{0,60}?\b(\d{1,3})\s*` + aside + `(months?|meses|mes|years?|a[ñn]os?)\b`)
	termFallback = regexp.MustCompile(`(?i)\b(\d{1,3})\s*` + aside + `(months|meses|years|a[ñn]os)\b`)
	notTerm      = regexp.MustCompile(`(?i)grace|gracia|prepay|prepago|anticipad|penalt|within|primeros|first|cure|subsan|d[ií]as|days|tranche|tramo`)

	frequencyWords = `(monthly|quarterly|semi-?annual(?:ly)?|annual(?:ly)?|yearly|mensual(?:es|mente)?|trimestral(?:es|mente)?|semestral(?:es|mente)?|anual(?:es|mente)?)`
	paymentNouns   = `(?:payments?|installments?|instalments?|pagos?|cuotas?|amortizaciones|exhibiciones)`
	frequencyRe    = regexp.MustCompile(`(?i)\b` + paymentNouns + `\s+(?:\p{L}+\s+){0,3}?` + frequencyWords + `\b` +
		`|\b` + frequencyWords + `\s+(?:\p{L}+\s+){0,2}?` + paymentNouns + `\b` +
		`|\b(?:repaid|repayable|payable|pagadero|pagaderos|pagar[aá]n?)\s+(?:\p{L}+\s+){0,3}?` + frequencyWords + `\b`)
	bulletRe = regexp.MustCompile(`(?i)\bbullet\b|single\s+(?:re)?payment\s+(?:of\s+principal\s+)?at\s+maturity|` +
		`principal\s+(?:is\s+|shall\s+be\s+)?(?:re)?pa(?:id|yable)\s+(?:in\s+full\s+)?at\s+maturity|pago\s+[uú]nico|una\s+sola\s+exhibici[oó]n`)

	graceRe = regexp.MustCompile(`(?i)(?:grace\s+period|per[ií]odo\s+de\s+gracia)[^.\n]{0,40}?(\d{1,2})\s*` + aside + `(?:months?|meses)` +
		`|(\d{1,2})[\s-]*` + aside + `(?:months?|meses)\s+(?:of\s+)?(?:grace|de\s+gracia)`)
	paymentCountRe = regexp.MustCompile(`(?i)\b(\d{1,3})\s+` + aside + `(?:consecutive\s+|equal\s+|successive\s+)?(?:monthly\s+|quarterly\s+|semi-?annual\s+|annual\s+)?` +
		`(?:installments|instalments|payments|amortizations)\b|\b(\d{1,3})\s+` + aside + `(?:pagos|amortizaciones|cuotas|exhibiciones)\b`)
	balloonRe = regexp.MustCompile(`(?i)\bballoon\b|\bfinal\s+payment\b|\bpago\s+final\b|\bglobo\b`)

	mortgageRe  = regexp.MustCompile(`(?i)\bmortgage\b|\bhipoteca(?:ria)?\b|garant[ií]a\s+hipotecaria`)
	rankRe      = regexp.MustCompile(`(?i)\b(first|second|third|1st|2nd|3rd|primer[oa]?|segund[oa]|tercer[oa]?)[\s-]+(?:rank(?:ing)?|lien|priority|grado|lugar)\b|(?:en|de)\s+(primer|segundo|tercer)\s+(?:grado|lugar)|\b([123])\s*(?:º|°|er|do|ro|st|nd|rd)\s*(?:grado|lugar|rank|lien)`)
	pledgeRe    = regexp.MustCompile(`(?i)\bpledge\b|\bprendari[oa]\b|\bprenda\b|security\s+interest|chattel\s+mortgage`)
	negPledgeRe = regexp.MustCompile(`(?i)negative\s+pledge|pledge\s+of\s+negativ|no\s+gravar|abstenerse\s+de\s+gravar|no\s+constituir[aá]\s+grav[aá]men`)
	guarantorRe = regexp.MustCompile(`(?i)personal\s+guarantee|\bguarantor\b|joint\s+and\s+several|\baval(?:ista)?\b|\bfiador\b|\bfianza\b|obligad[oa]\s+solidari[oa]`)
	unsecuredRe = regexp.MustCompile(`(?i)\bunsecured\b|without\s+(?:any\s+)?(?:collateral|security|guarantee)|sin\s+garant[ií]a`)
	guaranteeKw = regexp.MustCompile(`(?i)\bguarantee|\bcollateral\b|\bsecurity\b|\bsecured\b|garant[ií]a`)

	openingFeeRe     = regexp.MustCompile(`(?i)(?:opening|arrangement|origination|upfront|commitment|apertura|disposici[oó]n)\s+(?:fee|commission|comisi[oó]n)?[^.\n%]{0,40}?(\d+(?:[.,]\d+)?)\s*%|comisi[oó]n\s+(?:por\s+|de\s+)?(?:apertura|disposici[oó]n)[^.\n%]{0,40}?(\d+(?:[.,]\d+)?)\s*%`)
	studyFeeRe       = regexp.MustCompile(`(?i)(?:study|appraisal|an[aá]lisis|estudio|investigaci[oó]n)\s+(?:de\s+cr[eé]dito\s+)?(?:fee|commission|comisi[oó]n)?[^.\n%]{0,30}?(\d+(?:[.,]\d+)?)\s*%|comisi[oó]n\s+por\s+(?:estudio|an[aá]lisis)[^.\n%]{0,40}?(\d+(?:[.,]\d+)?)\s*%`)
	maintenanceFeeRe = regexp.MustCompile(`(?i)(?:maintenance|administration|management|mantenimiento|administraci[oó]n)\s+(?:fee|commission|comisi[oó]n)?[^.\n%]{0,40}?(\d+(?:[.,]\d+)?)\s*%|comisi[oó]n\s+(?:por\s+|de\s+)?(?:mantenimiento|administraci[oó]n)[^.\n%]{0,40}?(\d+(?:[.,]\d+)?)\s*%`)
	insuranceRe      = regexp.MustCompile(`(?i)\binsurance\b|\bseguro\b|\bprima\b`)
	annualWordRe     = regexp.MustCompile(`(?i)\bannual(?:ly)?\b|\bper\s+year\b|\banual(?:mente)?\b|\bal\s+a[ñn]o\b`)

	prepaymentKw = regexp.MustCompile(`(?i)prepay|early\s+repayment|repay\s+early|prepago|pago\s+anticipado|amortizaci[oó]n\s+anticipada|anticipadamente`)
	prohibitedRe = regexp.MustCompile(`(?i)not\s+(?:be\s+)?(?:permitted|allowed)|prohibited|shall\s+not|may\s+not|no\s+(?:se\s+)?(?:permite|permitir[aá]|podr[aá])|prohibid[oa]|no\s+est[aá]\s+permitid[oa]`)
	penaltyKw    = regexp.MustCompile(`(?i)penalt|penaliz|\bpena\b|premium|\bprima\b|comisi[oó]n|\bfees?\b`)
	firstMonths  = regexp.MustCompile(`(?i)(?:first|within\s+the\s+first|during\s+the\s+first|primeros?|dentro\s+de\s+los\s+primeros)\s+(\d{1,3})\s*(?:months|meses)`)

	accelerationRe = regexp.MustCompile(`(?i)accelerat|immediately\s+due\s+and\s+payable|vencimiento\s+anticipado|exigible\s+de\s+inmediato|dar\s+por\s+vencid`)
	cureRe         = regexp.MustCompile(`(?i)(?:cure|remed(?:y|ied)|subsan\p{L}*|remediar)[^.\n]{0,60}?(\d{1,3})\s*(?:calendar\s+|business\s+|natural(?:es)?\s+|h[aá]biles\s+)?(?:days|d[ií]as)` +
		`|(\d{1,3})\s*(?:calendar\s+|business\s+)?(?:days|d[ií]as)\s+(?:to\s+(?:cure|remedy)|(?:para|de)\s+subsanar)`)
	defaultInterestRe = regexp.MustCompile(`(?i)default\s+interest|inter[eé]s(?:es)?\s+moratori`)
	enforcementRe     = regexp.MustCompile(`(?i)enforce\p{L}*\s+(?:the\s+)?(?:collateral|security|guarantee)|ejecu\p{L}+\s+(?:la\s+|las\s+)?garant[ií]a`)
	crossDefaultRe    = regexp.MustCompile(`(?i)cross[\s-]*default|incumplimiento\s+cruzado`)

	lenderRe       = regexp.MustCompile(`(?i)\b(?:LENDER|PRESTAMISTA|ACREDITANTE|BANK|BANCO)\s*:\s*([^,\n;]+)`)
	borrowerRe     = regexp.MustCompile(`(?i)\b(?:BORROWER|PRESTATARIO|ACREDITAD[OA]|DEUDOR)\s*:\s*([^,\n;]+)`)
	jurisdictionRe = regexp.MustCompile(`(?i)(?:courts\s+of|tribunales\s+(?:competentes\s+)?de|governed\s+by\s+the\s+laws?\s+of|leyes\s+(?:vigentes\s+)?de)\s+(?:the\s+|la\s+|el\s+)?([\p{L} ]+?)(?:[,.;\n]|$)`)
	sectorRe       = regexp.MustCompile(`(?i)\b(?:sector|industry|industria|giro|actividad(?:\s+econ[oó]mica|\s+principal)?)\s*:\s*([\p{L} ]+)`)
)

// defaultTriggers is the catalogue of events of default, in reporting order
var defaultTriggers = []struct {
	name string
	re   *regexp.Regexp
}{
	{"non_payment", regexp.MustCompile(`(?i)failure\s+to\s+pay|non-?payment|payment\s+default|falta\s+de\s+pago|\bimpago\b|incumplimiento\s+(?:en\s+el|de)\s+pago|\bmora\b`)},
	{"insolvency", regexp.MustCompile(`(?i)insolven|bankrupt|concurso\s+mercantil|\bquiebra\b|\bliquidation\b|\bliquidaci[oó]n\b`)},
	{"covenant_breach", regexp.MustCompile(`(?i)breach\s+of\s+(?:any\s+)?(?:covenant|obligation)|incumplimiento\s+de\s+(?:cualquier|las|sus)?\s*(?:obligaci|covenant)`)},
	{"change_of_control", regexp.MustCompile(`(?i)change\s+(?:of|in)\s+control|cambio\s+de\s+control`)},
	{"misrepresentation", regexp.MustCompile(`(?i)misrepresentation|false\s+or\s+misleading|(?:false|incorrect)\s+(?:statement|representation)|declaraci[oó]n(?:es)?\s+(?:falsa|incorrecta)`)},
	{"cross_default", crossDefaultRe},
	{"material_adverse_change", regexp.MustCompile(`(?i)material\s+adverse\s+(?:change|effect)|cambio\s+(?:material\s+)?adverso`)},
	{"judgment", regexp.MustCompile(`(?i)\bjudgments?\b|\battachment\b|\bembargo\b|\bsentencia\b`)},
	{"cessation", regexp.MustCompile(`(?i)cessation\s+of\s+business|cease\s+(?:to\s+carry\s+on|operations)|cese\s+de\s+(?:operaciones|actividades)|suspensi[oó]n\s+de\s+actividades`)},
}

var defaultSection = regexp.MustCompile(`(?i)events?\s+of\s+default|default|incumplimiento|causas?\s+de\s+vencimiento|vencimiento\s+anticipado`)

// covenantCatalogue lists the financial covenants recognised as special clauses
var covenantCatalogue = []struct {
	metric   string
	operator string
	re       *regexp.Regexp
}{
	{"dscr", ">=", regexp.MustCompile(`(?i)\b(?:DSCR|debt\s+service\s+coverage(?:\s+ratio)?|cobertura\s+(?:del\s+)?servicio\s+de\s+(?:la\s+)?deuda)\b[^.\n\d]{0,40}?(\d+(?:[.,]\d+)?)`)},
	{"leverage", "<=", regexp.MustCompile(`(?i)(?:(?:net\s+)?debt\s*/\s*EBITDA|leverage\s+ratio|deuda(?:\s+neta)?\s*/\s*EBITDA|apalancamiento)[^.\n\d]{0,40}?(\d+(?:[.,]\d+)?)`)},
	{"interest_coverage", ">=", regexp.MustCompile(`(?i)(?:interest\s+coverage(?:\s+ratio)?|EBITDA\s*/\s*(?:interest|intereses)|cobertura\s+de\s+intereses)[^.\n\d]{0,40}?(\d+(?:[.,]\d+)?)`)},
	{"current_ratio", ">=", regexp.MustCompile(`(?i)(?:current\s+ratio|raz[oó]n\s+circulante|liquidez\s+corriente)[^.\n\d]{0,40}?(\d+(?:[.,]\d+)?)`)},
	{"net_worth", ">=", regexp.MustCompile(`(?i)(?:minimum\s+(?:tangible\s+)?net\s+worth|capital\s+contable\s+m[ií]nimo)`)},
}

// Extract implements Strategy
func (p PatternStrategy) Extract(doc Document) Findings {
	sents := doc.sentences()
	currency := documentCurrency(doc.Text)
	f := Findings{Strategy: p.Name()}

	f.Principal = p.principal(doc, sents, currency)
	f.Rate = p.rate(doc, sents)
	f.TermMonths = p.term(doc, sents)
	f.Frequency = p.frequency(doc, sents)
	f.GraceMonths = p.grace(doc, sents)
	f.PaymentCount = p.paymentCount(doc, sents)
	f.Balloon = p.balloon(doc, sents, currency)
	f.Guarantee = p.guarantee(doc, sents)
	f.Fees = p.fees(doc, sents, currency)
	f.Prepayment = p.prepayment(doc, sents)
	f.Default = p.defaultClause(doc, sents)
	f.SpecialClauses = p.specialClauses(doc, sents, f.Default)
	f.Lender = p.label(doc, sents, lenderRe)
	f.Borrower = p.label(doc, sents, borrowerRe)
	f.Jurisdiction = p.label(doc, sents, jurisdictionRe)
	if c := p.label(doc, sents, sectorRe); c != nil {
		c.Value = normalizeSector(c.Value)
		f.Sector = c
	}
	return f
}

// parseAmount reads one amountPattern match
func parseAmount(s string, m []int, fallback string) (contract.Money, bool) {
	group := func(i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return s[m[2*i]:m[2*i+1]]
	}
	sym, num, scale := group(1), group(2), group(3)
	if num == "" {
		num, scale, sym = group(4), group(5), group(6)
	}
	v, ok := parseNumeral(num, true)
	if !ok {
		return contract.Money{}, false
	}
	if scale != "" {
		v *= scaleWords[fold(scale)]
	}
	code := currencyCode(sym)
	if code == "" {
		code = fallback
	}
	return contract.Money{Amount: decimal.NewFromFloat(v).Round(2), Currency: code}, true
}

func (p PatternStrategy) principal(doc Document, sents []sentence, currency string) *contract.Candidate[contract.Money] {
	skip := func(s sentence) bool {
		return notPrincipal.MatchString(s.text) || !doc.inTranche && trancheWord.MatchString(s.text)
	}
	for _, s := range sents {
		kw := principalKeyword.FindStringIndex(s.text)
		if kw == nil || skip(s) {
			continue
		}
		for _, m := range amountPattern.FindAllStringSubmatchIndex(s.text, -1) {
			if m[0] < kw[0] {
				continue
			}
			if money, ok := parseAmount(s.text, m, currency); ok && money.Amount.IsPositive() {
				return candidate(p.Name(), money, 0.9, doc.source(s, s.start+m[0], s.start+m[1]))
			}
		}
	}
	for _, s := range sents {
		if skip(s) {
			continue
		}
		if m := amountPattern.FindStringSubmatchIndex(s.text); m != nil {
			if money, ok := parseAmount(s.text, m, currency); ok && money.Amount.IsPositive() {
				return candidate(p.Name(), money, 0.55, doc.source(s, s.start+m[0], s.start+m[1]))
			}
		}
	}
	return nil
}

func percentValue(s string) float64 {
	v, _ := parseNumeral(s, false)
	return v
}

func (p PatternStrategy) rate(doc Document, sents []sentence) *contract.Candidate[contract.Rate] {
	for _, s := range sents {
		if notRate.MatchString(s.text) {
			continue
		}
		if m := variableRe.FindStringSubmatchIndex(s.text); m != nil {
			r := variableRate(doc, s.text, m)
			return candidate(p.Name(), r, 0.9, doc.source(s, s.start+m[0], s.start+m[1]))
		}
		if !rateKeyword.MatchString(s.text) || capRe.MatchString(s.text) || floorRe.MatchString(s.text) {
			continue
		}
		m := percentRe.FindStringSubmatchIndex(s.text)
		if m == nil {
			continue
		}
		r := contract.Rate{
			Annual:   percentValue(s.text[m[2]:m[3]]) / 100,
			Basis:    contract.BasisNominal,
			Behavior: contract.RateFixed,
		}
		if effectiveRe.MatchString(s.text) {
			r.Basis = contract.BasisEffective
		}
		return candidate(p.Name(), r, 0.92, doc.source(s, s.start+m[0], s.start+m[1]))
	}
	return nil
}

// variableRate builds a variable rate from a variableRe match in s.
// Cap, floor and reset wording is searched for in the whole document.
func variableRate(doc Document, s string, m []int) contract.Rate {
	group := func(i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return s[m[2*i]:m[2*i+1]]
	}
	f := &contract.RateFormula{Index: strings.ToUpper(group(1))}
	if group(2) != "" {
		n, _ := strconv.Atoi(group(2))
		f.Tenor = group(2) + " " + group(3)
		f.ResetMonths = resetFromTenor(n, group(3))
	}
	spread, _ := parseNumeral(group(4), false)
	f.SpreadBps = spreadBps(spread, group(5))

	if c := capRe.FindStringSubmatch(doc.Text); c != nil {
		v := percentValue(c[1]) / 100
		f.Cap = &v
	}
	if c := floorRe.FindStringSubmatch(doc.Text); c != nil {
		v := percentValue(c[1]) / 100
		f.Floor = &v
	}
	if r := resetRe.FindStringSubmatch(doc.Text); r != nil {
		switch {
		case r[2] != "":
			f.ResetMonths, _ = strconv.Atoi(r[2])
		case r[3] != "":
			f.ResetMonths, _ = strconv.Atoi(r[3])
		default:
			if freq, ok := frequencyWord(r[1]); ok {
				f.ResetMonths = 12 / freq.PeriodsPerYear()
			}
		}
	}

	basis := contract.BasisNominal
	if effectiveRe.MatchString(s) {
		basis = contract.BasisEffective
	}
	return contract.Rate{Basis: basis, Behavior: contract.RateVariable, Formula: f}
}

func monthsOf(n int, unit string) int {
	if u := fold(unit); strings.HasPrefix(u, "y") || strings.HasPrefix(u, "an") {
		return n * 12
	}
	return n
}

func (p PatternStrategy) term(doc Document, sents []sentence) *contract.Candidate[int] {
	for _, s := range sents {
		if m := termKeyword.FindStringSubmatchIndex(s.text); m != nil {
			n, _ := strconv.Atoi(s.text[m[2]:m[3]])
			months := monthsOf(n, s.text[m[4]:m[5]])
			if months > 0 {
				return candidate(p.Name(), months, 0.92, doc.source(s, s.start+m[2], s.start+m[5]))
			}
		}
	}
	for _, s := range sents {
		if notTerm.MatchString(s.text) {
			continue
		}
		if m := termFallback.FindStringSubmatchIndex(s.text); m != nil {
			n, _ := strconv.Atoi(s.text[m[2]:m[3]])
			if months := monthsOf(n, s.text[m[4]:m[5]]); months > 0 {
				return candidate(p.Name(), months, 0.6, doc.source(s, s.start+m[0], s.start+m[1]))
			}
		}
	}
	return nil
}

func (p PatternStrategy) frequency(doc Document, sents []sentence) *contract.Candidate[contract.Frequency] {
	for _, s := range sents {
		if m := bulletRe.FindStringIndex(s.text); m != nil {
			return candidate(p.Name(), contract.Bullet, 0.9, doc.source(s, s.start+m[0], s.start+m[1]))
		}
	}
	for _, s := range sents {
		m := frequencyRe.FindStringSubmatchIndex(s.text)
		if m == nil {
			continue
		}
		for g := 1; g <= 3; g++ {
			if m[2*g] < 0 {
				continue
			}
			if freq, ok := frequencyWord(s.text[m[2*g]:m[2*g+1]]); ok {
				return candidate(p.Name(), freq, 0.9, doc.source(s, s.start+m[0], s.start+m[1]))
			}
		}
	}
	return nil
}

func (p PatternStrategy) grace(doc Document, sents []sentence) *contract.Candidate[int] {
	for _, s := range sents {
		m := graceRe.FindStringSubmatchIndex(s.text)
		if m == nil {
			continue
		}
		g := 1
		if m[2] < 0 {
			g = 2
		}
		n, _ := strconv.Atoi(s.text[m[2*g]:m[2*g+1]])
		return candidate(p.Name(), n, 0.9, doc.source(s, s.start+m[0], s.start+m[1]))
	}
	return nil
}

func (p PatternStrategy) paymentCount(doc Document, sents []sentence) *contract.Candidate[int] {
	for _, s := range sents {
		m := paymentCountRe.FindStringSubmatchIndex(s.text)
		if m == nil {
			continue
		}
		g := 1
		if m[2] < 0 {
			g = 2
		}
		n, _ := strconv.Atoi(s.text[m[2*g]:m[2*g+1]])
		if n > 1 {
			return candidate(p.Name(), n, 0.88, doc.source(s, s.start+m[0], s.start+m[1]))
		}
	}
	return nil
}

func (p PatternStrategy) balloon(doc Document, sents []sentence, currency string) *contract.Candidate[contract.Balloon] {
	for _, s := range sents {
		if !balloonRe.MatchString(s.text) {
			continue
		}
		m := amountPattern.FindStringSubmatchIndex(s.text)
		if m == nil {
			continue
		}
		if money, ok := parseAmount(s.text, m, currency); ok {
			return candidate(p.Name(), contract.Balloon{Amount: money.Amount}, 0.88, doc.source(s, s.start+m[0], s.start+m[1]))
		}
	}
	return nil
}

func (p PatternStrategy) guarantee(doc Document, sents []sentence) *contract.Candidate[contract.Guarantee] {
	var (
		g     contract.Guarantee
		first *sentence
		found = map[string]bool{}
	)
	note := func(s *sentence, kind string) {
		if !found[kind] {
			found[kind] = true
			g.Kinds = append(g.Kinds, kind)
		}
		if first == nil {
			first = s
		}
	}
	unsecured := false
	for i := range sents {
		s := &sents[i]
		text := negPledgeRe.ReplaceAllString(s.text, "")
		if mortgageRe.MatchString(text) {
			note(s, contract.KindMortgage)
			if g.MortgageRank == 0 {
				g.MortgageRank = mortgageRank(text)
			}
		}
		if pledgeRe.MatchString(text) {
			note(s, contract.KindPledge)
		}
		if guarantorRe.MatchString(text) {
			note(s, contract.KindGuarantor)
		}
		if unsecuredRe.MatchString(text) && first == nil {
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

	conf := 0.8
	if guaranteeKw.MatchString(doc.Text) {
		conf = 0.9
	}
	return candidate(p.Name(), g, conf, doc.source(*first, first.start, first.start+len(first.text)))
}

func mortgageRank(s string) int {
	m := rankRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	for _, w := range m[1:] {
		if w != "" {
			return rankWords[fold(w)]
		}
	}
	return 0
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

func (p PatternStrategy) fees(doc Document, sents []sentence, currency string) *contract.Candidate[[]contract.Fee] {
	var (
		fees  []contract.Fee
		first *sentence
		seen  = map[string]bool{}
	)
	add := func(s *sentence, fee contract.Fee) {
		if seen[fee.Label] {
			return
		}
		seen[fee.Label] = true
		fees = append(fees, fee)
		if first == nil {
			first = s
		}
	}
	for i := range sents {
		s := &sents[i]
		if m := openingFeeRe.FindStringSubmatch(s.text); m != nil {
			add(s, contract.Fee{Label: "opening", Kind: contract.FeePercent, Percent: percentValue(firstGroup(m)), Timing: contract.FeeUpfront})
		}
		if m := studyFeeRe.FindStringSubmatch(s.text); m != nil {
			add(s, contract.Fee{Label: "study", Kind: contract.FeePercent, Percent: percentValue(firstGroup(m)), Timing: contract.FeeUpfront})
		}
		if m := maintenanceFeeRe.FindStringSubmatch(s.text); m != nil {
			timing := contract.FeePeriodic
			if annualWordRe.MatchString(s.text) {
				timing = contract.FeeAnnual
			}
			add(s, contract.Fee{Label: "maintenance", Kind: contract.FeePercent, Percent: percentValue(firstGroup(m)), Timing: timing})
		}
		if insuranceRe.MatchString(s.text) {
			if m := amountPattern.FindStringSubmatchIndex(s.text); m != nil {
				if money, ok := parseAmount(s.text, m, currency); ok {
					timing := contract.FeePeriodic
					if annualWordRe.MatchString(s.text) {
						timing = contract.FeeAnnual
					}
					add(s, contract.Fee{Label: "insurance", Kind: contract.FeeFixed, Amount: money.Amount, Timing: timing})
				}
			}
		}
	}
	if first == nil {
		return nil
	}
	return candidate(p.Name(), fees, 0.88, doc.source(*first, first.start, first.start+len(first.text)))
}

func (p PatternStrategy) prepayment(doc Document, sents []sentence) *contract.Candidate[contract.Prepayment] {
	var (
		pp    = contract.Prepayment{Allowed: true}
		first *sentence
	)
	for i := range sents {
		s := &sents[i]
		if !prepaymentKw.MatchString(s.text) {
			continue
		}
		if first == nil {
			first = s
		}
		if prohibitedRe.MatchString(s.text) && !penaltyKw.MatchString(s.text) {
			pp.Allowed = false
			pp.PenaltyPct = 0
			first = s
			break
		}
		if pp.PenaltyPct == 0 {
			if m := percentRe.FindStringSubmatch(s.text); m != nil {
				pp.PenaltyPct = percentValue(m[1])
				first = s
			}
		}
		if pp.PenaltyMonths == 0 {
			if m := firstMonths.FindStringSubmatch(s.text); m != nil {
				pp.PenaltyMonths, _ = strconv.Atoi(m[1])
			}
		}
	}
	if first == nil {
		return nil
	}
	return candidate(p.Name(), pp, 0.9, doc.source(*first, first.start, first.start+len(first.text)))
}

func (p PatternStrategy) defaultClause(doc Document, sents []sentence) *contract.Candidate[contract.DefaultClause] {
	var (
		d     contract.DefaultClause
		first *sentence
	)
	hit := map[string]bool{}
	inSection := false
	for i := range sents {
		s := &sents[i]
		matched := false
		if defaultSection.MatchString(s.text) {
			inSection = true
		}
		if accelerationRe.MatchString(s.text) {
			d.Acceleration = true
			matched = true
		}
		for _, t := range defaultTriggers {
			if t.re.MatchString(s.text) && (inSection || d.Acceleration) {
				hit[t.name] = true
				matched = true
			}
		}
		if d.CureDays == 0 {
			if m := cureRe.FindStringSubmatch(s.text); m != nil {
				d.CureDays, _ = strconv.Atoi(firstGroup(m))
			}
		}
		if matched && first == nil {
			first = s
		}
	}
	if first == nil {
		return nil
	}
	for _, t := range defaultTriggers {
		if hit[t.name] {
			d.Triggers = append(d.Triggers, t.name)
		}
	}
	d.TriggerCount = len(d.Triggers)
	if d.Acceleration {
		d.Consequences = append(d.Consequences, "acceleration")
	}
	if defaultInterestRe.MatchString(doc.Text) {
		d.Consequences = append(d.Consequences, "default_interest")
	}
	if enforcementRe.MatchString(doc.Text) {
		d.Consequences = append(d.Consequences, "collateral_enforcement")
	}
	return candidate(p.Name(), d, 0.88, doc.source(*first, first.start, first.start+len(first.text)))
}

func (p PatternStrategy) specialClauses(doc Document, sents []sentence, def *contract.Candidate[contract.DefaultClause]) *contract.Candidate[[]contract.SpecialClause] {
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
	for _, s := range sents {
		detail := strings.TrimSpace(s.text)
		ref := doc.source(s, s.start, s.start+len(s.text))
		if crossDefaultRe.MatchString(s.text) {
			add(ref, contract.SpecialClause{Kind: contract.ClauseCrossDefault, Detail: detail})
		}
		if negPledgeRe.MatchString(s.text) {
			add(ref, contract.SpecialClause{Kind: contract.ClauseNegativePledge, Detail: detail})
		}
		for _, cv := range covenantCatalogue {
			m := cv.re.FindStringSubmatch(s.text)
			if m == nil {
				continue
			}
			c := contract.SpecialClause{Kind: contract.ClauseCovenant, Detail: detail, Metric: cv.metric, Operator: cv.operator}
			if len(m) > 1 {
				c.Threshold = percentValue(m[1])
			}
			add(ref, c)
		}
	}
	if def != nil && def.Value.Acceleration {
		add(def.Source, contract.SpecialClause{Kind: contract.ClauseAcceleration, Detail: def.Source.Snippet})
	}
	if len(clauses) == 0 {
		return nil
	}
	return candidate(p.Name(), clauses, 0.88, src)
}

func (p PatternStrategy) label(doc Document, sents []sentence, re *regexp.Regexp) *contract.Candidate[string] {
	for _, s := range sents {
		m := re.FindStringSubmatchIndex(s.text)
		if m == nil {
			continue
		}
		v := strings.TrimSpace(s.text[m[2]:m[3]])
		v = strings.TrimRight(v, " .")
		if v == "" {
			continue
		}
		return candidate(p.Name(), v, 0.9, doc.source(s, s.start+m[2], s.start+m[3]))
	}
	return nil
}
