package refdata

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// MarketUpdate is a rate sheet read from an XML publication
type MarketUpdate struct {
	Published   string
	Rates       []MarketRate
	IndexCurves map[string][]float64
}

// LoadMarketXML parses a rate sheet of the form
//
//	<ReferenceRates published="2025-06-30" unit="percent">
//	  <Segment sector="general" size="sme" term="short" rate="14.5"/>
//	  <Index name="TIIE"><Level>11.25</Level><Level>11.00</Level></Index>
//	</ReferenceRates>
//
// With unit="percent" every value is divided by 100; otherwise values are annual fractions.
func LoadMarketXML(r io.Reader) (MarketUpdate, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return MarketUpdate{}, fmt.Errorf("failed to parse rate sheet: %w", err)
	}

	root := doc.SelectElement("ReferenceRates")
	if root == nil {
		return MarketUpdate{}, fmt.Errorf("rate sheet has no ReferenceRates element")
	}

	scale := 1.0
	if strings.EqualFold(root.SelectAttrValue("unit", ""), "percent") {
		scale = 0.01
	}

	upd := MarketUpdate{
		Published:   root.SelectAttrValue("published", ""),
		IndexCurves: make(map[string][]float64),
	}

	for i, seg := range root.SelectElements("Segment") {
		rate, err := strconv.ParseFloat(strings.TrimSpace(seg.SelectAttrValue("rate", "")), 64)
		if err != nil {
			return MarketUpdate{}, fmt.Errorf("segment %d: invalid rate: %w", i, err)
		}
		sample := seg.SelectAttrValue("sample_date", upd.Published)
		upd.Rates = append(upd.Rates, MarketRate{
			Sector:     seg.SelectAttrValue("sector", ""),
			Size:       seg.SelectAttrValue("size", ""),
			Term:       seg.SelectAttrValue("term", ""),
			Rate:       rate * scale,
			SampleDate: sample,
		})
	}

	for _, idx := range root.SelectElements("Index") {
		name := strings.ToUpper(idx.SelectAttrValue("name", ""))
		if name == "" {
			return MarketUpdate{}, fmt.Errorf("index element without name")
		}
		for _, lvl := range idx.FindElements("./Level") {
			v, err := strconv.ParseFloat(strings.TrimSpace(lvl.Text()), 64)
			if err != nil {
				return MarketUpdate{}, fmt.Errorf("index %s: invalid level %q: %w", name, lvl.Text(), err)
			}
			upd.IndexCurves[name] = append(upd.IndexCurves[name], v*scale)
		}
	}

	return upd, nil
}

// Apply returns a copy of cfg with the sheet's rates and index curves in place of the configured ones.
// Index curves absent from the sheet are kept.
func (u MarketUpdate) Apply(cfg Config) Config {
	if len(u.Rates) > 0 {
		cfg.Market.Rates = append([]MarketRate(nil), u.Rates...)
	}
	curves := make(map[string][]float64, len(cfg.IndexCurves)+len(u.IndexCurves))
	for k, v := range cfg.IndexCurves {
		curves[strings.ToUpper(k)] = v
	}
	for k, v := range u.IndexCurves {
		curves[k] = v
	}
	cfg.IndexCurves = curves
	return cfg
}
