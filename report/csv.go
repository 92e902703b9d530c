package report

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/liamcoop/loanlens/finance"
)

var scheduleHeader = []string{
	"schedule", "index", "month", "opening_balance", "payment", "interest", "principal", "fees", "closing_balance", "rate",
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// RenderScheduleCSV renders amortization schedules as CSV.
// The balloon, when there is one, is written as its own row after the last period.
func RenderScheduleCSV(schedules []finance.Schedule) (string, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)

	if err := w.Write(scheduleHeader); err != nil {
		return "", fmt.Errorf("write CSV header: %w", err)
	}

	for _, s := range schedules {
		label := s.Label
		if label == "" {
			label = "main"
		}
		for _, p := range s.Periods {
			row := []string{
				label,
				strconv.Itoa(p.Index),
				strconv.Itoa(p.Month),
				money(p.OpeningBalance),
				money(p.Payment),
				money(p.Interest),
				money(p.Principal),
				money(p.Fees),
				money(p.ClosingBalance),
				strconv.FormatFloat(p.Rate, 'f', 6, 64),
			}
			if err := w.Write(row); err != nil {
				return "", fmt.Errorf("write CSV row %s/%d: %w", label, p.Index, err)
			}
		}
		if s.Balloon > 0 && len(s.Periods) > 0 {
			last := s.Periods[len(s.Periods)-1]
			row := []string{
				label, "balloon", strconv.Itoa(last.Month),
				money(s.Balloon), money(s.Balloon), money(0), money(s.Balloon), money(0), money(0),
				strconv.FormatFloat(last.Rate, 'f', 6, 64),
			}
			if err := w.Write(row); err != nil {
				return "", fmt.Errorf("write CSV balloon row %s: %w", label, err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush CSV: %w", err)
	}
	return buf.String(), nil
}
