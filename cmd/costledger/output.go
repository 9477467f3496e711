package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/artpar/costledger/app"
	"github.com/artpar/costledger/domain/threshold"
	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/pkg/wire"
)

// trendBarWidth is the bar length of the busiest day in a trend chart.
const trendBarWidth = 30

const rule = "============================================="

// formatCost shows more precision for small amounts.
func formatCost(cost float64) string {
	switch {
	case cost < 0.01:
		return fmt.Sprintf("$%.6f", cost)
	case cost < 1:
		return fmt.Sprintf("$%.4f", cost)
	default:
		return fmt.Sprintf("$%.2f", cost)
	}
}

// formatNumber adds thousands separators.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func formatPercent(share float64) string {
	return fmt.Sprintf("%.1f%%", share*100)
}

func printSummary(w io.Writer, s usage.Summary, title string, detailed bool) {
	fmt.Fprintf(w, "\nCost summary %s\n", title)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Calls:         %s\n", formatNumber(s.Calls))
	fmt.Fprintf(w, "Tokens:        %s\n", formatNumber(s.TotalTokens))
	fmt.Fprintf(w, "  prompt:      %s\n", formatNumber(s.PromptTokens))
	fmt.Fprintf(w, "  completion:  %s\n", formatNumber(s.CompletionTokens))
	fmt.Fprintf(w, "Cost:          %s\n", formatCost(s.Cost))

	rows := usage.RankModels(s)
	if len(rows) == 0 {
		return
	}

	fmt.Fprintln(w, "\nBy model:")
	if !detailed {
		for _, r := range rows {
			fmt.Fprintf(w, "  %s: %s (%s)\n", r.Model, formatCost(r.Cost), formatPercent(r.Share))
		}
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  MODEL\tCALLS\tPROMPT\tCOMPLETION\tTOTAL\tCOST\tSHARE")
	fmt.Fprintln(tw, "  -----\t-----\t------\t----------\t-----\t----\t-----")
	for _, r := range rows {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Model,
			formatNumber(r.Calls),
			formatNumber(r.PromptTokens),
			formatNumber(r.CompletionTokens),
			formatNumber(r.TotalTokens),
			formatCost(r.Cost),
			formatPercent(r.Share),
		)
	}
	tw.Flush()
}

// printTrend draws one bar per day scaled to the most expensive day.
func printTrend(w io.Writer, buckets []usage.DailyBucket) {
	fmt.Fprintln(w, "\nDaily cost trend")
	fmt.Fprintln(w, rule)

	var peak float64
	for _, b := range buckets {
		if b.Cost > peak {
			peak = b.Cost
		}
	}

	for _, b := range buckets {
		n := 0
		if peak > 0 {
			n = int(b.Cost / peak * trendBarWidth)
		}
		fmt.Fprintf(w, "%s: %10s %s\n", b.Day(), formatCost(b.Cost), strings.Repeat("█", n))
	}
}

func printRecords(w io.Writer, records []usage.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tMODEL\tPROMPT\tCOMPLETION\tTOTAL\tCOST\tID")
	fmt.Fprintln(tw, "---------\t-----\t------\t----------\t-----\t----\t--")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Model,
			formatNumber(r.PromptTokens),
			formatNumber(r.CompletionTokens),
			formatNumber(r.TotalTokens()),
			formatCost(r.Cost),
			r.ID,
		)
	}
	tw.Flush()
}

func printAlert(w io.Writer, report app.AlertReport) {
	for _, r := range report.Results() {
		label := "Today"
		if r.Window == threshold.WindowMonthly {
			label = "This month"
		}
		if r.Breached {
			fmt.Fprintf(w, "WARNING: %s spend %s has reached the limit %s (over by %s)\n",
				strings.ToLower(label), formatCost(r.Current), formatCost(r.Limit), formatCost(r.Overage))
			continue
		}
		fmt.Fprintf(w, "OK %s: %s / %s (%s used)\n", label, formatCost(r.Current), formatCost(r.Limit), formatPercent(r.PercentUsed/100))
		fmt.Fprintf(w, "   remaining: %s\n", formatCost(r.Remaining))
	}
}

// summaryDoc is the --json shape of summary.
type summaryDoc struct {
	Start   *time.Time         `json:"start,omitempty"`
	End     *time.Time         `json:"end,omitempty"`
	Summary usage.Summary      `json:"summary"`
	Models  []usage.ModelShare `json:"models"`
}

func newSummaryDoc(f usage.Filter, s usage.Summary) summaryDoc {
	doc := summaryDoc{Summary: s, Models: usage.RankModels(s)}
	if !f.Start.IsZero() {
		doc.Start = &f.Start
	}
	if !f.End.IsZero() {
		doc.End = &f.End
	}
	return doc
}

func entries(records []usage.Record) []wire.Entry {
	out := make([]wire.Entry, 0, len(records))
	for _, r := range records {
		out = append(out, wire.FromRecord(r))
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
