package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"fluxo/internal/core"
	"fluxo/internal/dashboard"
	"fluxo/internal/storage"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printStatistics(w io.Writer, s core.StatisticsSnapshot) {
	tw := table(w)
	fmt.Fprintf(tw, "Records\t%d\n", s.RecordCount)
	if s.StartDate != "" || s.EndDate != "" {
		fmt.Fprintf(tw, "Period\t%s .. %s\n", s.StartDate, s.EndDate)
	}
	fmt.Fprintf(tw, "Total inflow\t%s\n", core.FormatBRL(s.TotalInflow))
	fmt.Fprintf(tw, "Total outflow\t%s\n", core.FormatBRL(s.TotalOutflow))
	fmt.Fprintf(tw, "Net flow\t%s\n", core.FormatBRL(s.NetFlow))
	fmt.Fprintf(tw, "Current balance\t%s\n", core.FormatBRL(s.CurrentBalance))
	tw.Flush()
}

func printTransactions(w io.Writer, rows []core.Transaction) {
	tw := table(w)
	fmt.Fprintln(tw, "DATE\tINFLOW\tOUTFLOW\tNET\tBALANCE\tCATEGORY")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.DateKey(),
			core.FormatBRL(r.Inflow), core.FormatBRL(r.Outflow),
			core.FormatBRL(r.DailyNet), core.FormatBRL(r.RunningBalance), r.Category)
	}
	tw.Flush()
}

func printOverview(w io.Writer, o dashboard.Overview) {
	t := o.Series.Totals
	tw := table(w)
	fmt.Fprintf(tw, "Records\t%d\n", o.Stats.RecordCount)
	fmt.Fprintf(tw, "Total inflow\t%s\n", core.FormatBRL(t.Inflow))
	fmt.Fprintf(tw, "Total outflow\t%s\n", core.FormatBRL(t.Outflow))
	fmt.Fprintf(tw, "Net flow\t%s\n", core.FormatBRL(t.Net))
	fmt.Fprintf(tw, "Current balance\t%s\n", core.FormatBRL(t.CurrentBalance))
	tw.Flush()

	if len(o.Series.Monthly) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = table(w)
	fmt.Fprintln(tw, "MONTH\tINFLOW\tOUTFLOW\tNET")
	for _, m := range o.Series.Monthly {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Label(),
			core.FormatBRL(m.Inflow), core.FormatBRL(m.Outflow), core.FormatBRL(m.Net))
	}
	tw.Flush()
}

func printCycles(w io.Writer, c dashboard.Cycles) {
	tw := table(w)
	fmt.Fprintf(tw, "PMR (receivables)\t%.1f days\n", c.Metrics.ReceivablesDays)
	fmt.Fprintf(tw, "PMP (payables)\t%.1f days\n", c.Metrics.PayablesDays)
	fmt.Fprintf(tw, "PME (inventory)\t%.1f days\n", c.Metrics.InventoryDays)
	fmt.Fprintf(tw, "Cash conversion cycle\t%.1f days\n", c.CashConversionCycle)
	tw.Flush()
}

func printForecast(w io.Writer, f dashboard.Forecast) {
	tw := table(w)
	fmt.Fprintln(tw, "DATE\tFLOW\tBALANCE")
	for _, p := range f.Points {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Date, core.FormatBRL(p.PredictedFlow), core.FormatBRL(p.PredictedBalance))
	}
	tw.Flush()
	if len(f.Features) > 0 {
		fmt.Fprintln(w)
		printFeatures(w, f.Features)
	}
}

func printFeatures(w io.Writer, features []core.RankedFeature) {
	tw := table(w)
	fmt.Fprintln(tw, "FEATURE\tIMPORTANCE")
	for _, f := range features {
		fmt.Fprintf(tw, "%s\t%.1f%%\n", f.Label, f.Percent)
	}
	tw.Flush()
}

func printSummary(w io.Writer, s core.ScenarioSummary) {
	risk := s.Risk()
	tw := table(w)
	fmt.Fprintf(tw, "Negative balance probability\t%.1f%%\n", s.NegativePercent())
	fmt.Fprintf(tw, "Minimum flow\t%s\n", core.FormatBRL(s.Min))
	fmt.Fprintf(tw, "Median flow\t%s\n", core.FormatBRL(s.Median))
	fmt.Fprintf(tw, "Maximum flow\t%s\n", core.FormatBRL(s.Max))
	fmt.Fprintf(tw, "Risk\t%s\n", risk)
	tw.Flush()
	for _, r := range risk.Recommendations() {
		fmt.Fprintf(w, "  - %s\n", r)
	}
}

func printEvents(w io.Writer, key core.KeyEvents) {
	tw := table(w)
	fmt.Fprintln(tw, "DIRECTION\tNAME\tTOTAL\tFREQUENCY\tCATEGORY")
	for _, e := range key.InflowEvents {
		fmt.Fprintf(tw, "in\t%s\t%s\t%d\t%s\n", e.Name, core.FormatBRL(e.TotalAmount), e.Frequency, e.Category)
	}
	for _, e := range key.OutflowEvents {
		fmt.Fprintf(tw, "out\t%s\t%s\t%d\t%s\n", e.Name, core.FormatBRL(e.TotalAmount), e.Frequency, e.Category)
	}
	tw.Flush()
}

func printLoanSuggestion(w io.Writer, l core.LoanSuggestion) {
	tw := table(w)
	fmt.Fprintf(tw, "Amount\t%s\n", core.FormatBRL(l.SuggestedAmount))
	fmt.Fprintf(tw, "Monthly rate\t%.2f%%\n", l.MonthlyRate*100)
	fmt.Fprintf(tw, "Term\t%d months\n", l.TermMonths)
	tw.Flush()
	if l.Rationale != "" {
		fmt.Fprintln(w, l.Rationale)
	}
}

func printUploads(w io.Writer, uploads []storage.Upload) {
	tw := table(w)
	fmt.Fprintln(tw, "WHEN\tFILES\tOUTFLOW\tMESSAGE")
	for _, u := range uploads {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", stamp(u.CreatedAt), strings.Join(u.Files, ","), u.HasOutflow, u.Message)
	}
	tw.Flush()
}

func printSimulations(w io.Writer, sims []storage.Simulation) {
	tw := table(w)
	fmt.Fprintln(tw, "WHEN\tKIND\tNEGATIVE\tMEDIAN\tRISK")
	for _, s := range sims {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%s\t%s\n", stamp(s.CreatedAt), s.Kind, s.ProbNegative*100, core.FormatBRL(s.Median), s.Risk)
	}
	tw.Flush()
}

func printRefreshRuns(w io.Writer, runs []storage.RefreshRun) {
	tw := table(w)
	fmt.Fprintln(tw, "STARTED\tSOURCE\tSTATUS\tPOINTS\tMONTHS\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", stamp(r.StartedAt), r.Source, r.Status, r.Points, r.Months, r.Error)
	}
	tw.Flush()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
