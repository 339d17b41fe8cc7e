package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fluxo/internal/api"
	"fluxo/internal/core"
	"fluxo/internal/dashboard"
	"fluxo/internal/log"
	"fluxo/internal/workbook"
)

// Simulation kinds stored in the journal.
const (
	kindMonteCarlo     = "monte_carlo"
	kindMacro          = "macro"
	kindBusinessEvents = "business_events"
	kindLoan           = "loan"
)

var errJournalDisabled = errors.New("journal disabled: set JOURNAL_DB_PATH")

func runHealth(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("health", e).Parse(args); err != nil {
		return err
	}
	h, err := e.app.Service.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s: %s\n", h.Status, h.Message)
	return nil
}

func runUpload(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("upload", e)
	outflow := fs.Bool("outflow", false, "the workbooks carry outflow rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	files := make([]api.File, 0, fs.NArg())
	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if api.IsExcel(path) {
			info, err := workbook.Inspect(filepath.Base(path), bytes.NewReader(data))
			if err != nil {
				e.logger.Warn("Workbook could not be inspected", log.FieldPath, path, log.FieldError, err)
			} else {
				info.Warn(e.logger)
			}
		}
		files = append(files, api.File{Name: path, Reader: bytes.NewReader(data)})
	}

	res, err := e.app.Service.UploadDataset(ctx, files, *outflow)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, res.Message)
	return nil
}

func runStats(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("stats", e).Parse(args); err != nil {
		return err
	}
	s, err := e.app.Service.GetStatistics(ctx)
	if err != nil {
		return err
	}
	printStatistics(e.out, s)
	return nil
}

func runTransactions(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("transactions", e)
	q := api.TransactionQuery{}
	fs.IntVar(&q.Limit, "limit", 100, "maximum rows")
	fs.StringVar(&q.StartDate, "start", "", "first date (YYYY-MM-DD)")
	fs.StringVar(&q.EndDate, "end", "", "last date (YYYY-MM-DD)")
	fs.StringVar(&q.Order, "order", "", "asc or desc")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rows, err := e.app.Service.ListTransactions(ctx, q)
	if err != nil {
		return err
	}
	printTransactions(e.out, rows)
	return nil
}

func runOverview(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("overview", e).Parse(args); err != nil {
		return err
	}
	panel := dashboard.NewOverview(e.app.Service, e.logger)
	if err := panel.Load(ctx); err != nil {
		return err
	}
	printOverview(e.out, panel.State().Data)
	return nil
}

func runCycles(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("cycles", e).Parse(args); err != nil {
		return err
	}
	panel := dashboard.NewCycles(e.app.Service, e.logger)
	if err := panel.Load(ctx); err != nil {
		return err
	}
	printCycles(e.out, panel.State().Data)
	return nil
}

func runPredict(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("predict", e)
	days := fs.Int("days", 30, "forecast horizon in days (1-365)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	panel, err := dashboard.NewForecast(e.app.Service, *days, e.logger)
	if err != nil {
		return err
	}
	if err := panel.Load(ctx); err != nil {
		return err
	}
	printForecast(e.out, panel.State().Data)
	return nil
}

func runImportance(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("importance", e)
	n := fs.Int("n", dashboard.TopFeatureCount, "features to show, negative for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	features, err := e.app.Service.FeatureImportance(ctx)
	if err != nil {
		return err
	}
	printFeatures(e.out, core.TopFeatures(features, *n))
	return nil
}

func runSimulate(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("simulate", e)
	p := api.ScenarioParams{}
	fs.Float64Var(&p.InflowVariationPct, "inflow", 0, "inflow variation in percent")
	fs.Float64Var(&p.OutflowVariationPct, "outflow", 0, "outflow variation in percent")
	fs.IntVar(&p.Days, "days", 30, "simulated days")
	fs.IntVar(&p.Trials, "trials", 1000, "number of simulations")
	fs.BoolVar(&p.UseAICorrelation, "ai", false, "use learned inflow/outflow correlation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := core.ValidateForecastDays(p.Days); err != nil {
		return err
	}
	if p.Trials < 1 {
		return errors.New("trials must be positive")
	}

	s, err := e.app.Service.SimulateScenario(ctx, p)
	if err != nil {
		return err
	}
	record(ctx, e, kindMonteCarlo, map[string]any{
		"inflow_pct":  p.InflowVariationPct,
		"outflow_pct": p.OutflowVariationPct,
		"days":        p.Days,
		"trials":      p.Trials,
		"ai":          p.UseAICorrelation,
	}, s)
	printSummary(e.out, s)
	return nil
}

func runScenario(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("scenario", e)
	typ := fs.String("type", string(core.Conservative), "otimista, conservador or pessimista")
	var rules seasonFlag
	fs.Var(&rules, "season", "seasonality rule MONTH=PERCENT, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	scenario, err := core.ParseScenarioType(*typ)
	if err != nil {
		return err
	}

	s, err := e.app.Service.SimulateMacroScenario(ctx, scenario, rules.rules)
	if err != nil {
		return err
	}
	record(ctx, e, kindMacro, map[string]any{
		"scenario_type":     scenario,
		"seasonality_rules": rules.rules,
	}, s)
	printSummary(e.out, s)
	return nil
}

func runEvents(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("events", e).Parse(args); err != nil {
		return err
	}
	panel := dashboard.NewEvents(e.app.Service, e.logger)
	if err := panel.Load(ctx); err != nil {
		return err
	}
	printEvents(e.out, panel.State().Data.Key)
	return nil
}

func runSimulateEvents(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("simulate-events", e)
	var mods modifierFlag
	fs.Var(&mods, "mod", "modifier NAME=PERCENT[:DELAY_DAYS], repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// start from the detected events so unknown names are caught locally
	key, err := e.app.Service.GetKeyBusinessEvents(ctx)
	if err != nil {
		return err
	}
	seeded := core.SeedModifiers(key)
	for _, m := range mods.mods {
		found := false
		for i := range seeded {
			if seeded[i].Name == m.Name {
				seeded[i] = m
				found = true
			}
		}
		if !found {
			return fmt.Errorf("unknown business event %q", m.Name)
		}
	}

	s, err := e.app.Service.SimulateBusinessEvents(ctx, seeded)
	if err != nil {
		return err
	}
	record(ctx, e, kindBusinessEvents, map[string]any{"modifiers": core.ActiveModifiers(seeded)}, s)
	printSummary(e.out, s)
	return nil
}

func runLoanSuggest(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("loan-suggest", e).Parse(args); err != nil {
		return err
	}
	l, err := e.app.Service.GetLoanSuggestion(ctx)
	if err != nil {
		return err
	}
	printLoanSuggestion(e.out, l)
	return nil
}

func runLoan(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("loan", e)
	amount := fs.String("amount", "", "loan amount, e.g. 50000 or 50.000,00")
	rate := fs.Float64("rate", 0, "monthly rate as a fraction, e.g. 0.015")
	term := fs.Int("term", 12, "term in months")
	if err := fs.Parse(args); err != nil {
		return err
	}
	value, err := core.ParseAmount(*amount)
	if err != nil {
		return fmt.Errorf("amount %q: %w", *amount, err)
	}
	loan := core.LoanRequest{Amount: value, MonthlyRate: *rate, TermMonths: *term}
	if err := loan.Validate(); err != nil {
		return err
	}

	s, err := e.app.Service.SimulateLoanImpact(ctx, loan)
	if err != nil {
		return err
	}
	record(ctx, e, kindLoan, map[string]any{
		"amount":       value.String(),
		"monthly_rate": *rate,
		"term_months":  *term,
	}, s)
	printSummary(e.out, s)
	return nil
}

func runReport(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("report", e)
	page := fs.String("page", dashboard.ViewOverview, "overview, cycles, forecast or events")
	days := fs.Int("days", 30, "forecast horizon for the forecast page")
	output := fs.String("o", "", "write the markdown to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reportContext, err := pageContext(ctx, e, *page, *days)
	if err != nil {
		return err
	}
	r, err := e.app.Service.GenerateReport(ctx, *page, reportContext)
	if err != nil {
		return err
	}

	if *output == "" {
		fmt.Fprintln(e.out, r.Markdown)
		return nil
	}
	if err := os.WriteFile(*output, []byte(r.Markdown), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(e.out, "report written to %s\n", *output)
	return nil
}

// pageContext loads the data a page shows so the report describes it.
func pageContext(ctx context.Context, e *env, page string, days int) (map[string]any, error) {
	switch page {
	case dashboard.ViewOverview:
		panel := dashboard.NewOverview(e.app.Service, e.logger)
		if err := panel.Load(ctx); err != nil {
			return nil, err
		}
		o := panel.State().Data
		months := make([]map[string]any, 0, len(o.Series.Monthly))
		for _, m := range o.Series.Monthly {
			months = append(months, map[string]any{
				"month":   m.Label(),
				"inflow":  m.Inflow.InexactFloat64(),
				"outflow": m.Outflow.InexactFloat64(),
				"net":     m.Net.InexactFloat64(),
			})
		}
		return map[string]any{"statistics": o.Stats, "monthly": months}, nil
	case dashboard.ViewCycles:
		panel := dashboard.NewCycles(e.app.Service, e.logger)
		if err := panel.Load(ctx); err != nil {
			return nil, err
		}
		c := panel.State().Data
		return map[string]any{"cycles": c.Metrics, "cash_conversion_cycle": c.CashConversionCycle}, nil
	case dashboard.ViewForecast:
		panel, err := dashboard.NewForecast(e.app.Service, days, e.logger)
		if err != nil {
			return nil, err
		}
		if err := panel.Load(ctx); err != nil {
			return nil, err
		}
		f := panel.State().Data
		return map[string]any{"days": f.Days, "predictions": f.Points, "top_features": f.Features}, nil
	case dashboard.ViewEvents:
		panel := dashboard.NewEvents(e.app.Service, e.logger)
		if err := panel.Load(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"key_events": panel.State().Data.Key}, nil
	default:
		return nil, fmt.Errorf("unknown page %q", page)
	}
}

func runHistory(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("history", e)
	kind := fs.String("kind", "uploads", "uploads, simulations or refreshes")
	limit := fs.Int("limit", 20, "maximum entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	j := e.app.Journal
	if j == nil {
		return errJournalDisabled
	}

	switch *kind {
	case "uploads":
		uploads, err := j.ListUploads(ctx, *limit)
		if err != nil {
			return err
		}
		printUploads(e.out, uploads)
	case "simulations":
		sims, err := j.ListSimulations(ctx, *limit)
		if err != nil {
			return err
		}
		printSimulations(e.out, sims)
	case "refreshes":
		runs, err := j.ListRefreshRuns(ctx, *limit)
		if err != nil {
			return err
		}
		printRefreshRuns(e.out, runs)
	default:
		return fmt.Errorf("unknown history kind %q", *kind)
	}
	return nil
}

// record journals a simulation. Journal failures are only logged.
func record(ctx context.Context, e *env, kind string, params map[string]any, s core.ScenarioSummary) {
	if e.app.Journal == nil {
		return
	}
	if _, err := e.app.Journal.RecordSimulation(ctx, kind, params, s); err != nil {
		e.logger.Warn("Failed to journal simulation", log.FieldError, err, "kind", kind)
	}
}
