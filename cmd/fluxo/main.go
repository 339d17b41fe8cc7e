package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"fluxo/internal/cli"
	"fluxo/internal/config"
	"fluxo/internal/log"
	"fluxo/internal/transport"
)

// env is what every subcommand runs against.
type env struct {
	app    *cli.App
	out    io.Writer
	logger *log.Logger
}

type command struct {
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"health":          {"check that the backend is up", runHealth},
	"upload":          {"upload one or more .xlsx workbooks", runUpload},
	"stats":           {"dataset statistics", runStats},
	"transactions":    {"list processed rows", runTransactions},
	"overview":        {"statistics, totals and monthly series", runOverview},
	"cycles":          {"operational cycle metrics (PMR, PMP, PME)", runCycles},
	"predict":         {"cash-flow forecast and top features", runPredict},
	"importance":      {"feature importance ranking", runImportance},
	"simulate":        {"Monte Carlo scenario on inflow/outflow variations", runSimulate},
	"scenario":        {"macroeconomic scenario with seasonality rules", runScenario},
	"events":          {"detected key business events", runEvents},
	"simulate-events": {"re-simulate with business event modifiers", runSimulateEvents},
	"loan-suggest":    {"suggested loan", runLoanSuggest},
	"loan":            {"simulate the impact of a loan", runLoan},
	"report":          {"generate an executive report", runReport},
	"watch":           {"keep views loaded and refetch on dataset changes", runWatch},
	"history":         {"show the local journal", runHistory},
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, logger))
}

func run(args []string, stdout, stderr io.Writer, logger *log.Logger) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(stderr)
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	if _, ok := commands[args[0]]; !ok {
		fmt.Fprintf(stderr, "fluxo: unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		return 1
	}
	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", log.FieldError, err)
		return 1
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, &env{app: app, out: stdout, logger: logger}, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "fluxo %s: %s\n", args[0], describe(err))
		return 1
	}
	return 0
}

func execute(ctx context.Context, e *env, args []string) error {
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(ctx, e, args[1:])
}

// describe adds the failure kind and status for backend errors.
func describe(err error) string {
	var terr *transport.Error
	if !errors.As(err, &terr) {
		return err.Error()
	}
	if terr.Status != 0 {
		return fmt.Sprintf("%s (%s, status %d)", err, terr.Kind, terr.Status)
	}
	return fmt.Sprintf("%s (%s)", err, terr.Kind)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: fluxo <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name].summary)
	}
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet("fluxo "+name, flag.ContinueOnError)
	fs.SetOutput(e.out)
	return fs
}
