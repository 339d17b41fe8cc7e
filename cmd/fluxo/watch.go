package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fluxo/internal/amqp"
	"fluxo/internal/core"
	"fluxo/internal/dashboard"
	"fluxo/internal/log"
)

// runWatch mounts views on the bus and prints a line per load. Remote
// uploads reach the bus through a private AMQP queue when one is configured.
func runWatch(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("watch", e)
	names := fs.String("views", dashboard.ViewOverview+","+dashboard.ViewForecast, "comma separated views to keep loaded")
	days := fs.Int("days", 30, "forecast horizon")
	every := fs.Duration("every", 0, "also refetch on this interval, 0 disables")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lines := make(map[string]func() string)
	var views []dashboard.View
	for _, name := range strings.Split(*names, ",") {
		v, line, err := watchedView(e, strings.TrimSpace(name), *days)
		if err != nil {
			return err
		}
		views = append(views, v)
		lines[v.Name()] = line
	}

	session := dashboard.NewSession(ctx, e.app.Bus,
		dashboard.WithSessionLogger(e.logger),
		dashboard.WithLoadObserver(func(name string, err error) {
			stamp := time.Now().Format("15:04:05")
			if err != nil {
				fmt.Fprintf(e.out, "%s %-9s error: %s\n", stamp, name, describe(err))
				return
			}
			fmt.Fprintf(e.out, "%s %-9s %s\n", stamp, name, lines[name]())
		}))
	defer session.Close()

	for _, v := range views {
		// a failed initial load keeps the view mounted for the next change
		_ = session.Mount(v)
	}

	if cfg := e.app.Config; cfg.AMQPURL != "" {
		listener, err := amqp.NewListener(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, e.logger)
		if err != nil {
			return err
		}
		defer listener.Close()
		go func() {
			err := listener.Consume(ctx, func(ctx context.Context, msg *amqp.DatasetChangedMessage) error {
				return e.app.Bus.Publish(ctx, msg.Event())
			})
			if err != nil && ctx.Err() == nil {
				e.logger.Error("Dataset change listener stopped", log.FieldError, err)
			}
		}()
	}

	var tick <-chan time.Time
	if *every > 0 {
		ticker := time.NewTicker(*every)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			for _, name := range session.Mounted() {
				_ = session.Refresh(name)
			}
		}
	}
}

func watchedView(e *env, name string, days int) (dashboard.View, func() string, error) {
	switch name {
	case dashboard.ViewOverview:
		p := dashboard.NewOverview(e.app.Service, e.logger)
		return p, func() string {
			t := p.State().Data.Series.Totals
			return fmt.Sprintf("rows=%d net=%s balance=%s", t.Rows, core.FormatBRL(t.Net), core.FormatBRL(t.CurrentBalance))
		}, nil
	case dashboard.ViewCycles:
		p := dashboard.NewCycles(e.app.Service, e.logger)
		return p, func() string {
			return fmt.Sprintf("ccc=%.1f days", p.State().Data.CashConversionCycle)
		}, nil
	case dashboard.ViewForecast:
		p, err := dashboard.NewForecast(e.app.Service, days, e.logger)
		if err != nil {
			return nil, nil, err
		}
		return p, func() string {
			points := p.State().Data.Points
			if len(points) == 0 {
				return "no points"
			}
			last := points[len(points)-1]
			return fmt.Sprintf("points=%d final balance=%s on %s", len(points), core.FormatBRL(last.PredictedBalance), last.Date)
		}, nil
	case dashboard.ViewEvents:
		p := dashboard.NewEvents(e.app.Service, e.logger)
		return p, func() string {
			k := p.State().Data.Key
			return fmt.Sprintf("inflow events=%d outflow events=%d", len(k.InflowEvents), len(k.OutflowEvents))
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown view %q", name)
	}
}
