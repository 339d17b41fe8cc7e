package main

import (
	"fmt"
	"strconv"
	"strings"

	"fluxo/internal/core"
)

// seasonFlag collects MONTH=PERCENT rules. A later rule for the same month
// replaces the earlier one.
type seasonFlag struct {
	rules core.SeasonalityRules
}

func (f *seasonFlag) String() string {
	parts := make([]string, 0, len(f.rules))
	for _, r := range f.rules {
		parts = append(parts, fmt.Sprintf("%s=%g", r.Month, r.RevenueChangePercentage))
	}
	return strings.Join(parts, ",")
}

func (f *seasonFlag) Set(value string) error {
	month, pct, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("want MONTH=PERCENT, got %q", value)
	}
	name, err := core.MonthName(month)
	if err != nil {
		return err
	}
	change, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
	if err != nil {
		return fmt.Errorf("invalid percentage %q", pct)
	}
	f.rules = f.rules.Set(core.SeasonalityRule{Month: name, RevenueChangePercentage: change})
	return nil
}

// modifierFlag collects NAME=PERCENT[:DELAY_DAYS] business event modifiers.
type modifierFlag struct {
	mods []core.EventModifier
}

func (f *modifierFlag) String() string {
	parts := make([]string, 0, len(f.mods))
	for _, m := range f.mods {
		parts = append(parts, fmt.Sprintf("%s=%g:%d", m.Name, m.ValueChangePercentage, m.DelayDays))
	}
	return strings.Join(parts, ",")
}

func (f *modifierFlag) Set(value string) error {
	i := strings.LastIndex(value, "=")
	if i <= 0 {
		return fmt.Errorf("want NAME=PERCENT[:DELAY_DAYS], got %q", value)
	}
	m := core.EventModifier{Name: strings.TrimSpace(value[:i])}

	pct, delay, hasDelay := strings.Cut(value[i+1:], ":")
	var err error
	if m.ValueChangePercentage, err = strconv.ParseFloat(strings.TrimSpace(pct), 64); err != nil {
		return fmt.Errorf("invalid percentage %q", pct)
	}
	if hasDelay {
		if m.DelayDays, err = strconv.Atoi(strings.TrimSpace(delay)); err != nil {
			return fmt.Errorf("invalid delay %q", delay)
		}
	}
	f.mods = append(f.mods, m)
	return nil
}
