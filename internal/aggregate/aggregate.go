// Package aggregate derives chart series from raw transaction rows. It is the
// only place the client groups or reduces rows; every view goes through it.
package aggregate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
)

// MonthlyTotal is the inflow and outflow of one calendar month.
type MonthlyTotal struct {
	Year    int
	Month   int
	Inflow  decimal.Decimal
	Outflow decimal.Decimal
	Net     decimal.Decimal
}

// Label returns the month as YYYY-MM.
func (m MonthlyTotal) Label() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

// BalancePoint is the running balance recorded for one date.
type BalancePoint struct {
	Date    string
	Balance decimal.Decimal
}

// Totals are the overview figures for a set of rows.
type Totals struct {
	Inflow         decimal.Decimal
	Outflow        decimal.Decimal
	Net            decimal.Decimal
	CurrentBalance decimal.Decimal
	Rows           int
}

// Series bundles every derived series for one set of rows.
type Series struct {
	Monthly []MonthlyTotal
	Balance []BalancePoint
	Totals  Totals
}

// Compute derives all series from rows.
func Compute(rows []core.Transaction) Series {
	return Series{
		Monthly: Monthly(rows),
		Balance: Balance(rows),
		Totals:  ComputeTotals(rows),
	}
}

// Monthly groups rows by (year, month) and returns the groups in
// chronological order. Rows without a usable date are ignored.
func Monthly(rows []core.Transaction) []MonthlyTotal {
	type key struct{ year, month int }
	groups := make(map[key]*MonthlyTotal)

	for _, r := range rows {
		y, m := r.YearMonth()
		if y == 0 {
			continue
		}
		k := key{y, m}
		g, ok := groups[k]
		if !ok {
			g = &MonthlyTotal{Year: y, Month: m}
			groups[k] = g
		}
		g.Inflow = g.Inflow.Add(r.Inflow)
		g.Outflow = g.Outflow.Add(r.Outflow)
	}

	out := make([]MonthlyTotal, 0, len(groups))
	for _, g := range groups {
		g.Net = g.Inflow.Sub(g.Outflow)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// Balance returns one point per date, ascending. Rows are stably sorted by
// date first, so when several rows share a date the last one in input order
// wins.
func Balance(rows []core.Transaction) []BalancePoint {
	sorted := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		if r.DateKey() != "" {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DateKey() < sorted[j].DateKey() })

	out := make([]BalancePoint, 0, len(sorted))
	for _, r := range sorted {
		date := r.DateKey()
		if n := len(out); n > 0 && out[n-1].Date == date {
			out[n-1].Balance = r.RunningBalance
			continue
		}
		out = append(out, BalancePoint{Date: date, Balance: r.RunningBalance})
	}
	return out
}

// ComputeTotals sums inflow and outflow. CurrentBalance is the running
// balance of the latest date.
func ComputeTotals(rows []core.Transaction) Totals {
	var t Totals
	for _, r := range rows {
		t.Inflow = t.Inflow.Add(r.Inflow)
		t.Outflow = t.Outflow.Add(r.Outflow)
	}
	t.Net = t.Inflow.Sub(t.Outflow)
	t.Rows = len(rows)
	if b := Balance(rows); len(b) > 0 {
		t.CurrentBalance = b[len(b)-1].Balance
	}
	return t
}

// FromJSON decodes raw rows and computes the series. Input that is not a
// JSON array yields empty series; elements that are not transaction
// objects are skipped.
func FromJSON(raw []byte) Series {
	return Compute(DecodeRows(raw))
}

// DecodeRows decodes a JSON array of transactions leniently.
func DecodeRows(raw []byte) []core.Transaction {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	rows := make([]core.Transaction, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var r core.Transaction
		if err := json.Unmarshal(item, &r); err != nil {
			continue
		}
		rows = append(rows, r)
	}
	return rows
}
