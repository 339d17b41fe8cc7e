package aggregate

import (
	"testing"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMonthlyGroupsByYearAndMonth(t *testing.T) {
	rows := []core.Transaction{
		{Date: "2024-02-01", Inflow: d("100"), Outflow: d("40"), Year: 2024, Month: 2},
		{Date: "2024-01-15", Inflow: d("10.5"), Outflow: d("0")},
		{Date: "2024-02-20", Inflow: d("50"), Outflow: d("70"), Year: 2024, Month: 2},
		{Date: "2023-12-31", Inflow: d("1"), Outflow: d("2"), Year: 2023, Month: 12},
		{Date: "", Inflow: d("999")},
	}

	got := Monthly(rows)
	want := []struct {
		label           string
		in, out, netAmt string
	}{
		{"2023-12", "1", "2", "-1"},
		{"2024-01", "10.5", "0", "10.5"},
		{"2024-02", "150", "110", "40"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d months, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		m := got[i]
		if m.Label() != w.label || !m.Inflow.Equal(d(w.in)) || !m.Outflow.Equal(d(w.out)) || !m.Net.Equal(d(w.netAmt)) {
			t.Errorf("month %d = %s in=%s out=%s net=%s, want %+v", i, m.Label(), m.Inflow, m.Outflow, m.Net, w)
		}
	}
}

func TestBalanceLastWriteWinsPerDate(t *testing.T) {
	rows := []core.Transaction{
		{Date: "2024-01-02", RunningBalance: d("200")},
		{Date: "2024-01-01", RunningBalance: d("100")},
		{Date: "2024-01-02", RunningBalance: d("250")},
		{Date: "2024-01-01T00:00:00", RunningBalance: d("110")},
	}

	got := Balance(rows)
	if len(got) != 2 {
		t.Fatalf("got %d points: %+v", len(got), got)
	}
	if got[0].Date != "2024-01-01" || !got[0].Balance.Equal(d("110")) {
		t.Errorf("first point %+v", got[0])
	}
	if got[1].Date != "2024-01-02" || !got[1].Balance.Equal(d("250")) {
		t.Errorf("second point %+v", got[1])
	}
}

func TestComputeTotals(t *testing.T) {
	rows := []core.Transaction{
		{Date: "2024-01-02", Inflow: d("300"), Outflow: d("100"), RunningBalance: d("700")},
		{Date: "2024-01-01", Inflow: d("200"), Outflow: d("0"), RunningBalance: d("500")},
	}
	tot := ComputeTotals(rows)
	if !tot.Inflow.Equal(d("500")) || !tot.Outflow.Equal(d("100")) || !tot.Net.Equal(d("400")) {
		t.Errorf("unexpected totals %+v", tot)
	}
	if !tot.CurrentBalance.Equal(d("700")) || tot.Rows != 2 {
		t.Errorf("current balance %s rows %d", tot.CurrentBalance, tot.Rows)
	}
}

func TestFromJSONMalformedInputYieldsEmptySeries(t *testing.T) {
	inputs := []string{
		``,
		`null`,
		`{}`,
		`{"detail":"error"}`,
		`"text"`,
		`42`,
		`[`,
		`[]`,
		`[1, "a", null, []]`,
	}
	for _, in := range inputs {
		s := FromJSON([]byte(in))
		if len(s.Monthly) != 0 || len(s.Balance) != 0 || s.Totals.Rows != 0 {
			t.Errorf("FromJSON(%q) = %+v, want empty", in, s)
		}
	}
}

func TestFromJSONSkipsInvalidElements(t *testing.T) {
	raw := `[
		{"date":"2024-03-01","inflow_amount":10,"outflow_amount":"5","running_balance":5,"year":2024,"month":3},
		"garbage",
		{"date":"2024-03-02","inflow_amount":"not a number"},
		{"date":"2024-03-02","inflow_amount":1,"outflow_amount":0,"running_balance":6}
	]`

	s := FromJSON([]byte(raw))
	if s.Totals.Rows != 2 {
		t.Fatalf("rows=%d want 2", s.Totals.Rows)
	}
	if len(s.Monthly) != 1 || !s.Monthly[0].Inflow.Equal(d("11")) {
		t.Errorf("monthly=%+v", s.Monthly)
	}
	if len(s.Balance) != 2 || !s.Totals.CurrentBalance.Equal(d("6")) {
		t.Errorf("balance=%+v", s.Balance)
	}
}
