// Package workbook inspects an Excel workbook before it is uploaded.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/xuri/excelize/v2"

	"fluxo/internal/log"
)

// Sheets the backend reads from an uploaded workbook.
const (
	CashSheet    = "FluxoDeCaixa"
	AccrualSheet = "DadosContabeis"
)

// RequiredSheets lists the expected sheets in order.
var RequiredSheets = []string{CashSheet, AccrualSheet}

var ErrUnreadable = errors.New("file is not a readable Excel workbook")

// Info describes the sheets of a workbook.
type Info struct {
	Name    string
	Sheets  []string
	Rows    map[string]int
	Missing []string
}

// Complete reports whether every required sheet is present.
func (i Info) Complete() bool {
	return len(i.Missing) == 0
}

// Inspect lists the sheets in r and the data rows in each. A missing
// required sheet is not an error: the backend decides what it accepts.
func Inspect(name string, r io.Reader) (Info, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
	}
	defer f.Close()

	info := Info{
		Name:   name,
		Sheets: f.GetSheetList(),
		Rows:   make(map[string]int),
	}
	for _, sheet := range info.Sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		info.Rows[sheet] = len(rows)
	}
	for _, req := range RequiredSheets {
		if !slices.Contains(info.Sheets, req) {
			info.Missing = append(info.Missing, req)
		}
	}
	return info, nil
}

// Warn logs the layout hint when required sheets are missing.
func (i Info) Warn(logger *log.Logger) {
	if i.Complete() {
		return
	}
	logger.WithComponent(log.ComponentWorkbook).Warn("Workbook is missing expected sheets",
		"file", i.Name,
		"missing", i.Missing,
		"hint", fmt.Sprintf("sheet %q holds cash-basis inflows and outflows, %q holds accrual-basis revenue and costs", CashSheet, AccrualSheet),
	)
}
