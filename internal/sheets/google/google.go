// Package google exports refreshed series to a Google spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fluxo/internal/log"
	ports "fluxo/internal/sheets"
)

// Options selects the spreadsheet, its sheets and the credentials.
type Options struct {
	SpreadsheetID   string
	ForecastSheet   string
	MonthlySheet    string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	forecastSheet string
	monthlySheet  string
	logger        *log.Logger
}

var _ ports.Exporter = (*Client)(nil)

// New creates an exporter authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, opts Options, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	forecast := opts.ForecastSheet
	if forecast == "" {
		forecast = "Previsao"
	}
	monthly := opts.MonthlySheet
	if monthly == "" {
		monthly = "Mensal"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		forecastSheet: forecast,
		monthlySheet:  monthly,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	var credentialsJSON []byte

	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		credentialsJSON = []byte(opts.CredentialsJSON)
	case strings.TrimSpace(opts.CredentialsFile) != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Export clears both sheets and writes the snapshot in two batch calls.
func (c *Client) Export(ctx context.Context, snapshot ports.Snapshot) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	clearReq := &gsheet.BatchClearValuesRequest{
		Ranges: []string{sheetRange(c.forecastSheet), sheetRange(c.monthlySheet)},
	}
	if _, err := c.svc.Spreadsheets.Values.BatchClear(c.spreadsheetID, clearReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheets: %w", err)
	}

	update := &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data: []*gsheet.ValueRange{
			{Range: c.forecastSheet + "!A1", Values: ports.ForecastRows(snapshot.Forecast)},
			{Range: c.monthlySheet + "!A1", Values: ports.MonthlyRows(snapshot.Monthly)},
		},
	}
	resp, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, update).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update sheets: %w", err)
	}

	c.logger.InfoContext(ctx, "Exported snapshot to spreadsheet",
		"spreadsheet_id", c.spreadsheetID,
		"forecast_rows", len(snapshot.Forecast),
		"monthly_rows", len(snapshot.Monthly),
		"updated_cells", resp.TotalUpdatedCells)
	return nil
}

func sheetRange(sheet string) string {
	return sheet + "!A:Z"
}
