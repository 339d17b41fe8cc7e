package backend

import (
	"errors"
	"fmt"

	"fluxo/internal/config"
)

// FromAppConfig converts the application config to exporter config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	t := Type(appConfig.ExportBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid export backend in config: %s", appConfig.ExportBackend)
	}

	return Config{
		Type:                     t,
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleForecastSheet:      appConfig.GoogleForecastSheet,
		GoogleMonthlySheet:       appConfig.GoogleMonthlySheet,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}, nil
}

// Validate validates the exporter configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid export backend: %s", c.Type)
	}

	if c.Type == SheetsBackend {
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets export")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			return errors.New("service account credentials are required for sheets export")
		}
	}

	return nil
}

// Types returns all valid export backend types
func Types() []Type {
	return []Type{MemoryBackend, SheetsBackend}
}
