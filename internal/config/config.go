// Package config loads fluxo settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"fluxo/internal/core"
)

type Config struct {
	// Backend
	APIURL         string
	RequestTimeout time.Duration
	LegacySummary  bool

	// Logging
	LogLevel string

	// Journal (empty path disables it)
	JournalDBPath string

	// AMQP (empty URL disables cross-process broadcast)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Export
	ExportBackend            string
	GoogleSpreadsheetID      string
	GoogleForecastSheet      string
	GoogleMonthlySheet       string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Worker
	ExportDays      int
	RefreshSchedule string
	DedupeTTL       time.Duration
}

var (
	validBackends  = []string{"memory", "sheets"}
	validLogLevels = []string{"debug", "info", "warn", "warning", "error"}
)

func Load() *Config {
	serviceAccountFile := getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	if serviceAccountFile == "" {
		serviceAccountFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")
	}

	cfg := &Config{
		APIURL:         getEnv("FLUXO_API_URL", "http://localhost:8000"),
		RequestTimeout: getEnvDuration("FLUXO_REQUEST_TIMEOUT", 60*time.Second),
		LegacySummary:  getEnvBool("FLUXO_LEGACY_SUMMARY", true),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		JournalDBPath: getEnv("JOURNAL_DB_PATH", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fluxo"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "dataset_changed"),

		ExportBackend:            getEnv("EXPORT_BACKEND", "memory"),
		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleForecastSheet:      getEnv("GOOGLE_FORECAST_SHEET", "Previsao"),
		GoogleMonthlySheet:       getEnv("GOOGLE_MONTHLY_SHEET", "Mensal"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: serviceAccountFile,

		ExportDays:      getEnvInt("EXPORT_DAYS", 30),
		RefreshSchedule: getEnv("REFRESH_SCHEDULE", ""),
		DedupeTTL:       getEnvDuration("DEDUPE_TTL", 10*time.Minute),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate backend URL
	if parsedURL, err := url.Parse(c.APIURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid API URL '%s': %v", c.APIURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	} else if parsedURL.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid API URL '%s': missing host", c.APIURL))
	}

	if c.RequestTimeout < 0 {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: cannot be negative", c.RequestTimeout))
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	// Journal directory must exist or be creatable
	if c.JournalDBPath != "" {
		dir := filepath.Dir(c.JournalDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create journal directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if !slices.Contains(validBackends, c.ExportBackend) {
		errors = append(errors, fmt.Sprintf("invalid export backend '%s': must be one of %v", c.ExportBackend, validBackends))
	}

	if c.ExportBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets export")
		}
		if c.GoogleForecastSheet == "" || c.GoogleMonthlySheet == "" {
			errors = append(errors, "forecast and monthly sheet names are required when using sheets export")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if err := core.ValidateForecastDays(c.ExportDays); err != nil {
		errors = append(errors, fmt.Sprintf("invalid export days %d: must be between 1 and %d", c.ExportDays, core.MaxForecastDays))
	}

	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid refresh schedule '%s': %v", c.RefreshSchedule, err))
		}
	}

	if c.DedupeTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid dedupe TTL %v: cannot be negative", c.DedupeTTL))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
