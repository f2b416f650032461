package config

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Settings is the agent's full configuration, loaded once at startup and
// passed explicitly into every component constructor. Nothing here is a
// process-wide mutable global.
type Settings struct {
	// Local HTTP surface for the desktop shell.
	Port string `envconfig:"AGENT_PORT" default:"8123"`
	// Static token the shell must present on every request.
	ShellToken string `envconfig:"AGENT_SHELL_TOKEN"`

	// Tally report interface.
	TallyURL     string `envconfig:"TALLY_URL" default:"http://localhost:9000" validate:"required,url"`
	TallyCompany string `envconfig:"TALLY_COMPANY" validate:"required"`
	// Start of the books, YYYYMMDD. Lower bound of the first-sync backfill.
	BookStartDate string `envconfig:"BOOK_START_DATE" validate:"required,len=8,numeric"`

	// Cloud backend.
	APIBaseURL   string `envconfig:"API_BASE_URL" default:"https://books.mmdatafocus.com/api/v1" validate:"required,url"`
	APIKey       string `envconfig:"API_KEY" validate:"required"`
	APIKeyHeader string `envconfig:"API_KEY_HEADER" default:"X-API-Key"`
	CompanyID    string `envconfig:"COMPANY_ID" validate:"required"`

	// Local embedded store.
	DatabasePath string `envconfig:"DATABASE_PATH" default:"tally-sync.db"`

	// Scheduling and pacing.
	SyncIntervalMinutes int `envconfig:"SYNC_INTERVAL_MINUTES" default:"5" validate:"min=1"`
	SubBatchDelayMs     int `envconfig:"SUB_BATCH_DELAY_MS" default:"500" validate:"min=0"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadSettings reads .env (if present), the environment, and validates
// the result. Validation failures are configuration-class errors raised
// before any batch work begins.
func LoadSettings() (*Settings, error) {
	_ = godotenv.Load()

	var settings Settings
	if err := envconfig.Process("", &settings); err != nil {
		return nil, err
	}
	settings.TallyURL = strings.TrimRight(strings.TrimSpace(settings.TallyURL), "/")
	settings.APIBaseURL = strings.TrimRight(strings.TrimSpace(settings.APIBaseURL), "/")

	validate := validator.New()
	if err := validate.Struct(&settings); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrNotConfigured, err)
	}
	return &settings, nil
}
