package portalapp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/phillip-england/openhouse/internal/credentials"
	"github.com/phillip-england/openhouse/internal/envutil"
	"github.com/phillip-england/openhouse/internal/sheets"
	"github.com/phillip-england/openhouse/internal/signin"
)

const (
	BackendGoogle = "google"
	BackendXLSX   = "xlsx"
	BackendMemory = "memory"
)

type Config struct {
	Addr          string        `env:"PORTAL_ADDR"          envDefault:":3000"`
	SecretsPath   string        `env:"SECRETS_PATH"         envDefault:".streamlit/secrets.toml"`
	SheetsBackend string        `env:"SHEETS_BACKEND"       envDefault:"google"`
	WorkbookDir   string        `env:"WORKBOOK_DIR"         envDefault:"data/workbooks"`
	SessionDBPath string        `env:"SESSION_DB_PATH"`
	SessionTTL    time.Duration `env:"SESSION_TTL"          envDefault:"12h"`
	SecureCookies bool          `env:"SECURE_COOKIES"       envDefault:"false"`
	Timezone      string        `env:"PORTAL_TIMEZONE"      envDefault:"Local"`
	NATSURL       string        `env:"NATS_URL"`
	OTelEndpoint  string        `env:"OTEL_ENDPOINT"`
	ServiceName   string        `env:"OTEL_SERVICE_NAME"    envDefault:"openhouse-portal"`
	DemoAddresses []string      `env:"DEMO_ADDRESSES"       envSeparator:";"`
	ReadTimeout   time.Duration `env:"PORTAL_READ_TIMEOUT"  envDefault:"5s"`
	WriteTimeout  time.Duration `env:"PORTAL_WRITE_TIMEOUT" envDefault:"30s"`
}

// DefaultConfigFromEnv parses the environment and falls back to the defaults
// for anything malformed.
func DefaultConfigFromEnv() Config {
	cfg, err := LoadConfig(".env")
	if err != nil {
		log.Printf("portal config: %v; using defaults", err)
		cfg = Config{}
		_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	}
	return cfg
}

// LoadConfig reads envFile (without overriding the environment) and parses it.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := envutil.LoadDotEnv(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.SheetsBackend) {
	case BackendGoogle, BackendXLSX, BackendMemory:
	default:
		return fmt.Errorf("SHEETS_BACKEND must be google, xlsx or memory, got %q", c.SheetsBackend)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves PORTAL_TIMEZONE. "Local" and empty mean the host zone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("PORTAL_TIMEZONE: %w", err)
	}
	return loc, nil
}

// OpenGateway builds the configured spreadsheet backend, traced.
func OpenGateway(ctx context.Context, cfg Config, creds *credentials.Store) (sheets.Gateway, error) {
	var g sheets.Gateway
	switch strings.ToLower(cfg.SheetsBackend) {
	case BackendGoogle:
		key, err := creds.ServiceAccountJSON()
		if err != nil {
			return nil, fmt.Errorf("google backend: %w", err)
		}
		gg, err := sheets.NewGoogleGateway(ctx, key)
		if err != nil {
			return nil, err
		}
		g = gg
	case BackendXLSX:
		xg, err := sheets.NewXLSXGateway(cfg.WorkbookDir)
		if err != nil {
			return nil, err
		}
		g = xg
	case BackendMemory:
		mg := sheets.NewMemoryGateway()
		if creds != nil {
			seedDemo(mg, creds, cfg.DemoAddresses)
		}
		g = mg
	default:
		return nil, fmt.Errorf("unknown sheets backend %q", cfg.SheetsBackend)
	}
	return sheets.WithTracing(g, nil), nil
}

// seedDemo gives every mapped agent an in-memory spreadsheet whose Address
// worksheet lists addresses.
func seedDemo(g *sheets.MemoryGateway, creds *credentials.Store, addresses []string) {
	rows := make([][]string, 0, len(addresses))
	for _, a := range addresses {
		if a = strings.TrimSpace(a); a != "" {
			rows = append(rows, []string{a})
		}
	}
	for _, agent := range creds.Agents() {
		id, err := creds.SpreadsheetFor(agent)
		if err != nil {
			continue
		}
		g.Seed(id, signin.AddressSheet, rows...)
	}
}
