package openhousecli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/phillip-england/openhouse/internal/envutil"
	"github.com/phillip-england/openhouse/internal/portalapp"
	"github.com/phillip-england/openhouse/internal/security"
	"github.com/phillip-england/openhouse/internal/ui"
)

func (a *app) setupCmd() *cobra.Command {
	var (
		addr        string
		backend     string
		secretsPath string
		workbookDir string
		sessionDB   string
		timezone    string
		natsURL     string
		force       bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a .env file for the portal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := portalapp.Config{
				SheetsBackend: backend,
				SessionTTL:    12 * time.Hour,
				Timezone:      timezone,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			values := map[string]string{
				"PORTAL_ADDR":     addr,
				"SECRETS_PATH":    secretsPath,
				"SHEETS_BACKEND":  backend,
				"WORKBOOK_DIR":    workbookDir,
				"SESSION_DB_PATH": sessionDB,
				"PORTAL_TIMEZONE": timezone,
			}
			if natsURL != "" {
				values["NATS_URL"] = natsURL
			}
			if err := envutil.WriteDotEnv(a.envFile, values, force); err != nil {
				return err
			}
			fmt.Fprintln(a.out, a.style.Success("wrote "+a.envFile))
			if _, err := os.Stat(secretsPath); err != nil {
				fmt.Fprintln(a.out, a.style.Warn("secrets file "+secretsPath+" not found; logins will fail until it exists"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":3000", "portal listen address")
	cmd.Flags().StringVar(&backend, "backend", portalapp.BackendGoogle, "spreadsheet backend: google, xlsx or memory")
	cmd.Flags().StringVar(&secretsPath, "secrets", ".streamlit/secrets.toml", "path to the secrets file")
	cmd.Flags().StringVar(&workbookDir, "workbook-dir", "data/workbooks", "directory for xlsx workbooks")
	cmd.Flags().StringVar(&sessionDB, "session-db", "data/sessions.db", "SQLite session database (empty keeps sessions in memory)")
	cmd.Flags().StringVar(&timezone, "timezone", "Local", "time zone for visitor dates")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server for sign-in events")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing env file")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve the sign-in portal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := portalapp.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func (a *app) hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for a [credentials.<username>] entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := ui.ReadSecret(a.in, a.errOut, "Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			hash, err := security.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, hash)
			fmt.Fprintln(a.errOut, a.style.Muted("paste this value into the password field of the agent's credentials entry"))
			return nil
		},
	}
}
