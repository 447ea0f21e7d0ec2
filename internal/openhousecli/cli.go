// Package openhousecli implements the openhouse command line.
package openhousecli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phillip-england/openhouse/internal/credentials"
	"github.com/phillip-england/openhouse/internal/portalapp"
	"github.com/phillip-england/openhouse/internal/sheets"
	"github.com/phillip-england/openhouse/internal/ui"
)

var ErrUsage = errors.New("usage")

type app struct {
	in      *os.File
	out     io.Writer
	errOut  io.Writer
	style   ui.Styler
	envFile string
}

func newApp(in *os.File, out, errOut io.Writer) *app {
	return &app{in: in, out: out, errOut: errOut, style: ui.NewStyler(), envFile: ".env"}
}

func Execute(args []string) error {
	return newApp(os.Stdin, os.Stdout, os.Stderr).execute(args)
}

// PrintUsage writes the command summary.
func PrintUsage(w io.Writer) {
	root := newApp(os.Stdin, w, w).rootCmd()
	root.SetOut(w)
	_ = root.Usage()
}

func (a *app) execute(args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	err := root.Execute()
	if err != nil && strings.HasPrefix(err.Error(), "unknown command") {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "openhouse",
		Short:         "Open house visitor sign-in portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "path to .env file")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})
	root.AddCommand(
		a.setupCmd(),
		a.runCmd(),
		a.hashPasswordCmd(),
		a.addressesCmd(),
		a.backupCmd(),
		a.watchCmd(),
	)
	return root
}

func (a *app) loadConfig() (portalapp.Config, error) {
	return portalapp.LoadConfig(a.envFile)
}

// loadBackends opens what the address commands need: config, secrets and the
// configured spreadsheet backend.
func (a *app) loadBackends(ctx context.Context) (portalapp.Config, *credentials.Store, sheets.Gateway, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return portalapp.Config{}, nil, nil, err
	}
	creds, err := credentials.Load(cfg.SecretsPath)
	if err != nil {
		return portalapp.Config{}, nil, nil, err
	}
	gateway, err := portalapp.OpenGateway(ctx, cfg, creds)
	if err != nil {
		return portalapp.Config{}, nil, nil, err
	}
	return cfg, creds, gateway, nil
}
