package openhousecli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phillip-england/openhouse/internal/credentials"
	"github.com/phillip-england/openhouse/internal/portalapp"
	"github.com/phillip-england/openhouse/internal/sheets"
	"github.com/phillip-england/openhouse/internal/signin"
)

func (a *app) addressesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addresses",
		Short: "Manage each agent's house addresses",
	}
	cmd.AddCommand(a.addressesListCmd(), a.addressesImportCmd())
	return cmd
}

func (a *app) addressesListCmd() *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the addresses on the Address worksheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, creds, gateway, err := a.loadBackends(ctx)
			if err != nil {
				return err
			}
			flow := signin.NewIntakeFlow(gateway, creds)

			agents := creds.Agents()
			if agent != "" {
				agents = []string{agent}
			}
			var failed int
			for _, name := range agents {
				ss, err := flow.ResolveAgentSpreadsheet(ctx, name)
				if err == nil {
					var addresses []string
					addresses, err = flow.LoadAddresses(ctx, ss)
					if err == nil {
						fmt.Fprintln(a.out, a.style.Title(fmt.Sprintf("%s (%s)", name, ss.ID())))
						for _, address := range addresses {
							fmt.Fprintln(a.out, "  "+address)
						}
						continue
					}
				}
				failed++
				msg, _ := signin.UserMessage(err)
				fmt.Fprintln(a.out, a.style.Error(name+": "+msg))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d agents have no usable address list", failed, len(agents))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent display name (default: every mapped agent)")
	return cmd
}

func (a *app) addressesImportCmd() *cobra.Command {
	var (
		agent string
		sheet string
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Append addresses from a .csv, .xls or .xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if agent == "" {
				return fmt.Errorf("%w: --agent is required", ErrUsage)
			}
			ctx := cmd.Context()
			path := args[0]

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			rows, err := sheets.ReadRows(f, filepath.Base(path), sheet)
			f.Close()
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			addresses := sheets.FirstColumn(rows)
			if len(addresses) == 0 {
				return fmt.Errorf("no addresses found in %s", path)
			}

			cfg, creds, gateway, err := a.loadBackends(ctx)
			if err != nil {
				return err
			}
			if err := ensureWorkbook(ctx, cfg, creds, agent); err != nil {
				return err
			}
			flow := signin.NewIntakeFlow(gateway, creds)
			ss, err := flow.ResolveAgentSpreadsheet(ctx, agent)
			if err != nil {
				return err
			}
			added, err := flow.ImportAddresses(ctx, ss, addresses)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, a.style.Success(fmt.Sprintf("added %d of %d addresses to %s", len(added), len(addresses), ss.ID())))
			for _, address := range added {
				fmt.Fprintln(a.out, "  "+address)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent display name")
	cmd.Flags().StringVar(&sheet, "sheet", signin.AddressSheet, "worksheet to read from a workbook")
	return cmd
}

// ensureWorkbook creates the agent's workbook on the xlsx backend, where a
// missing file is expected for a new agent.
func ensureWorkbook(ctx context.Context, cfg portalapp.Config, creds *credentials.Store, agent string) error {
	if !strings.EqualFold(cfg.SheetsBackend, portalapp.BackendXLSX) {
		return nil
	}
	id, err := creds.SpreadsheetFor(agent)
	if err != nil {
		return err
	}
	xg, err := sheets.NewXLSXGateway(cfg.WorkbookDir)
	if err != nil {
		return err
	}
	if _, err := xg.Open(ctx, id); !errors.Is(err, sheets.ErrSpreadsheetNotFound) {
		return err
	}
	_, err = xg.Create(ctx, id, signin.AddressSheet)
	return err
}
