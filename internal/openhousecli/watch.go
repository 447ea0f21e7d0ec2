package openhousecli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phillip-england/openhouse/internal/events"
	"github.com/phillip-england/openhouse/internal/ui"
)

func (a *app) watchCmd() *cobra.Command {
	var natsURL string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print sign-ins as they are recorded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if natsURL == "" {
				cfg, err := a.loadConfig()
				if err != nil {
					return err
				}
				natsURL = cfg.NATSURL
			}
			if natsURL == "" {
				return errors.New("NATS_URL is not set (or pass --nats-url)")
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return a.watch(ctx, natsURL)
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server (default: NATS_URL)")
	return cmd
}

func (a *app) watch(ctx context.Context, url string) error {
	sub, err := events.NewNATSSubscriber(url)
	if err != nil {
		return err
	}
	defer sub.Close()

	ch, unsubscribe, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return err
	}
	defer unsubscribe()

	fmt.Fprintln(a.errOut, a.style.Muted("watching "+events.TopicAll+" on "+url))
	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			fmt.Fprintln(a.out, formatEvent(a.style, data))
		}
	}
}

func formatEvent(style ui.Styler, data []byte) string {
	var ev events.VisitorRecorded
	if err := json.Unmarshal(data, &ev); err != nil || ev.Name == "" {
		return style.Muted(string(data))
	}
	line := fmt.Sprintf("%s  %s  %s <%s> %s", ev.Date, style.Title(ev.Worksheet), ev.Name, ev.Email, ev.Phone)
	if ev.NeedsRealtor == "Yes" {
		line += "  " + style.Warn("needs a realtor")
	}
	return line + "  " + style.Muted(ev.Agent)
}
