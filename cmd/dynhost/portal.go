package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/spf13/cobra"
)

func newCmdPortal() *cobra.Command {
	var ipv4 string

	cmd := &cobra.Command{
		Use:   "portal --ipv4 ADDR",
		Short: "Move the tunnel endpoint without touching DNS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := netip.ParseAddr(ipv4)
			if err != nil || !addr.Is4() {
				return fmt.Errorf("--ipv4: %q is not an IPv4 address", ipv4)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Zones = nil // the portal needs no zones

			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.newPortal()
			if err != nil {
				return fmt.Errorf("configuring portal: %w", err)
			}
			if session == nil {
				return errors.New("portal is disabled; set DYNHOST_PORTAL_USER or portal.enabled")
			}

			outcome := session.PropagateEndpoint(cmd.Context(), addr)
			if !outcome.OK() {
				return fmt.Errorf("portal session stopped at %s: %w", outcome.Step, outcome.Err)
			}
			a.logger.Info("tunnel endpoint updated", slog.String("ipv4", addr.String()))
			fmt.Fprintf(cmd.OutOrStdout(), "tunnel endpoint set to %s\n", addr)
			return nil
		},
	}

	cmd.Flags().StringVar(&ipv4, "ipv4", "", "New IPv4 endpoint (required)")
	_ = cmd.MarkFlagRequired("ipv4")
	return cmd
}
