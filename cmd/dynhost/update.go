package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"gitlab.bluewillows.net/root/dynhost/internal/dispatcher"
	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

func newCmdUpdate() *cobra.Command {
	var p struct {
		host, zone, ipv4, ipv6 string
		wait                   bool
	}

	cmd := &cobra.Command{
		Use:   "update --host HOST [--ipv4 ADDR] [--ipv6 ADDR]",
		Short: "Update a host once and print the response",
		Long: "update runs one update the way the endpoint would, without the token\n" +
			"and allow-list checks, and prints the JSON response.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if p.zone == "" {
				p.zone = cfg.DefaultZone
			}
			params, err := updateParams(p.host, p.zone, p.ipv4, p.ipv6)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.newDispatcher()
			if err != nil {
				return err
			}
			resp := d.Handle(cmd.Context(), params)
			if p.wait {
				d.Wait()
			}

			out, err := json.Marshal(resp)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if !resp.OK() {
				return fmt.Errorf("update failed: %d %s", resp.Status(), resp.Title)
			}
			return nil
		},
	}

	addTargetFlags(cmd.Flags(), &p.host, &p.zone, &p.ipv4, &p.ipv6)
	cmd.Flags().BoolVar(&p.wait, "wait", true, "Wait for the portal session before exiting")
	_ = cmd.MarkFlagRequired("host")
	return cmd
}

// addTargetFlags declares the flags naming what an update changes.
func addTargetFlags(fs *pflag.FlagSet, host, zoneName, ipv4, ipv6 *string) {
	fs.StringVar(host, "host", "", "Host name to update (required)")
	fs.StringVar(zoneName, "zone", "", "Zone name (default: configured default zone)")
	fs.StringVar(ipv4, "ipv4", "", "New IPv4 address")
	fs.StringVar(ipv6, "ipv6", "", "New IPv6 address")
}

var errNoAddress = errors.New("at least one of --ipv4 and --ipv6 is required")

// updateParams parses the command line the way the endpoint parses a
// request.
func updateParams(host, zoneName, ipv4, ipv6 string) (dispatcher.Params, error) {
	p := dispatcher.Params{Zone: zoneName}
	name, err := zone.NormalizeHost(host)
	if err != nil {
		return p, fmt.Errorf("--host: %q is not a valid host name: %w", host, err)
	}
	p.Host = name
	if ipv4 == "" && ipv6 == "" {
		return p, errNoAddress
	}
	if ipv4 != "" {
		addr, err := netip.ParseAddr(ipv4)
		if err != nil || !addr.Is4() {
			return p, fmt.Errorf("--ipv4: %q is not an IPv4 address", ipv4)
		}
		p.IPv4 = addr
	}
	if ipv6 != "" {
		addr, err := netip.ParseAddr(ipv6)
		if err != nil || !addr.Is6() || addr.Is4In6() {
			return p, fmt.Errorf("--ipv6: %q is not an IPv6 address", ipv6)
		}
		p.IPv6 = addr
	}
	return p, nil
}
