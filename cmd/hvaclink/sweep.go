package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/hvac-link-core/internal/gateway"
)

func newSweepCmd(root *rootOptions) *cobra.Command {
	var staleAfter time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark gateways that stopped reporting offline",
		Long: `Run one staleness sweep: every online gateway not heard from within
--stale-after (default gateways.stale_after) is marked offline and, when
gateways.cascade_devices is set, so are its devices.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := gateway.SweeperConfig{
				StaleAfter: a.cfg.Gateways.StaleAfter,
				Cascade:    a.cfg.Gateways.CascadeDevices,
			}
			if staleAfter > 0 {
				cfg.StaleAfter = staleAfter
			}
			sweeper := gateway.NewSweeper(a.directory, a.reconciler, cfg)
			sweeper.SetLogger(a.log.Component("sweeper"))

			res, err := sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d gateway(s) and %d device(s) offline\n", len(res.Gateways), res.Devices)
			for _, id := range res.Gateways {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "override the staleness window")
	return cmd
}
