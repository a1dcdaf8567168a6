package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/hvac-link-core/internal/device"
)

func newDeviceCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "List, create, enrich and inspect devices",
	}
	cmd.AddCommand(
		newDeviceListCmd(root),
		newDeviceAddCmd(root),
		newDeviceEnrichCmd(root),
		newDeviceHistoryCmd(root),
		newDeviceRemoveCmd(root),
	)
	return cmd
}

func newDeviceListCmd(root *rootOptions) *cobra.Command {
	var (
		gatewayID string
		loc       device.Location
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List devices, optionally filtered by gateway or location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var list []device.Device
			switch {
			case gatewayID != "":
				list, err = a.reconciler.ListByGateway(cmd.Context(), gatewayID)
			case !loc.IsZero():
				list, err = a.reconciler.ListByLocation(cmd.Context(), loc)
			default:
				list, err = a.reconciler.ListDevices(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printDevices(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVar(&gatewayID, "gateway", "", "only devices behind this gateway")
	addLocationFlags(cmd, &loc)
	return cmd
}

func newDeviceAddCmd(root *rootOptions) *cobra.Command {
	var d device.Device
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a device ahead of its first report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.reconciler.CreateDevice(cmd.Context(), &d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created device %s (%s at %s)\n", d.ID, d.Name, d.Address)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&d.GatewayID, "gateway", "", "owning gateway")
	f.StringVar(&d.Address, "address", "", "gateway-local unit address")
	f.StringVar(&d.Name, "name", "", "display name")
	addLocationFlags(cmd, &d.Location)
	_ = cmd.MarkFlagRequired("gateway")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newDeviceEnrichCmd(root *rootOptions) *cobra.Command {
	var (
		name string
		loc  device.Location
	)
	cmd := &cobra.Command{
		Use:   "enrich <device-id>",
		Short: "Name and place an auto-discovered device",
		Long: `Set the name and location of a device and mark it active. Devices
created from a gateway report start out provisional with a placeholder
name. An omitted --name keeps the current one; location fields are
replaced as given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.reconciler.Enrich(cmd.Context(), args[0], name, loc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "device %s is now %s: %q\n", d.ID, d.Lifecycle, d.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	addLocationFlags(cmd, &loc)
	return cmd
}

func newDeviceHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <device-id>",
		Short: "Show recorded status snapshots, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.reconciler.GetDevice(cmd.Context(), args[0]); err != nil {
				return err
			}
			entries, err := a.history.GetHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	return cmd
}

func newDeviceRemoveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <device-id>",
		Short: "Delete a device together with its status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.reconciler.DeleteDevice(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed device %s\n", args[0])
			return nil
		},
	}
}

func printDevices(out io.Writer, devices []device.Device) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGATEWAY\tADDRESS\tNAME\tLIFECYCLE\tONLINE\tSTATUS\tMODE\tFAN\tTEMP\tSET\tBUILDING\tFLOOR\tROOM")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.GatewayID, d.Address, d.Name, d.Lifecycle, d.Online,
			d.Status, d.Mode, d.FanSpeed, formatTemp(d.CurrentTemp), formatTemp(d.SetTemp),
			d.Location.Building, d.Location.Floor, d.Location.Room)
	}
	return tw.Flush()
}

func printHistory(out io.Writer, entries []device.HistoryEntry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSOURCE\tONLINE\tSTATUS\tMODE\tFAN\tTEMP\tSET")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.Source, e.Online,
			e.Status, e.Mode, e.FanSpeed, formatTemp(e.CurrentTemp), formatTemp(e.SetTemp))
	}
	return tw.Flush()
}

func formatTemp(t *float64) string {
	if t == nil {
		return "-"
	}
	return strconv.FormatFloat(*t, 'f', 1, 64)
}
