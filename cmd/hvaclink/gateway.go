package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/hvac-link-core/internal/gateway"
)

func newGatewayCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Register and inspect gateways",
	}
	cmd.AddCommand(
		newGatewayAddCmd(root),
		newGatewayListCmd(root),
		newGatewayRemoveCmd(root),
		newGatewayQueryCmd(root),
	)
	return cmd
}

func newGatewayAddCmd(root *rootOptions) *cobra.Command {
	var g gateway.Gateway
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a gateway or update its topics",
		Long: `Register a gateway with its upstream (subscribe) and downstream (publish)
topics. Running add again for the same ID updates the topics and
description; a running serve process subscribes new topics on its next
resync.`,
		Example: `  hvaclink gateway add --id GW1 --subscribe site/gw1/up --publish site/gw1/down`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			saved, created, err := a.directory.Upsert(cmd.Context(), g)
			if err != nil {
				return err
			}
			verb := "updated"
			if created {
				verb = "registered"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s gateway %s (subscribe %s, publish %s)\n",
				verb, saved.GatewayID, saved.SubscribeTopic, saved.PublishTopic)
			if !a.codes.HasGateway(saved.GatewayID) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: no code table configured for %s; its reports will be rejected\n", saved.GatewayID)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&g.GatewayID, "id", "", "gateway identifier (the uuid field of its messages)")
	f.StringVar(&g.SubscribeTopic, "subscribe", "", "topic the gateway reports on")
	f.StringVar(&g.PublishTopic, "publish", "", "topic the gateway listens on")
	f.StringVar(&g.Description, "description", "", "free-text description")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("subscribe")
	_ = cmd.MarkFlagRequired("publish")
	return cmd
}

func newGatewayListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered gateways",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			gateways, err := a.directory.List(cmd.Context())
			if err != nil {
				return err
			}
			return printGateways(cmd.OutOrStdout(), gateways)
		},
	}
}

func newGatewayRemoveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <gateway-id>",
		Short: "Remove a gateway and its devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.directory.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed gateway %s\n", args[0])
			return nil
		},
	}
}

func newGatewayQueryCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <gateway-id>",
		Short: "Ask a gateway to report every unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGatewayQuery(cmd.Context(), root, args[0], cmd.OutOrStdout())
		},
	}
}

func runGatewayQuery(ctx context.Context, root *rootOptions, gatewayID string, out io.Writer) error {
	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sup, err := a.newSupervisor(nil)
	if err != nil {
		return err
	}
	defer sup.Stop()

	if err := a.newDispatcher(sup).QueryGateway(ctx, gatewayID); err != nil {
		return err
	}
	fmt.Fprintf(out, "status query sent to %s\n", gatewayID)
	return nil
}

func printGateways(out io.Writer, gateways []gateway.Gateway) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tONLINE\tSUBSCRIBE\tPUBLISH\tLAST HEARD\tDESCRIPTION")
	for _, g := range gateways {
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\t%s\n",
			g.GatewayID, g.Online, g.SubscribeTopic, g.PublishTopic,
			g.UpdatedAt.Format("2006-01-02 15:04:05"), g.Description)
	}
	return tw.Flush()
}
