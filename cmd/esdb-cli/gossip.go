package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdbclient"
	"github.com/spf13/cobra"
)

func newGossipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gossip",
		Short: "Show the cluster members known to the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := client.ReadGossip(context.Background(), esdbclient.CallOptions{})
			if err != nil {
				return fmt.Errorf("failed to read gossip: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENDPOINT\tSTATE\tALIVE\tID")
			for _, m := range members {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", m.Endpoint, m.State, m.Alive, m.ID)
			}
			return w.Flush()
		},
	}
}
