package main

import (
	"context"
	"fmt"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdbclient"
	"github.com/spf13/cobra"
)

func newDeleteCommand() *cobra.Command {
	var (
		stream    string
		expected  string
		tombstone bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a stream",
		Long: `Delete a stream. A soft delete lets the stream be written again, continuing
its revisions. With --tombstone the stream can never be used again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := parseExpected(expected)
			if err != nil {
				return err
			}

			opts := esdbclient.DeleteStreamOptions{Expected: state}
			remove := client.DeleteStream
			if tombstone {
				remove = client.TombstoneStream
			}

			result, err := remove(context.Background(), stream, opts)
			if err != nil {
				return fmt.Errorf("failed to delete stream: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Stream '%s' deleted\n", stream)
			if result.Position != nil {
				fmt.Fprintf(out, "Position: %s\n", result.Position)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stream, "stream", "", "Stream to delete (required)")
	cmd.Flags().StringVar(&expected, "expected", "any", "Expected stream state: any, no-stream, stream-exists or a revision")
	cmd.Flags().BoolVar(&tombstone, "tombstone", false, "Delete permanently")
	if err := cmd.MarkFlagRequired("stream"); err != nil {
		panic(fmt.Sprintf("Failed to mark stream as required: %v", err))
	}

	return cmd
}
