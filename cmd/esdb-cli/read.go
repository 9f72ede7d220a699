package main

import (
	"context"
	"fmt"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdbclient"
	"github.com/spf13/cobra"
)

func newReadCommand() *cobra.Command {
	var (
		stream    string
		all       bool
		from      string
		maxCount  uint64
		backwards bool
		pretty    bool
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read events from a stream or from $all",
		Long: `Read a bounded range of events. --from accepts "start", "end", a stream
revision, or a "commit/prepare" position with --all. Reading from "end" goes
backwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (stream != "") {
				return fmt.Errorf("exactly one of --stream or --all is required")
			}
			return runRead(cmd, stream, from, maxCount, backwards, pretty)
		},
	}

	cmd.Flags().StringVar(&stream, "stream", "", "Stream to read")
	cmd.Flags().BoolVar(&all, "all", false, "Read from $all")
	cmd.Flags().StringVar(&from, "from", "start", "Where to start reading")
	cmd.Flags().Uint64Var(&maxCount, "max", 100, "Maximum number of events")
	cmd.Flags().BoolVar(&backwards, "backwards", false, "Read backwards from --from")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty print JSON data")

	return cmd
}

func runRead(cmd *cobra.Command, stream, from string, maxCount uint64, backwards, pretty bool) error {
	ctx := context.Background()

	var (
		events *esdbclient.EventStream
		err    error
	)
	if stream != "" {
		cursor, perr := parseRevision(from, backwards)
		if perr != nil {
			return perr
		}
		events, err = client.ReadStream(ctx, stream, esdbclient.ReadStreamOptions{From: cursor, MaxCount: maxCount})
	} else {
		cursor, perr := parsePosition(from, backwards)
		if perr != nil {
			return perr
		}
		events, err = client.ReadAll(ctx, esdbclient.ReadAllOptions{From: cursor, MaxCount: maxCount})
	}
	if err != nil {
		return fmt.Errorf("failed to read: %w", err)
	}
	defer events.Close()

	out := cmd.OutOrStdout()
	count := 0
	for env, err := range events.All() {
		if err != nil {
			return fmt.Errorf("read failed after %d events: %w", count, err)
		}
		count++
		printEnvelope(out, env, pretty)
	}

	fmt.Fprintf(out, "Read %d event(s)\n", count)
	return nil
}
