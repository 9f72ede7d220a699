package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdbclient"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"github.com/spf13/cobra"
)

func newAppendCommand() *cobra.Command {
	var (
		stream    string
		eventType string
		data      string
		metadata  string
		expected  string
		count     int
	)

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append events to a stream",
		Long: `Append one or more events to a stream. The data should be valid JSON.
With --count the same event body is appended several times in one call.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(cmd, stream, eventType, data, metadata, expected, count)
		},
	}

	cmd.Flags().StringVar(&stream, "stream", "", "Stream to append to (required)")
	cmd.Flags().StringVar(&eventType, "type", "", "Event type (required)")
	cmd.Flags().StringVar(&data, "data", "{}", "Event data as JSON")
	cmd.Flags().StringVar(&metadata, "metadata", "", "Event metadata as JSON")
	cmd.Flags().StringVar(&expected, "expected", "any", "Expected stream state: any, no-stream, stream-exists or a revision")
	cmd.Flags().IntVar(&count, "count", 1, "Number of events to append")
	for _, name := range []string{"stream", "type"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("Failed to mark %s as required: %v", name, err))
		}
	}

	return cmd
}

func runAppend(cmd *cobra.Command, stream, eventType, data, metadata, expectedStr string, count int) error {
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("invalid JSON data")
	}
	if metadata != "" && !json.Valid([]byte(metadata)) {
		return fmt.Errorf("invalid JSON metadata")
	}
	if count < 1 {
		return fmt.Errorf("count must be at least 1")
	}

	expected, err := parseExpected(expectedStr)
	if err != nil {
		return err
	}

	events := make([]event.EventData, count)
	for i := range events {
		events[i] = event.NewJSONEvent(eventType, []byte(data))
		if metadata != "" {
			events[i] = events[i].WithMetadata([]byte(metadata))
		}
	}

	result, err := client.AppendToStream(context.Background(), stream, esdbclient.AppendOptions{Expected: expected}, events...)
	if err != nil {
		return fmt.Errorf("failed to append: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Appended %d event(s) to '%s'\n", count, stream)
	fmt.Fprintf(out, "Next expected revision: %d\n", result.NextExpectedRevision)
	if result.Position != nil {
		fmt.Fprintf(out, "Position: %s\n", result.Position)
	}
	return nil
}
