package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/checkpoint"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdbclient"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
	"github.com/spf13/cobra"
)

type subscribeFlags struct {
	stream         string
	all            bool
	from           string
	prefixes       []string
	onType         bool
	excludeSystem  bool
	checkpointFile string
	checkpointKey  string
	maxEvents      int
	pretty         bool
}

func newSubscribeCommand() *cobra.Command {
	var f subscribeFlags

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Follow a stream or $all in real time",
		Long: `Start a catch-up subscription: existing events are delivered first, then
new events as they are written. Press Ctrl+C to stop.

With --all and --checkpoint-file, the last position seen is stored in a local
bbolt file and the next run resumes right after it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.all == (f.stream != "") {
				return fmt.Errorf("exactly one of --stream or --all is required")
			}
			if f.checkpointFile != "" && !f.all {
				return fmt.Errorf("--checkpoint-file requires --all")
			}
			return runSubscribe(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.stream, "stream", "", "Stream to follow")
	cmd.Flags().BoolVar(&f.all, "all", false, "Follow $all")
	cmd.Flags().StringVar(&f.from, "from", "start", "Where to start: start, end, a revision or a commit/prepare position")
	cmd.Flags().StringSliceVar(&f.prefixes, "prefix", nil, "Only deliver $all events whose stream (or type with --on-type) has this prefix")
	cmd.Flags().BoolVar(&f.onType, "on-type", false, "Apply --prefix to event types")
	cmd.Flags().BoolVar(&f.excludeSystem, "exclude-system", false, "Skip $all events whose type starts with $")
	cmd.Flags().StringVar(&f.checkpointFile, "checkpoint-file", "", "bbolt file storing the last position seen")
	cmd.Flags().StringVar(&f.checkpointKey, "checkpoint-key", "esdb-cli", "Key of this subscriber in the checkpoint file")
	cmd.Flags().IntVar(&f.maxEvents, "max-events", 0, "Stop after this many events (0 means no limit)")
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "Pretty print JSON data")

	return cmd
}

func runSubscribe(cmd *cobra.Command, f subscribeFlags) error {
	// Create context that can be cancelled
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle Ctrl+C gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	var store checkpoint.Store
	if f.checkpointFile != "" {
		bolt, err := checkpoint.OpenBoltStore(f.checkpointFile)
		if err != nil {
			return err
		}
		defer bolt.Close()
		store = bolt
	}

	sub, err := openSubscription(ctx, f, store)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	out := cmd.OutOrStdout()
	if id, ok := sub.ID(); ok {
		fmt.Fprintf(out, "Subscription %s confirmed\n", id)
	}

	count := 0
	for item, err := range sub.All() {
		if err != nil {
			return fmt.Errorf("subscription failed after %d events: %w", count, err)
		}

		switch item.Kind() {
		case event.ItemEvent:
			env, _ := item.Event()
			count++
			printEnvelope(out, env, f.pretty)
			if env.Commit != nil {
				if err := save(ctx, store, f.checkpointKey, *env.Commit); err != nil {
					return err
				}
			}
		case event.ItemCheckpoint:
			p, _ := item.Checkpoint()
			if err := save(ctx, store, f.checkpointKey, p); err != nil {
				return err
			}
		case event.ItemCaughtUp:
			fmt.Fprintln(out, "-- caught up --")
		case event.ItemFellBehind:
			fmt.Fprintln(out, "-- fell behind --")
		}

		if f.maxEvents > 0 && count >= f.maxEvents {
			break
		}
	}

	fmt.Fprintf(out, "Subscription stopped. Received %d event(s).\n", count)
	return nil
}

func openSubscription(ctx context.Context, f subscribeFlags, store checkpoint.Store) (*esdbclient.Subscription, error) {
	if f.stream != "" {
		from, err := parseRevision(f.from, false)
		if err != nil {
			return nil, err
		}
		return client.SubscribeToStream(ctx, f.stream, esdbclient.SubscribeToStreamOptions{From: from})
	}

	from, err := parsePosition(f.from, false)
	if err != nil {
		return nil, err
	}
	if store != nil {
		if from, err = checkpoint.Resume(ctx, store, f.checkpointKey); err != nil {
			return nil, err
		}
	}

	var filter *esdbclient.Filter
	switch {
	case len(f.prefixes) > 0:
		filter = &esdbclient.Filter{Prefixes: f.prefixes, OnEventType: f.onType}
	case f.excludeSystem:
		filter = esdbclient.ExcludeSystemEvents()
	}
	return client.SubscribeToAll(ctx, esdbclient.SubscribeToAllOptions{From: from, Filter: filter})
}

func save(ctx context.Context, store checkpoint.Store, key string, p position.Position) error {
	if store == nil {
		return nil
	}
	if err := store.Save(ctx, key, p); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
