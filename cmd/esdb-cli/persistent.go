package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdbclient"
	"github.com/spf13/cobra"
)

func newPersistentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persistent",
		Short: "Manage and consume persistent subscriptions",
	}

	cmd.AddCommand(newPersistentCreateCommand())
	cmd.AddCommand(newPersistentDeleteCommand())
	cmd.AddCommand(newPersistentSubscribeCommand())

	return cmd
}

// groupTarget holds the flags naming a persistent subscription group
type groupTarget struct {
	stream string
	all    bool
	group  string
}

func (g *groupTarget) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&g.stream, "stream", "", "Stream the group reads")
	cmd.Flags().BoolVar(&g.all, "all", false, "The group reads $all")
	cmd.Flags().StringVar(&g.group, "group", "", "Group name (required)")
	if err := cmd.MarkFlagRequired("group"); err != nil {
		panic(fmt.Sprintf("Failed to mark group as required: %v", err))
	}
}

func (g *groupTarget) validate() error {
	if g.all == (g.stream != "") {
		return fmt.Errorf("exactly one of --stream or --all is required")
	}
	return nil
}

func (g *groupTarget) String() string {
	if g.all {
		return fmt.Sprintf("$all::%s", g.group)
	}
	return fmt.Sprintf("%s::%s", g.stream, g.group)
}

func newPersistentCreateCommand() *cobra.Command {
	var (
		target   groupTarget
		from     string
		settings esdbclient.PersistentSettings
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a persistent subscription group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := target.validate(); err != nil {
				return err
			}
			settings.ConsumerStrategy = strategy
			return runPersistentCreate(cmd, target, from, settings)
		},
	}

	target.register(cmd)
	cmd.Flags().StringVar(&from, "from", "start", "Where the group starts: start, end, a revision or a commit/prepare position")
	cmd.Flags().DurationVar(&settings.MessageTimeout, "message-timeout", 0, "Time before an unacknowledged event is retried")
	cmd.Flags().Int32Var(&settings.MaxRetryCount, "max-retries", 0, "Retries before an event is parked")
	cmd.Flags().Int32Var(&settings.MaxSubscriberCount, "max-subscribers", 0, "Maximum number of members (0 means unlimited)")
	cmd.Flags().BoolVar(&settings.ResolveLinks, "resolve-links", false, "Resolve link events")
	cmd.Flags().StringVar(&strategy, "strategy", esdbclient.RoundRobin, "Consumer strategy: RoundRobin, DispatchToSingle or Pinned")

	return cmd
}

func runPersistentCreate(cmd *cobra.Command, target groupTarget, from string, settings esdbclient.PersistentSettings) error {
	ctx := context.Background()

	var err error
	if target.all {
		cursor, perr := parsePosition(from, false)
		if perr != nil {
			return perr
		}
		err = client.CreatePersistentSubscriptionToAll(ctx, target.group, esdbclient.CreatePersistentToAllOptions{From: cursor, Settings: settings})
	} else {
		cursor, perr := parseRevision(from, false)
		if perr != nil {
			return perr
		}
		err = client.CreatePersistentSubscription(ctx, target.stream, target.group, esdbclient.CreatePersistentOptions{From: cursor, Settings: settings})
	}
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Persistent subscription %s created\n", &target)
	return nil
}

func newPersistentDeleteCommand() *cobra.Command {
	var target groupTarget

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a persistent subscription group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := target.validate(); err != nil {
				return err
			}

			ctx := context.Background()
			var err error
			if target.all {
				err = client.DeletePersistentSubscriptionToAll(ctx, target.group, esdbclient.DeletePersistentOptions{})
			} else {
				err = client.DeletePersistentSubscription(ctx, target.stream, target.group, esdbclient.DeletePersistentOptions{})
			}
			if err != nil {
				return fmt.Errorf("failed to delete group: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Persistent subscription %s deleted\n", &target)
			return nil
		},
	}

	target.register(cmd)
	return cmd
}

func newPersistentSubscribeCommand() *cobra.Command {
	var (
		target     groupTarget
		bufferSize int32
		nack       string
		maxEvents  int
		pretty     bool
	)

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Join a persistent subscription group and settle its events",
		Long: `Join a persistent subscription group. Every delivered event is acknowledged,
or rejected with --nack (retry, skip, park or stop). Press Ctrl+C to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := target.validate(); err != nil {
				return err
			}
			return runPersistentSubscribe(cmd, target, bufferSize, nack, maxEvents, pretty)
		},
	}

	target.register(cmd)
	cmd.Flags().Int32Var(&bufferSize, "buffer-size", 10, "Events in flight to this member")
	cmd.Flags().StringVar(&nack, "nack", "", "Reject events with this action instead of acknowledging them")
	cmd.Flags().IntVar(&maxEvents, "max-events", 0, "Leave after this many events (0 means no limit)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty print JSON data")

	return cmd
}

func runPersistentSubscribe(cmd *cobra.Command, target groupTarget, bufferSize int32, nack string, maxEvents int, pretty bool) error {
	settle := func(sub *esdbclient.PersistentSubscription, id uuid.UUID) error {
		return sub.Ack(esdbclient.AckBatch{IDs: []uuid.UUID{id}})
	}
	if nack != "" {
		action, err := parseNackAction(nack)
		if err != nil {
			return err
		}
		settle = func(sub *esdbclient.PersistentSubscription, id uuid.UUID) error {
			return sub.Nack(esdbclient.NackBatch{IDs: []uuid.UUID{id}, Action: action, Reason: "rejected from esdb-cli"})
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

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

	opts := esdbclient.PersistentSubscribeOptions{BufferSize: bufferSize}
	var (
		sub *esdbclient.PersistentSubscription
		err error
	)
	if target.all {
		sub, err = client.SubscribeToPersistentSubscriptionToAll(ctx, target.group, opts)
	} else {
		sub, err = client.SubscribeToPersistentSubscription(ctx, target.stream, target.group, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to join group: %w", err)
	}
	defer sub.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Joined persistent subscription %s\n", &target)

	count := 0
	for env, err := range sub.All() {
		if err != nil {
			return fmt.Errorf("subscription failed after %d events: %w", count, err)
		}
		count++
		printEnvelope(out, env, pretty)

		if err := settle(sub, env.Event.ID); err != nil {
			return fmt.Errorf("failed to settle event %s: %w", env.Event.ID, err)
		}
		if maxEvents > 0 && count >= maxEvents {
			break
		}
	}

	fmt.Fprintf(out, "Left the group. Received %d event(s).\n", count)
	return nil
}
