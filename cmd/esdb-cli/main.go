package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdbclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	connection string
	username   string
	password   string
	token      string
	timeout    time.Duration
	verbose    bool

	// Global client instance
	client *esdbclient.Client
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "esdb-cli",
		Short: "Event store command line interface",
		Long: `esdb-cli talks to an event store node over gRPC.
It provides commands for appending and reading events, catch-up and
persistent subscriptions, and inspecting the cluster through gossip.`,
		PersistentPreRunE:  initializeClient,
		PersistentPostRunE: closeClient,
		SilenceUsage:       true,
	}

	rootCmd.PersistentFlags().StringVar(&connection, "connection", "esdb://localhost:2113?tls=false", "Connection string")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Username for basic authentication")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Password for basic authentication")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (takes precedence over username/password)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Deadline for each operation")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log client activity to stderr")

	rootCmd.AddCommand(newAppendCommand())
	rootCmd.AddCommand(newReadCommand())
	rootCmd.AddCommand(newSubscribeCommand())
	rootCmd.AddCommand(newPersistentCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newGossipCommand())

	return rootCmd
}

// initializeClient builds the client from the global flags
func initializeClient(cmd *cobra.Command, args []string) error {
	// Skip client initialization for help commands
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	config, err := esdbclient.ParseConnectionString(connection)
	if err != nil {
		return err
	}
	config.DefaultDeadline = timeout

	switch {
	case token != "":
		config.Credentials = esdbclient.Bearer(token)
	case username != "":
		config.Credentials = esdbclient.Basic(username, password)
	}

	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		config.Logger = logger
	}

	client, err = esdbclient.NewClient(config)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func closeClient(cmd *cobra.Command, args []string) error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
