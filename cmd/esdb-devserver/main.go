package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/internal/memserver"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	// Application info
	appName    = "esdb-devserver"
	appVersion = "0.1.0"

	shutdownTimeout = 10 * time.Second
)

type serverFlags struct {
	listen        string
	advertise     string
	role          string
	leader        string
	maxAppendSize int
	authSecret    string
	users         map[string]string
	log           logOptions
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f serverFlags

	cmd := &cobra.Command{
		Use:     appName,
		Short:   "Run an in-memory event store node",
		Version: appVersion,
		Long: `esdb-devserver serves the event store gRPC protocol from memory.
Everything is lost when it stops; it is meant for local development and tests.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, f)
		},
	}

	cmd.Flags().StringVar(&f.listen, "listen", ":2113", "Listen address")
	cmd.Flags().StringVar(&f.advertise, "advertise", "", "Address reported through gossip (defaults to the listen address)")
	cmd.Flags().StringVar(&f.role, "role", "leader", "Node role: leader or follower")
	cmd.Flags().StringVar(&f.leader, "leader", "", "Leader address reported to writers when running as a follower")
	cmd.Flags().IntVar(&f.maxAppendSize, "max-append-size", 0, "Maximum payload bytes of a single append")
	cmd.Flags().StringVar(&f.authSecret, "auth-secret", "", "Enable authentication with this token signing key")
	cmd.Flags().StringToStringVar(&f.users, "user", nil, "User accepted for basic authentication, as name=password")
	cmd.Flags().StringVar(&f.log.Level, "log-level", "info", "Log level")
	cmd.Flags().StringVar(&f.log.File, "log-file", "", "Also write JSON logs to this rotated file")
	cmd.Flags().IntVar(&f.log.MaxSizeMB, "log-max-size", 100, "Log file size in megabytes before rotation")
	cmd.Flags().IntVar(&f.log.MaxBackups, "log-max-backups", 3, "Rotated log files to keep")
	cmd.Flags().IntVar(&f.log.MaxAgeDays, "log-max-age", 7, "Days to keep rotated log files")
	cmd.Flags().BoolVar(&f.log.Compress, "log-compress", false, "Compress rotated log files")

	return cmd
}

// serverConfig turns the flags into a memserver configuration
func serverConfig(f serverFlags, logger *zap.Logger) (memserver.Config, error) {
	cfg := memserver.Config{
		Advertise:      f.advertise,
		LeaderEndpoint: f.leader,
		MaxAppendSize:  f.maxAppendSize,
		Logger:         logger,
	}

	if cfg.Advertise == "" {
		host, port, err := net.SplitHostPort(f.listen)
		if err != nil {
			return cfg, fmt.Errorf("invalid listen address: %w", err)
		}
		if host == "" {
			host = "127.0.0.1"
		}
		cfg.Advertise = net.JoinHostPort(host, port)
	}

	switch strings.ToLower(f.role) {
	case "leader":
		cfg.Role = wire.StateLeader
	case "follower":
		cfg.Role = wire.StateFollower
	default:
		return cfg, fmt.Errorf("invalid role %q", f.role)
	}

	if f.authSecret != "" {
		if len(f.users) == 0 {
			return cfg, errors.New("authentication needs at least one --user")
		}
		cfg.Auth = memserver.NewAuthenticator(f.authSecret, f.users)
	} else if len(f.users) > 0 {
		return cfg, errors.New("--user requires --auth-secret")
	}

	cfg.SetDefaults()
	return cfg, cfg.Validate()
}

func run(ctx context.Context, f serverFlags) error {
	logger, err := newLogger(f.log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := serverConfig(f, logger)
	if err != nil {
		return err
	}

	srv, err := memserver.New(cfg)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", f.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.listen, err)
	}

	grpcServer := srv.NewGRPCServer()
	logger.Info("starting server",
		zap.String("version", appVersion),
		zap.String("listen", lis.Addr().String()),
		zap.String("advertise", cfg.Advertise),
		zap.Stringer("role", cfg.Role),
		zap.Bool("auth", cfg.Auth != nil))

	return serve(ctx, logger, srv, grpcServer, lis)
}

// serve runs grpcServer until ctx ends, then shuts it down
func serve(ctx context.Context, logger *zap.Logger, srv *memserver.Server, grpcServer *grpc.Server, lis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		// Ending the log first releases live subscriptions so GracefulStop
		// does not wait on them
		if err := srv.Close(); err != nil {
			logger.Warn("closing log", zap.Error(err))
		}

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop timed out", zap.Duration("timeout", shutdownTimeout))
			grpcServer.Stop()
		}
		return nil
	})

	err := g.Wait()
	logger.Info("server stopped")
	return err
}
