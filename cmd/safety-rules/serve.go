package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"xdao.co/safetyrules/config"
	"xdao.co/safetyrules/safetyrules"
)

const defaultListen = "127.0.0.1:6191"

func newServeCmd(errOut io.Writer, g *globalFlags) *cobra.Command {
	var configPath, listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve safety rules over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := newLogger(errOut, g.verbose)
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if listen == "" {
				listen = cfg.Service.ServerAddress
			}
			if listen == "" {
				listen = defaultListen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, listen, log)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Safety rules YAML config")
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: service.server_address, then "+defaultListen+")")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// serve bootstraps storage, then serves until ctx is done or the server stops.
func serve(ctx context.Context, cfg config.SafetyRulesConfig, listen string, log *slog.Logger) error {
	opts := []safetyrules.Option{safetyrules.WithLogger(log)}
	storage, err := safetyrules.Bootstrap(cfg, opts...)
	if err != nil {
		return err
	}
	defer storage.Close()

	rules := safetyrules.NewSafetyRules(storage, cfg.VerifyVoteProposalSignature, cfg.ExportConsensusKey, opts...)
	srv := safetyrules.NewRemoteServer(rules, opts...)

	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", listen, err)
	}

	return runServer(ctx, srv, lis, log)
}

type listenServer interface {
	Serve(ctx context.Context, lis net.Listener, opts ...grpc.ServerOption) error
}

// runServer blocks until srv stops, whether ctx ended or the server quit on
// its own.
func runServer(ctx context.Context, srv listenServer, lis net.Listener, log *slog.Logger) error {
	err := srv.Serve(ctx, lis)
	log.Info("server stopped", "addr", lis.Addr().String(), "err", err)
	return err
}
