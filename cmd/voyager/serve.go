package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sephirothchang/CXVoyager-sub000/internal/mcptools"
	"github.com/sephirothchang/CXVoyager-sub000/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, mcpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web API (and optionally MCP over HTTP)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			srv := server.New(m, a.cfg, a.logger.Named("http"))
			if addr == "" {
				addr = a.cfg.Web.Addr
			}
			if _, err := srv.Start(addr); err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			if mcpAddr != "" {
				mcpServer := mcptools.NewMCPServer(mcptools.NewService(m, a.cfg, a.logger.Named("mcp")))
				g.Go(func() error {
					a.logger.Info("mcp listening", zap.String("addr", mcpAddr))
					return mcptools.RunHTTP(gctx, mcpServer, mcpAddr)
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				return nil
			})
			err = g.Wait()

			a.logger.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return errors.Join(err, srv.Stop(sctx), m.Close(sctx))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: web.addr)")
	cmd.Flags().StringVar(&mcpAddr, "mcp-addr", "", "also serve MCP streamable HTTP on this address")
	return cmd
}

func mcpCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the task tools over MCP (stdio by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			mcpServer := mcptools.NewMCPServer(mcptools.NewService(m, a.cfg, a.logger.Named("mcp")))
			if httpAddr != "" {
				err = mcptools.RunHTTP(ctx, mcpServer, httpAddr)
			} else {
				err = mcptools.RunStdio(ctx, mcpServer)
			}

			cctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return errors.Join(err, m.Close(cctx))
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	return cmd
}
