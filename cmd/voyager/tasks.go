package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sephirothchang/CXVoyager-sub000/internal/auth"
	"github.com/sephirothchang/CXVoyager-sub000/internal/server"
	"github.com/sephirothchang/CXVoyager-sub000/internal/status"
	"github.com/sephirothchang/CXVoyager-sub000/internal/tasks"
)

func tasksCmd() *cobra.Command {
	var serverURL, token string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and control tasks of a running voyager server",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "web API base URL (default: derived from web.addr)")
	cmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (default: minted from web.jwt_secret when set)")

	client := func() (*server.Client, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		base := serverURL
		if base == "" {
			base = baseURL(cfg.Web.Addr)
		}
		tok := token
		if tok == "" && cfg.Web.JWTSecret != "" {
			tok, err = auth.NewSigner(cfg.Web.JWTSecret).Generate("cli", 5*time.Minute)
			if err != nil {
				return nil, err
			}
		}
		return server.NewClient(base, server.WithToken(tok)), nil
	}

	var statusFilter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			records, err := c.List(cmd.Context(), tasks.Status(statusFilter))
			if err != nil {
				return err
			}
			return status.PrintTasks(cmd.OutOrStdout(), records)
		},
	}
	list.Flags().StringVar(&statusFilter, "status", "", "filter by status")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task with its stage board and progress feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			rec, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			status.PrintTask(cmd.OutOrStdout(), rec)
			return nil
		},
	}

	abort := &cobra.Command{
		Use:   "abort <id> [reason...]",
		Short: "Abort a running task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			rec, err := c.Abort(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s %s: %s\n", rec.ID, rec.Status, rec.AbortReason)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s deleted\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, show, abort, del)
	return cmd
}

// baseURL turns a listen address into a local URL.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	} else if h, p, ok := strings.Cut(host, ":"); ok && h == "0.0.0.0" {
		host = "127.0.0.1:" + p
	}
	return "http://" + host
}

func tokenCmd() *cobra.Command {
	var (
		operator string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the web API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tok, err := auth.NewSigner(cfg.Web.JWTSecret).Generate(operator, ttl)
			if err != nil {
				return fmt.Errorf("%w: set web.jwt_secret or VOYAGER_JWT_SECRET", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "operator", "operator name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "token lifetime")
	return cmd
}
