package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
	"github.com/sephirothchang/CXVoyager-sub000/internal/status"
	"github.com/sephirothchang/CXVoyager-sub000/internal/tasks"
)

func runCmd() *cobra.Command {
	var (
		dryRun, strict, debug bool
		planFile, workDir     string
	)

	cmd := &cobra.Command{
		Use:   "run [stage...]",
		Short: "Run stages in the foreground and stream their progress",
		Long: `Run executes the given stages in order as a tracked task and streams the
progress feed until the task finishes. Stages may be given as separate
arguments or comma separated; without any the configured default selection
runs. Ctrl-C aborts the task.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Flags().Changed("debug") && debug)
			if err != nil {
				return err
			}
			defer a.close()
			if planFile != "" {
				a.cfg.Deploy.PlanFile = planFile
			}
			if workDir != "" {
				a.cfg.Deploy.WorkDir = workDir
			}

			selected, err := selectStages(args, a)
			if err != nil {
				return err
			}
			var opts orchestrator.RunOptions
			if cmd.Flags().Changed("dry-run") {
				opts.DryRun = orchestrator.Bool(dryRun)
			}
			if cmd.Flags().Changed("strict") {
				opts.StrictValidation = orchestrator.Bool(strict)
			}
			if cmd.Flags().Changed("debug") {
				opts.Debug = orchestrator.Bool(debug)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runForeground(ctx, a, selected, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "only simulate vendor calls (default: deploy.dry_run)")
	cmd.Flags().BoolVar(&strict, "strict", false, "treat validation warnings as errors (default: validation.strict)")
	cmd.Flags().BoolVar(&debug, "debug", false, "debug logging (default: logging.debug)")
	cmd.Flags().StringVar(&planFile, "plan", "", "planning sheet export to use instead of searching the work dir")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "directory holding the plan and receiving artifacts")
	return cmd
}

func selectStages(args []string, a *app) ([]orchestrator.Stage, error) {
	var tokens []string
	for _, arg := range args {
		for _, tok := range strings.Split(arg, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				tokens = append(tokens, tok)
			}
		}
	}
	if len(tokens) == 0 {
		return orchestrator.DefaultStages(a.cfg, a.logger), nil
	}
	return orchestrator.Resolve(tokens)
}

// runForeground submits the run, follows it until it finishes and aborts it
// when ctx is cancelled.
func runForeground(ctx context.Context, a *app, selected []orchestrator.Stage, opts orchestrator.RunOptions, out io.Writer) error {
	m, err := a.manager(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.Close(cctx); err != nil {
			a.logger.Warn("waiting for run to unwind", zap.Error(err))
		}
	}()

	rec, err := m.Submit(selected, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "task %s: %s\n", rec.ID, strings.Join(orchestrator.StageNames(selected), ", "))

	snap, events, cancel, err := m.Subscribe(rec.ID)
	if err != nil {
		return err
	}
	defer cancel()
	for _, ev := range replay(snap) {
		printEvent(out, ev)
	}

	interrupted := ctx.Done()
	for events != nil {
		select {
		case <-interrupted:
			interrupted = nil
			if _, err := m.Abort(rec.ID, "interrupted"); err != nil {
				a.logger.Debug("abort on interrupt", zap.Error(err))
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			printEvent(out, ev)
		}
	}

	wctx, wcancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer wcancel()
	final, err := m.Wait(wctx, rec.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	status.PrintBoard(out, final)
	if final.Summary != nil && final.Summary.ArchivePath != "" {
		fmt.Fprintf(out, "  archive: %s\n", final.Summary.ArchivePath)
	}

	switch final.Status {
	case tasks.StatusDone:
		return nil
	case tasks.StatusAborted:
		return fmt.Errorf("task %s aborted: %s", final.ID, final.AbortReason)
	default:
		return fmt.Errorf("task %s failed: %s", final.ID, final.Error)
	}
}

// replay turns what a snapshot already recorded into events, oldest first.
func replay(rec tasks.Record) []tasks.Event {
	evs := make([]tasks.Event, 0, len(rec.StageHistory)+len(rec.ProgressMessages))
	for _, h := range rec.StageHistory {
		evs = append(evs, tasks.Event{Kind: tasks.EventStage, TaskID: rec.ID, Stage: h.Stage, StageEvent: h.Event, At: h.At})
	}
	for i := range rec.ProgressMessages {
		msg := rec.ProgressMessages[i]
		evs = append(evs, tasks.Event{Kind: tasks.EventProgress, TaskID: rec.ID, Stage: msg.Stage, Progress: &msg, At: msg.At})
	}
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].At.Before(evs[j].At) })
	return evs
}

func printEvent(out io.Writer, ev tasks.Event) {
	switch ev.Kind {
	case tasks.EventProgress:
		if ev.Progress != nil {
			fmt.Fprintln(out, status.ProgressLine(*ev.Progress))
		}
	case tasks.EventStage:
		fmt.Fprintf(out, "==> %s %s\n", ev.StageEvent, ev.Stage)
	case tasks.EventStatus:
		fmt.Fprintf(out, "==> task %s\n", ev.Status)
	}
}
