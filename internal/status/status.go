// Package status renders stages and task records for the terminal.
package status

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
	"github.com/sephirothchang/CXVoyager-sub000/internal/tasks"
)

// StageState is the position of one selected stage within a task.
type StageState string

const (
	StatePending  StageState = "pending"
	StateRunning  StageState = "running"
	StateComplete StageState = "complete"
	StateFailed   StageState = "failed"
	StateAborted  StageState = "aborted"
	StateSkipped  StageState = "skipped"
)

// StageRow is one line of a task's stage board.
type StageRow struct {
	Stage orchestrator.Stage
	Label string
	State StageState
}

// Board derives the per-stage state of rec from its completed stages, its
// current stage and its history.
func Board(rec tasks.Record) []StageRow {
	done := make(map[orchestrator.Stage]bool, len(rec.CompletedStages))
	for _, s := range rec.CompletedStages {
		done[s] = true
	}
	var failedAt, abortedAt orchestrator.Stage
	for _, ev := range rec.StageHistory {
		switch ev.Event {
		case orchestrator.EventError:
			failedAt = ev.Stage
		case orchestrator.EventAborted:
			abortedAt = ev.Stage
		}
	}

	rows := make([]StageRow, len(rec.Stages))
	for i, s := range rec.Stages {
		row := StageRow{Stage: s, Label: orchestrator.Info(s).Label, State: StatePending}
		switch {
		case done[s]:
			row.State = StateComplete
		case s == rec.CurrentStage && !rec.Status.Terminal():
			row.State = StateRunning
		case failedAt != 0 && s == failedAt:
			row.State = StateFailed
		case abortedAt != 0 && s == abortedAt:
			row.State = StateAborted
		case rec.Status.Terminal():
			row.State = StateSkipped
		}
		rows[i] = row
	}
	return rows
}

// PrintStages writes the stage catalogue. Stages in selected are marked.
func PrintStages(w io.Writer, infos []orchestrator.StageInfo, selected []orchestrator.Stage) {
	sel := make(map[string]bool, len(selected))
	for _, s := range selected {
		sel[s.String()] = true
	}
	for _, info := range infos {
		marker := "  "
		if sel[info.Name] {
			marker = "->"
		}
		fmt.Fprintf(w, "  %s %2d. %-22s %s\n", marker, info.Order, info.Name, info.Label)
	}
}

// PrintTasks writes one table row per record.
func PrintTasks(w io.Writer, records []tasks.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tCURRENT\tUPDATED")
	for _, rec := range records {
		current := rec.CurrentStage.String()
		if current == "" {
			current = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
			rec.ID, rec.Status, len(rec.CompletedStages), rec.TotalStages,
			current, rec.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// PrintTask writes the detail view of one record.
func PrintTask(w io.Writer, rec tasks.Record) {
	fmt.Fprintf(w, "Task: %s\n", rec.ID)
	fmt.Fprintf(w, "Status: %s\n", rec.Status)
	if rec.EffectiveOptions != nil {
		o := rec.EffectiveOptions
		fmt.Fprintf(w, "Options: dry_run=%t strict=%t debug=%t level=%s\n",
			o.DryRun, o.StrictValidation, o.Debug, o.LogLevel)
	}
	if rec.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", rec.Error)
	}
	if rec.AbortRequested {
		fmt.Fprintf(w, "Aborted: %s\n", rec.AbortReason)
	}
	fmt.Fprintln(w)
	PrintBoard(w, rec)

	if rec.Summary != nil {
		fmt.Fprintln(w)
		for _, msg := range rec.Summary.Report.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", msg)
		}
		if rec.Summary.ArchivePath != "" {
			fmt.Fprintf(w, "  archive: %s\n", rec.Summary.ArchivePath)
		}
	}
	if len(rec.ProgressMessages) > 0 {
		fmt.Fprintln(w)
		for _, msg := range rec.ProgressMessages {
			fmt.Fprintln(w, ProgressLine(msg))
		}
	}
}

// PrintBoard writes the stage board of rec.
func PrintBoard(w io.Writer, rec tasks.Record) {
	for _, row := range Board(rec) {
		marker := "  "
		if row.State == StateRunning {
			marker = "->"
		}
		fmt.Fprintf(w, "  %s %-22s %-34s [%s]\n", marker, row.Stage, row.Label, row.State)
	}
	if rec.Status == tasks.StatusDone {
		fmt.Fprintln(w, "  All stages complete.")
	}
}

// ProgressLine formats one progress message for streaming output.
func ProgressLine(msg orchestrator.ProgressMessage) string {
	var b strings.Builder
	b.WriteString(msg.At.Local().Format(time.TimeOnly))
	fmt.Fprintf(&b, " %-7s", strings.ToUpper(string(msg.Level)))
	if msg.Stage != 0 {
		fmt.Fprintf(&b, " [%s]", msg.Stage)
	}
	b.WriteString(" ")
	b.WriteString(msg.Message)
	return b.String()
}
