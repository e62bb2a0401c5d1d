// Package tasks runs deployment pipelines as background jobs and keeps their
// records across restarts.
package tasks

import (
	"time"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusAborted Status = "aborted"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusDone, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// HistoryEvent is one entry of a task's stage history.
type HistoryEvent struct {
	Event orchestrator.StageEvent `json:"event"`
	Stage orchestrator.Stage      `json:"stage,omitempty"`
	At    time.Time               `json:"at"`
}

// Record is the tracked state of one submitted run.
type Record struct {
	ID               string                            `json:"id"`
	Status           Status                            `json:"status"`
	Stages           []orchestrator.Stage              `json:"stages"`
	RequestedOptions orchestrator.RunOptions           `json:"requested_options"`
	EffectiveOptions *orchestrator.EffectiveRunOptions `json:"effective_options"`
	CreatedAt        time.Time                         `json:"created_at"`
	UpdatedAt        time.Time                         `json:"updated_at"`
	Error            string                            `json:"error,omitempty"`
	Summary          *orchestrator.RunSummary          `json:"summary,omitempty"`
	CompletedStages  []orchestrator.Stage              `json:"completed_stages"`
	TotalStages      int                               `json:"total_stages"`
	CurrentStage     orchestrator.Stage                `json:"current_stage,omitempty"`
	StageHistory     []HistoryEvent                    `json:"stage_history"`
	ProgressMessages []orchestrator.ProgressMessage    `json:"progress_messages"`
	AbortRequested   bool                              `json:"abort_requested"`
	AbortReason      string                            `json:"abort_reason,omitempty"`
	AbortedAt        *time.Time                        `json:"aborted_at,omitempty"`
}

// Snapshot returns a deep copy of r that is safe to hand to callers.
// Progress message payloads are shared; they are never mutated.
func (r *Record) Snapshot() Record {
	dst := *r
	dst.Stages = cloneSlice(r.Stages)
	dst.CompletedStages = cloneSlice(r.CompletedStages)
	dst.StageHistory = cloneSlice(r.StageHistory)
	dst.ProgressMessages = cloneSlice(r.ProgressMessages)
	dst.RequestedOptions = orchestrator.RunOptions{
		DryRun:           cloneBool(r.RequestedOptions.DryRun),
		StrictValidation: cloneBool(r.RequestedOptions.StrictValidation),
		Debug:            cloneBool(r.RequestedOptions.Debug),
	}
	if r.EffectiveOptions != nil {
		eff := *r.EffectiveOptions
		dst.EffectiveOptions = &eff
	}
	if r.Summary != nil {
		sum := *r.Summary
		sum.Network = cloneSlice(r.Summary.Network)
		sum.Report.Warnings = cloneSlice(r.Summary.Report.Warnings)
		sum.Report.Errors = cloneSlice(r.Summary.Report.Errors)
		if r.Summary.Dependencies != nil {
			sum.Dependencies = make(map[string]bool, len(r.Summary.Dependencies))
			for k, v := range r.Summary.Dependencies {
				sum.Dependencies[k] = v
			}
		}
		dst.Summary = &sum
	}
	if r.AbortedAt != nil {
		at := *r.AbortedAt
		dst.AbortedAt = &at
	}
	return dst
}

// hasEvent reports whether the history already holds ev.
func (r *Record) hasEvent(ev orchestrator.StageEvent) bool {
	for _, h := range r.StageHistory {
		if h.Event == ev {
			return true
		}
	}
	return false
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
