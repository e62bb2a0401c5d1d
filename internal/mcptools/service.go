package mcptools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/sephirothchang/CXVoyager-sub000/internal/config"
	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
	"github.com/sephirothchang/CXVoyager-sub000/internal/tasks"
)

// maxWait caps get_task waitSeconds.
const maxWait = 10 * time.Minute

// Service handles MCP tool calls against a task manager.
type Service struct {
	manager *tasks.Manager
	cfg     *config.Config
	logger  *zap.Logger
}

// NewService creates a Service. cfg and logger may be nil.
func NewService(manager *tasks.Manager, cfg *config.Config, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{manager: manager, cfg: cfg, logger: logger}
}

// ListStages returns the stage catalogue and the default selection.
func (s *Service) ListStages(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ListStagesInput,
) (*mcp.CallToolResult, ListStagesOutput, error) {
	infos := orchestrator.ListInfo()
	out := ListStagesOutput{
		Stages:        make([]StageOutput, len(infos)),
		DefaultStages: orchestrator.StageNames(orchestrator.DefaultStages(s.cfg, s.logger)),
	}
	for i, info := range infos {
		out.Stages[i] = StageOutput(info)
	}
	return nil, out, nil
}

// SubmitRun schedules a run and returns the task at once.
func (s *Service) SubmitRun(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SubmitRunInput,
) (*mcp.CallToolResult, TaskOutput, error) {
	defaults := orchestrator.LoadDefaults(s.cfg, s.logger)
	selected := defaults.Stages
	if len(input.Stages) > 0 {
		var err error
		selected, err = orchestrator.Resolve(input.Stages)
		if err != nil {
			return nil, TaskOutput{}, err
		}
	}
	opts := defaults.RunOptions.RunOptions()
	if input.DryRun != nil {
		opts.DryRun = input.DryRun
	}
	if input.StrictValidation != nil {
		opts.StrictValidation = input.StrictValidation
	}
	if input.Debug != nil {
		opts.Debug = input.Debug
	}

	rec, err := s.manager.Submit(selected, opts)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	s.logger.Info("run submitted over mcp", zap.String("task", rec.ID))
	return nil, TaskOutput{Task: summarize(rec)}, nil
}

// GetTask returns one task, optionally waiting for it to finish.
func (s *Service) GetTask(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetTaskInput,
) (*mcp.CallToolResult, TaskOutput, error) {
	if input.WaitSeconds > 0 {
		wait := min(time.Duration(input.WaitSeconds)*time.Second, maxWait)
		wctx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		_, err := s.manager.Wait(wctx, input.ID)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, TaskOutput{}, err
		}
	}
	rec, err := s.manager.Get(input.ID)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, TaskOutput{Task: summarize(rec)}, nil
}

// ListTasks returns tasks in submission order.
func (s *Service) ListTasks(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListTasksInput,
) (*mcp.CallToolResult, ListTasksOutput, error) {
	status := tasks.Status(input.Status)
	if status != "" && !status.Valid() {
		return nil, ListTasksOutput{}, fmt.Errorf("unknown status %q", input.Status)
	}
	records := s.manager.List(status)
	out := ListTasksOutput{Tasks: make([]TaskSummary, len(records)), Total: len(records)}
	for i, rec := range records {
		out.Tasks[i] = summarize(rec)
	}
	return nil, out, nil
}

// AbortTask requests cancellation of a running task.
func (s *Service) AbortTask(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input AbortTaskInput,
) (*mcp.CallToolResult, TaskOutput, error) {
	rec, err := s.manager.Abort(input.ID, input.Reason)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, TaskOutput{Task: summarize(rec)}, nil
}

// DeleteTask removes a task record.
func (s *Service) DeleteTask(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input TaskIDInput,
) (*mcp.CallToolResult, DeleteTaskOutput, error) {
	if err := s.manager.Delete(input.ID); err != nil {
		return nil, DeleteTaskOutput{ID: input.ID}, err
	}
	return nil, DeleteTaskOutput{ID: input.ID, Deleted: true}, nil
}

func summarize(rec tasks.Record) TaskSummary {
	out := TaskSummary{
		ID:              rec.ID,
		Status:          string(rec.Status),
		Stages:          orchestrator.StageNames(rec.Stages),
		CompletedStages: orchestrator.StageNames(rec.CompletedStages),
		TotalStages:     rec.TotalStages,
		CurrentStage:    rec.CurrentStage.String(),
		CreatedAt:       rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       rec.UpdatedAt.Format(time.RFC3339),
		Error:           rec.Error,
		AbortReason:     rec.AbortReason,
	}
	if rec.EffectiveOptions != nil {
		out.DryRun = orchestrator.Bool(rec.EffectiveOptions.DryRun)
	}
	if rec.Summary != nil {
		out.Warnings = rec.Summary.Report.Warnings
		out.ArchivePath = rec.Summary.ArchivePath
	}
	for _, msg := range rec.ProgressMessages {
		out.Progress = append(out.Progress, ProgressLine{
			Stage:   msg.Stage.String(),
			Level:   string(msg.Level),
			Message: msg.Message,
			At:      msg.At.Format(time.RFC3339),
		})
	}
	return out
}
