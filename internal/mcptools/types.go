package mcptools

// Tool inputs and outputs. Outputs use plain strings for stages and times so
// the inferred output schemas stay simple.

// ListStagesInput is the input for the list_stages tool.
type ListStagesInput struct{}

// StageOutput describes one stage.
type StageOutput struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Group       string `json:"group,omitempty"`
	Order       int    `json:"order"`
}

// ListStagesOutput is the result of the list_stages tool.
type ListStagesOutput struct {
	Stages        []StageOutput `json:"stages"`
	DefaultStages []string      `json:"defaultStages"`
}

// SubmitRunInput is the input for the submit_run tool.
type SubmitRunInput struct {
	Stages           []string `json:"stages,omitempty" jsonschema:"stage names to run in order (default: configured web defaults)"`
	DryRun           *bool    `json:"dryRun,omitempty" jsonschema:"only simulate the deployment"`
	StrictValidation *bool    `json:"strictValidation,omitempty" jsonschema:"fail the prepare stage on validation warnings"`
	Debug            *bool    `json:"debug,omitempty" jsonschema:"enable debug logging for the run"`
}

// TaskIDInput names one task.
type TaskIDInput struct {
	ID string `json:"id" jsonschema:"task id"`
}

// GetTaskInput is the input for the get_task tool.
type GetTaskInput struct {
	ID          string `json:"id" jsonschema:"task id"`
	WaitSeconds int    `json:"waitSeconds,omitempty" jsonschema:"block up to this many seconds for the task to finish"`
}

// ListTasksInput is the input for the list_tasks tool.
type ListTasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter by status: pending, running, done, failed or aborted"`
}

// AbortTaskInput is the input for the abort_task tool.
type AbortTaskInput struct {
	ID     string `json:"id" jsonschema:"task id"`
	Reason string `json:"reason,omitempty" jsonschema:"why the task is aborted"`
}

// ProgressLine is one progress feed entry.
type ProgressLine struct {
	Stage   string `json:"stage,omitempty"`
	Level   string `json:"level"`
	Message string `json:"message"`
	At      string `json:"at"`
}

// TaskSummary is the tool view of a task record.
type TaskSummary struct {
	ID              string         `json:"id"`
	Status          string         `json:"status"`
	Stages          []string       `json:"stages"`
	CompletedStages []string       `json:"completedStages"`
	TotalStages     int            `json:"totalStages"`
	CurrentStage    string         `json:"currentStage,omitempty"`
	DryRun          *bool          `json:"dryRun,omitempty"`
	CreatedAt       string         `json:"createdAt"`
	UpdatedAt       string         `json:"updatedAt"`
	Error           string         `json:"error,omitempty"`
	AbortReason     string         `json:"abortReason,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
	ArchivePath     string         `json:"archivePath,omitempty"`
	Progress        []ProgressLine `json:"progress,omitempty"`
}

// TaskOutput wraps a single task.
type TaskOutput struct {
	Task TaskSummary `json:"task"`
}

// ListTasksOutput is the result of the list_tasks tool.
type ListTasksOutput struct {
	Tasks []TaskSummary `json:"tasks"`
	Total int           `json:"total"`
}

// DeleteTaskOutput is the result of the delete_task tool.
type DeleteTaskOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
