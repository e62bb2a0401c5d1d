package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
)

var (
	// ErrTaskNotFound is returned for an unknown task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrAbortNotAccepted is returned when aborting a task that already
	// finished or was already aborted.
	ErrAbortNotAccepted = errors.New("task already finished")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("task manager closed")

	// ErrRestartInterrupted is the error recorded on tasks that were still
	// in flight when the service stopped.
	ErrRestartInterrupted = errors.New("interrupted by service restart")
)

// DefaultAbortReason is recorded when an abort carries no reason.
const DefaultAbortReason = "user aborted"

// DefaultWorkers is the worker pool size used when none is configured.
const DefaultWorkers = 4

// Runner executes one run. *orchestrator.Engine implements it.
type Runner interface {
	Prepared(req orchestrator.RunRequest) (*orchestrator.RunContext, orchestrator.EffectiveRunOptions)
	Execute(ctx context.Context, rc *orchestrator.RunContext, req orchestrator.RunRequest) (*orchestrator.RunResult, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkers bounds the number of concurrently executing runs.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// run tracks an in-flight task.
type run struct {
	abort  *orchestrator.AbortSignal
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns every task record. All reads and mutations of the table and
// every store write happen under one lock.
type Manager struct {
	runner  Runner
	store   Store
	logger  *zap.Logger
	now     func() time.Time
	workers int
	sem     *semaphore.Weighted
	events  *broadcaster

	mu     sync.Mutex
	tasks  map[string]*Record
	order  []string
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a Manager and reloads the table from store. Tasks that
// were pending or running when the store was written are marked failed.
// store may be nil for an in-memory manager.
func NewManager(runner Runner, store Store, opts ...Option) *Manager {
	m := &Manager{
		runner:  runner,
		store:   store,
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
		workers: DefaultWorkers,
		events:  newBroadcaster(),
		tasks:   make(map[string]*Record),
		runs:    make(map[string]*run),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sem = semaphore.NewWeighted(int64(m.workers))
	m.load()
	return m
}

func (m *Manager) load() {
	if m.store == nil {
		return
	}
	records, err := m.store.Load(context.Background())
	if err != nil {
		m.logger.Warn("loading task store", zap.Error(err), zap.Int("recovered", len(records)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	dirty := false
	for i := range records {
		rec := records[i]
		if _, dup := m.tasks[rec.ID]; dup {
			continue
		}
		if rec.Status == StatusPending || rec.Status == StatusRunning {
			ts := m.now()
			rec.Status = StatusFailed
			rec.Error = ErrRestartInterrupted.Error()
			rec.UpdatedAt = ts
			rec.StageHistory = append(rec.StageHistory, HistoryEvent{
				Event: orchestrator.EventError,
				Stage: rec.CurrentStage,
				At:    ts,
			})
			rec.CurrentStage = 0
			dirty = true
			m.logger.Info("task interrupted by restart marked failed", zap.String("task", rec.ID))
		}
		m.tasks[rec.ID] = &rec
		m.order = append(m.order, rec.ID)
	}
	if dirty {
		m.persistLocked()
	}
}

// Submit records a new task and schedules its run. The returned snapshot is
// already in the running state.
func (m *Manager) Submit(stages []orchestrator.Stage, opts orchestrator.RunOptions) (Record, error) {
	if len(stages) == 0 {
		return Record{}, orchestrator.ErrNoStages
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	ts := m.now()
	rec := &Record{
		ID:               id,
		Status:           StatusPending,
		Stages:           cloneSlice(stages),
		RequestedOptions: opts,
		CreatedAt:        ts,
		UpdatedAt:        ts,
		CompletedStages:  []orchestrator.Stage{},
		TotalStages:      len(stages),
		StageHistory:     []HistoryEvent{},
		ProgressMessages: []orchestrator.ProgressMessage{},
	}
	rec.RequestedOptions = rec.Snapshot().RequestedOptions

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		abort:  orchestrator.NewAbortSignal(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return Record{}, ErrClosed
	}
	rec.Status = StatusRunning
	m.tasks[id] = rec
	m.order = append(m.order, id)
	m.runs[id] = r
	m.persistLocked()
	snap := rec.Snapshot()
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("task submitted",
		zap.String("task", id),
		zap.Strings("stages", orchestrator.StageNames(stages)))
	m.events.emit(Event{Kind: EventStatus, TaskID: id, Status: StatusRunning, At: ts})

	go m.work(ctx, id, r, orchestrator.RunRequest{
		Stages:  cloneSlice(stages),
		Options: snap.RequestedOptions,
		Abort:   r.abort,
	})
	return snap, nil
}

func (m *Manager) work(ctx context.Context, id string, r *run, req orchestrator.RunRequest) {
	defer m.wg.Done()
	defer r.cancel()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(id, r, nil, err)
		return
	}
	defer m.sem.Release(1)

	req.Callback = m.stageCallback(id)
	req.Sink = m.progressSink(id)
	rc, eff := m.runner.Prepared(req)

	m.mu.Lock()
	if rec, ok := m.tasks[id]; ok && !rec.Status.Terminal() {
		rec.EffectiveOptions = &eff
		rec.UpdatedAt = m.now()
		m.persistLocked()
	}
	m.mu.Unlock()

	m.logger.Info("task started", zap.String("task", id), zap.Bool("dry_run", eff.DryRun))
	res, err := m.runner.Execute(ctx, rc, req)
	m.finish(id, r, res, err)
}

func (m *Manager) stageCallback(id string) orchestrator.ProgressCallback {
	return func(event orchestrator.StageEvent, stage orchestrator.Stage, rc *orchestrator.RunContext) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		rec, ok := m.tasks[id]
		if !ok || rec.Status.Terminal() {
			return nil
		}
		ts := m.now()
		switch event {
		case orchestrator.EventStart:
			rec.CurrentStage = stage
		case orchestrator.EventComplete:
			if rc != nil {
				rec.CompletedStages = cloneSlice(rc.CompletedStages)
			} else {
				rec.CompletedStages = append(rec.CompletedStages, stage)
			}
			rec.CurrentStage = 0
		}
		rec.StageHistory = append(rec.StageHistory, HistoryEvent{Event: event, Stage: stage, At: ts})
		rec.UpdatedAt = ts
		m.persistLocked()
		m.events.emit(Event{Kind: EventStage, TaskID: id, Stage: stage, StageEvent: event, At: ts})
		return nil
	}
}

func (m *Manager) progressSink(id string) func(orchestrator.ProgressMessage) {
	return func(msg orchestrator.ProgressMessage) {
		m.mu.Lock()
		defer m.mu.Unlock()
		rec, ok := m.tasks[id]
		if !ok || rec.Status.Terminal() {
			return
		}
		rec.ProgressMessages = append(rec.ProgressMessages, msg)
		rec.UpdatedAt = msg.At
		m.persistLocked()
		m.events.emit(Event{Kind: EventProgress, TaskID: id, Stage: msg.Stage, Progress: &msg, At: msg.At})
	}
}

func (m *Manager) finish(id string, r *run, res *orchestrator.RunResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
	close(r.done)

	rec, ok := m.tasks[id]
	if !ok {
		m.logger.Debug("task deleted before its run finished", zap.String("task", id))
		return
	}
	if rec.Status == StatusAborted {
		// Aborted optimistically by Abort; the outcome stands.
		m.logger.Info("task aborted", zap.String("task", id), zap.String("reason", rec.AbortReason))
		return
	}

	ts := m.now()
	switch {
	case err == nil:
		rec.Status = StatusDone
		rec.EffectiveOptions = &res.Options
		sum := res.Summary
		rec.Summary = &sum
		rec.CompletedStages = cloneSlice(res.CompletedStages)
		rec.CurrentStage = 0
		rec.UpdatedAt = res.FinishedAt
		m.logger.Info("task finished",
			zap.String("task", id),
			zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
			zap.Strings("completed", orchestrator.StageNames(res.CompletedStages)))
	case errors.Is(err, orchestrator.ErrAbortRequested),
		errors.Is(err, context.Canceled) && r.abort.Triggered():
		m.markAbortedLocked(rec, rec.CurrentStage, rec.AbortReason, ts)
		m.logger.Info("task aborted", zap.String("task", id), zap.Stringer("stage", rec.CurrentStage))
	default:
		rec.Status = StatusFailed
		rec.Error = err.Error()
		rec.UpdatedAt = ts
		if rec.CurrentStage != 0 {
			rec.StageHistory = append(rec.StageHistory, HistoryEvent{
				Event: orchestrator.EventError,
				Stage: rec.CurrentStage,
				At:    ts,
			})
		}
		rec.CurrentStage = 0
		m.logger.Error("task failed", zap.String("task", id), zap.Error(err))
	}
	m.persistLocked()
	m.events.emit(Event{Kind: EventStatus, TaskID: id, Status: rec.Status, At: rec.UpdatedAt})
	m.events.closeTask(id)
}

// Abort requests cooperative cancellation of a task and marks it aborted at
// once, before the run has actually unwound. Finished and already aborted
// tasks return ErrAbortNotAccepted together with their unchanged snapshot.
func (m *Manager) Abort(id, reason string) (Record, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultAbortReason
	}

	m.mu.Lock()
	rec, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return Record{}, ErrTaskNotFound
	}
	if rec.Status.Terminal() {
		snap := rec.Snapshot()
		m.mu.Unlock()
		return snap, ErrAbortNotAccepted
	}
	ts := m.now()
	m.markAbortedLocked(rec, rec.CurrentStage, reason, ts)
	m.persistLocked()
	r := m.runs[id]
	snap := rec.Snapshot()
	m.events.emit(Event{Kind: EventStatus, TaskID: id, Status: StatusAborted, At: ts})
	m.events.closeTask(id)
	m.mu.Unlock()

	if r != nil {
		r.abort.Trigger()
		r.cancel()
	}
	m.logger.Info("abort requested", zap.String("task", id), zap.String("reason", reason))
	return snap, nil
}

// markAbortedLocked writes the aborted outcome. The history keeps exactly
// one aborted event and the first aborted_at is kept.
func (m *Manager) markAbortedLocked(rec *Record, stage orchestrator.Stage, reason string, ts time.Time) {
	rec.Status = StatusAborted
	rec.AbortRequested = true
	switch {
	case reason != "":
		rec.AbortReason = reason
	case rec.AbortReason == "":
		rec.AbortReason = DefaultAbortReason
	}
	if rec.AbortedAt == nil {
		at := ts
		rec.AbortedAt = &at
	}
	rec.UpdatedAt = ts
	if !rec.hasEvent(orchestrator.EventAborted) {
		rec.StageHistory = append(rec.StageHistory, HistoryEvent{
			Event: orchestrator.EventAborted,
			Stage: stage,
			At:    ts,
		})
	}
	rec.CurrentStage = 0
	rec.Error = ""
}

// Delete removes a task record. A still running run is not stopped; its
// later updates are dropped.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(m.tasks, id)
	delete(m.runs, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.persistLocked()
	m.events.closeTask(id)
	m.logger.Info("task deleted", zap.String("task", id))
	return nil
}

// Get returns a snapshot of the task.
func (m *Manager) Get(id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[id]
	if !ok {
		return Record{}, ErrTaskNotFound
	}
	return rec.Snapshot(), nil
}

// List returns snapshots in submission order. An empty status matches all.
func (m *Manager) List(status Status) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		rec := m.tasks[id]
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec.Snapshot())
	}
	return out
}

// Wait blocks until the task's run has unwound or ctx is done, then returns
// the latest snapshot.
func (m *Manager) Wait(ctx context.Context, id string) (Record, error) {
	m.mu.Lock()
	_, ok := m.tasks[id]
	r := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return Record{}, ErrTaskNotFound
	}
	if r != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return Record{}, ctx.Err()
		}
	}
	return m.Get(id)
}

// Subscribe returns the current snapshot and a feed of live events for the
// task. The feed is closed when the task reaches a final state or is
// deleted; for a finished task it is returned closed. cancel releases the
// subscription early.
func (m *Manager) Subscribe(id string) (Record, <-chan Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[id]
	if !ok {
		return Record{}, nil, nil, ErrTaskNotFound
	}
	if rec.Status.Terminal() {
		return rec.Snapshot(), closedEvents(), func() {}, nil
	}
	ch, cancel := m.events.subscribe(id)
	return rec.Snapshot(), ch, cancel, nil
}

// Close stops accepting submissions and waits for in-flight runs until ctx
// is done.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}
	records := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		records = append(records, m.tasks[id].Snapshot())
	}
	if err := m.store.Save(context.Background(), records); err != nil {
		m.logger.Error("persisting task store", zap.Error(err))
	}
}
