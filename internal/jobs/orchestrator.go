// Package jobs runs sync and reprocess jobs on a bounded worker pool and
// guarantees every job reaches a terminal state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mixelka/expensesync/internal/categorizer"
	"github.com/mixelka/expensesync/internal/ingest"
	"github.com/mixelka/expensesync/pkg/models"
)

var (
	ErrQueueFull    = errors.New("job queue is full")
	ErrShuttingDown = errors.New("job orchestrator is shutting down")
)

// Store persists job state
type Store interface {
	LastSyncFinder
	CreateJob(ctx context.Context, job *models.SyncJob) error
	GetJob(ctx context.Context, id string) (*models.SyncJob, error)
	ListRecentJobs(ctx context.Context, userID int64, limit int) ([]*models.SyncJob, error)
	MarkJobProcessing(ctx context.Context, id string) error
	SetJobTotal(ctx context.Context, id string, total int) error
	IncrementJobProgress(ctx context.Context, id string, p models.JobProgress) error
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, message string) error
}

// ContextStore supplies what the categorizer needs for a run
type ContextStore interface {
	FindAllRules(ctx context.Context, userID int64) ([]*models.MerchantRule, error)
	MerchantHistory(ctx context.Context, userID int64) ([]models.MerchantCategoryCount, error)
	CountEmails(ctx context.Context, filter models.EmailFilter) (int, error)
}

// Ingester executes the work of a job
type Ingester interface {
	Sync(ctx context.Context, run ingest.Run, query string) (models.JobProgress, error)
	Reprocess(ctx context.Context, run ingest.Run, onlyUnprocessed bool) (models.JobProgress, error)
}

// Invalidator drops cached aggregates of a user
type Invalidator interface {
	InvalidateUser(userID int64)
}

// Options tunes the orchestrator
type Options struct {
	Workers   int
	QueueSize int
	Category  string
	// PostSyncParse starts a reprocess of unparsed emails after each sync
	PostSyncParse   bool
	PostSyncMaxWait time.Duration
}

// Deps holds orchestrator dependencies
type Deps struct {
	Store    Store
	Contexts ContextStore
	Ingester Ingester
	Cache    Invalidator
	Queries  *QueryBuilder
	Logger   *slog.Logger
	Options  Options
}

type task struct {
	job             *models.SyncJob
	onlyUnprocessed bool
}

// Orchestrator owns job lifecycle. Start methods return as soon as the job
// is recorded; the work runs on the pool.
type Orchestrator struct {
	store    Store
	contexts ContextStore
	ingester Ingester
	cache    Invalidator
	queries  *QueryBuilder
	logger   *slog.Logger
	opts     Options

	baseCtx context.Context
	cancel  context.CancelFunc

	queue    chan task
	workerWg sync.WaitGroup
	bgWg     sync.WaitGroup
	slots    *userSlots

	mu      sync.Mutex
	started bool
	closed  bool
	done    map[string]chan struct{}
}

// New creates an orchestrator; call Start to launch workers
func New(deps Deps) *Orchestrator {
	opts := deps.Options
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Category == "" {
		opts.Category = "expenses"
	}
	if opts.PostSyncMaxWait <= 0 {
		opts.PostSyncMaxWait = 30 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:    deps.Store,
		contexts: deps.Contexts,
		ingester: deps.Ingester,
		cache:    deps.Cache,
		queries:  deps.Queries,
		logger:   deps.Logger.With("component", "jobs"),
		opts:     opts,
		baseCtx:  ctx,
		cancel:   cancel,
		queue:    make(chan task, opts.QueueSize),
		slots:    newUserSlots(),
		done:     make(map[string]chan struct{}),
	}
}

// Start launches the worker pool
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return
	}
	for i := 0; i < o.opts.Workers; i++ {
		o.workerWg.Add(1)
		go o.worker(i)
	}
	o.started = true
	o.logger.Info("job workers started", "workers", o.opts.Workers)
}

// Shutdown stops accepting jobs and waits for queued ones. When ctx expires
// first, running jobs are cancelled and still recorded as failed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		o.workerWg.Wait()
		o.bgWg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		o.cancel()
		o.logger.Info("job workers stopped")
		return nil
	case <-ctx.Done():
		o.cancel()
		<-finished
		return ctx.Err()
	}
}

// StartSync records a sync job and queues it. An empty query is replaced by
// an incremental one.
func (o *Orchestrator) StartSync(ctx context.Context, userID int64, query string) (string, error) {
	if query == "" {
		query = o.queries.Build(ctx, userID, o.opts.Category)
	}
	job, err := o.submit(ctx, &models.SyncJob{UserID: userID, Kind: models.JobSync, Query: query}, false)
	if err != nil {
		return "", err
	}
	if o.opts.PostSyncParse {
		o.bgWg.Add(1)
		go o.afterSync(job.ID, userID)
	}
	return job.ID, nil
}

// StartReprocess records a reprocess job and queues it. Without forceAll
// only emails that were never parsed are processed.
func (o *Orchestrator) StartReprocess(ctx context.Context, userID int64, forceAll bool) (string, error) {
	job, err := o.submit(ctx, &models.SyncJob{UserID: userID, Kind: models.JobReprocess}, !forceAll)
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

// Status returns the current state of a job
func (o *Orchestrator) Status(ctx context.Context, jobID string) (models.JobStatusView, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return models.JobStatusView{}, err
	}
	return job.View(), nil
}

// ListRecent returns a user's latest jobs, newest first
func (o *Orchestrator) ListRecent(ctx context.Context, userID int64, limit int) ([]models.JobStatusView, error) {
	jobs, err := o.store.ListRecentJobs(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]models.JobStatusView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.View())
	}
	return views, nil
}

// Done returns a channel closed once the job is terminal. Jobs this process
// does not track, including finished ones, get an already closed channel.
func (o *Orchestrator) Done(jobID string) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ch, ok := o.done[jobID]; ok {
		return ch
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (o *Orchestrator) submit(ctx context.Context, job *models.SyncJob, onlyUnprocessed bool) (*models.SyncJob, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate job id: %w", err)
	}
	job.ID = id.String()
	job.Category = o.opts.Category
	job.Status = models.JobPending
	job.StartedAt = time.Now().UTC()

	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	log := o.logger.With("job_id", job.ID, "user_id", job.UserID, "kind", job.Kind)
	if err := o.enqueue(task{job: job, onlyUnprocessed: onlyUnprocessed}); err != nil {
		// The caller still gets the id; the failure shows up in the job status
		log.Error("failed to queue job", "error", err)
		sctx, cancel := o.settleCtx()
		defer cancel()
		if ferr := o.store.FailJob(sctx, job.ID, err.Error()); ferr != nil {
			log.Error("failed to record job failure", "critical", true, "error", ferr)
		}
		return job, nil
	}
	log.Info("job queued")
	return job, nil
}

func (o *Orchestrator) enqueue(t task) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrShuttingDown
	}
	o.done[t.job.ID] = make(chan struct{})
	select {
	case o.queue <- t:
		return nil
	default:
		close(o.done[t.job.ID])
		delete(o.done, t.job.ID)
		return ErrQueueFull
	}
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Orchestrator) finish(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ch, ok := o.done[jobID]; ok {
		close(ch)
		delete(o.done, jobID)
	}
}

// worker processes jobs from the queue
func (o *Orchestrator) worker(id int) {
	defer o.workerWg.Done()

	for t := range o.queue {
		if !o.slots.acquire(t) {
			continue
		}
		for ok := true; ok; t, ok = o.slots.release(t.job.UserID) {
			if err := o.supervise(t); err != nil {
				o.logger.Error("job ended with error", "worker", id, "job_id", t.job.ID, "error", err)
			}
		}
	}
}

// supervise runs a job and always leaves it completed or failed. The
// returned error is the job error, joined with any failure to record it.
func (o *Orchestrator) supervise(t task) (err error) {
	job := t.job
	log := o.logger.With("job_id", job.ID, "user_id", job.UserID, "kind", job.Kind)

	defer o.finish(job.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job panicked: %v", r)
		}
		err = o.settle(log, job, err)
	}()

	return o.execute(o.baseCtx, t)
}

func (o *Orchestrator) execute(ctx context.Context, t task) error {
	job := t.job
	if err := o.store.MarkJobProcessing(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	cctx, err := o.loadContext(ctx, job.UserID)
	if err != nil {
		return err
	}
	run := ingest.Run{
		JobID:    job.ID,
		UserID:   job.UserID,
		Category: job.Category,
		Context:  cctx,
		Progress: &jobProgress{store: o.store, jobID: job.ID},
	}

	switch job.Kind {
	case models.JobSync:
		_, err = o.ingester.Sync(ctx, run, job.Query)
	case models.JobReprocess:
		_, err = o.ingester.Reprocess(ctx, run, t.onlyUnprocessed)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}
	return err
}

// loadContext reads rules and history once per run
func (o *Orchestrator) loadContext(ctx context.Context, userID int64) (*categorizer.Context, error) {
	rules, err := o.contexts.FindAllRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant rules: %w", err)
	}
	history, err := o.contexts.MerchantHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant history: %w", err)
	}
	return categorizer.NewContext(rules, history), nil
}

// settle persists the terminal state of a job
func (o *Orchestrator) settle(log *slog.Logger, job *models.SyncJob, runErr error) error {
	ctx, cancel := o.settleCtx()
	defer cancel()
	// Partial runs may have written transactions too
	defer o.cache.InvalidateUser(job.UserID)

	if runErr == nil {
		err := o.store.CompleteJob(ctx, job.ID)
		if err == nil {
			log.Info("job completed")
			return nil
		}
		runErr = fmt.Errorf("failed to complete job: %w", err)
	}

	log.Error("job failed", "error", runErr)
	if err := o.store.FailJob(ctx, job.ID, runErr.Error()); err != nil {
		log.Error("failed to record job failure", "critical", true, "error", err)
		return errors.Join(runErr, err)
	}
	return runErr
}

// settleCtx outlives shutdown cancellation so terminal states get written
func (o *Orchestrator) settleCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(o.baseCtx), 10*time.Second)
}

// afterSync waits for a sync to finish and then parses whatever it stored
// without parsing. It gives up after the wait budget without touching the
// sync job.
func (o *Orchestrator) afterSync(jobID string, userID int64) {
	defer o.bgWg.Done()
	log := o.logger.With("job_id", jobID, "user_id", userID)

	timer := time.NewTimer(o.opts.PostSyncMaxWait)
	defer timer.Stop()

	select {
	case <-o.Done(jobID):
	case <-timer.C:
		log.Warn("post-sync wait budget exhausted")
		return
	case <-o.baseCtx.Done():
		return
	}

	if o.isClosed() {
		return
	}
	ctx, cancel := o.settleCtx()
	defer cancel()
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil || job.Status != models.JobCompleted {
		return
	}
	pending, err := o.contexts.CountEmails(ctx, models.EmailFilter{UserID: userID, Category: job.Category, OnlyUnprocessed: true})
	if err != nil {
		log.Warn("failed to count unparsed emails", "error", err)
		return
	}
	if pending == 0 {
		return
	}

	id, err := o.StartReprocess(ctx, userID, false)
	if err != nil {
		log.Warn("failed to start post-sync parse", "error", err)
		return
	}
	log.Info("post-sync parse queued", "reprocess_job_id", id, "emails", pending)
}

type jobProgress struct {
	store Store
	jobID string
}

func (p *jobProgress) SetTotal(ctx context.Context, total int) error {
	return p.store.SetJobTotal(ctx, p.jobID, total)
}

func (p *jobProgress) Add(ctx context.Context, delta models.JobProgress) error {
	return p.store.IncrementJobProgress(ctx, p.jobID, delta)
}
