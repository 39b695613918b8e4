package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"batchcursor/internal/iteration"
	"batchcursor/internal/logging"
	"batchcursor/internal/signal"
)

var (
	// ErrUnknownJob is returned for tokens the table never issued or has pruned.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobFinished is returned when continuing a completed, failed, or canceled job.
	ErrJobFinished = errors.New("job already finished")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("scheduler closed")
)

// JobState is the lifecycle of a scheduled job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobWaiting   JobState = "waiting"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// Finished reports whether the job will never run again.
func (s JobState) Finished() bool {
	switch s {
	case JobCompleted, JobFailed, JobCanceled:
		return true
	default:
		return false
	}
}

// Job is a snapshot of one scheduled sequence.
type Job struct {
	Token       string            `json:"token"`
	Request     iteration.Request `json:"request"`
	State       JobState          `json:"state"`
	Invocations int               `json:"invocations"`
	Last        *iteration.Result `json:"last,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type job struct {
	Job
	running bool
	next    bool
	halted  bool
	first   bool
}

const defaultRetainFinished = 128

// Jobs schedules driver invocations in response to continue and halt
// instructions. It implements signal.Signal.
type Jobs struct {
	invoker  Invoker
	limiter  *rate.Limiter
	logger   *slog.Logger
	retain   int
	now      func() time.Time
	newToken func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
}

// JobsOption configures Jobs.
type JobsOption func(*Jobs)

// WithJobRate paces invocations across all jobs.
func WithJobRate(perSecond float64) JobsOption {
	return func(j *Jobs) { j.limiter = NewLimiter(perSecond) }
}

// WithJobLogger sets the logger.
func WithJobLogger(logger *slog.Logger) JobsOption {
	return func(j *Jobs) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithRetainFinished bounds how many finished jobs stay queryable.
func WithRetainFinished(n int) JobsOption {
	return func(j *Jobs) {
		if n > 0 {
			j.retain = n
		}
	}
}

// WithTokenGenerator overrides uuid job tokens.
func WithTokenGenerator(fn func() string) JobsOption {
	return func(j *Jobs) {
		if fn != nil {
			j.newToken = fn
		}
	}
}

// NewJobs creates an empty job table. The invoker is usually set later with
// Bind, since the driver it wraps signals back into this table.
func NewJobs(opts ...JobsOption) *Jobs {
	ctx, cancel := context.WithCancel(context.Background())
	j := &Jobs{
		limiter:  NewLimiter(0),
		retain:   defaultRetainFinished,
		now:      time.Now,
		newToken: uuid.NewString,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]*job),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = logging.NewComponentLogger(j.logger, "jobs")
	return j
}

// Bind sets the invoker jobs run against.
func (j *Jobs) Bind(invoker Invoker) {
	j.mu.Lock()
	j.invoker = invoker
	j.mu.Unlock()
}

// Submit registers a job for req and starts its first invocation.
func (j *Jobs) Submit(req iteration.Request) (Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return Job{}, ErrClosed
	}
	if j.invoker == nil {
		return Job{}, errors.New("scheduler has no invoker")
	}
	now := j.now().UTC()
	token := j.newToken()
	req.Token = token
	entry := &job{
		Job: Job{
			Token:     token,
			Request:   req,
			State:     JobRunning,
			CreatedAt: now,
			UpdatedAt: now,
		},
		first: true,
	}
	j.jobs[token] = entry
	j.startLocked(entry)
	j.logger.Info("job submitted",
		logging.String("token", token),
		logging.String(logging.FieldCollection, req.Collection),
	)
	return entry.Job, nil
}

// Get returns a snapshot of the job with token.
func (j *Jobs) Get(token string) (Job, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry, ok := j.jobs[token]
	if !ok {
		return Job{}, false
	}
	return snapshot(entry), true
}

// List returns every retained job, newest first.
func (j *Jobs) List() []Job {
	j.mu.Lock()
	out := make([]Job, 0, len(j.jobs))
	for _, entry := range j.jobs {
		out = append(out, snapshot(entry))
	}
	j.mu.Unlock()
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].Token > out[b].Token
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out
}

// Continue implements signal.Signal. An empty token is ignored so plain
// invocations outside any job pass through.
func (j *Jobs) Continue(_ context.Context, token string) error {
	if token == "" {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	entry, err := j.lookupLocked(token)
	if err != nil {
		return err
	}
	if entry.running {
		entry.next = true
		return nil
	}
	if j.closed {
		return ErrClosed
	}
	entry.State = JobRunning
	entry.UpdatedAt = j.now().UTC()
	j.startLocked(entry)
	return nil
}

// Halt implements signal.Signal. A halt arriving during an invocation takes
// effect once that invocation's result is recorded.
func (j *Jobs) Halt(_ context.Context, token string) error {
	if token == "" {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	entry, err := j.lookupLocked(token)
	if err != nil {
		return err
	}
	entry.next = false
	if entry.running {
		entry.halted = true
		return nil
	}
	entry.State = JobCompleted
	entry.UpdatedAt = j.now().UTC()
	j.pruneLocked()
	return nil
}

// Relay returns the continuation signal for drivers that share the daemon
// with this table. Tokens the table never issued belong to an external
// scheduler, and a job finished while its invocation ran wants no further
// instruction; both pass through without error.
func (j *Jobs) Relay() signal.Signal {
	return jobRelay{jobs: j}
}

type jobRelay struct {
	jobs *Jobs
}

func (r jobRelay) Continue(ctx context.Context, token string) error {
	return r.filter(token, r.jobs.Continue(ctx, token))
}

func (r jobRelay) Halt(ctx context.Context, token string) error {
	return r.filter(token, r.jobs.Halt(ctx, token))
}

func (r jobRelay) filter(token string, err error) error {
	if errors.Is(err, ErrUnknownJob) || errors.Is(err, ErrJobFinished) {
		r.jobs.logger.Debug("instruction not addressed to a running job",
			logging.String("token", token),
			logging.Error(err),
		)
		return nil
	}
	return err
}

// Cancel stops scheduling further invocations for token. An invocation
// already in flight finishes normally.
func (j *Jobs) Cancel(token string) (Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry, err := j.lookupLocked(token)
	if err != nil {
		return Job{}, err
	}
	entry.next = false
	entry.State = JobCanceled
	entry.UpdatedAt = j.now().UTC()
	return snapshot(entry), nil
}

// Close cancels in-flight invocations and waits for job goroutines to exit.
func (j *Jobs) Close() {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
	j.cancel()
	j.wg.Wait()
}

// Counts reports how many retained jobs are in each state.
func (j *Jobs) Counts() map[JobState]int {
	j.mu.Lock()
	defer j.mu.Unlock()
	counts := make(map[JobState]int)
	for _, entry := range j.jobs {
		counts[entry.State]++
	}
	return counts
}

func (j *Jobs) lookupLocked(token string) (*job, error) {
	entry, ok := j.jobs[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, token)
	}
	if entry.State.Finished() {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobFinished, token, entry.State)
	}
	return entry, nil
}

func (j *Jobs) startLocked(entry *job) {
	entry.running = true
	j.wg.Add(1)
	go j.run(entry)
}

func (j *Jobs) run(entry *job) {
	defer j.wg.Done()
	logger := j.logger.With(logging.String("token", entry.Token))

	for {
		if err := j.limiter.Wait(j.ctx); err != nil {
			j.mu.Lock()
			entry.running = false
			if !entry.State.Finished() {
				entry.State = JobCanceled
				entry.Error = err.Error()
			}
			entry.UpdatedAt = j.now().UTC()
			j.mu.Unlock()
			return
		}

		j.mu.Lock()
		req := entry.Request
		if !entry.first {
			req = continuation(req)
		}
		entry.first = false
		invoker := j.invoker
		j.mu.Unlock()

		res, err := invoker.Invoke(j.ctx, req)

		j.mu.Lock()
		entry.Invocations++
		entry.Last = &res
		entry.UpdatedAt = j.now().UTC()
		if err != nil {
			entry.running = false
			entry.next = false
			entry.State = JobFailed
			entry.Error = err.Error()
			entry.ErrorKind = iteration.Kind(err)
			j.pruneLocked()
			j.mu.Unlock()
			logging.WarnWithContext(logger, "job invocation failed", "job_failed",
				logging.Error(err),
				logging.String("error_kind", iteration.Kind(err)),
				logging.String(logging.FieldErrorHint, "inspect the job and reset the collection if needed"),
				logging.String(logging.FieldImpact, "job will not be re-invoked"),
			)
			return
		}
		if entry.halted && !entry.State.Finished() {
			entry.State = JobCompleted
		}
		if !entry.next || entry.State.Finished() {
			entry.running = false
			if !entry.State.Finished() {
				entry.State = JobWaiting
			}
			j.pruneLocked()
			j.mu.Unlock()
			return
		}
		entry.next = false
		j.mu.Unlock()
	}
}

// pruneLocked drops the oldest finished jobs beyond the retention bound.
func (j *Jobs) pruneLocked() {
	var finished []*job
	for _, entry := range j.jobs {
		if entry.State.Finished() && !entry.running {
			finished = append(finished, entry)
		}
	}
	if len(finished) <= j.retain {
		return
	}
	sort.Slice(finished, func(a, b int) bool {
		return finished[a].UpdatedAt.Before(finished[b].UpdatedAt)
	})
	for _, entry := range finished[:len(finished)-j.retain] {
		delete(j.jobs, entry.Token)
	}
}

func snapshot(entry *job) Job {
	out := entry.Job
	if entry.Last != nil {
		last := *entry.Last
		out.Last = &last
	}
	return out
}
