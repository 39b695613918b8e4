package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"batchcursor/internal/iteration"
	"batchcursor/internal/pipeline"
	"batchcursor/internal/scheduler"
	"batchcursor/internal/signal"
	"batchcursor/internal/source"
	"batchcursor/internal/state"
)

func itemsSource(ids ...string) source.Source {
	return source.Func(func(_ context.Context, key string) ([]source.Item, error) {
		items := make([]source.Item, 0, len(ids))
		for _, id := range ids {
			items = append(items, source.Item{ID: id, Path: filepath.Join(key, id+".png")})
		}
		return items, nil
	})
}

func failOn(ids ...string) pipeline.Step {
	bad := make(map[string]bool, len(ids))
	for _, id := range ids {
		bad[id] = true
	}
	return pipeline.StepFunc(func(_ context.Context, item source.Item) error {
		if bad[item.ID] {
			return errors.New("unreadable")
		}
		return nil
	})
}

func TestLoopRunsUntilHalt(t *testing.T) {
	local := signal.NewLocalSignal(4)
	driver := iteration.New(state.NewMemoryStore(), itemsSource("a", "b", "c"), pipeline.Noop,
		iteration.WithSignal(local))

	var offsets []int
	loop := scheduler.NewLoop(driver, local, scheduler.WithResultHook(func(res iteration.Result) {
		offsets = append(offsets, res.Offset)
	}))

	summary, err := loop.Run(context.Background(), iteration.Request{Collection: t.TempDir()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Invocations != 3 || summary.Processed != 3 || !summary.Completed {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Token == "" {
		t.Fatal("loop should assign a run token")
	}
	if fmt.Sprint(offsets) != "[0 1 2]" {
		t.Fatalf("offsets = %v", offsets)
	}
	if len(local.C()) != 0 {
		t.Fatalf("loop should consume every delivery, %d left", len(local.C()))
	}
}

func TestLoopResetRestartsThenContinues(t *testing.T) {
	local := signal.NewLocalSignal(4)
	driver := iteration.New(state.NewMemoryStore(), itemsSource("a", "b", "c"), pipeline.Noop,
		iteration.WithSignal(local))
	dir := t.TempDir()

	if _, err := driver.Invoke(context.Background(), iteration.Request{Collection: dir}); err != nil {
		t.Fatalf("warm-up: %v", err)
	}
	<-local.C()

	loop := scheduler.NewLoop(driver, local)
	summary, err := loop.Run(context.Background(), iteration.Request{Collection: dir, Mode: iteration.ModeReset})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Invocations != 3 {
		t.Fatalf("reset run should process all items, got %d invocations", summary.Invocations)
	}
}

func TestLoopStopsOnHalt(t *testing.T) {
	local := signal.NewLocalSignal(4)
	driver := iteration.New(state.NewMemoryStore(), itemsSource("a", "b", "c"), failOn("b"),
		iteration.WithSignal(local))

	summary, err := scheduler.NewLoop(driver, local).Run(context.Background(), iteration.Request{Collection: t.TempDir()})
	var itemErr *iteration.ItemError
	if !errors.As(err, &itemErr) || itemErr.ItemID != "b" {
		t.Fatalf("expected item error for b, got %v", err)
	}
	if summary.Invocations != 2 || summary.Processed != 1 || summary.Completed {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestLoopCountsSkips(t *testing.T) {
	local := signal.NewLocalSignal(4)
	driver := iteration.New(state.NewMemoryStore(), itemsSource("a", "b", "c"), failOn("b"),
		iteration.WithSignal(local))

	summary, err := scheduler.NewLoop(driver, local).Run(context.Background(), iteration.Request{
		Collection:    t.TempDir(),
		FailurePolicy: iteration.SkipOnError,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Invocations != 2 || summary.Processed != 2 || summary.Skipped != 1 || !summary.Completed {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestLoopInvocationLimit(t *testing.T) {
	local := signal.NewLocalSignal(4)
	driver := iteration.New(state.NewMemoryStore(), itemsSource("a", "b", "c", "d", "e"), pipeline.Noop,
		iteration.WithSignal(local))

	summary, err := scheduler.NewLoop(driver, local, scheduler.WithMaxInvocations(2), scheduler.WithRate(1000)).
		Run(context.Background(), iteration.Request{Collection: t.TempDir()})
	if !errors.Is(err, scheduler.ErrInvocationLimit) {
		t.Fatalf("expected invocation limit, got %v", err)
	}
	if summary.Invocations != 2 || summary.Last == nil || summary.Last.Offset != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestLoopWithoutLocalSignalFollowsResult(t *testing.T) {
	driver := iteration.New(state.NewMemoryStore(), itemsSource("a", "b"), pipeline.Noop)
	summary, err := scheduler.NewLoop(driver, nil).Run(context.Background(), iteration.Request{Collection: t.TempDir()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Invocations != 2 || !summary.Completed {
		t.Fatalf("summary = %+v", summary)
	}
}

func waitForJob(t *testing.T, jobs *scheduler.Jobs, token string, cond func(scheduler.Job) bool) scheduler.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, ok := jobs.Get(token)
		if !ok {
			t.Fatalf("job %s not found", token)
		}
		if cond(job) {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never reached expected state: %+v", job)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newJobDriver(t *testing.T, step pipeline.Step, ids ...string) (*scheduler.Jobs, *iteration.Driver) {
	t.Helper()
	jobs := scheduler.NewJobs()
	driver := iteration.New(state.NewMemoryStore(), itemsSource(ids...), step, iteration.WithSignal(jobs))
	jobs.Bind(driver)
	t.Cleanup(jobs.Close)
	return jobs, driver
}

func TestJobsRunUntilHalt(t *testing.T) {
	jobs, _ := newJobDriver(t, pipeline.Noop, "a", "b", "c")

	job, err := jobs.Submit(iteration.Request{Collection: t.TempDir()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Token == "" || job.Request.Token != job.Token {
		t.Fatalf("job token not propagated: %+v", job)
	}

	done := waitForJob(t, jobs, job.Token, func(j scheduler.Job) bool { return j.State == scheduler.JobCompleted && j.Invocations == 3 })
	if done.Last == nil || !done.Last.BatchComplete || done.Last.Offset != 2 {
		t.Fatalf("last result = %+v", done.Last)
	}
	if err := jobs.Continue(context.Background(), job.Token); !errors.Is(err, scheduler.ErrJobFinished) {
		t.Fatalf("continue on completed job: %v", err)
	}
}

func TestJobsRecordFailures(t *testing.T) {
	jobs, _ := newJobDriver(t, failOn("b"), "a", "b", "c")

	job, err := jobs.Submit(iteration.Request{Collection: t.TempDir()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	failed := waitForJob(t, jobs, job.Token, func(j scheduler.Job) bool { return j.State == scheduler.JobFailed })
	if failed.Invocations != 2 || failed.ErrorKind != iteration.KindItem || failed.Error == "" {
		t.Fatalf("failed job = %+v", failed)
	}
	if counts := jobs.Counts(); counts[scheduler.JobFailed] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestJobsWaitForExternalContinue(t *testing.T) {
	jobs := scheduler.NewJobs(scheduler.WithTokenGenerator(func() string { return "run-1" }))
	t.Cleanup(jobs.Close)
	driver := iteration.New(state.NewMemoryStore(), itemsSource("a", "b", "c"), pipeline.Noop)
	jobs.Bind(driver)

	if _, err := jobs.Submit(iteration.Request{Collection: t.TempDir()}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForJob(t, jobs, "run-1", func(j scheduler.Job) bool { return j.State == scheduler.JobWaiting && j.Invocations == 1 })

	if err := jobs.Continue(context.Background(), "run-1"); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	waiting := waitForJob(t, jobs, "run-1", func(j scheduler.Job) bool { return j.State == scheduler.JobWaiting && j.Invocations == 2 })
	if waiting.Last.Offset != 1 || waiting.Last.Item.ID != "b" {
		t.Fatalf("second invocation should continue, got %+v", waiting.Last)
	}

	if err := jobs.Halt(context.Background(), "run-1"); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	if job, _ := jobs.Get("run-1"); job.State != scheduler.JobCompleted {
		t.Fatalf("state = %s", job.State)
	}
}

func TestJobsSignalErrors(t *testing.T) {
	jobs := scheduler.NewJobs()
	t.Cleanup(jobs.Close)
	ctx := context.Background()

	if err := jobs.Continue(ctx, ""); err != nil {
		t.Fatalf("empty token should be ignored: %v", err)
	}
	if err := jobs.Halt(ctx, "nope"); !errors.Is(err, scheduler.ErrUnknownJob) {
		t.Fatalf("Halt(unknown) = %v", err)
	}
	if _, err := jobs.Submit(iteration.Request{Collection: "/tmp/x"}); err == nil {
		t.Fatal("Submit without invoker should fail")
	}
}

func TestJobsRelayIgnoresForeignTokens(t *testing.T) {
	jobs := scheduler.NewJobs(scheduler.WithTokenGenerator(func() string { return "run-1" }))
	t.Cleanup(jobs.Close)
	jobs.Bind(iteration.New(state.NewMemoryStore(), itemsSource("a", "b"), pipeline.Noop))
	relay := jobs.Relay()
	ctx := context.Background()

	if err := relay.Continue(ctx, "external-prompt-42"); err != nil {
		t.Fatalf("Continue(foreign) = %v", err)
	}
	if err := relay.Halt(ctx, "external-prompt-42"); err != nil {
		t.Fatalf("Halt(foreign) = %v", err)
	}

	if _, err := jobs.Submit(iteration.Request{Collection: t.TempDir()}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForJob(t, jobs, "run-1", func(j scheduler.Job) bool { return j.State == scheduler.JobWaiting })
	if _, err := jobs.Cancel("run-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := relay.Continue(ctx, "run-1"); err != nil {
		t.Fatalf("Continue(canceled) = %v", err)
	}
	if err := jobs.Continue(ctx, "run-1"); !errors.Is(err, scheduler.ErrJobFinished) {
		t.Fatalf("direct continue after cancel: %v", err)
	}
}

func TestJobsCancel(t *testing.T) {
	jobs := scheduler.NewJobs(scheduler.WithTokenGenerator(func() string { return "run-1" }))
	t.Cleanup(jobs.Close)
	jobs.Bind(iteration.New(state.NewMemoryStore(), itemsSource("a", "b"), pipeline.Noop))

	if _, err := jobs.Submit(iteration.Request{Collection: t.TempDir()}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForJob(t, jobs, "run-1", func(j scheduler.Job) bool { return j.State == scheduler.JobWaiting })

	job, err := jobs.Cancel("run-1")
	if err != nil || job.State != scheduler.JobCanceled {
		t.Fatalf("Cancel = %+v, %v", job, err)
	}
	if err := jobs.Continue(context.Background(), "run-1"); !errors.Is(err, scheduler.ErrJobFinished) {
		t.Fatalf("continue after cancel: %v", err)
	}
}

func TestJobsPruneFinished(t *testing.T) {
	n := 0
	jobs := scheduler.NewJobs(
		scheduler.WithRetainFinished(1),
		scheduler.WithTokenGenerator(func() string { n++; return fmt.Sprintf("run-%d", n) }),
	)
	t.Cleanup(jobs.Close)
	driver := iteration.New(state.NewMemoryStore(), itemsSource("a"), pipeline.Noop, iteration.WithSignal(jobs))
	jobs.Bind(driver)

	first, err := jobs.Submit(iteration.Request{Collection: filepath.Join(t.TempDir(), "one")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForJob(t, jobs, first.Token, func(j scheduler.Job) bool { return j.State == scheduler.JobCompleted })

	second, err := jobs.Submit(iteration.Request{Collection: filepath.Join(t.TempDir(), "two")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := jobs.Get(first.Token); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("oldest finished job was never pruned")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := jobs.Get(second.Token); !ok {
		t.Fatal("newest job should be retained")
	}
}

func TestJobsSubmitAfterClose(t *testing.T) {
	jobs := scheduler.NewJobs()
	jobs.Bind(iteration.New(state.NewMemoryStore(), itemsSource("a"), pipeline.Noop))
	jobs.Close()
	if _, err := jobs.Submit(iteration.Request{Collection: "/tmp/x"}); !errors.Is(err, scheduler.ErrClosed) {
		t.Fatalf("Submit after close = %v", err)
	}
}
