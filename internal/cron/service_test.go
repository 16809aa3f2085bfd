package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/receipt-generator/pkg/logger"
	"github.com/angelmondragon/receipt-generator/pkg/metrics"
)

type fakeLock struct {
	acquired bool
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("job context has no deadline")
	}
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:  logger.Nop(),
		Jobs:    []Job{failure, nil, success},
		Lock:    lock,
		Metrics: metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected each job to run once, got success=%d failure=%d", success.runs, failure.runs)
	}
	if lock.releases != 1 || lock.acquired {
		t.Fatalf("expected lock released after cycle")
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	lock := &fakeLock{acquired: true}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Jobs: []Job{job}, Lock: lock})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("must not release a lock it does not hold")
	}
}

func TestServiceRunCycleReportsLockError(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger: logger.Nop(),
		Jobs:   []Job{&testJob{name: "job"}},
		Lock:   &fakeLock{err: errors.New("redis down")},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Jobs: []Job{job}, Lock: &fakeLock{}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the startup cycle to run once, ran %d", job.runs)
	}
}

func TestNewServiceValidatesParams(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}, Jobs: []Job{&testJob{}}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: logger.Nop(), Jobs: []Job{&testJob{}}}); err == nil {
		t.Fatal("expected lock error")
	}
	if _, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected jobs error")
	}
}
