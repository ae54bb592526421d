package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/logger"
)

func TestOutboxRetentionJobDeletesPublishedRows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeRetentionRepo{rows: 7}
	job := newOutboxRetentionJob(t, repo)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-outboxRetentionDays * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
	if repo.minAttempts != outboxMinAttempts {
		t.Fatalf("expected min attempts %d, got %d", outboxMinAttempts, repo.minAttempts)
	}
	if repo.called != 1 {
		t.Fatalf("expected repo called once, got %d", repo.called)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeRetentionRepo{err: errors.New("boom")})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDLQRetentionJobUsesConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRetentionRepo{}
	jobIface, err := NewDLQRetentionJob(DLQRetentionJobParams{
		Logger:     logger.Nop(),
		DB:         passthroughTxRunner{},
		Repository: repo,
		Retention:  7,
	})
	if err != nil {
		t.Fatalf("NewDLQRetentionJob: %v", err)
	}
	job := jobIface.(*dlqRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-7 * 24 * time.Hour); !repo.lastCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.lastCutoff)
	}
}

func TestRetentionJobsRequireDependencies(t *testing.T) {
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), DB: passthroughTxRunner{}}); err == nil {
		t.Fatal("expected repository error")
	}
	if _, err := NewDLQRetentionJob(DLQRetentionJobParams{Logger: logger.Nop(), Repository: &fakeRetentionRepo{}}); err == nil {
		t.Fatal("expected db error")
	}
}

func newOutboxRetentionJob(t *testing.T, repo *fakeRetentionRepo) *outboxRetentionJob {
	t.Helper()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		DB:         passthroughTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", jobIface)
	}
	return job
}

type fakeRetentionRepo struct {
	lastCutoff  time.Time
	minAttempts int
	called      int
	rows        int64
	err         error
}

func (f *fakeRetentionRepo) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.minAttempts = minAttemptCount
	return f.DeleteFailedBefore(context.Background(), nil, cutoff)
}

func (f *fakeRetentionRepo) DeleteFailedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return f.rows, nil
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
