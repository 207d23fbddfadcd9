package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/pitchvision/internal/domain/types"
)

func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithClock(fixedClock()))

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	job, err := store.Create(ctx, Job{VideoPath: "/videos/match.mp4", ConfidenceThreshold: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected a generated id")
	}
	if job.Status != StatusQueued {
		t.Errorf("expected queued, got %s", job.Status)
	}
	if store.Active() != 1 {
		t.Errorf("expected 1 active job, got %d", store.Active())
	}

	running, err := store.Update(ctx, job.ID, func(j *Job) { j.Status = StatusRunning })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if running.StartedAt == nil {
		t.Error("expected start time to be set")
	}

	analysis := &types.VideoAnalysis{FramesProcessed: 12, FramesFailed: 1}
	done, err := store.Update(ctx, job.ID, func(j *Job) {
		j.Status = StatusCompleted
		j.Analysis = analysis
		j.Progress = types.Progress{FramesProcessed: 12, FramesFailed: 1}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.FinishedAt == nil || !done.FinishedAt.After(*done.StartedAt) {
		t.Error("expected finish time after start time")
	}
	if store.Active() != 0 {
		t.Errorf("expected 0 active jobs, got %d", store.Active())
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Analysis == nil || got.Analysis.FramesProcessed != 12 {
		t.Errorf("expected stored analysis, got %+v", got.Analysis)
	}

	if _, err := store.Update(ctx, job.ID, func(j *Job) { j.Status = StatusFailed }); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal, got %v", err)
	}
}

func TestMemoryStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Update(ctx, "missing", func(*Job) {}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.List(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := store.Create(ctx, Job{ID: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Create(ctx, Job{ID: "a"}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestMemoryStore_UpdateKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	job, _ := store.Create(ctx, Job{ID: "keep"})

	got, err := store.Update(ctx, "keep", func(j *Job) {
		j.ID = "other"
		j.CreatedAt = time.Time{}
		j.Progress.FramesRead = 3
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "keep" || !got.CreatedAt.Equal(job.CreatedAt) {
		t.Errorf("identity changed: %+v", got)
	}
	if got.Progress.FramesRead != 3 {
		t.Errorf("expected progress 3, got %d", got.Progress.FramesRead)
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := 0; i < 5; i++ {
		if _, err := store.Create(ctx, Job{ID: fmt.Sprintf("job-%d", i)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	jobs, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"job-4", "job-3", "job-2"}
	if len(jobs) != len(want) {
		t.Fatalf("expected %d jobs, got %d", len(want), len(jobs))
	}
	for i, id := range want {
		if jobs[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, jobs[i].ID)
		}
	}

	all, _ := store.List(ctx, 100)
	if len(all) != 5 {
		t.Errorf("expected 5 jobs, got %d", len(all))
	}
}

func TestMemoryStore_Retention(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithRetention(2))

	finish := func(id string) {
		if _, err := store.Update(ctx, id, func(j *Job) { j.Status = StatusCompleted }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	_, _ = store.Create(ctx, Job{ID: "running"})
	_, _ = store.Create(ctx, Job{ID: "old"})
	finish("old")
	_, _ = store.Create(ctx, Job{ID: "new"})

	if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected oldest finished job to be evicted, got %v", err)
	}
	if _, err := store.Get(ctx, "running"); err != nil {
		t.Errorf("unfinished job must be kept: %v", err)
	}
	if count := store.Count(ctx); count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	job, _ := store.Create(ctx, Job{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, job.ID, func(j *Job) { j.Progress.FramesProcessed++ })
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, job.ID)
	if got.Progress.FramesProcessed != 50 {
		t.Errorf("expected 50 updates, got %d", got.Progress.FramesProcessed)
	}
}
