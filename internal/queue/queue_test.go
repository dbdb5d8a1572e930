package queue

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.Submit(Job{OwnerID: int64(i % 2), JobID: fmt.Sprintf("job-%d", i)})
	}
	if q.Depth() != 5 {
		t.Fatalf("Depth() = %d, want 5", q.Depth())
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		job, err := q.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if want := fmt.Sprintf("job-%d", i); job.JobID != want {
			t.Fatalf("job %d = %q, want %q", i, job.JobID, want)
		}
	}
	if q.Depth() != 0 {
		t.Fatalf("Depth() = %d, want 0", q.Depth())
	}
}

func TestQueueNextBlocksUntilSubmit(t *testing.T) {
	q := New()
	got := make(chan Job, 1)
	go func() {
		job, err := q.Next(context.Background())
		if err != nil {
			return
		}
		got <- job
	}()

	// Give the consumer a moment to reach the blocking wait.
	time.Sleep(20 * time.Millisecond)
	q.Submit(Job{JobID: "late"})

	select {
	case job := <-got:
		if job.JobID != "late" {
			t.Fatalf("JobID = %q, want %q", job.JobID, "late")
		}
	case <-time.After(time.Second):
		t.Fatalf("Next() did not return after Submit")
	}
}

func TestQueueNextHonorsContext(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Next(ctx); err == nil {
		t.Fatalf("Next() should return the context error")
	}
}

func TestQueueSubmitStampsSubmittedAt(t *testing.T) {
	q := New()
	q.Submit(Job{JobID: "a"})
	job, err := q.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if job.SubmittedAt.IsZero() {
		t.Fatalf("SubmittedAt should be stamped on submit")
	}
}
