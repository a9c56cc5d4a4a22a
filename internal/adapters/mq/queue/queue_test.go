package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Cap(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if err := q.Enqueue(ctx, Job{StudentID: "s-1", SkillID: "teamwork"}); err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	j := <-q.Dequeue(ctx)
	if j.StudentID != "s-1" || j.SkillID != "teamwork" {
		t.Errorf("unexpected job %+v", j)
	}
	if j.EnqueuedAt.IsZero() {
		t.Error("expected enqueue time to be stamped")
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, Job{StudentID: fmt.Sprintf("s-%d", i), SkillID: "k"}); err != nil {
			t.Fatalf("expected enqueue to succeed: %v", err)
		}
	}

	if err := q.Enqueue(ctx, Job{StudentID: "s-3", SkillID: "k"}); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_Clock(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewInMemoryQueue(WithCapacity(1), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	if err := q.Enqueue(ctx, Job{StudentID: "s", SkillID: "k"}); err != nil {
		t.Fatal(err)
	}
	if j := <-q.Dequeue(ctx); !j.EnqueuedAt.Equal(fixed) {
		t.Errorf("expected %v, got %v", fixed, j.EnqueuedAt)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, Job{StudentID: "s", SkillID: "k"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	_ = q.Enqueue(ctx, Job{StudentID: "s-1", SkillID: "k"})
	_ = q.Enqueue(ctx, Job{StudentID: "s-2", SkillID: "k"})

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if err := q.Enqueue(ctx, Job{StudentID: "s-3", SkillID: "k"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Queued jobs are still delivered, then the channel closes.
	var got []string
	for j := range q.Dequeue(ctx) {
		got = append(got, j.StudentID)
	}
	if len(got) != 2 || got[0] != "s-1" || got[1] != "s-2" {
		t.Errorf("unexpected drain order %v", got)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()
	numProducers := 10
	numJobs := 100

	var wg sync.WaitGroup
	for i := 0; i < numProducers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numJobs; j++ {
				if err := q.Enqueue(ctx, Job{StudentID: fmt.Sprintf("s-%d", id), SkillID: fmt.Sprintf("k-%d", j)}); err != nil {
					t.Errorf("enqueue: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	_ = q.Close()

	count := 0
	for range q.Dequeue(ctx) {
		count++
	}
	if count != numProducers*numJobs {
		t.Errorf("expected %d jobs, got %d", numProducers*numJobs, count)
	}
}
