package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/combatlink/internal/domain/model"
)

func batch(session, id string) Batch {
	return model.Batch{SessionID: session, BatchID: id, Events: []model.ObservedEvent{{Seq: 1}}}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Capacity(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if !q.Enqueue(ctx, batch("s1", "b1")) {
		t.Fatal("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.SessionID != "s1" || got.BatchID != "b1" {
		t.Errorf("unexpected batch %+v", got)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, batch("s1", "b1")) || !q.Enqueue(ctx, batch("s1", "b2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, batch("s1", "b3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_Order(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		q.Enqueue(ctx, batch("s1", fmt.Sprintf("b%d", i)))
	}
	_ = q.Close()

	var got []string
	for b := range q.Dequeue(ctx) {
		got = append(got, b.BatchID)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 batches after close, got %d", len(got))
	}
	for i, id := range got {
		if id != fmt.Sprintf("b%d", i) {
			t.Errorf("position %d: expected b%d, got %s", i, i, id)
		}
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if q.Enqueue(ctx, batch("s1", "b1")) {
		t.Error("expected enqueue on closed queue to fail")
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, batch("s1", "b1")) {
		t.Error("expected enqueue with cancelled context to fail")
	}

	select {
	case _, ok := <-q.Dequeue(ctx):
		if ok {
			t.Error("expected no batch from a cancelled dequeue")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel was not closed after cancel")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if !q.Enqueue(ctx, batch(fmt.Sprintf("s%d", p), fmt.Sprintf("b%d", i))) {
					t.Errorf("enqueue failed for producer %d", p)
				}
			}
		}(p)
	}
	wg.Wait()

	if l := q.Len(ctx); l != 500 {
		t.Errorf("expected 500 batches, got %d", l)
	}
}
