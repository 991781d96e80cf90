package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"batchgen/logging"
)

func TestAsyncWriter_ProcessesInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []any
	)
	handler := func(op WriteOperation) error {
		mu.Lock()
		seen = append(seen, op.Data)
		mu.Unlock()
		return nil
	}

	w := NewAsyncWriter(handler, DefaultAsyncWriterConfig(), logging.NewFromZap(zaptest.NewLogger(t)))
	w.Start()
	w.Start()

	for _, d := range []string{"first", "second", "third"} {
		if !w.Write(d) {
			t.Errorf("Write(%q) = false, want true", d)
		}
	}
	if !w.Close() {
		t.Fatal("Close() = false, want drained")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != "first" || seen[2] != "third" {
		t.Errorf("handled = %v, want first, second, third", seen)
	}
}

func TestAsyncWriter_FullAndClosed(t *testing.T) {
	block := make(chan struct{})
	handler := func(op WriteOperation) error {
		<-block
		return nil
	}

	w := NewAsyncWriter(handler, AsyncWriterConfig{ChannelCapacity: 1, DrainTimeout: time.Second}, nil)
	if w.IsStarted() {
		t.Error("IsStarted() before Start = true")
	}
	w.Start()

	// one in the handler, one buffered, then full
	w.Write(1)
	deadline := time.Now().Add(time.Second)
	for w.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !w.Write(2) {
		t.Fatal("Write(2) = false, want buffered")
	}
	if w.Write(3) {
		t.Error("Write(3) = true, want false on full buffer")
	}

	close(block)
	w.Close()
	if w.Write(4) {
		t.Error("Write() after Close = true, want false")
	}
	if w.IsStarted() {
		t.Error("IsStarted() after Close = true")
	}
}

func TestAsyncWriter_CountsFailures(t *testing.T) {
	var calls atomic.Int32
	w := NewAsyncWriter(func(WriteOperation) error {
		calls.Add(1)
		return errors.New("disk full")
	}, DefaultAsyncWriterConfig(), nil)
	w.Start()
	w.Write("a")
	w.Write("b")
	w.Close()

	if calls.Load() != 2 || w.Failed() != 2 {
		t.Errorf("calls = %d, Failed() = %d, want 2, 2", calls.Load(), w.Failed())
	}
}

func TestRepository_AsyncOutcomes(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	repo := NewRepository(database, nil)
	w := NewAsyncWriter(repo.WriteHandler(), DefaultAsyncWriterConfig(), nil)
	repo.writer = w
	w.Start()

	seedRun(t, repo, "run-1", 1, "a", "b")
	for row := 0; row < 2; row++ {
		if err := repo.RecordOutcome(ctx, Outcome{RunID: "run-1", Row: row, Image: 0, Status: OutcomeSuccess}); err != nil {
			t.Fatalf("RecordOutcome() error = %v", err)
		}
	}
	if !w.Close() {
		t.Fatal("Close() did not drain")
	}

	// writer closed: this one goes straight to the database
	if err := repo.RecordOutcome(ctx, Outcome{RunID: "run-1", Row: 1, Image: 0, Status: OutcomeError, Reason: "x"}); err != nil {
		t.Fatalf("RecordOutcome() sync error = %v", err)
	}

	outcomes, err := repo.Outcomes(ctx, "run-1")
	if err != nil || len(outcomes) != 3 {
		t.Errorf("Outcomes() = %d, %v, want 3", len(outcomes), err)
	}
	if w.Failed() != 0 {
		t.Errorf("Failed() = %d, want 0", w.Failed())
	}
}

func TestRepository_StartAsyncWrites(t *testing.T) {
	database := openTestDB(t)
	repo := NewRepository(database, nil)
	seedRun(t, repo, "run-async", 1, "a cat")

	w := repo.StartAsyncWrites(DefaultAsyncWriterConfig(), nil)
	if !w.IsStarted() {
		t.Fatal("writer not started")
	}
	if err := repo.RecordOutcome(t.Context(), Outcome{RunID: "run-async", Row: 0, Image: 0, Status: OutcomeSuccess, Location: "a.jpg"}); err != nil {
		t.Fatalf("RecordOutcome() = %v", err)
	}
	if !w.Close() {
		t.Fatal("Close() did not drain")
	}

	outcomes, err := repo.Outcomes(t.Context(), "run-async")
	if err != nil {
		t.Fatalf("Outcomes() = %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Location != "a.jpg" {
		t.Errorf("outcomes = %+v", outcomes)
	}
}
