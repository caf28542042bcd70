package supervisor

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSupervisor_RestartsUntilCleanExit(t *testing.T) {
	s := New(discardLogger())
	var calls int32

	s.Spawn("flaky", func() Outcome {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return Restart
		}
		return CleanExit
	})

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after worker reached CleanExit")
	}

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("worker invoked %d times, want 3", got)
	}

	states := s.States()
	if len(states) != 1 {
		t.Fatalf("States() returned %d entries, want 1", len(states))
	}
	if states[0].Restarts != 2 {
		t.Errorf("Restarts = %d, want 2", states[0].Restarts)
	}
	if states[0].LastExit != CleanExit {
		t.Errorf("LastExit = %v, want CleanExit", states[0].LastExit)
	}
}

func TestSupervisor_PanicTreatedAsRestart(t *testing.T) {
	s := New(discardLogger())
	var calls int32

	s.Spawn("panicky", func() Outcome {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			panic("boom")
		}
		return CleanExit
	})

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after recovering from panic")
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("worker invoked %d times, want 2", got)
	}
}

func TestSupervisor_MultipleWorkersBothCleanExit(t *testing.T) {
	s := New(discardLogger())
	s.Spawn("a", func() Outcome { return CleanExit })
	s.Spawn("b", func() Outcome { return CleanExit })

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return once both workers clean-exited")
	}
}
