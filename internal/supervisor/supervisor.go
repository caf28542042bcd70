// Package supervisor spawns and restarts the scanner and broker client
// workers in place, preserving their channel endpoints across restarts.
package supervisor

import (
	"log/slog"
	"sync"

	"github.com/commatea/ruuvi-gateway/internal/metrics"
)

// Outcome is the generic result contract every supervised worker returns:
// CLEAN_EXIT when it received SHUTDOWN, RESTART when it needs to be
// relaunched. A worker func that panics or returns a fatal error is
// recovered and treated as RESTART.
type Outcome int

const (
	CleanExit Outcome = iota
	Restart
)

// WorkerState is the read-only status of one supervised worker, exposed to
// the status endpoint.
type WorkerState struct {
	Name     string
	Running  bool
	Restarts int
	LastExit Outcome
}

// worker pairs a name with the function that runs one generation of it.
type worker struct {
	name string
	run  func() Outcome
}

// Supervisor runs a fixed set of workers, restarting each in place until it
// reports CLEAN_EXIT. The process is considered done once every worker has
// cleanly exited.
type Supervisor struct {
	log     *slog.Logger
	workers []worker

	mu     sync.Mutex
	states map[string]WorkerState
}

// New constructs a Supervisor with no workers registered yet; call Spawn
// for each one before Run.
func New(log *slog.Logger) *Supervisor {
	return &Supervisor{
		log:    log,
		states: make(map[string]WorkerState),
	}
}

// Spawn registers a worker under name. run must return CleanExit or
// Restart; it must not block indefinitely.
func (s *Supervisor) Spawn(name string, run func() Outcome) {
	s.workers = append(s.workers, worker{name: name, run: run})
	s.setState(WorkerState{Name: name})
}

// Run blocks until every registered worker has reported CleanExit,
// restarting each independently in its own goroutine whenever it reports
// Restart (or panics, which is treated as Restart after being logged).
func (s *Supervisor) Run() {
	var wg sync.WaitGroup
	wg.Add(len(s.workers))
	for _, w := range s.workers {
		go func(w worker) {
			defer wg.Done()
			s.runUntilCleanExit(w)
		}(w)
	}
	wg.Wait()
}

func (s *Supervisor) runUntilCleanExit(w worker) {
	for {
		outcome := s.runOnce(w)
		s.recordExit(w.name, outcome)
		if outcome == CleanExit {
			return
		}
		s.log.Warn("supervisor: restarting worker", "worker", w.name)
	}
}

// runOnce invokes w.run, converting a panic into Restart the same way a
// propagated fatal error would be treated.
func (s *Supervisor) runOnce(w worker) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("supervisor: worker panicked, restarting", "worker", w.name, "panic", r)
			outcome = Restart
		}
	}()
	return w.run()
}

func (s *Supervisor) recordExit(name string, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[name]
	st.Name = name
	st.Running = outcome != CleanExit
	st.LastExit = outcome
	if outcome == Restart {
		st.Restarts++
		metrics.WorkerRestarts.WithLabelValues(name).Inc()
	}
	s.states[name] = st
}

func (s *Supervisor) setState(st WorkerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.Name] = st
}

// States returns a snapshot of every worker's current status, for the
// status endpoint.
func (s *Supervisor) States() []WorkerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WorkerState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	return out
}
