package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/plaicube/video-pipeline/internal/model"
)

// Scheduler drives pipelines through their ordered steps. Each started
// pipeline gets exactly one execution unit (a tracked goroutine with a
// cooperative cancel); steps within a pipeline run strictly sequentially
// while distinct pipelines run fully in parallel.
type Scheduler struct {
	store    *Store
	registry *Registry
	runtime  *Runtime
	events   Events

	mu      sync.Mutex
	running map[string]*execution
}

type execution struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(store *Store, registry *Registry, runtime *Runtime, events Events) *Scheduler {
	if events == nil {
		events = NopEvents{}
	}
	return &Scheduler{
		store:    store,
		registry: registry,
		runtime:  runtime,
		events:   events,
		running:  make(map[string]*execution),
	}
}

// Start launches the execution unit for a pending pipeline. It returns
// immediately; progress is observable through the store.
func (s *Scheduler) Start(id string) error {
	if _, err := s.store.Get(id); err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.running[id]; exists {
		s.mu.Unlock()
		return fmt.Errorf("pipeline %s: %w", id, ErrInvalidState)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ex := &execution{cancel: cancel, done: make(chan struct{})}
	s.running[id] = ex
	s.mu.Unlock()

	go s.run(ctx, id, ex)
	return nil
}

// Cancel flags the pipeline for cancellation and interrupts its execution
// unit. It returns immediately; the transition to cancelled is asynchronous.
// Cancelling an already-terminal pipeline is ErrInvalidState; repeated
// cancels on a live pipeline all succeed while exactly one transition wins.
func (s *Scheduler) Cancel(id string) error {
	_, err := s.store.Update(id, func(p *model.Pipeline) error {
		if p.Terminal() {
			return ErrInvalidState
		}
		p.CancelRequested = true
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	ex := s.running[id]
	s.mu.Unlock()

	if ex != nil {
		ex.cancel()
		return nil
	}

	// No live execution unit: the pipeline never started (or its unit is
	// already torn down), so settle the terminal state here.
	now := time.Now()
	finished, ok := s.finish(id, func(p *model.Pipeline) {
		p.Status = model.PipelineStatusCancelled
		p.CompletedAt = &now
	})
	if ok {
		s.events.PipelineFinished(finished)
	}
	return nil
}

// Running reports whether the pipeline's execution unit is still live.
func (s *Scheduler) Running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

// Wait blocks until the pipeline's execution unit finishes. It returns
// immediately when no unit is live.
func (s *Scheduler) Wait(id string) {
	s.mu.Lock()
	ex := s.running[id]
	s.mu.Unlock()
	if ex != nil {
		<-ex.done
	}
}

// Shutdown cancels every live execution unit and waits for them to settle
// or for ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	units := make([]*execution, 0, len(s.running))
	for _, ex := range s.running {
		ex.cancel()
		units = append(units, ex)
	}
	s.mu.Unlock()

	for _, ex := range units {
		select {
		case <-ex.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// run is the state machine loop for one pipeline. It is the single writer
// for the pipeline's step transitions; the only external mutation is the
// cancel flag, and the store serializes the race between cancellation and
// natural completion so exactly one terminal transition wins.
func (s *Scheduler) run(ctx context.Context, id string, ex *execution) {
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
		ex.cancel()
		close(ex.done)
	}()

	started, err := s.store.Update(id, func(p *model.Pipeline) error {
		if p.Status != model.PipelineStatusPending {
			return ErrInvalidState
		}
		p.Status = model.PipelineStatusRunning
		p.CurrentStepIndex = 0
		return nil
	})
	if err != nil {
		// Already transitioned externally (e.g. cancelled before the
		// goroutine was scheduled); nothing to drive.
		return
	}
	s.events.PipelineStarted(started)

	carry := model.ArtifactRef(started.VideoURL)

	for i := range started.Steps {
		if ctx.Err() != nil {
			s.finishCancelled(id, i)
			return
		}

		step := started.Steps[i]
		if _, err := s.markStep(id, i, step.Enabled, carry); err != nil {
			return
		}
		if step.Enabled {
			s.events.StepStarted(id, step)
		}

		var handler Handler
		if step.Enabled {
			h, ok := s.registry.Resolve(step.Type)
			if !ok {
				// Submission validation guarantees this never happens; treat
				// a hole in the registry as a handler failure.
				s.failStep(id, i, &HandlerError{StepType: step.Type, Err: fmt.Errorf("no handler registered")})
				return
			}
			handler = h
		}

		out, err := s.runtime.Execute(ctx, id, i, handler, carry)
		switch {
		case err == nil:
			if step.Enabled {
				s.completeStep(id, i, out)
			}
			carry = out
		case err == ErrCancelled:
			s.finishCancelled(id, i)
			return
		default:
			s.failStep(id, i, err)
			return
		}
	}

	now := time.Now()
	result := carry
	finished, ok := s.finish(id, func(p *model.Pipeline) {
		p.Status = model.PipelineStatusCompleted
		p.Result = &result
		p.CompletedAt = &now
	})
	if ok {
		s.events.PipelineFinished(finished)
	}
}

// markStep records that step i is being attempted: the running index
// advances and, for enabled steps, status and timestamps are set.
func (s *Scheduler) markStep(id string, i int, enabled bool, input model.ArtifactRef) (*model.Pipeline, error) {
	now := time.Now()
	return s.store.Update(id, func(p *model.Pipeline) error {
		if p.Terminal() {
			return ErrInvalidState
		}
		p.CurrentStepIndex = i
		st := &p.Steps[i]
		st.InputRef = input
		if enabled {
			st.Status = model.StepStatusRunning
			st.StartedAt = &now
		}
		return nil
	})
}

func (s *Scheduler) completeStep(id string, i int, out model.ArtifactRef) {
	now := time.Now()
	_, _ = s.store.Update(id, func(p *model.Pipeline) error {
		if p.Terminal() {
			return ErrInvalidState
		}
		st := &p.Steps[i]
		st.Status = model.StepStatusCompleted
		st.OutputRef = out
		st.Progress = 100
		st.FinishedAt = &now
		return nil
	})
}

// failStep marks step i failed and settles the pipeline as failed with the
// wrapped error. Steps after i stay pending.
func (s *Scheduler) failStep(id string, i int, cause error) {
	now := time.Now()
	perr := classify(cause)
	msg := cause.Error()
	finished, ok := s.finish(id, func(p *model.Pipeline) {
		st := &p.Steps[i]
		st.Status = model.StepStatusFailed
		st.Error = &msg
		st.FinishedAt = &now
		p.Status = model.PipelineStatusFailed
		p.Error = perr
		p.CompletedAt = &now
	})
	if ok {
		s.events.PipelineFinished(finished)
	}
}

// finishCancelled settles a cancellation observed at step i: a step still
// running is skipped, later steps stay pending.
func (s *Scheduler) finishCancelled(id string, i int) {
	now := time.Now()
	finished, ok := s.finish(id, func(p *model.Pipeline) {
		if i < len(p.Steps) {
			st := &p.Steps[i]
			if st.Status == model.StepStatusRunning {
				st.Status = model.StepStatusSkipped
				st.FinishedAt = &now
			}
		}
		p.Status = model.PipelineStatusCancelled
		p.CompletedAt = &now
	})
	if ok {
		s.events.PipelineFinished(finished)
	}
}

// finish applies a terminal mutation unless another terminal transition
// already won. Reports whether this one applied.
func (s *Scheduler) finish(id string, fn func(p *model.Pipeline)) (*model.Pipeline, bool) {
	updated, err := s.store.Update(id, func(p *model.Pipeline) error {
		if p.Terminal() {
			return ErrInvalidState
		}
		fn(p)
		return nil
	})
	if err != nil {
		return nil, false
	}
	return updated, true
}
