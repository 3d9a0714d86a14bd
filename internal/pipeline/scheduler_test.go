package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plaicube/video-pipeline/internal/model"
)

type schedFixture struct {
	store     *Store
	registry  *Registry
	scheduler *Scheduler
}

func newSchedFixture(t *testing.T) *schedFixture {
	t.Helper()
	store := NewStore()
	registry := NewRegistry()
	runtime := NewRuntime(store, nil, fixedTimeout(2*time.Second))
	return &schedFixture{
		store:     store,
		registry:  registry,
		scheduler: NewScheduler(store, registry, runtime, nil),
	}
}

// seed creates a pending pipeline whose step slice mirrors the enabled
// flags, using one distinct step type per position so handlers can be
// registered independently.
func (f *schedFixture) seed(t *testing.T, id string, enabled ...bool) {
	t.Helper()
	types := []model.StepType{
		model.StepTypeRunwayVideo, model.StepTypeFFmpeg,
		model.StepTypeWhisper, model.StepTypeGPT4, model.StepTypeCustom,
	}
	steps := make([]model.Step, len(enabled))
	for i, en := range enabled {
		status := model.StepStatusPending
		if !en {
			status = model.StepStatusSkipped
		}
		steps[i] = model.Step{
			ID:      id + "-s" + string(rune('0'+i)),
			Type:    types[i],
			Status:  status,
			Enabled: en,
			Order:   i,
		}
	}
	p := &model.Pipeline{
		ID:               id,
		VideoID:          "video-" + id,
		VideoURL:         "https://videos.example.com/" + id + ".mp4",
		Prompt:           "stylize",
		Status:           model.PipelineStatusPending,
		Steps:            steps,
		CurrentStepIndex: -1,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := f.store.Create(p); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func (f *schedFixture) handle(typ model.StepType, h Handler) {
	f.registry.Register(typ, h)
}

func constHandler(out model.ArtifactRef) Handler {
	return HandlerFunc(func(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
		return out, nil
	})
}

func TestRunChainsArtifactsThroughDisabledSteps(t *testing.T) {
	f := newSchedFixture(t)
	f.seed(t, "p1", true, false, true)

	var gotInput model.ArtifactRef
	f.handle(model.StepTypeRunwayVideo, constHandler("out-a"))
	f.handle(model.StepTypeWhisper, HandlerFunc(func(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
		gotInput = input
		return "out-c", nil
	}))

	if err := f.scheduler.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.scheduler.Wait("p1")

	p, _ := f.store.Get("p1")
	if p.Status != model.PipelineStatusCompleted {
		t.Fatalf("status = %s, want completed", p.Status)
	}
	if gotInput != "out-a" {
		t.Errorf("third step input = %q, want the first step's output", gotInput)
	}
	if p.Result == nil || *p.Result != "out-c" {
		t.Errorf("result = %v, want out-c", p.Result)
	}
	if p.Steps[1].Status != model.StepStatusSkipped {
		t.Errorf("disabled step status = %s, want skipped", p.Steps[1].Status)
	}
	if p.Steps[1].InputRef != "out-a" || p.Steps[1].OutputRef != "out-a" {
		t.Errorf("disabled step refs = %q -> %q, want out-a -> out-a", p.Steps[1].InputRef, p.Steps[1].OutputRef)
	}
	if p.CompletedAt == nil {
		t.Error("completedAt should be set")
	}
}

func TestFailurePinsCurrentStepIndex(t *testing.T) {
	f := newSchedFixture(t)
	f.seed(t, "p1", true, true, true)

	f.handle(model.StepTypeRunwayVideo, HandlerFunc(func(context.Context, model.ArtifactRef, map[string]any, func(int)) (model.ArtifactRef, error) {
		return "", errors.New("render rejected")
	}))
	f.handle(model.StepTypeFFmpeg, constHandler("never"))
	f.handle(model.StepTypeWhisper, constHandler("never"))

	if err := f.scheduler.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.scheduler.Wait("p1")

	p, _ := f.store.Get("p1")
	if p.Status != model.PipelineStatusFailed {
		t.Fatalf("status = %s, want failed", p.Status)
	}
	if p.CurrentStepIndex != 0 {
		t.Errorf("currentStepIndex = %d, want pinned at 0", p.CurrentStepIndex)
	}
	if p.Error == nil || p.Error.Kind != model.ErrorKindHandler {
		t.Errorf("error = %v, want handler_error", p.Error)
	}
	if p.Steps[0].Status != model.StepStatusFailed || p.Steps[0].Error == nil {
		t.Errorf("failed step = %+v, want failed with message", p.Steps[0])
	}
	for i := 1; i < len(p.Steps); i++ {
		if p.Steps[i].Status != model.StepStatusPending {
			t.Errorf("step %d status = %s, want pending", i, p.Steps[i].Status)
		}
	}
}

func TestTimeoutRecordedAsTimeoutKind(t *testing.T) {
	f := newSchedFixture(t)
	f.seed(t, "p1", true)

	f.registry.Register(model.StepTypeRunwayVideo, HandlerFunc(func(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))

	// Rebuild with a tight bound so the test stays fast.
	f.scheduler = NewScheduler(f.store, f.registry, NewRuntime(f.store, nil, fixedTimeout(20*time.Millisecond)), nil)

	if err := f.scheduler.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.scheduler.Wait("p1")

	p, _ := f.store.Get("p1")
	if p.Status != model.PipelineStatusFailed {
		t.Fatalf("status = %s, want failed", p.Status)
	}
	if p.Error == nil || p.Error.Kind != model.ErrorKindTimeout {
		t.Errorf("error = %v, want handler_timeout", p.Error)
	}
}

func TestZeroEnabledStepsCompletesWithInputResult(t *testing.T) {
	f := newSchedFixture(t)
	f.seed(t, "p1", false, false, false)

	if err := f.scheduler.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.scheduler.Wait("p1")

	p, _ := f.store.Get("p1")
	if p.Status != model.PipelineStatusCompleted {
		t.Fatalf("status = %s, want completed", p.Status)
	}
	if p.Result == nil || *p.Result != model.ArtifactRef(p.VideoURL) {
		t.Errorf("result = %v, want the original input %q", p.Result, p.VideoURL)
	}
}

func TestStartTwiceIsInvalidState(t *testing.T) {
	f := newSchedFixture(t)
	f.seed(t, "p1", true)

	block := make(chan struct{})
	f.handle(model.StepTypeRunwayVideo, HandlerFunc(func(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
		<-block
		return "out", nil
	}))

	if err := f.scheduler.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.scheduler.Start("p1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second start err = %v, want ErrInvalidState", err)
	}

	close(block)
	f.scheduler.Wait("p1")
}

func TestCancelMidRun(t *testing.T) {
	f := newSchedFixture(t)
	f.seed(t, "p1", true, true, true)

	started := make(chan struct{})
	f.handle(model.StepTypeRunwayVideo, constHandler("out-a"))
	f.handle(model.StepTypeFFmpeg, HandlerFunc(func(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}))
	f.handle(model.StepTypeWhisper, constHandler("never"))

	if err := f.scheduler.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("second step never started")
	}

	if err := f.scheduler.Cancel("p1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.scheduler.Wait("p1")

	p, _ := f.store.Get("p1")
	if p.Status != model.PipelineStatusCancelled {
		t.Fatalf("status = %s, want cancelled", p.Status)
	}
	if !p.CancelRequested {
		t.Error("cancelRequested flag should be recorded")
	}
	if p.Steps[0].Status != model.StepStatusCompleted {
		t.Errorf("finished step status = %s, want completed", p.Steps[0].Status)
	}
	if p.Steps[1].Status != model.StepStatusSkipped {
		t.Errorf("interrupted step status = %s, want skipped", p.Steps[1].Status)
	}
	if p.Steps[2].Status != model.StepStatusPending {
		t.Errorf("later step status = %s, want pending", p.Steps[2].Status)
	}
}

func TestCancelBeforeStartSettlesCancelled(t *testing.T) {
	f := newSchedFixture(t)
	f.seed(t, "p1", true)

	if err := f.scheduler.Cancel("p1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	p, _ := f.store.Get("p1")
	if p.Status != model.PipelineStatusCancelled {
		t.Fatalf("status = %s, want cancelled", p.Status)
	}
}

func TestCancelTerminalIsInvalidState(t *testing.T) {
	f := newSchedFixture(t)
	f.seed(t, "p1", true)
	f.handle(model.StepTypeRunwayVideo, constHandler("out"))

	if err := f.scheduler.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.scheduler.Wait("p1")

	if err := f.scheduler.Cancel("p1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel terminal err = %v, want ErrInvalidState", err)
	}

	// The terminal record is untouched.
	p, _ := f.store.Get("p1")
	if p.Status != model.PipelineStatusCompleted {
		t.Errorf("status = %s, want completed", p.Status)
	}
}

func TestConcurrentCancelsSettleExactlyOnce(t *testing.T) {
	f := newSchedFixture(t)
	f.seed(t, "p1", true)

	started := make(chan struct{})
	f.handle(model.StepTypeRunwayVideo, HandlerFunc(func(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}))

	if err := f.scheduler.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("step never started")
	}

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.scheduler.Cancel("p1")
		}(i)
	}
	wg.Wait()
	f.scheduler.Wait("p1")

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInvalidState):
			// Lost the race against the terminal transition.
		default:
			t.Fatalf("unexpected cancel error: %v", err)
		}
	}
	if succeeded == 0 {
		t.Fatal("at least one cancel should succeed")
	}

	p, _ := f.store.Get("p1")
	if p.Status != model.PipelineStatusCancelled {
		t.Fatalf("status = %s, want cancelled", p.Status)
	}
	if p.CompletedAt == nil {
		t.Error("completedAt should be set exactly once")
	}
}

func TestShutdownCancelsLiveExecutions(t *testing.T) {
	f := newSchedFixture(t)
	f.seed(t, "p1", true)

	f.handle(model.StepTypeRunwayVideo, HandlerFunc(func(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))

	if err := f.scheduler.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.scheduler.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	p, _ := f.store.Get("p1")
	if !p.Terminal() {
		t.Errorf("status = %s, want a terminal state after shutdown", p.Status)
	}
}

func TestEventsObserveLifecycle(t *testing.T) {
	f := newSchedFixture(t)
	f.seed(t, "p1", true)

	f.handle(model.StepTypeRunwayVideo, HandlerFunc(func(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
		progress(50)
		return "out", nil
	}))

	rec := &recordingEvents{}
	runtime := NewRuntime(f.store, rec, fixedTimeout(2*time.Second))
	f.scheduler = NewScheduler(f.store, f.registry, runtime, rec)

	if err := f.scheduler.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.scheduler.Wait("p1")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.started || !rec.stepStarted || !rec.progressed || !rec.finished {
		t.Errorf("events = %+v, want full lifecycle observed", rec)
	}
}

type recordingEvents struct {
	mu          sync.Mutex
	started     bool
	stepStarted bool
	progressed  bool
	finished    bool
}

func (r *recordingEvents) PipelineStarted(*model.Pipeline) {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
}

func (r *recordingEvents) StepStarted(string, model.Step) {
	r.mu.Lock()
	r.stepStarted = true
	r.mu.Unlock()
}

func (r *recordingEvents) StepProgress(string, model.Step) {
	r.mu.Lock()
	r.progressed = true
	r.mu.Unlock()
}

func (r *recordingEvents) PipelineFinished(*model.Pipeline) {
	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()
}
