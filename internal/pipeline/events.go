package pipeline

import (
	"log"

	"github.com/plaicube/video-pipeline/internal/model"
)

// Events receives pipeline lifecycle notifications. Implementations are
// fire-and-forget observers and must never affect control flow.
type Events interface {
	PipelineStarted(p *model.Pipeline)
	StepStarted(pipelineID string, step model.Step)
	StepProgress(pipelineID string, step model.Step)
	PipelineFinished(p *model.Pipeline)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) PipelineStarted(*model.Pipeline)  {}
func (NopEvents) StepStarted(string, model.Step)   {}
func (NopEvents) StepProgress(string, model.Step)  {}
func (NopEvents) PipelineFinished(*model.Pipeline) {}

// LogEvents writes lifecycle events to the process log.
type LogEvents struct{}

func (LogEvents) PipelineStarted(p *model.Pipeline) {
	log.Printf("Pipeline %s started (video=%s, steps=%d)", p.ID, p.VideoID, len(p.Steps))
}

func (LogEvents) StepStarted(pipelineID string, step model.Step) {
	log.Printf("Pipeline %s: step %d (%s) running", pipelineID, step.Order, step.Type)
}

func (LogEvents) StepProgress(pipelineID string, step model.Step) {
	log.Printf("Pipeline %s: step %d (%s) progress %d%%", pipelineID, step.Order, step.Type, step.Progress)
}

func (LogEvents) PipelineFinished(p *model.Pipeline) {
	if p.Error != nil {
		log.Printf("Pipeline %s finished: %s (%s: %s)", p.ID, p.Status, p.Error.Kind, p.Error.Message)
		return
	}
	log.Printf("Pipeline %s finished: %s", p.ID, p.Status)
}

// CombineEvents fans notifications out to every sink in order.
func CombineEvents(sinks ...Events) Events {
	return multiEvents(sinks)
}

type multiEvents []Events

func (m multiEvents) PipelineStarted(p *model.Pipeline) {
	for _, e := range m {
		e.PipelineStarted(p)
	}
}

func (m multiEvents) StepStarted(pipelineID string, step model.Step) {
	for _, e := range m {
		e.StepStarted(pipelineID, step)
	}
}

func (m multiEvents) StepProgress(pipelineID string, step model.Step) {
	for _, e := range m {
		e.StepProgress(pipelineID, step)
	}
}

func (m multiEvents) PipelineFinished(p *model.Pipeline) {
	for _, e := range m {
		e.PipelineFinished(p)
	}
}
