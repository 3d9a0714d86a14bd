package websocket

import (
	"github.com/plaicube/video-pipeline/internal/model"
)

// EventSink bridges pipeline lifecycle events onto the hub so subscribed
// clients see live progress. It satisfies pipeline.Events.
type EventSink struct {
	hub *Hub
}

func NewEventSink(hub *Hub) *EventSink {
	return &EventSink{hub: hub}
}

func (s *EventSink) PipelineStarted(p *model.Pipeline) {}

func (s *EventSink) StepStarted(pipelineID string, step model.Step) {
	s.hub.BroadcastProgress(pipelineID, step, model.PipelineStatusRunning)
}

func (s *EventSink) StepProgress(pipelineID string, step model.Step) {
	s.hub.BroadcastProgress(pipelineID, step, model.PipelineStatusRunning)
}

func (s *EventSink) PipelineFinished(p *model.Pipeline) {
	if p.Error != nil {
		s.hub.BroadcastError(p.ID, p.Error.Kind, p.Error.Message)
		return
	}
	s.hub.BroadcastComplete(p.ID, p.Status, p.Result)
}
