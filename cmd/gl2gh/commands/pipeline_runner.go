package commands

import (
	"context"

	"github.com/similigh/gl2gh/internal/core/pipeline"
	"github.com/similigh/gl2gh/internal/tui"
)

// statusReportingStep wraps a step and reports its progress to the TUI.
type statusReportingStep struct {
	inner      pipeline.Step
	statusChan chan<- tui.PipelineStatusMsg
	done       <-chan struct{}
}

func (s *statusReportingStep) Name() string {
	return s.inner.Name()
}

func (s *statusReportingStep) Reaches() pipeline.State {
	return s.inner.Reaches()
}

func (s *statusReportingStep) Run(ctx *pipeline.Context) error {
	s.send(tui.PipelineStatusMsg{Step: s.Name(), Status: tui.StatusStarted, State: ctx.State.String(), Message: "Starting..."})

	if err := s.inner.Run(ctx); err != nil {
		s.send(tui.PipelineStatusMsg{Step: s.Name(), Status: tui.StatusError, State: ctx.State.String(), Message: err.Error()})
		return err
	}

	if _, ok := s.inner.(pipeline.Postconditioner); !ok {
		s.send(tui.PipelineStatusMsg{Step: s.Name(), Status: tui.StatusSuccess, State: s.Reaches().String(), Message: "Completed"})
	}
	return nil
}

// Postcondition forwards to the wrapped step so the pipeline still checks it.
func (s *statusReportingStep) Postcondition(ctx *pipeline.Context) error {
	pc, ok := s.inner.(pipeline.Postconditioner)
	if !ok {
		return nil
	}
	if err := pc.Postcondition(ctx); err != nil {
		s.send(tui.PipelineStatusMsg{Step: s.Name(), Status: tui.StatusError, State: ctx.State.String(), Message: err.Error()})
		return err
	}
	s.send(tui.PipelineStatusMsg{Step: s.Name(), Status: tui.StatusSuccess, State: s.Reaches().String(), Message: "Completed"})
	return nil
}

// send drops the update once nobody is listening any more.
func (s *statusReportingStep) send(msg tui.PipelineStatusMsg) {
	select {
	case s.statusChan <- msg:
	case <-s.done:
	}
}

// withStatus wraps every step of p so that progress reaches statusChan.
func withStatus(ctx context.Context, p *pipeline.Pipeline, statusChan chan<- tui.PipelineStatusMsg) *pipeline.Pipeline {
	var wrapped []pipeline.Step
	for _, step := range p.Steps() {
		wrapped = append(wrapped, &statusReportingStep{inner: step, statusChan: statusChan, done: ctx.Done()})
	}
	return pipeline.New(wrapped...)
}

func stepNames(p *pipeline.Pipeline) []string {
	names := make([]string, 0, len(p.Steps()))
	for _, step := range p.Steps() {
		names = append(names, step.Name())
	}
	return names
}
