package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rulegraph/internal/compiler"
	"github.com/roach88/rulegraph/internal/ir"
	"github.com/roach88/rulegraph/internal/remote"
)

// ErrClosed is returned when the session was closed while waiting.
var ErrClosed = errors.New("session closed")

// submission is the outcome of one asynchronous Submit, tagged with the
// cycle that started it and the edit sequence its document reflects.
type submission struct {
	cycle   uint64
	editSeq uint64
	result  *remote.Result
	err     error
}

// Enqueue submits a command for the Run loop. Safe from any goroutine.
// Returns false if the session has been closed.
func (s *Session) Enqueue(cmd Command) bool {
	return s.queue.Enqueue(Event{Type: EventCommand, Command: &cmd})
}

// Run makes the calling goroutine the session owner and processes events
// until ctx is cancelled or Close is called.
//
// Failed commands are logged and processing continues.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("session starting")
	s.submitCtx = ctx

	for {
		if ev, ok := s.queue.TryDequeue(); ok {
			s.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("session stopping: context cancelled")
			s.Close()
			return ctx.Err()

		case <-s.queue.Wait():
			if s.queue.Closed() && s.queue.Len() == 0 {
				s.logger.Info("session stopping: closed")
				s.Close()
				return nil
			}
		}
	}
}

// ProcessPending handles every queued event without blocking and returns
// how many it handled. For owners that drive the session themselves.
func (s *Session) ProcessPending() int {
	n := 0
	for {
		ev, ok := s.queue.TryDequeue()
		if !ok {
			return n
		}
		s.process(ev)
		n++
	}
}

// Flush cancels the debounce timer, runs a validation cycle now and waits
// for its submission, if any.
func (s *Session) Flush(ctx context.Context) error {
	s.disarm()
	s.runCycle(ctx)
	return s.Settle(ctx)
}

// Settle processes events until no submission is in flight.
func (s *Session) Settle(ctx context.Context) error {
	for {
		s.ProcessPending()
		if s.inFlight == 0 {
			return nil
		}
		if s.queue.Closed() {
			return ErrClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.queue.Wait():
		}
	}
}

// Close stops the debounce timer and the event queue. Results of
// submissions still in flight are dropped. Owner goroutine only; use Stop
// from elsewhere.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.armed = false
	s.queue.Close()
}

// Stop makes Run return once the queued events are handled. Safe from any
// goroutine.
func (s *Session) Stop() {
	s.queue.Close()
}

func (s *Session) process(ev Event) {
	switch ev.Type {
	case EventCommand:
		if ev.Command == nil {
			s.logger.Error("command event missing command")
			return
		}
		if _, err := s.Apply(*ev.Command); err != nil {
			s.logger.Warn("command failed",
				"kind", ev.Command.Kind,
				"node", ev.Command.NodeID,
				"error", err,
			)
		}

	case EventTimer:
		if !s.armed || ev.Generation != s.generation {
			s.logger.Debug("dropping superseded timer", "generation", ev.Generation, "current", s.generation)
			return
		}
		s.armed = false
		s.cancel = nil
		s.runCycle(s.submitCtx)

	case EventResult:
		if ev.Result == nil {
			s.logger.Error("result event missing result")
			return
		}
		s.handleResult(ev.Result)

	default:
		s.logger.Error("unknown event type", "type", ev.Type)
	}
}

// runCycle validates the graph and, when it is clean, compiles it and
// starts a submission.
func (s *Session) runCycle(ctx context.Context) {
	s.cycle++
	issues := compiler.Validate(s.graph)

	s.logger.Debug("validation cycle",
		"cycle", s.cycle,
		"edit_seq", s.editSeq,
		"issues", len(issues),
	)

	if compiler.HasErrors(issues) {
		s.document = nil
		s.update(func(st *Status, stats *Stats) {
			stats.Validations++
			st.Issues = issues
			st.Alert = nil
			st.Pending = s.armed
		})
		return
	}

	doc, err := compiler.Compile(s.graph, s.rule)
	if err != nil {
		s.document = nil
		s.logger.Error("compile failed after clean validation", "cycle", s.cycle, "error", err)
		s.update(func(st *Status, stats *Stats) {
			stats.Validations++
			st.Issues = issues
			st.Alert = &compiler.Issue{
				Severity: compiler.SeverityError,
				Code:     compiler.ErrTransport,
				Message:  fmt.Sprintf("Could not serialize the rule: %v", err),
			}
			st.Pending = s.armed
		})
		return
	}
	s.document = doc

	if s.submitter == nil {
		s.update(func(st *Status, stats *Stats) {
			stats.Validations++
			st.Issues = issues
			st.Alert = nil
			st.Dirty = false
			st.Pending = s.armed
		})
		return
	}

	s.inFlight++
	s.update(func(st *Status, stats *Stats) {
		stats.Validations++
		stats.Submissions++
		st.Issues = issues
		st.Alert = nil
		st.Pending = true
	})
	go s.submit(ctx, s.cycle, s.editSeq, doc)
}

func (s *Session) submit(ctx context.Context, cycle, editSeq uint64, doc *ir.Document) {
	res, err := s.submitter.Submit(ctx, s.ruleIndex, doc)
	if !s.queue.Enqueue(Event{Type: EventResult, Result: &submission{
		cycle:   cycle,
		editSeq: editSeq,
		result:  res,
		err:     err,
	}}) {
		s.logger.Debug("dropping submission result: session closed", "cycle", cycle)
	}
}

func (s *Session) handleResult(r *submission) {
	s.inFlight--

	if r.cycle != s.cycle {
		s.logger.Debug("ignoring superseded submission result", "cycle", r.cycle, "current", s.cycle)
		s.update(func(_ *Status, stats *Stats) { stats.StaleResults++ })
		return
	}

	if r.err != nil {
		s.logger.Warn("rule submission failed", "cycle", r.cycle, "error", r.err)
		s.update(func(st *Status, _ *Stats) {
			st.Alert = &compiler.Issue{
				Severity: compiler.SeverityError,
				Code:     compiler.ErrTransport,
				Message:  fmt.Sprintf("Could not reach the rule backend: %v", r.err),
			}
			st.Pending = s.armed
		})
		return
	}

	issues := s.serverIssues(r.result)
	clean := r.result.Accepted && r.editSeq == s.editSeq
	s.logger.Info("rule submitted",
		"cycle", r.cycle,
		"accepted", r.result.Accepted,
		"issues", len(issues),
		"request_id", r.result.RequestID,
	)
	s.update(func(st *Status, _ *Stats) {
		st.Issues = issues
		st.Alert = nil
		if clean {
			st.Dirty = false
		}
		st.Pending = s.armed
	})
}

// serverIssues maps backend issues onto the graph. Issue ids are operator
// labels; unknown labels leave the issue without a node.
func (s *Session) serverIssues(res *remote.Result) []compiler.Issue {
	if len(res.Issues) == 0 {
		return nil
	}
	severity := compiler.SeverityError
	if res.Accepted {
		severity = compiler.SeverityWarning
	}
	out := make([]compiler.Issue, 0, len(res.Issues))
	for _, ri := range res.Issues {
		is := compiler.Issue{
			Severity: severity,
			Code:     compiler.ErrServerIssue,
			Message:  ri.Message,
		}
		if n, ok := s.graph.NodeByLabel(ri.ID); ri.ID != "" && ok {
			is.Nodes = []string{n.ID}
		}
		out = append(out, is)
	}
	return out
}
