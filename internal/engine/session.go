package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/rulegraph/internal/catalog"
	"github.com/roach88/rulegraph/internal/compiler"
	"github.com/roach88/rulegraph/internal/graph"
	"github.com/roach88/rulegraph/internal/history"
	"github.com/roach88/rulegraph/internal/ir"
	"github.com/roach88/rulegraph/internal/remote"
)

// DefaultDebounce is the quiet period after the last edit before the graph
// is validated and submitted.
const DefaultDebounce = 2 * time.Second

// Submitter sends a compiled rule to the backend. Implemented by
// *remote.Client.
type Submitter interface {
	Submit(ctx context.Context, index int, doc *ir.Document) (*remote.Result, error)
}

// Session is one rule being edited.
//
// Graph, history and the debounce state belong to a single owner
// goroutine: either the caller of the command methods, or Run. Timer
// callbacks and submission goroutines never touch that state; they enqueue
// events that the owner processes. Status and Stats may be read from any
// goroutine.
type Session struct {
	graph     *graph.Graph
	history   *history.History
	catalog   *catalog.Catalog
	rule      compiler.RuleOptions
	submitter Submitter
	ruleIndex int
	schedule  Scheduler
	debounce  time.Duration
	logger    *slog.Logger
	queue     *eventQueue
	listener  func(Status)

	historyLimit    int
	labelProbeLimit int

	// Owner goroutine state.
	generation uint64          // bumped whenever the debounce timer is re-armed
	cancel     func() bool     // stops the armed timer
	armed      bool            // a timer event for generation is expected
	editSeq    uint64          // bumped by every successful edit
	cycle      uint64          // bumped by every validation cycle
	inFlight   int             // submissions of any cycle not yet delivered
	document   *ir.Document    // last compiled document
	submitCtx  context.Context // context for asynchronous submissions

	mu     sync.Mutex
	status Status
	stats  Stats
}

// Option configures a Session.
type Option func(*Session)

// WithCatalog sets the operator palette; catalog.Default() otherwise.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Session) { s.catalog = c }
}

// WithRule sets the document wrapping used when compiling.
func WithRule(opts compiler.RuleOptions) Option {
	return func(s *Session) { s.rule = opts }
}

// WithSubmitter enables remote sync of clean graphs to rule index. Without
// a submitter the session works offline.
func WithSubmitter(sub Submitter, index int) Option {
	return func(s *Session) {
		s.submitter = sub
		s.ruleIndex = index
	}
}

// WithScheduler replaces the time.AfterFunc based debounce timer.
func WithScheduler(sched Scheduler) Option {
	return func(s *Session) { s.schedule = sched }
}

// WithDebounce sets the debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithHistoryLimit bounds the undo stack.
func WithHistoryLimit(n int) Option {
	return func(s *Session) { s.historyLimit = n }
}

// WithLabelProbeLimit bounds the unique label search of new nodes.
func WithLabelProbeLimit(n int) Option {
	return func(s *Session) { s.labelProbeLimit = n }
}

// WithStatusListener registers f to receive every published status. f runs
// on the owner goroutine and must not call back into the session.
func WithStatusListener(f func(Status)) Option {
	return func(s *Session) { s.listener = f }
}

// New creates a session holding an empty graph.
func New(opts ...Option) *Session {
	s := &Session{
		rule:            compiler.RuleOptions{Kind: ir.LinkageRule},
		schedule:        TimerScheduler,
		debounce:        DefaultDebounce,
		logger:          slog.Default(),
		queue:           newEventQueue(),
		labelProbeLimit: graph.DefaultLabelProbeLimit,
		submitCtx:       context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}

	s.graph = graph.New(
		graph.WithLogger(s.logger),
		graph.WithLabelProbeLimit(s.labelProbeLimit),
	)
	s.history = history.New(history.WithLimit(s.historyLimit))
	s.history.Push(s.graph.Snapshot())
	return s
}

// Open creates a session over a saved graph. The restored graph is the
// baseline of the undo history and counts as unmodified.
func Open(snap graph.Snapshot, opts ...Option) (*Session, error) {
	s := New(opts...)
	if err := s.graph.Restore(snap); err != nil {
		return nil, &CommandError{
			Command: "open",
			Code:    ErrCodeRestore,
			Message: "cannot open saved graph",
			Err:     err,
		}
	}
	s.history.Reset()
	s.history.Push(s.graph.Snapshot())
	return s, nil
}

// Graph returns the live graph for queries. Only the owner goroutine may
// use it, and only for reading.
func (s *Session) Graph() *graph.Graph { return s.graph }

// Catalog returns the operator palette.
func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

// Document returns the document compiled by the last clean cycle, or nil.
func (s *Session) Document() *ir.Document { return s.document }

// CanUndo reports whether Undo would change the graph.
func (s *Session) CanUndo() bool { return s.history.CanUndo() }

// CanRedo reports whether Redo would change the graph.
func (s *Session) CanRedo() bool { return s.history.CanRedo() }

// AddNode drops a new operator at pos. Plugin selects the palette entry
// whose default parameters the node starts with; Source and Target take
// an empty plugin.
func (s *Session) AddNode(t graph.OperatorType, plugin string, pos graph.Point) (graph.Node, error) {
	return s.addNode(t, plugin, "", pos)
}

func (s *Session) addNode(t graph.OperatorType, plugin, label string, pos graph.Point) (graph.Node, error) {
	op, err := s.catalog.Resolve(t, plugin)
	if err != nil {
		return graph.Node{}, &CommandError{
			Command: CmdAddNode,
			Code:    ErrCodeCatalog,
			Message: "cannot resolve operator",
			Err:     err,
		}
	}

	n := s.graph.AddNode(t, plugin, label, pos)
	for _, p := range op.DefaultParameters() {
		if err := s.graph.SetParameter(n.ID, p.Name, p.Value); err != nil {
			return graph.Node{}, rejected(CmdAddNode, err)
		}
	}
	n, _ = s.graph.Node(n.ID)

	s.logger.Debug("node added", "id", n.ID, "type", n.Type, "plugin", n.Plugin, "label", n.Label)
	s.edited()
	return n, nil
}

// RemoveNode deletes a node and every connection touching it.
func (s *Session) RemoveNode(id string) error {
	if err := s.graph.RemoveNode(id); err != nil {
		return rejected(CmdRemoveNode, err)
	}
	s.edited()
	return nil
}

// RenameNode changes a node's label.
func (s *Session) RenameNode(id, label string) error {
	if err := s.graph.RenameNode(id, label); err != nil {
		return rejected(CmdRenameNode, err)
	}
	s.edited()
	return nil
}

// SetParameter sets one node parameter.
func (s *Session) SetParameter(id, name, value string) error {
	if err := s.graph.SetParameter(id, name, value); err != nil {
		return rejected(CmdSetParameter, err)
	}
	s.edited()
	return nil
}

// MoveNode changes a node's canvas position.
func (s *Session) MoveNode(id string, pos graph.Point) error {
	if err := s.graph.MoveNode(id, pos); err != nil {
		return rejected(CmdMoveNode, err)
	}
	s.edited()
	return nil
}

// Connect links an output endpoint to an input endpoint.
func (s *Session) Connect(source, target string) (graph.Connection, error) {
	c, err := s.graph.Connect(source, target)
	if err != nil {
		return graph.Connection{}, rejected(CmdConnect, err)
	}
	s.edited()
	return c, nil
}

// Disconnect removes a connection.
func (s *Session) Disconnect(connectionID string) error {
	if err := s.graph.Disconnect(connectionID); err != nil {
		return rejected(CmdDisconnect, err)
	}
	s.edited()
	return nil
}

// Undo restores the previous snapshot. It reports false when there is
// nothing to undo.
func (s *Session) Undo() (bool, error) {
	snap, ok := s.history.Undo()
	if !ok {
		return false, nil
	}
	if err := s.graph.Restore(snap); err != nil {
		s.history.Redo()
		return false, &CommandError{Command: CmdUndo, Code: ErrCodeRestore, Message: "cannot restore snapshot", Err: err}
	}
	s.touched()
	return true, nil
}

// Redo re-applies the next snapshot. It reports false when there is
// nothing to redo.
func (s *Session) Redo() (bool, error) {
	snap, ok := s.history.Redo()
	if !ok {
		return false, nil
	}
	if err := s.graph.Restore(snap); err != nil {
		s.history.Undo()
		return false, &CommandError{Command: CmdRedo, Code: ErrCodeRestore, Message: "cannot restore snapshot", Err: err}
	}
	s.touched()
	return true, nil
}

// edited records a new history entry for the current graph and restarts
// the debounce timer.
func (s *Session) edited() {
	s.history.Push(s.graph.Snapshot())
	s.touched()
}

// touched marks the session dirty and restarts the debounce timer.
func (s *Session) touched() {
	s.editSeq++
	s.arm()
	s.update(func(st *Status, stats *Stats) {
		st.Dirty = true
		st.Pending = true
		stats.Commands++
	})
}

func (s *Session) arm() {
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	s.armed = true
	s.cancel = s.schedule(s.debounce, func() {
		s.queue.Enqueue(Event{Type: EventTimer, Generation: gen})
	})
}

func (s *Session) disarm() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.armed = false
}

// Status returns the current error surface and flags.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.clone()
}

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// update mutates status and stats under the lock and notifies the
// listener.
func (s *Session) update(f func(*Status, *Stats)) {
	s.mu.Lock()
	f(&s.status, &s.stats)
	st := s.status.clone()
	s.mu.Unlock()

	if s.listener != nil {
		s.listener(st)
	}
}
