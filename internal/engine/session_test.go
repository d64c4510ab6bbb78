package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulegraph/internal/catalog"
	"github.com/roach88/rulegraph/internal/compiler"
	"github.com/roach88/rulegraph/internal/graph"
	"github.com/roach88/rulegraph/internal/ir"
	"github.com/roach88/rulegraph/internal/remote"
	"github.com/roach88/rulegraph/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T, opts ...Option) (*Session, *testutil.ManualScheduler) {
	t.Helper()
	sched := testutil.NewManualScheduler()
	base := []Option{
		WithScheduler(sched.Schedule),
		WithLogger(quietLogger()),
		WithDebounce(2 * time.Second),
	}
	s := New(append(base, opts...)...)
	t.Cleanup(s.Close)
	return s, sched
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func addNode(t *testing.T, s *Session, typ graph.OperatorType, plugin string) string {
	t.Helper()
	n, err := s.AddNode(typ, plugin, graph.Point{})
	require.NoError(t, err)
	return n.ID
}

func link(t *testing.T, s *Session, child, parent string) graph.Connection {
	t.Helper()
	out, ok := s.Graph().OutputOf(child)
	require.True(t, ok, "no output on %s", child)
	in, ok := s.Graph().OpenInput(parent)
	require.True(t, ok, "no open input on %s", parent)
	c, err := s.Connect(out.ID, in.ID)
	require.NoError(t, err)
	return c
}

type compareIDs struct{ src, tgt, cmp string }

// buildCompare makes a valid source/target/equality rule in five edits.
func buildCompare(t *testing.T, s *Session) compareIDs {
	t.Helper()
	ids := compareIDs{
		src: addNode(t, s, graph.Source, ""),
		tgt: addNode(t, s, graph.Target, ""),
		cmp: addNode(t, s, graph.Compare, "equality"),
	}
	link(t, s, ids.src, ids.cmp)
	link(t, s, ids.tgt, ids.cmp)
	return ids
}

// waitFor drives the session until cond holds.
func waitFor(t *testing.T, s *Session, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.ProcessPending()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeSubmitter struct {
	mu     sync.Mutex
	docs   []*ir.Document
	result *remote.Result
	err    error
}

func (f *fakeSubmitter) Submit(_ context.Context, _ int, doc *ir.Document) (*remote.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &remote.Result{Accepted: true, StatusCode: http.StatusOK}, nil
}

func (f *fakeSubmitter) submitted() []*ir.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*ir.Document(nil), f.docs...)
}

// gatedSubmitter blocks every Submit until the test answers it.
type gatedSubmitter struct {
	calls chan *gatedCall
}

type gatedCall struct {
	doc   *ir.Document
	reply chan gatedReply
}

type gatedReply struct {
	res *remote.Result
	err error
}

func newGatedSubmitter() *gatedSubmitter {
	return &gatedSubmitter{calls: make(chan *gatedCall)}
}

func (g *gatedSubmitter) Submit(ctx context.Context, _ int, doc *ir.Document) (*remote.Result, error) {
	call := &gatedCall{doc: doc, reply: make(chan gatedReply, 1)}
	select {
	case g.calls <- call:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r := <-call.reply
	return r.res, r.err
}

func (g *gatedSubmitter) next(t *testing.T) *gatedCall {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no submission arrived")
		return nil
	}
}

func (c *gatedCall) answer(res *remote.Result, err error) {
	c.reply <- gatedReply{res: res, err: err}
}

func TestSession_DebounceCoalescesEdits(t *testing.T) {
	sub := &fakeSubmitter{}
	s, sched := newSession(t, WithSubmitter(sub, 1))

	src := addNode(t, s, graph.Source, "")
	sched.Advance(500 * time.Millisecond)
	tgt := addNode(t, s, graph.Target, "")
	sched.Advance(500 * time.Millisecond)
	cmp := addNode(t, s, graph.Compare, "equality")
	sched.Advance(500 * time.Millisecond)
	link(t, s, src, cmp)
	sched.Advance(500 * time.Millisecond)
	link(t, s, tgt, cmp)

	assert.Zero(t, s.ProcessPending(), "no timer may fire inside the debounce window")
	assert.Equal(t, 1, sched.Pending())
	st := s.Status()
	assert.True(t, st.Dirty)
	assert.True(t, st.Pending)

	assert.Equal(t, 1, sched.Advance(2*time.Second))
	require.NoError(t, s.Settle(testContext(t)))

	stats := s.Stats()
	assert.Equal(t, 5, stats.Commands)
	assert.Equal(t, 1, stats.Validations)
	assert.Equal(t, 1, stats.Submissions)

	docs := sub.submitted()
	require.Len(t, docs, 1)
	root, ok := docs[0].Root.(*ir.Compare)
	require.True(t, ok)
	assert.Len(t, root.Inputs, 2, "the submission reflects the final graph")

	st = s.Status()
	assert.False(t, st.Dirty)
	assert.False(t, st.Pending)
	assert.Empty(t, st.Issues)
	assert.False(t, st.ConfirmOnExit())
}

func TestSession_SupersededTimerDropped(t *testing.T) {
	s, sched := newSession(t)

	addNode(t, s, graph.Source, "")
	require.Equal(t, 1, sched.Advance(2*time.Second)) // queued, not yet handled
	addNode(t, s, graph.Target, "")

	assert.Equal(t, 1, s.ProcessPending())
	assert.Zero(t, s.Stats().Validations)

	sched.Advance(2 * time.Second)
	s.ProcessPending()
	assert.Equal(t, 1, s.Stats().Validations)
}

func TestSession_InvalidGraphIsNotSubmitted(t *testing.T) {
	sub := &fakeSubmitter{}
	s, sched := newSession(t, WithSubmitter(sub, 0))

	a := addNode(t, s, graph.Source, "")
	b := addNode(t, s, graph.Target, "")
	sched.Advance(2 * time.Second)
	require.NoError(t, s.Settle(testContext(t)))

	assert.Empty(t, sub.submitted())
	assert.Nil(t, s.Document())

	st := s.Status()
	assert.Contains(t, compiler.Codes(st.Issues), compiler.ErrMultipleRoots)
	assert.ElementsMatch(t, []string{a, b}, st.Highlighted())
	assert.True(t, st.Dirty)
	assert.False(t, st.Pending)
	assert.True(t, st.ConfirmOnExit())
}

func TestSession_IssuesAreReplacedEachCycle(t *testing.T) {
	s, _ := newSession(t)
	ctx := testContext(t)

	ids := buildCompare(t, s)
	extra := addNode(t, s, graph.Source, "")
	require.NoError(t, s.Flush(ctx))
	require.NotEmpty(t, s.Status().Issues)

	require.NoError(t, s.RemoveNode(extra))
	require.NoError(t, s.Flush(ctx))

	st := s.Status()
	assert.Empty(t, st.Issues)
	assert.False(t, st.Dirty, "offline sessions settle on a clean cycle")
	require.NotNil(t, s.Document())
	assert.Equal(t, ids.cmp, s.Graph().Nodes()[2].ID)
}

func TestSession_UndoRedoRoundTrip(t *testing.T) {
	s, _ := newSession(t)

	empty := s.Graph().Snapshot()
	src := addNode(t, s, graph.Source, "")
	afterSource := s.Graph().Snapshot()
	cmp := addNode(t, s, graph.Compare, "levenshtein")
	afterCompare := s.Graph().Snapshot()
	link(t, s, src, cmp)
	final := s.Graph().Snapshot()

	for _, want := range []graph.Snapshot{afterCompare, afterSource, empty} {
		ok, err := s.Undo()
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, want.Equal(s.Graph().Snapshot()))
	}
	ok, err := s.Undo()
	require.NoError(t, err)
	assert.False(t, ok, "nothing left to undo")
	assert.Zero(t, s.Graph().Len())

	for _, want := range []graph.Snapshot{afterSource, afterCompare, final} {
		ok, err := s.Redo()
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, want.Equal(s.Graph().Snapshot()))
	}
	ok, err = s.Redo()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Undo()
	require.NoError(t, err)
	addNode(t, s, graph.Target, "")
	assert.False(t, s.CanRedo(), "a new edit discards the redo tail")
	assert.True(t, s.Status().Dirty)
}

func TestSession_StaleResultIgnored(t *testing.T) {
	gate := newGatedSubmitter()
	s, sched := newSession(t, WithSubmitter(gate, 0))

	ids := buildCompare(t, s)
	sched.Advance(2 * time.Second)
	s.ProcessPending()
	first := gate.next(t)

	require.NoError(t, s.RenameNode(ids.cmp, "byName"))
	sched.Advance(2 * time.Second)
	s.ProcessPending()
	second := gate.next(t)

	first.answer(&remote.Result{Accepted: true, StatusCode: http.StatusOK}, nil)
	waitFor(t, s, func() bool { return s.Stats().StaleResults == 1 })

	st := s.Status()
	assert.True(t, st.Dirty, "a superseded success must not clear the dirty flag")
	assert.True(t, st.Pending)

	second.answer(&remote.Result{
		StatusCode: http.StatusBadRequest,
		Issues:     []remote.Issue{{ID: "byName", Message: "Unknown metric"}},
	}, nil)
	require.NoError(t, s.Settle(testContext(t)))

	st = s.Status()
	require.Len(t, st.Issues, 1)
	assert.Equal(t, compiler.ErrServerIssue, st.Issues[0].Code)
	assert.Equal(t, []string{ids.cmp}, st.Issues[0].Nodes)
	assert.True(t, st.Dirty)
	assert.False(t, st.Pending)
	assert.Equal(t, 2, s.Stats().Submissions)
}

func TestSession_SuccessAfterNewerEditKeepsDirty(t *testing.T) {
	gate := newGatedSubmitter()
	s, sched := newSession(t, WithSubmitter(gate, 0))

	ids := buildCompare(t, s)
	sched.Advance(2 * time.Second)
	s.ProcessPending()
	call := gate.next(t)

	require.NoError(t, s.MoveNode(ids.src, graph.Point{X: 10, Y: 20}))
	call.answer(&remote.Result{Accepted: true, StatusCode: http.StatusOK}, nil)
	require.NoError(t, s.Settle(testContext(t)))

	st := s.Status()
	assert.True(t, st.Dirty)
	assert.True(t, st.Pending, "the newer edit is still waiting for its cycle")
	assert.Zero(t, s.Stats().StaleResults)

	sched.Advance(2 * time.Second)
	s.ProcessPending()
	gate.next(t).answer(&remote.Result{Accepted: true, StatusCode: http.StatusOK}, nil)
	require.NoError(t, s.Settle(testContext(t)))
	assert.False(t, s.Status().Dirty)
}

func TestSession_ServerIssuesMappedToNodes(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"issues":[{"id":"equality","message":"Threshold too high"},{"id":"","message":"Rule is incomplete"}]}`))
	}))
	defer srv.Close()

	client := remote.NewClient(srv.URL,
		remote.WithLogger(quietLogger()),
		remote.WithIDGenerator(testutil.NewSequentialIDs("")),
	)
	s, _ := newSession(t, WithSubmitter(client, 4))
	ids := buildCompare(t, s)

	require.NoError(t, s.Flush(testContext(t)))
	assert.Equal(t, "/rule4", path)

	st := s.Status()
	require.Len(t, st.Issues, 2)
	assert.Equal(t, []string{ids.cmp}, st.Issues[0].Nodes)
	assert.Equal(t, "Threshold too high", st.Issues[0].Message)
	assert.Equal(t, compiler.SeverityError, st.Issues[0].Severity)
	assert.Nil(t, st.Issues[1].Nodes)
	assert.Nil(t, st.Alert)
	assert.True(t, st.Dirty, "rejected documents stay unconfirmed")
	assert.Equal(t, 3, s.Graph().Len(), "local edits are kept")
}

func TestSession_TransportErrorRaisesAlert(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := remote.NewClient(url, remote.WithLogger(quietLogger()))
	s, _ := newSession(t, WithSubmitter(client, 0))
	buildCompare(t, s)
	before := s.Graph().Snapshot()

	require.NoError(t, s.Flush(testContext(t)))

	st := s.Status()
	require.NotNil(t, st.Alert)
	assert.Equal(t, compiler.ErrTransport, st.Alert.Code)
	assert.Empty(t, st.Issues)
	assert.True(t, st.Dirty)
	assert.True(t, st.ConfirmOnExit())
	assert.True(t, before.Equal(s.Graph().Snapshot()))

	// The next clean cycle clears the alert.
	s.submitter = &fakeSubmitter{}
	require.NoError(t, s.Flush(testContext(t)))
	assert.Nil(t, s.Status().Alert)
}

func TestSession_CommandErrors(t *testing.T) {
	s, sched := newSession(t)

	_, err := s.Connect("e1", "e2")
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.True(t, graph.IsPolicyError(err))

	assert.ErrorIs(t, s.RemoveNode("op9"), graph.ErrUnknownNode)

	_, err = s.AddNode(graph.Transform, "levenshtein", graph.Point{})
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeCatalog, ce.Code)
	assert.ErrorIs(t, err, catalog.ErrTypeMismatch)

	_, err = s.Apply(Command{Kind: "explode"})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeInvalidCommand, ce.Code)

	assert.Zero(t, s.Stats().Commands)
	assert.False(t, s.Status().Dirty)
	assert.False(t, s.CanUndo())
	assert.Zero(t, sched.Pending())
}

func TestSession_AddNodeUsesCatalogDefaults(t *testing.T) {
	s, _ := newSession(t)

	first, err := s.AddNode(graph.Compare, "levenshtein", graph.Point{X: 1, Y: 2})
	require.NoError(t, err)
	second, err := s.AddNode(graph.Compare, "levenshtein", graph.Point{})
	require.NoError(t, err)

	assert.Equal(t, "levenshtein", first.Label)
	assert.Equal(t, "levenshtein1", second.Label)
	assert.Equal(t, graph.Point{X: 1, Y: 2}, first.Position)

	threshold, ok := first.Param("threshold")
	require.True(t, ok)
	assert.Equal(t, "0", threshold)
	_, ok = first.Param("maxChar")
	assert.True(t, ok)
}

func TestSession_ApplyCommands(t *testing.T) {
	s, _ := newSession(t)

	src, err := s.Apply(Command{Kind: CmdAddNode, Type: graph.Source, Label: "people"})
	require.NoError(t, err)
	cmp, err := s.Apply(Command{Kind: CmdAddNode, Type: graph.Compare, Plugin: "equality"})
	require.NoError(t, err)

	out, _ := s.Graph().OutputOf(src)
	in, _ := s.Graph().OpenInput(cmp)
	connID, err := s.Apply(Command{Kind: CmdConnect, Source: out.ID, Target: in.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, connID)

	_, err = s.Apply(Command{Kind: CmdSetParameter, NodeID: src, Name: "path", Value: "?a/name"})
	require.NoError(t, err)
	_, err = s.Apply(Command{Kind: CmdRenameNode, NodeID: cmp, Label: "sameName"})
	require.NoError(t, err)
	_, err = s.Apply(Command{Kind: CmdDisconnect, ConnectionID: connID})
	require.NoError(t, err)
	_, err = s.Apply(Command{Kind: CmdUndo})
	require.NoError(t, err)

	n, _ := s.Graph().Node(src)
	assert.Equal(t, "people", n.Label)
	path, _ := n.Param("path")
	assert.Equal(t, "?a/name", path)
	assert.Len(t, s.Graph().Connections(), 1, "undo restored the connection")

	_, err = s.Apply(Command{Kind: CmdRedo})
	require.NoError(t, err)
	assert.Empty(t, s.Graph().Connections())
}

func TestSession_LabelExhaustionIsLoggedOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s, _ := newSession(t, WithLogger(logger), WithLabelProbeLimit(1))

	addNode(t, s, graph.Source, "")
	addNode(t, s, graph.Source, "")
	third, err := s.AddNode(graph.Source, "", graph.Point{})
	require.NoError(t, err)

	assert.Equal(t, "source", third.Label)
	assert.Contains(t, buf.String(), "no unique label available")
	assert.Empty(t, s.Status().Issues)
	assert.Nil(t, s.Status().Alert)
}

func TestSession_StatusListener(t *testing.T) {
	var seen []Status
	s, _ := newSession(t, WithStatusListener(func(st Status) { seen = append(seen, st) }))

	buildCompare(t, s)
	require.NoError(t, s.Flush(testContext(t)))

	require.Len(t, seen, 6)
	assert.True(t, seen[0].Pending)
	assert.False(t, seen[5].Dirty)
}

func TestSession_RunLoop(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(
		WithSubmitter(sub, 0),
		WithDebounce(20*time.Millisecond),
		WithLogger(quietLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.True(t, s.Enqueue(Command{Kind: "bogus"}))
	require.True(t, s.Enqueue(Command{Kind: CmdAddNode, Type: graph.Source}))

	assert.Eventually(t, func() bool {
		st := s.Status()
		return s.Stats().Submissions == 1 && !st.Dirty && !st.Pending
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.Stats().Commands, "the bogus command is logged and skipped")

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, s.Enqueue(Command{Kind: CmdUndo}))
}

func TestSession_StopEndsRun(t *testing.T) {
	s := New(WithLogger(quietLogger()))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	s.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSession_OpenSavedGraph(t *testing.T) {
	saved := testutil.Linkage(t).G.Snapshot()

	s, err := Open(saved, WithLogger(quietLogger()), WithScheduler(testutil.NewManualScheduler().Schedule))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	assert.Equal(t, 8, s.Graph().Len())
	assert.Len(t, s.Graph().Connections(), 7)
	assert.False(t, s.CanUndo())
	assert.False(t, s.Status().Dirty)

	require.NoError(t, s.Flush(testContext(t)))
	assert.Empty(t, s.Status().Issues)
	require.NotNil(t, s.Document())

	n, err := s.AddNode(graph.Source, "", graph.Point{})
	require.NoError(t, err)
	assert.Equal(t, "op9", n.ID, "ids continue after the saved ones")
	assert.True(t, s.CanUndo())

	undone, err := s.Undo()
	require.NoError(t, err)
	assert.True(t, undone)
	assert.Equal(t, 8, s.Graph().Len(), "undo stops at the saved graph")
	assert.False(t, s.CanUndo())
}

func TestSession_OpenRejectsBrokenGraph(t *testing.T) {
	saved := graph.Snapshot{
		Nodes: []graph.Node{{ID: "op1", Type: graph.Source, Label: "a"}},
		Links: []graph.Link{{Child: "op1", Parent: "op7"}},
	}
	_, err := Open(saved, WithLogger(quietLogger()))

	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeRestore, ce.Code)
	assert.ErrorIs(t, err, graph.ErrUnknownNode)
}

func TestSession_OpenWithoutNodeCounter(t *testing.T) {
	saved := graph.Snapshot{
		Nodes: []graph.Node{{ID: "op1", Type: graph.Source, Label: "src"}},
	}
	s, err := Open(saved, WithLogger(quietLogger()), WithScheduler(testutil.NewManualScheduler().Schedule))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	n, err := s.AddNode(graph.Target, "", graph.Point{})
	require.NoError(t, err)
	assert.Equal(t, "op2", n.ID)
	assert.Equal(t, 2, s.Graph().Len())

	src, ok := s.Graph().NodeByLabel("src")
	require.True(t, ok)
	assert.Equal(t, "op1", src.ID)
	assert.Equal(t, graph.Source, src.Type)
}
