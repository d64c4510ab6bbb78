package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulegraph/internal/ir"
)

func sampleDoc() *ir.Document {
	return &ir.Document{
		Kind:     ir.LinkageRule,
		LinkType: "owl:sameAs",
		Root: &ir.Compare{
			ID:     "name",
			Metric: "equality",
			Inputs: []ir.Operator{
				&ir.Input{ID: "src", Path: "?a/name"},
				&ir.Input{ID: "tgt", Path: "?b/name"},
			},
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithLogger(quietLogger()),
		WithIDGenerator(NewFixedGenerator("req-1", "req-2", "req-3", "req-4", "req-5")),
	}
	return NewClient(url, append(base, opts...)...)
}

func TestSubmit_AcceptedXML(t *testing.T) {
	want, err := sampleDoc().EncodeXML()
	require.NoError(t, err)

	var got struct {
		method, path, contentType, requestID string
		body                                 []byte
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.contentType = r.Header.Get("Content-Type")
		got.requestID = r.Header.Get("X-Request-ID")
		got.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"issues":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api/")
	res, err := c.Submit(context.Background(), 2, sampleDoc())
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Empty(t, res.Issues)

	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/api/rule2", got.path)
	assert.Equal(t, "text/xml", got.contentType)
	assert.Equal(t, "req-1", got.requestID)
	assert.Equal(t, want, got.body)
}

func TestSubmit_JSONBody(t *testing.T) {
	want, err := sampleDoc().CanonicalJSON()
	require.NoError(t, err)

	var body []byte
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithFormat(FormatJSON))
	res, err := c.Submit(context.Background(), 0, sampleDoc())
	require.NoError(t, err)

	assert.True(t, res.Accepted, "an empty success body is fine")
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, want, body)
}

func TestSubmit_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"issues":[{"id":"name","message":"Unknown metric"},{"id":"","message":"Rule is empty"}]}`))
	}))
	defer srv.Close()

	m := NewMetrics("test")
	c := newTestClient(t, srv.URL, WithMetrics(m))
	res, err := c.Submit(context.Background(), 1, sampleDoc())
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, []Issue{
		{ID: "name", Message: "Unknown metric"},
		{ID: "", Message: "Rule is empty"},
	}, res.Issues)

	assert.Equal(t, 1.0, counterValue(t, m, "test_submissions_total", "rejected"))
	assert.Equal(t, 2.0, counterValue(t, m, "test_server_issues_total", ""))
}

func TestSubmit_RejectedWithoutIssues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Submit(context.Background(), 1, sampleDoc())
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
}

func TestSubmit_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).Submit(context.Background(), 1, sampleDoc())
	require.Error(t, err)
	assert.True(t, IsTransportError(err))

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
	assert.Contains(t, te.Error(), url+"/rule1")
}

func TestSubmit_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewMetrics("test")
	c := newTestClient(t, srv.URL,
		WithMetrics(m),
		WithBreaker(BreakerSettings{MaxRequests: 1, Timeout: time.Hour, ConsecutiveFailures: 3}),
	)

	for i := 0; i < 3; i++ {
		_, err := c.Submit(context.Background(), 1, sampleDoc())
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	_, err := c.Submit(context.Background(), 1, sampleDoc())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(3), hits.Load(), "open breaker must not reach the server")

	assert.Equal(t, 4.0, counterValue(t, m, "test_submissions_total", "error"))
	assert.Equal(t, 1.0, counterValue(t, m, "test_breaker_state_changes_total", "open"))
}

func TestSubmit_ServerErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("backend restarting"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Submit(context.Background(), 2, sampleDoc())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.ErrorIs(t, err, errServerStatus)
}

func TestSubmit_RejectionsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"issues":[{"id":"x","message":"bad"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithBreaker(BreakerSettings{MaxRequests: 1, Timeout: time.Hour, ConsecutiveFailures: 1}))
	for i := 0; i < 3; i++ {
		_, err := c.Submit(context.Background(), 1, sampleDoc())
		require.NoError(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestFixedGenerator_Exhausted(t *testing.T) {
	g := NewFixedGenerator("a")
	assert.Equal(t, "a", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator(t *testing.T) {
	a, b := UUIDv7Generator{}.Generate(), UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

// counterValue sums the counter samples of a family, optionally restricted
// to samples carrying label value.
func counterValue(t *testing.T, m *Metrics, name, value string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if value != "" {
				match := false
				for _, lp := range metric.GetLabel() {
					if lp.GetValue() == value {
						match = true
					}
				}
				if !match {
					continue
				}
			}
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
