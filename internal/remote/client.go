package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/roach88/rulegraph/internal/ir"
)

// Format selects the document encoding sent to the backend.
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// ContentType returns the media type for the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/xml"
}

// Issue is one server-side problem. ID is the label of the offending
// operator and may be empty for document-level issues.
type Issue struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Result is the backend's verdict on one submission.
type Result struct {
	Accepted   bool
	StatusCode int
	RequestID  string
	Issues     []Issue
}

type issueBody struct {
	Issues []Issue `json:"issues"`
}

// BreakerSettings configures the circuit breaker around submissions.
type BreakerSettings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerSettings trips after three consecutive failures and probes
// again after 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 3,
	}
}

// Client submits rule documents.
type Client struct {
	baseURL  string
	format   Format
	http     *http.Client
	ids      IDGenerator
	metrics  *Metrics
	logger   *slog.Logger
	settings BreakerSettings
	breaker  *gobreaker.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithFormat selects XML (default) or JSON bodies.
func WithFormat(f Format) Option {
	return func(c *Client) { c.format = f }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithIDGenerator replaces the UUIDv7 request id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Client) { c.ids = g }
}

// WithMetrics records submissions on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(s BreakerSettings) Option {
	return func(c *Client) { c.settings = s }
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		format:   FormatXML,
		http:     &http.Client{Timeout: 10 * time.Second},
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		settings: DefaultBreakerSettings(),
	}
	for _, opt := range opts {
		opt(c)
	}

	threshold := c.settings.ConsecutiveFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rule-submit",
		MaxRequests: c.settings.MaxRequests,
		Interval:    c.settings.Interval,
		Timeout:     c.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if c.metrics != nil {
				c.metrics.BreakerChanges.WithLabelValues(to.String()).Inc()
			}
		},
	})
	return c
}

// URL returns the submit endpoint for a rule index.
func (c *Client) URL(index int) string {
	return fmt.Sprintf("%s/rule%d", c.baseURL, index)
}

// State reports the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Encode serializes doc in the client's format.
func (c *Client) Encode(doc *ir.Document) ([]byte, error) {
	if c.format == FormatJSON {
		return doc.CanonicalJSON()
	}
	return doc.EncodeXML()
}

// Submit sends doc to PUT {base}/rule{index}.
//
// A 2xx answer is accepted; a 4xx answer is rejected with the issues from
// its {"issues":[...]} body. Everything else is a *TransportError.
func (c *Client) Submit(ctx context.Context, index int, doc *ir.Document) (*Result, error) {
	body, err := c.Encode(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	url := c.URL(index)
	requestID := c.ids.Generate()
	start := time.Now()

	out, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, url, requestID, body)
	})
	if c.metrics != nil {
		c.metrics.Duration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		c.record("error", 0)
		var te *TransportError
		if !errors.As(err, &te) {
			te = &TransportError{URL: url, Err: err}
		}
		c.logger.Warn("rule submission failed",
			"url", url,
			"request_id", requestID,
			"status", te.StatusCode,
			"error", te.Err,
		)
		return nil, te
	}

	res := out.(*Result)
	if res.Accepted {
		c.record("accepted", len(res.Issues))
	} else {
		c.record("rejected", len(res.Issues))
	}
	c.logger.Debug("rule submitted",
		"url", url,
		"request_id", requestID,
		"status", res.StatusCode,
		"issues", len(res.Issues),
	)
	return res, nil
}

func (c *Client) do(ctx context.Context, url, requestID string, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", c.format.ContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		err := errServerStatus
		if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
			err = errors.Join(errServerStatus, drainErr)
		}
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}

	res := &Result{
		Accepted:   resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		RequestID:  requestID,
	}
	issues, err := parseIssues(data)
	if err != nil {
		// A success body is optional; a rejection must explain itself.
		if res.Accepted {
			return res, nil
		}
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	res.Issues = issues
	return res, nil
}

func parseIssues(data []byte) ([]Issue, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty response body")
	}
	var body issueBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	return body.Issues, nil
}

func (c *Client) record(outcome string, issues int) {
	if c.metrics == nil {
		return
	}
	c.metrics.Submissions.WithLabelValues(outcome).Inc()
	c.metrics.IssuesReported.Add(float64(issues))
}
