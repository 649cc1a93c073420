package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/fiberclient/internal/rejection"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 64 << 20

// DefaultTimeout is the per-request timeout when none is configured.
const DefaultTimeout = 10 * time.Second

// Client talks to the ledger, its read replica and the rejection indexer.
// Safe for concurrent use.
type Client struct {
	ledgerURL  *url.URL
	replicaURL *url.URL
	indexerURL *url.URL
	paths      Endpoints
	http       *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. It applies to a copy of the
// current http.Client, so order it after WithHTTPClient; a supplied client
// is never mutated.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// WithEndpoints overrides path templates. Empty fields keep defaults.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.paths = e.WithDefaults()
	}
}

// WithIndexer sets the rejection indexer base URL. Without it rejection
// queries go to the replica.
func WithIndexer(u *url.URL) Option {
	return func(c *Client) {
		c.indexerURL = u
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client. ledgerURL receives submissions; replicaURL serves
// reads. They may be the same host.
func New(ledgerURL, replicaURL string, opts ...Option) (*Client, error) {
	lu, err := ParseBaseURL(ledgerURL)
	if err != nil {
		return nil, fmt.Errorf("ledger url: %w", err)
	}
	ru, err := ParseBaseURL(replicaURL)
	if err != nil {
		return nil, fmt.Errorf("replica url: %w", err)
	}

	c := &Client{
		ledgerURL:  lu,
		replicaURL: ru,
		paths:      DefaultEndpoints(),
		http:       &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ParseBaseURL parses an absolute http(s) URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%q: missing host", raw)
	}
	return u, nil
}

// Submit POSTs an encoded envelope to the ledger. body is sent verbatim.
func (c *Client) Submit(ctx context.Context, body []byte) (SubmitResult, error) {
	var res SubmitResult
	if err := c.do(ctx, http.MethodPost, c.ledgerURL, c.paths.Submit, nil, body, &res); err != nil {
		return SubmitResult{}, err
	}
	if res.Hash == "" {
		return SubmitResult{}, errors.New("submit: response carried no hash")
	}
	return res, nil
}

// Fiber fetches a fiber from the replica. Returns ErrNotFound (via
// *StatusError) if the replica has not observed it yet.
func (c *Client) Fiber(ctx context.Context, fiberID string) (FiberRecord, error) {
	var rec FiberRecord
	p := expand(c.paths.Fiber, "{id}", fiberID)
	if err := c.do(ctx, http.MethodGet, c.replicaURL, p, nil, nil, &rec); err != nil {
		return FiberRecord{}, err
	}
	return rec, nil
}

// FiberSequence fetches the replica's next sequence for a fiber.
func (c *Client) FiberSequence(ctx context.Context, fiberID string) (SequenceRecord, error) {
	var rec SequenceRecord
	p := expand(c.paths.FiberSequence, "{id}", fiberID)
	if err := c.do(ctx, http.MethodGet, c.replicaURL, p, nil, nil, &rec); err != nil {
		return SequenceRecord{}, err
	}
	return rec, nil
}

// CurrentSequence is the authoritative read for the sequence coordinator.
// A fiber the replica has not observed yet is at sequence 0.
func (c *Client) CurrentSequence(ctx context.Context, fiberID string) (int64, error) {
	rec, err := c.FiberSequence(ctx, fiberID)
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.SequenceNumber, nil
}

// Snapshot fetches the snapshot at ordinal.
func (c *Client) Snapshot(ctx context.Context, ordinal int64) (Snapshot, error) {
	p := expand(c.paths.Snapshot, "{ordinal}", strconv.FormatInt(ordinal, 10))
	return c.snapshot(ctx, p)
}

// LatestSnapshot fetches the newest snapshot.
func (c *Client) LatestSnapshot(ctx context.Context) (Snapshot, error) {
	return c.snapshot(ctx, c.paths.LatestSnapshot)
}

func (c *Client) snapshot(ctx context.Context, p string) (Snapshot, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.replicaURL, p, nil, nil, &raw); err != nil {
		return Snapshot{}, err
	}
	var head struct {
		Value struct {
			Ordinal int64 `json:"ordinal"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", p, err)
	}
	return Snapshot{Ordinal: head.Value.Ordinal, Raw: raw}, nil
}

// LatestOrdinal fetches the newest snapshot ordinal.
func (c *Client) LatestOrdinal(ctx context.Context) (int64, error) {
	var res struct {
		Value int64 `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, c.replicaURL, c.paths.LatestOrdinal, nil, nil, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

// EpochProgress fetches the replica's epoch position.
func (c *Client) EpochProgress(ctx context.Context) (EpochProgress, error) {
	var res EpochProgress
	if err := c.do(ctx, http.MethodGet, c.replicaURL, c.paths.EpochProgress, nil, nil, &res); err != nil {
		return EpochProgress{}, err
	}
	return res, nil
}

// Rejections lists rejection records. Implements rejection.Source.
func (c *Client) Rejections(ctx context.Context, f rejection.Filter) (rejection.Page, error) {
	if err := f.Validate(); err != nil {
		return rejection.Page{}, fmt.Errorf("rejection filter: %w", err)
	}
	base := c.indexerURL
	if base == nil {
		base = c.replicaURL
	}
	var page rejection.Page
	if err := c.do(ctx, http.MethodGet, base, c.paths.Rejections, f.Values(), nil, &page); err != nil {
		return rejection.Page{}, err
	}
	return page, nil
}

func (c *Client) do(ctx context.Context, method string, base *url.URL, p string, query url.Values, body []byte, out any) error {
	u := base.JoinPath(p)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	target := u.String()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, target, err)
	}
	c.logger.Debug("ledger request",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(method, target, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, target, err)
	}
	return nil
}

func expand(tmpl, key, value string) string {
	return strings.ReplaceAll(tmpl, key, url.PathEscape(value))
}
