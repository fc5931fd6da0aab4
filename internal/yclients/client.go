// Package yclients is a small client for the booking platform's REST API.
package yclients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"aquabot/internal/metrics"
	logx "aquabot/pkg/logx"
)

const (
	DefaultBaseURL = "https://api.yclients.com/api/v1"
	DefaultTimeout = 8 * time.Second

	acceptHeader = "application/vnd.yclients.v2+json"
	maxBody      = 4 << 20
)

// ErrTimeout wraps every request that ran out of its per-call budget.
var ErrTimeout = errors.New("yclients: request timed out")

// APIError is a non-success response. Message and Errors come from "meta".
type APIError struct {
	Status  int
	Message string
	Errors  json.RawMessage
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Errors) > 0 && string(e.Errors) != "null" {
		return fmt.Sprintf("yclients: status %d: %s %s", e.Status, msg, e.Errors)
	}
	return fmt.Sprintf("yclients: status %d: %s", e.Status, msg)
}

type Config struct {
	BaseURL      string
	PartnerToken string
	UserToken    string
	Timeout      time.Duration
	// Requests per second across all calls; 0 disables limiting.
	RatePerSec float64
	Burst      int
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
	log     logx.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func New(cfg Config, log logx.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{},
		tracer: otel.Tracer("aquabot/yclients"),
		log:    log.With(logx.String("comp", "yclients")),
	}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    struct {
		Message string          `json:"message"`
		Errors  json.RawMessage `json:"errors"`
	} `json:"meta"`
}

type request struct {
	op          string
	method      string
	path        string
	body        []byte
	contentType string
}

// do sends one request and decodes the "data" member into out.
func (c *Client) do(ctx context.Context, r request, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "yclients."+r.op, trace.WithAttributes(
		attribute.String("http.method", r.method),
		attribute.String("yclients.path", r.path),
	))
	timer := metrics.NewTimer()
	defer func() {
		result := "ok"
		switch {
		case errors.Is(err, ErrTimeout):
			result = "timeout"
		case err != nil:
			result = "error"
		}
		timer.ObserveDuration(metrics.YclientsRequestDuration.WithLabelValues(r.op, result))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(callCtx, r.method, c.cfg.BaseURL+r.path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s, User %s", c.cfg.PartnerToken, c.cfg.UserToken))
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(callCtx, err) {
			return fmt.Errorf("%w: %s %s after %s", ErrTimeout, r.method, r.path, c.cfg.Timeout)
		}
		return fmt.Errorf("yclients: %s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if isTimeout(callCtx, err) {
			return fmt.Errorf("%w: reading %s", ErrTimeout, r.path)
		}
		return fmt.Errorf("yclients: read body: %w", err)
	}

	var env envelope
	if jerr := json.Unmarshal(raw, &env); jerr != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("yclients: decode %s: %w", r.path, jerr)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Meta.Message, Errors: env.Meta.Errors}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("yclients: decode %s data: %w", r.path, err)
		}
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, request{op: op, method: http.MethodGet, path: path}, out)
}

func (c *Client) sendJSON(ctx context.Context, op, method, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, request{op: op, method: method, path: path, body: b, contentType: "application/json"}, out)
}
