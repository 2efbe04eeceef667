// Package remote serves region reductions over HTTP and provides the client
// that delegates an engine's RegionReduce to such a worker. Requests and
// responses are msgpack encoded.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// ReducePath is the worker endpoint for region reductions.
const ReducePath = "/api/v1/reduce"

// ContentType is the media type of reduction requests and responses.
const ContentType = "application/x-msgpack"

// ClientConfig tunes the transport-level retries. Budget-level retries and
// per-call timeouts belong to engine.Retrying.
type ClientConfig struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

// Client is an engine.Reducer backed by a remote worker.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	logger  *zap.SugaredLogger
}

// NewClient returns a reducer that posts to the worker at baseURL.
func NewClient(baseURL string, cfg ClientConfig, logger *zap.SugaredLogger) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = leveledLogger{logger}
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	// Hand the final response back so its status can be classified.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
		logger:  logger,
	}
}

// RegionReduce implements engine.Reducer.
func (c *Client) RegionReduce(ctx context.Context, req *engine.RegionRequest) (*engine.RegionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := msgpack.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding reduction request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ReducePath, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", ContentType)
	httpReq.Header.Set("Accept", ContentType)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: reduction worker: %v", engine.ErrRetryable, err)
		}
		return nil, fmt.Errorf("%w: reduction worker unreachable: %v", engine.ErrRetryable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("reduction worker returned %s: %s", resp.Status, bytes.TrimSpace(msg))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", engine.ErrRetryable, err)
		}
		return nil, err
	}

	var res engine.RegionResult
	if err := msgpack.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decoding reduction result: %v", engine.ErrRetryable, err)
	}
	return &res, nil
}

// leveledLogger adapts a sugared zap logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (z leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	z.l.Errorw(msg, keysAndValues...)
}

func (z leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	z.l.Infow(msg, keysAndValues...)
}

func (z leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.l.Debugw(msg, keysAndValues...)
}

func (z leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.l.Warnw(msg, keysAndValues...)
}
