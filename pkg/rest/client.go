// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/stacklok/snowflake-client/pkg/errors"
	"github.com/stacklok/snowflake-client/pkg/logger"
	"github.com/stacklok/snowflake-client/pkg/versions"
)

const (
	// defaultHost is appended to the account identifier to form the API host.
	defaultHost = ".snowflakecomputing.com"

	// maxAttempts bounds each dispatch to one initial try plus three retries.
	maxAttempts = 4

	// httpTimeout is the per-attempt bound; the dispatcher imposes no total
	// wall-time limit of its own.
	httpTimeout = 60 * time.Second
)

// Client dispatches requests to the API. Its configuration is immutable after
// construction and the underlying http.Client pools connections, so a single
// Client is shared between the session manager and the query executor.
type Client struct {
	httpClient *http.Client
	host       string
	scheme     string
	userAgent  string
	newBackOff func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHost overrides the host suffix appended to the account identifier.
// Tests point this at a local mock server.
func WithHost(host string) Option {
	return func(c *Client) {
		c.host = host
	}
}

// WithScheme overrides the URL scheme. Only tests should downgrade to http.
func WithScheme(scheme string) Option {
	return func(c *Client) {
		c.scheme = scheme
	}
}

// WithBackOffFactory replaces the retry pacing policy. The factory is called
// once per dispatch, so policies are never shared between requests.
func WithBackOffFactory(f func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = f
	}
}

// NewClient creates a dispatcher with exponential-backoff retries.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		host:       defaultHost,
		scheme:     "https",
		userAgent:  versions.UserAgent(),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request posts a JSON body to the given endpoint class and decodes the JSON
// reply into R. The authHeader is attached verbatim when non-empty; it is
// sensitive and must never be logged. Transient failures (connection errors,
// 5xx, 408, 429) are retried up to three times with fresh request identifiers
// per attempt.
func Request[R any](
	ctx context.Context,
	c *Client,
	kind EndpointKind,
	accountIdentifier string,
	extraParams url.Values,
	authHeader string,
	body any,
) (*R, error) {
	endpoint := kind.context()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	operation := func() ([]byte, error) {
		// Identifiers are regenerated on every attempt.
		reqURL := c.buildURL(endpoint.path, accountIdentifier, extraParams)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", endpoint.acceptMime)
		req.Header.Set("Content-Type", MimeJSON)
		req.Header.Set("User-Agent", c.userAgent)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}

		return c.do(req, accountIdentifier)
	}

	raw, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(_ error, d time.Duration) {
			logger.Debugw("retrying request", "endpoint", endpoint.path, "delay", d)
		}),
	)
	if err != nil {
		return nil, asClientError(err)
	}

	var out R
	if err := json.Unmarshal(raw, &out); err != nil {
		// The body carries server diagnostics; surface it instead of
		// swallowing the decode failure.
		return nil, errors.NewUnexpectedResponseError(string(raw), err)
	}
	return &out, nil
}

// FetchChunk downloads one remote result chunk with the caller-supplied
// headers and returns the raw bytes.
func (c *Client) FetchChunk(ctx context.Context, chunkURL string, headers map[string]string) ([]byte, error) {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, chunkURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("User-Agent", c.userAgent)

		return c.do(req, "")
	}

	raw, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(maxAttempts),
	)
	if err != nil {
		return nil, asClientError(err)
	}
	return raw, nil
}

// do runs one attempt and classifies the outcome: transient failures return a
// retryable error, everything else is permanent.
func (c *Client) do(req *http.Request, accountIdentifier string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection, DNS, and TLS failures are worth retrying.
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusForbidden:
		// The API answers 403 when the account identifier does not resolve.
		return nil, backoff.Permanent(errors.NewInvalidAccountIdentifierError(accountIdentifier))
	case resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("transient status %d: %s", resp.StatusCode, string(raw))
	default:
		return nil, backoff.Permanent(errors.NewUnexpectedResponseError(string(raw), nil))
	}
}

func (c *Client) buildURL(path, accountIdentifier string, extraParams url.Values) string {
	q := url.Values{}
	q.Set("clientStartTime", strconv.FormatInt(time.Now().Unix(), 10))
	q.Set("requestId", uuid.NewString())
	q.Set("request_guid", uuid.NewString())
	for k, vs := range extraParams {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	u := url.URL{
		Scheme:   c.scheme,
		Host:     accountIdentifier + c.host,
		Path:     "/" + path,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// asClientError keeps typed errors intact and wraps everything else as a
// transport failure.
func asClientError(err error) error {
	if errors.IsInvalidAccountIdentifier(err) || errors.IsUnexpectedResponse(err) {
		return err
	}
	return errors.NewTransportError("request failed after retries", err)
}
