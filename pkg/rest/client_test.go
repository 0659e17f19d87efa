// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/snowflake-client/pkg/errors"
)

// testClient points a dispatcher at a local mock server with near-zero
// retry pacing.
func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	return NewClient(
		WithHost(strings.TrimPrefix(srv.URL, "http://")),
		WithScheme("http"),
		WithBackOffFactory(func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = time.Millisecond
			bo.MaxInterval = 2 * time.Millisecond
			return bo
		}),
	)
}

type echoReply struct {
	OK bool `json:"ok"`
}

func TestRequestHeadersAndParams(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	var capturedBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		capturedBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	params := url.Values{}
	params.Set("warehouse", "COMPUTE_WH")

	reply, err := Request[echoReply](context.Background(), c, TabularQuery, "",
		params, `Snowflake Token="abc"`, map[string]string{"sqlText": "select 1"})
	require.NoError(t, err)
	assert.True(t, reply.OK)

	require.NotNil(t, captured)
	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "/queries/v1/query-request", captured.URL.Path)
	assert.Equal(t, MimeSnowflake, captured.Header.Get("Accept"))
	assert.Equal(t, MimeJSON, captured.Header.Get("Content-Type"))
	assert.Equal(t, `Snowflake Token="abc"`, captured.Header.Get("Authorization"))
	assert.True(t, strings.HasPrefix(captured.Header.Get("User-Agent"), "snowflake-client/"))

	q := captured.URL.Query()
	assert.NotEmpty(t, q.Get("clientStartTime"))
	assert.NotEmpty(t, q.Get("requestId"))
	assert.NotEmpty(t, q.Get("request_guid"))
	assert.Equal(t, "COMPUTE_WH", q.Get("warehouse"))

	assert.JSONEq(t, `{"sqlText":"select 1"}`, string(capturedBody))
}

func TestRequestOmitsEmptyAuthHeader(t *testing.T) {
	t.Parallel()

	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	_, err := Request[echoReply](context.Background(), testClient(t, srv),
		LoginRequest, "", nil, "", nil)
	require.NoError(t, err)
	assert.False(t, hasAuth)
}

func TestRequestRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var requestIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requestIDs = append(requestIDs, r.URL.Query().Get("requestId"))
		attempt := len(requestIDs)
		mu.Unlock()

		if attempt <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	reply, err := Request[echoReply](context.Background(), testClient(t, srv),
		JSONQuery, "", nil, "", nil)
	require.NoError(t, err)
	assert.True(t, reply.OK)

	// Three failures consume the whole retry budget; the fourth attempt wins.
	require.Len(t, requestIDs, 4)
	seen := map[string]bool{}
	for _, id := range requestIDs {
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "request identifier reused across attempts")
		seen[id] = true
	}
}

func TestRequestExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Request[echoReply](context.Background(), testClient(t, srv),
		JSONQuery, "", nil, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
	assert.Equal(t, 4, attempts)
}

func TestRequestForbiddenIsPermanent(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Request[echoReply](context.Background(), testClient(t, srv),
		LoginRequest, "", nil, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidAccountIdentifier(err))
	assert.Equal(t, 1, attempts)
}

func TestRequestClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("malformed request"))
	}))
	defer srv.Close()

	_, err := Request[echoReply](context.Background(), testClient(t, srv),
		JSONQuery, "", nil, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsUnexpectedResponse(err))
	assert.Contains(t, err.Error(), "malformed request")
	assert.Equal(t, 1, attempts)
}

func TestRequestUndecodableBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	_, err := Request[echoReply](context.Background(), testClient(t, srv),
		JSONQuery, "", nil, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsUnexpectedResponse(err))
	assert.Contains(t, err.Error(), "maintenance")
}

func TestFetchChunkForwardsHeaders(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()

		gotKey = r.Header.Get("x-amz-server-side-encryption-customer-key")
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("chunk-bytes"))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	raw, err := c.FetchChunk(context.Background(), srv.URL+"/chunks/0", map[string]string{
		"x-amz-server-side-encryption-customer-key": "qrmk",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk-bytes"), raw)
	assert.Equal(t, "qrmk", gotKey)
	assert.Equal(t, 2, attempts)
}

func TestEndpointContexts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind   EndpointKind
		path   string
		accept string
	}{
		{LoginRequest, "session/v1/login-request", MimeJSON},
		{TokenRequest, "session/token-request", MimeSnowflake},
		{CloseSession, "session", MimeSnowflake},
		{JSONQuery, "queries/v1/query-request", MimeJSON},
		{TabularQuery, "queries/v1/query-request", MimeSnowflake},
	}

	for _, tt := range tests {
		ec := tt.kind.context()
		assert.Equal(t, tt.path, ec.path)
		assert.Equal(t, tt.accept, ec.acceptMime)
	}
}

func TestRequestContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Request[echoReply](ctx, testClient(t, srv), JSONQuery, "", nil, "", nil)
	require.Error(t, err)
}

func TestRequestUnmarshalsInto(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"nested":1}}`))
	}))
	defer srv.Close()

	type envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	reply, err := Request[envelope](context.Background(), testClient(t, srv),
		JSONQuery, "", nil, "", nil)
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.JSONEq(t, `{"nested":1}`, string(reply.Data))
}
