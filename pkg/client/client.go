// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client is the public entry point: it wires the REST dispatcher,
// session manager, query executor, and staged-file engine into one handle.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stacklok/snowflake-client/pkg/auth"
	"github.com/stacklok/snowflake-client/pkg/protocol"
	"github.com/stacklok/snowflake-client/pkg/query"
	"github.com/stacklok/snowflake-client/pkg/rest"
	"github.com/stacklok/snowflake-client/pkg/session"
	"github.com/stacklok/snowflake-client/pkg/stage"
)

// PUT tunable defaults, matching the documented server-side defaults.
const (
	DefaultMaxParallelUploads   = 4
	DefaultMaxFileSizeThreshold = 64_000_000
)

// Config configures a Client. Account and Username identify the tenant and
// are uppercased internally; Warehouse, Database, Schema, and Role are
// optional session context objects.
type Config struct {
	Account   string
	Username  string
	Warehouse string
	Database  string
	Schema    string
	Role      string

	// Credentials selects the authentication scheme; see pkg/auth.
	Credentials auth.Credentials

	// MaxParallelUploads bounds concurrent small-file uploads on PUT.
	// Zero means DefaultMaxParallelUploads.
	MaxParallelUploads int

	// MaxFileSizeThreshold is the size in bytes above which PUT uploads a
	// file sequentially. Zero means DefaultMaxFileSizeThreshold.
	MaxFileSizeThreshold int64
}

// Option customizes client construction.
type Option func(*options)

type options struct {
	restOpts  []rest.Option
	stageOpts []stage.Option
}

// WithRESTOptions forwards options to the underlying REST dispatcher.
// Tests use this to point the client at a mock server.
func WithRESTOptions(opts ...rest.Option) Option {
	return func(o *options) {
		o.restOpts = append(o.restOpts, opts...)
	}
}

// WithStageOptions forwards options to the staged-file engine.
func WithStageOptions(opts ...stage.Option) Option {
	return func(o *options) {
		o.stageOpts = append(o.stageOpts, opts...)
	}
}

// Client executes SQL against one Snowflake account. It is safe for
// concurrent use; concurrent statements share the session and serialize
// only on the token critical section.
type Client struct {
	session  *session.Session
	executor *query.Executor
}

// New creates a client. No request is made until the first statement runs;
// authentication happens lazily.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Account == "" {
		return nil, fmt.Errorf("account identifier is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credentials are required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	maxParallel := cfg.MaxParallelUploads
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelUploads
	}
	threshold := cfg.MaxFileSizeThreshold
	if threshold == 0 {
		threshold = DefaultMaxFileSizeThreshold
	}

	// Session and executor share one dispatcher and its connection pool.
	rc := rest.NewClient(o.restOpts...)
	sess := session.New(rc, session.Config{
		AccountIdentifier: cfg.Account,
		Username:          cfg.Username,
		Warehouse:         cfg.Warehouse,
		Database:          cfg.Database,
		Schema:            cfg.Schema,
		Role:              cfg.Role,
	}, cfg.Credentials)
	eng := stage.NewEngine(maxParallel, threshold, o.stageOpts...)

	return &Client{
		session:  sess,
		executor: query.New(rc, sess, eng),
	}, nil
}

// Exec runs a single statement. SELECT statements come back as Arrow record
// batches by default; PUT/GET move staged files as a side effect and return
// an empty result.
func (c *Client) Exec(ctx context.Context, sql string) (query.Result, error) {
	return c.executor.Exec(ctx, sql)
}

// ExecJSON runs a statement against the JSON endpoint and returns the raw
// body. Diagnostic.
func (c *Client) ExecJSON(ctx context.Context, sql string) (json.RawMessage, error) {
	return c.executor.ExecJSON(ctx, sql)
}

// ExecRaw runs a statement and returns the decoded server envelope without
// result processing. Diagnostic.
func (c *Client) ExecRaw(ctx context.Context, sql string) (*protocol.ExecResponse, error) {
	return c.executor.ExecRaw(ctx, sql)
}

// CloseSession deletes the server-side session. Temporary tables and other
// session-scoped objects are cleaned up with it; the next statement would
// start a fresh session.
func (c *Client) CloseSession(ctx context.Context) error {
	return c.session.Close(ctx)
}
