// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package query executes SQL statements: it classifies them, runs the REST
// round-trip with session auth, and decodes tabular results from inline and
// remote Arrow IPC streams. PUT and GET statements are handed off to the
// staged-file engine.
package query

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/snowflake-client/pkg/errors"
	"github.com/stacklok/snowflake-client/pkg/logger"
	"github.com/stacklok/snowflake-client/pkg/protocol"
	"github.com/stacklok/snowflake-client/pkg/rest"
	"github.com/stacklok/snowflake-client/pkg/session"
	"github.com/stacklok/snowflake-client/pkg/stage"
)

// Executor runs statements against one session. It shares the REST client
// with the session manager so both ride the same connection pool.
type Executor struct {
	rest    *rest.Client
	session *session.Session
	stage   *stage.Engine
}

// New creates an executor.
func New(rc *rest.Client, sess *session.Session, eng *stage.Engine) *Executor {
	return &Executor{
		rest:    rc,
		session: sess,
		stage:   eng,
	}
}

// Exec classifies and runs a single statement. PUT uploads local files to
// the Snowflake-managed stage and GET downloads from it; both are
// side-effect statements that produce an empty result.
func (e *Executor) Exec(ctx context.Context, sql string) (Result, error) {
	switch classify(sql) {
	case stmtPut:
		logger.Debug("detected PUT statement")
		if err := e.execStaged(ctx, sql, stmtPut); err != nil {
			return nil, err
		}
		return EmptyResult{}, nil
	case stmtGet:
		logger.Debug("detected GET statement")
		if err := e.execStaged(ctx, sql, stmtGet); err != nil {
			return nil, err
		}
		return EmptyResult{}, nil
	default:
		return e.execTabular(ctx, sql)
	}
}

// ExecRaw returns the decoded server envelope without result processing.
// Useful for debugging the straight query response.
func (e *Executor) ExecRaw(ctx context.Context, sql string) (*protocol.ExecResponse, error) {
	return e.runSQL(ctx, sql, rest.TabularQuery)
}

// ExecJSON forces the JSON accept type and returns the raw response body.
// Useful for debugging; status information comes back through this shape.
func (e *Executor) ExecJSON(ctx context.Context, sql string) (json.RawMessage, error) {
	parts, err := e.session.GetAuthParts(ctx)
	if err != nil {
		return nil, err
	}

	body := protocol.ExecRequest{
		SQLText:    sql,
		AsyncExec:  false,
		SequenceID: parts.SequenceID,
		IsInternal: false,
	}

	raw, err := rest.Request[json.RawMessage](
		ctx, e.rest, rest.JSONQuery, e.session.AccountIdentifier(), nil, parts.SessionTokenAuthHeader, body)
	if err != nil {
		return nil, err
	}
	return *raw, nil
}

// CloseSession closes the underlying session. Temporary objects (tables,
// functions) are session-scoped, so this cleans them up server-side.
func (e *Executor) CloseSession(ctx context.Context) error {
	return e.session.Close(ctx)
}

func (e *Executor) execStaged(ctx context.Context, sql string, kind statementKind) error {
	// Staging descriptors only come back on the JSON accept type.
	resp, err := e.runSQL(ctx, sql, rest.JSONQuery)
	if err != nil {
		return err
	}

	switch {
	case resp.PutGet != nil:
		if kind == stmtGet {
			return e.stage.Get(ctx, &resp.PutGet.Data)
		}
		return e.stage.Put(ctx, &resp.PutGet.Data)
	case resp.Error != nil:
		return errors.NewAPIError(resp.Error.Data.ErrorCode, resp.Error.ErrMessage())
	default:
		return errors.NewUnexpectedResponseError("expected staging descriptor", nil)
	}
}

func (e *Executor) execTabular(ctx context.Context, sql string) (Result, error) {
	resp, err := e.runSQL(ctx, sql, rest.TabularQuery)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.Query != nil:
		return e.decodeResult(ctx, &resp.Query.Data)
	case resp.Error != nil:
		return nil, errors.NewAPIError(resp.Error.Data.ErrorCode, resp.Error.ErrMessage())
	default:
		return nil, errors.NewUnexpectedResponseError("unexpected variant for query", nil)
	}
}

func (e *Executor) runSQL(ctx context.Context, sql string, kind rest.EndpointKind) (*protocol.ExecResponse, error) {
	logger.Debugw("executing statement", "sql", sql)

	parts, err := e.session.GetAuthParts(ctx)
	if err != nil {
		return nil, err
	}

	body := protocol.ExecRequest{
		SQLText:    sql,
		AsyncExec:  false,
		SequenceID: parts.SequenceID,
		IsInternal: false,
	}

	return rest.Request[protocol.ExecResponse](
		ctx, e.rest, kind, e.session.AccountIdentifier(), nil, parts.SessionTokenAuthHeader, body)
}

// decodeResult turns a query response into a Result. The inline payload is
// decoded first, then remote chunks are fetched concurrently and appended in
// the server's chunk order, not fetch completion order.
func (e *Executor) decodeResult(ctx context.Context, data *protocol.QueryExecResponseData) (Result, error) {
	if data.Returned == 0 {
		logger.Debug("statement returned 0 rows")
		return EmptyResult{}, nil
	}

	if len(data.Rowset) > 0 && string(data.Rowset) != "null" {
		// JSON rowsets arrive inline; sessions get Arrow by default unless
		// configured otherwise, so this is mostly status traffic.
		logger.Debug("got JSON rowset")
		return JSONResult{Value: data.Rowset}, nil
	}

	if data.RowsetBase64 == nil {
		return nil, errors.NewBrokenResponseError()
	}

	var batches []arrow.Record
	if *data.RowsetBase64 != "" {
		payload, err := base64.StdEncoding.DecodeString(*data.RowsetBase64)
		if err != nil {
			return nil, errors.NewDecodeError("decoding base64 rowset", err)
		}
		batches, err = decodeIPCStream(payload)
		if err != nil {
			return nil, err
		}
	}

	if len(data.Chunks) > 0 {
		chunkBatches, err := e.fetchChunks(ctx, data)
		if err != nil {
			return nil, err
		}
		batches = append(batches, chunkBatches...)
	}

	return ArrowResult{Batches: batches}, nil
}

func (e *Executor) fetchChunks(ctx context.Context, data *protocol.QueryExecResponseData) ([]arrow.Record, error) {
	logger.Debugw("fetching result chunks", "count", len(data.Chunks))

	bufs := make([][]byte, len(data.Chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range data.Chunks {
		g.Go(func() error {
			buf, err := e.rest.FetchChunk(gctx, chunk.URL, data.ChunkHeaders)
			bufs[i] = buf
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Chunks are raw IPC streams, no base64 and no envelope.
	var batches []arrow.Record
	for _, buf := range bufs {
		chunkBatches, err := decodeIPCStream(buf)
		if err != nil {
			return nil, err
		}
		batches = append(batches, chunkBatches...)
	}
	return batches, nil
}

func decodeIPCStream(payload []byte) ([]arrow.Record, error) {
	rdr, err := ipc.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.NewDecodeError("opening IPC stream", err)
	}
	defer rdr.Release()

	var batches []arrow.Record
	for rdr.Next() {
		batch := rdr.Record()
		batch.Retain()
		batches = append(batches, batch)
	}
	if err := rdr.Err(); err != nil && err != io.EOF {
		for _, batch := range batches {
			batch.Release()
		}
		return nil, errors.NewDecodeError("reading IPC stream", err)
	}
	return batches, nil
}
