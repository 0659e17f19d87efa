// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
)

// BaseRestResponse is the envelope shared by every server reply.
type BaseRestResponse[D any] struct {
	// Code and Message are null on successful auth responses.
	Code    *string `json:"code"`
	Message *string `json:"message"`
	Success bool    `json:"success"`
	Data    D       `json:"data"`
}

// ErrCode returns the envelope code or an empty string.
func (r *BaseRestResponse[D]) ErrCode() string {
	if r.Code == nil {
		return ""
	}
	return *r.Code
}

// ErrMessage returns the envelope message or an empty string.
func (r *BaseRestResponse[D]) ErrMessage() string {
	if r.Message == nil {
		return ""
	}
	return *r.Message
}

// Concrete envelope instantiations.
type (
	// LoginResponse is returned by the login-request endpoint.
	LoginResponse = BaseRestResponse[LoginResponseData]
	// AuthenticatorResponse is returned when the server redirects to a
	// federated authenticator instead of issuing tokens.
	AuthenticatorResponse = BaseRestResponse[AuthenticatorResponseData]
	// RenewSessionResponse is returned by the token-request endpoint.
	RenewSessionResponse = BaseRestResponse[RenewSessionResponseData]
	// CloseSessionResponse is returned on session close; data is always null.
	CloseSessionResponse = BaseRestResponse[*struct{}]
	// AuthErrorResponse is a server-side rejection of an auth request.
	AuthErrorResponse = BaseRestResponse[AuthErrorResponseData]

	// QueryExecResponse is a regular statement result.
	QueryExecResponse = BaseRestResponse[QueryExecResponseData]
	// PutGetExecResponse is the staging descriptor reply to PUT/GET.
	PutGetExecResponse = BaseRestResponse[PutGetResponseData]
	// AsyncExecResponse acknowledges an asynchronously running statement.
	AsyncExecResponse = BaseRestResponse[AsyncExecResponseData]
	// MultiStatementExecResponse is returned for multi-statement batches.
	MultiStatementExecResponse = BaseRestResponse[MultiStatementResponseData]
	// ExecErrorResponse is a server-acknowledged statement failure.
	ExecErrorResponse = BaseRestResponse[ExecErrorResponseData]
)

// NameValueParameter is a server-reported session parameter.
type NameValueParameter struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// LoginResponseData carries the freshly issued token pair.
type LoginResponseData struct {
	SessionID               int64                `json:"sessionId"`
	Token                   string               `json:"token"`
	MasterToken             string               `json:"masterToken"`
	ServerVersion           string               `json:"serverVersion"`
	Parameters              []NameValueParameter `json:"parameters"`
	SessionInfo             SessionInfo          `json:"sessionInfo"`
	MasterValidityInSeconds int64                `json:"masterValidityInSeconds"`
	ValidityInSeconds       int64                `json:"validityInSeconds"`
}

// SessionInfo reports the effective context objects of the new session.
type SessionInfo struct {
	DatabaseName  *string `json:"databaseName"`
	SchemaName    *string `json:"schemaName"`
	WarehouseName *string `json:"warehouseName"`
	RoleName      string  `json:"roleName"`
}

// AuthenticatorResponseData points at an external SSO authenticator.
type AuthenticatorResponseData struct {
	TokenURL string `json:"tokenUrl"`
	SSOURL   string `json:"ssoUrl"`
	ProofKey string `json:"proofKey"`
}

// RenewSessionResponseData carries the renewed token pair.
type RenewSessionResponseData struct {
	SessionToken        string `json:"sessionToken"`
	ValidityInSecondsST int64  `json:"validityInSecondsST"`
	MasterToken         string `json:"masterToken"`
	ValidityInSecondsMT int64  `json:"validityInSecondsMT"`
	SessionID           int64  `json:"sessionId"`
}

// AuthErrorResponseData is the data of a rejected auth request.
type AuthErrorResponseData struct {
	AuthnMethod string `json:"authnMethod"`
}

// QueryExecResponseData is the payload of a completed statement.
type QueryExecResponseData struct {
	Parameters []NameValueParameter `json:"parameters"`
	RowType    []RowType            `json:"rowtype"`
	// Rowset is set when the session is configured for JSON results, and for
	// status/DDL statements.
	Rowset json.RawMessage `json:"rowset"`
	// RowsetBase64 is the base64-encoded Arrow IPC payload, the default for
	// SELECT statements.
	RowsetBase64      *string `json:"rowsetBase64"`
	Total             int64   `json:"total"`
	Returned          int64   `json:"returned"`
	QueryID           string  `json:"queryId"`
	DatabaseProvider  *string `json:"databaseProvider"`
	FinalDatabaseName *string `json:"finalDatabaseName"`
	FinalSchemaName   *string `json:"finalSchemaName"`
	FinalWarehouse    *string `json:"finalWarehouseName"`
	FinalRoleName     string  `json:"finalRoleName"`
	NumberOfBinds     *int32  `json:"numberOfBinds"`
	StatementTypeID   int64   `json:"statementTypeId"`
	Version           int64   `json:"version"`
	// Chunks is present when the result spills to remote storage.
	Chunks []Chunk `json:"chunks"`
	// QRMK is the x-amz-server-side-encryption-customer-key for chunk download.
	QRMK *string `json:"qrmk"`
	// ChunkHeaders must be attached verbatim to every chunk request.
	ChunkHeaders map[string]string `json:"chunkHeaders"`
}

// RowType describes one result column.
type RowType struct {
	Name       string `json:"name"`
	ByteLength *int64 `json:"byteLength"`
	Length     *int64 `json:"length"`
	Type       string `json:"type"`
	Scale      *int64 `json:"scale"`
	Precision  *int64 `json:"precision"`
	Nullable   bool   `json:"nullable"`
}

// Chunk locates one remote segment of a large result.
type Chunk struct {
	URL              string `json:"url"`
	RowCount         int32  `json:"rowCount"`
	UncompressedSize int64  `json:"uncompressedSize"`
}

// AsyncExecResponseData acknowledges a statement still running server-side.
type AsyncExecResponseData struct {
	QueryID              string  `json:"queryId"`
	GetResultURL         string  `json:"getResultUrl"`
	QueryAbortsAfterSecs int64   `json:"queryAbortsAfterSecs"`
	ProgressDesc         *string `json:"progressDesc"`
}

// MultiStatementResponseData is returned for multi-statement batches;
// individual results must be fetched by result id.
type MultiStatementResponseData struct {
	QueryID string `json:"queryId"`
	// ResultIDs and ResultTypes are comma-separated.
	ResultIDs   string `json:"resultIds"`
	ResultTypes string `json:"resultTypes"`
}

// ExecErrorResponseData is the data of a failed statement.
type ExecErrorResponseData struct {
	Age           int64  `json:"age"`
	ErrorCode     string `json:"errorCode"`
	InternalError bool   `json:"internalError"`
	// Line and Pos are set when the statement failed to parse.
	Line     *int64 `json:"line"`
	Pos      *int64 `json:"pos"`
	QueryID  string `json:"queryId"`
	SQLState string `json:"sqlState"`
}

// The server does not tag its top-level responses; variants share fields
// (PutGet and Query both carry statementTypeId and version), so decoding
// probes the data object for discriminating fields in a fixed precedence
// order. Reordering the probes changes which variant ambiguous bodies
// resolve to.

// ExecResponse is the union of replies to a query-request call.
// Exactly one variant field is non-nil after a successful decode.
type ExecResponse struct {
	PutGet         *PutGetExecResponse
	Async          *AsyncExecResponse
	MultiStatement *MultiStatementExecResponse
	Query          *QueryExecResponse
	Error          *ExecErrorResponse
}

// UnmarshalJSON resolves the union in the order
// PutGet, Async, MultiStatement, Query, Error.
func (r *ExecResponse) UnmarshalJSON(b []byte) error {
	data, err := probeData(b)
	if err != nil {
		return err
	}

	switch {
	case hasField(data, "command") || hasField(data, "src_locations"):
		r.PutGet = new(PutGetExecResponse)
		return json.Unmarshal(b, r.PutGet)
	case hasField(data, "getResultUrl"):
		r.Async = new(AsyncExecResponse)
		return json.Unmarshal(b, r.Async)
	case hasField(data, "resultIds"):
		r.MultiStatement = new(MultiStatementExecResponse)
		return json.Unmarshal(b, r.MultiStatement)
	case hasField(data, "rowtype"):
		r.Query = new(QueryExecResponse)
		return json.Unmarshal(b, r.Query)
	case hasField(data, "errorCode"):
		r.Error = new(ExecErrorResponse)
		return json.Unmarshal(b, r.Error)
	default:
		return fmt.Errorf("response matches no known exec variant")
	}
}

// AuthResponse is the union of replies to login, renew, and close calls.
// Exactly one variant field is non-nil after a successful decode.
type AuthResponse struct {
	Login         *LoginResponse
	Authenticator *AuthenticatorResponse
	Renew         *RenewSessionResponse
	Close         *CloseSessionResponse
	Error         *AuthErrorResponse
}

// UnmarshalJSON resolves the union in the order
// Login, Authenticator, Renew, Close, Error.
func (r *AuthResponse) UnmarshalJSON(b []byte) error {
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return err
	}
	data, err := probeData(b)
	if err != nil {
		return err
	}

	switch {
	case hasField(data, "token") && hasField(data, "masterToken"):
		r.Login = new(LoginResponse)
		return json.Unmarshal(b, r.Login)
	case hasField(data, "tokenUrl"):
		r.Authenticator = new(AuthenticatorResponse)
		return json.Unmarshal(b, r.Authenticator)
	case hasField(data, "sessionToken"):
		r.Renew = new(RenewSessionResponse)
		return json.Unmarshal(b, r.Renew)
	case envelope.Success:
		// Close responses carry a null data field.
		r.Close = new(CloseSessionResponse)
		return json.Unmarshal(b, r.Close)
	default:
		r.Error = new(AuthErrorResponse)
		return json.Unmarshal(b, r.Error)
	}
}

// probeData extracts the top-level keys of the data object without decoding
// any values. A null or absent data object yields an empty set.
func probeData(b []byte) (map[string]json.RawMessage, error) {
	var envelope struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil, fmt.Errorf("response envelope: %w", err)
	}
	return envelope.Data, nil
}

func hasField(data map[string]json.RawMessage, key string) bool {
	raw, ok := data[key]
	return ok && string(raw) != "null"
}
