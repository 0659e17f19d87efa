// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package rest dispatches requests against the Snowflake internal REST API:
// URL composition per endpoint class, per-attempt request identifiers,
// accept/content negotiation, and transient-failure retry.
package rest

// Accept MIME types used by the API. Tabular endpoints answer with the
// proprietary binary envelope, everything else with JSON.
const (
	MimeJSON      = "application/json"
	MimeSnowflake = "application/snowflake"
)

// EndpointKind enumerates the endpoint classes of the API.
type EndpointKind int

// Endpoint classes.
const (
	// LoginRequest creates a new session.
	LoginRequest EndpointKind = iota
	// TokenRequest renews an expired session token.
	TokenRequest
	// CloseSession deletes the current session.
	CloseSession
	// JSONQuery runs a statement with a JSON result, required for staging
	// descriptors.
	JSONQuery
	// TabularQuery runs a statement with a binary (Arrow) result.
	TabularQuery
)

type endpointContext struct {
	path       string
	acceptMime string
}

func (k EndpointKind) context() endpointContext {
	switch k {
	case LoginRequest:
		return endpointContext{path: "session/v1/login-request", acceptMime: MimeJSON}
	case TokenRequest:
		return endpointContext{path: "session/token-request", acceptMime: MimeSnowflake}
	case CloseSession:
		return endpointContext{path: "session", acceptMime: MimeSnowflake}
	case JSONQuery:
		return endpointContext{path: "queries/v1/query-request", acceptMime: MimeJSON}
	case TabularQuery:
		return endpointContext{path: "queries/v1/query-request", acceptMime: MimeSnowflake}
	default:
		panic("unknown endpoint kind")
	}
}
