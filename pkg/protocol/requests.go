// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the request and response schema of the Snowflake
// internal REST API, including the untagged response unions and their decode
// precedence.
package protocol

// ClientAppID and ClientAppVersion are advertised on login. Snowflake decides
// the default result format (Arrow vs JSON) per client application, so these
// impersonate the Go driver version that receives Arrow by default. Changing
// them changes the result format the server picks.
const (
	ClientAppID      = "Go"
	ClientAppVersion = "1.6.22"
)

// ExecRequest is the body of a query-request call.
type ExecRequest struct {
	SQLText    string `json:"sqlText"`
	AsyncExec  bool   `json:"asyncExec"`
	SequenceID uint64 `json:"sequenceId"`
	IsInternal bool   `json:"isInternal"`
}

// LoginRequest is the outer envelope of every login-request body.
type LoginRequest[D any] struct {
	Data D `json:"data"`
}

// LoginRequestCommon carries the fields shared by all authenticators.
type LoginRequestCommon struct {
	ClientAppID       string            `json:"CLIENT_APP_ID"`
	ClientAppVersion  string            `json:"CLIENT_APP_VERSION"`
	SvnRevision       string            `json:"SVN_REVISION"`
	AccountName       string            `json:"ACCOUNT_NAME"`
	LoginName         string            `json:"LOGIN_NAME"`
	SessionParameters SessionParameters `json:"SESSION_PARAMETERS"`
	ClientEnvironment ClientEnvironment `json:"CLIENT_ENVIRONMENT"`
}

// SessionParameters are session settings requested at login.
type SessionParameters struct {
	ClientValidateDefaultParameters bool `json:"CLIENT_VALIDATE_DEFAULT_PARAMETERS"`
}

// ClientEnvironment describes the client host to the server.
type ClientEnvironment struct {
	Application string `json:"APPLICATION"`
	OS          string `json:"OS"`
	OSVersion   string `json:"OS_VERSION"`
	OCSPMode    string `json:"OCSP_MODE"`
}

// KeyPairLoginData is the login body for keypair-JWT authentication.
// Authenticator must be "SNOWFLAKE_JWT" and Token the issued JWT.
type KeyPairLoginData struct {
	LoginRequestCommon
	Authenticator string `json:"AUTHENTICATOR"`
	Token         string `json:"TOKEN"`
}

// OAuthLoginData is the login body for OAuth authentication.
// Authenticator must be "OAUTH" and Token the access token.
type OAuthLoginData struct {
	LoginRequestCommon
	Authenticator string `json:"AUTHENTICATOR"`
	Token         string `json:"TOKEN"`
}

// PasswordLoginData is the login body for password authentication.
// No authenticator field is sent on this path.
type PasswordLoginData struct {
	LoginRequestCommon
	Password string `json:"PASSWORD"`
}

// RenewSessionRequest exchanges an expired session token for a fresh pair,
// authorized by the master token.
type RenewSessionRequest struct {
	OldSessionToken string `json:"oldSessionToken"`
	RequestType     string `json:"requestType"`
}

// RenewRequestType is the only request type the token-request endpoint accepts.
const RenewRequestType = "RENEW"
