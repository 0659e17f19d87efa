// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error taxonomy surfaced by the Snowflake client.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrCredential is returned when key parsing or JWT signing fails, or a
	// credential required by the declared auth type is missing
	ErrCredential = "credential"

	// ErrAuthFailed is returned when the server rejects a login or renew request
	ErrAuthFailed = "auth_failed"

	// ErrTransport is returned on connection, DNS, or TLS failures
	ErrTransport = "transport"

	// ErrInvalidAccountIdentifier is returned when the server answers HTTP 403
	// on an auth or query endpoint
	ErrInvalidAccountIdentifier = "invalid_account_identifier"

	// ErrUnexpectedResponse is returned on a non-2xx status, an unparseable 2xx
	// body, or a response variant that is not allowed for the endpoint
	ErrUnexpectedResponse = "unexpected_response"

	// ErrAPI is returned when the server acknowledges a statement-level failure
	ErrAPI = "api_error"

	// ErrIO is returned on local filesystem failures during staged transfers
	ErrIO = "io"

	// ErrInvalidLocalPath is returned when a filename cannot be extracted from
	// a local path
	ErrInvalidLocalPath = "invalid_local_path"

	// ErrInvalidBucketPath is returned when a stage location has no bucket/path
	// separator
	ErrInvalidBucketPath = "invalid_bucket_path"

	// ErrDecode is returned on base64 or IPC stream decoding failures
	ErrDecode = "decode"

	// ErrUnimplemented is returned for protocol paths the client does not
	// support yet, such as Azure or GCS staging
	ErrUnimplemented = "unimplemented"

	// ErrBrokenResponse is returned when a tabular reply carries neither a JSON
	// rowset nor a base64 rowset
	ErrBrokenResponse = "broken_response"
)

// Error represents an error surfaced by the client
type Error struct {
	// Type is the error type
	Type string

	// Code is the server-reported error code, when one exists
	Code string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Cause != nil:
		return fmt.Sprintf("%s: code %s: %s: %s", e.Type, e.Code, e.Message, e.Cause)
	case e.Code != "":
		return fmt.Sprintf("%s: code %s: %s", e.Type, e.Code, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewCredentialError creates a new credential error
func NewCredentialError(message string, cause error) *Error {
	return NewError(ErrCredential, message, cause)
}

// NewAuthFailedError creates a new auth failed error with the server code
func NewAuthFailedError(code, message string) *Error {
	return &Error{Type: ErrAuthFailed, Code: code, Message: message}
}

// NewTransportError creates a new transport error
func NewTransportError(message string, cause error) *Error {
	return NewError(ErrTransport, message, cause)
}

// NewInvalidAccountIdentifierError creates a new invalid account identifier error
func NewInvalidAccountIdentifierError(account string) *Error {
	return NewError(ErrInvalidAccountIdentifier, account, nil)
}

// NewUnexpectedResponseError creates a new unexpected response error carrying
// the raw body for diagnostics
func NewUnexpectedResponseError(body string, cause error) *Error {
	return NewError(ErrUnexpectedResponse, body, cause)
}

// NewAPIError creates a new API error with the server code
func NewAPIError(code, message string) *Error {
	return &Error{Type: ErrAPI, Code: code, Message: message}
}

// NewIOError creates a new IO error
func NewIOError(message string, cause error) *Error {
	return NewError(ErrIO, message, cause)
}

// NewInvalidLocalPathError creates a new invalid local path error
func NewInvalidLocalPathError(path string) *Error {
	return NewError(ErrInvalidLocalPath, path, nil)
}

// NewInvalidBucketPathError creates a new invalid bucket path error
func NewInvalidBucketPathError(location string) *Error {
	return NewError(ErrInvalidBucketPath, location, nil)
}

// NewDecodeError creates a new decode error
func NewDecodeError(message string, cause error) *Error {
	return NewError(ErrDecode, message, cause)
}

// NewUnimplementedError creates a new unimplemented error
func NewUnimplementedError(what string) *Error {
	return NewError(ErrUnimplemented, what, nil)
}

// NewBrokenResponseError creates a new broken response error
func NewBrokenResponseError() *Error {
	return NewError(ErrBrokenResponse, "no usable rowsets were included in the response", nil)
}

func is(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsCredential checks if the error is a credential error
func IsCredential(err error) bool {
	return is(err, ErrCredential)
}

// IsAuthFailed checks if the error is an auth failed error
func IsAuthFailed(err error) bool {
	return is(err, ErrAuthFailed)
}

// IsTransport checks if the error is a transport error
func IsTransport(err error) bool {
	return is(err, ErrTransport)
}

// IsInvalidAccountIdentifier checks if the error is an invalid account identifier error
func IsInvalidAccountIdentifier(err error) bool {
	return is(err, ErrInvalidAccountIdentifier)
}

// IsUnexpectedResponse checks if the error is an unexpected response error
func IsUnexpectedResponse(err error) bool {
	return is(err, ErrUnexpectedResponse)
}

// IsAPI checks if the error is an API error
func IsAPI(err error) bool {
	return is(err, ErrAPI)
}

// IsIO checks if the error is an IO error
func IsIO(err error) bool {
	return is(err, ErrIO)
}

// IsInvalidLocalPath checks if the error is an invalid local path error
func IsInvalidLocalPath(err error) bool {
	return is(err, ErrInvalidLocalPath)
}

// IsInvalidBucketPath checks if the error is an invalid bucket path error
func IsInvalidBucketPath(err error) bool {
	return is(err, ErrInvalidBucketPath)
}

// IsDecode checks if the error is a decode error
func IsDecode(err error) bool {
	return is(err, ErrDecode)
}

// IsUnimplemented checks if the error is an unimplemented error
func IsUnimplemented(err error) bool {
	return is(err, ErrUnimplemented)
}

// IsBrokenResponse checks if the error is a broken response error
func IsBrokenResponse(err error) bool {
	return is(err, ErrBrokenResponse)
}
