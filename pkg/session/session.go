// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session manages the Snowflake session lifecycle: multi-scheme
// login, the dual-token cache, renewal, the request sequence counter, and
// session closure.
package session

import (
	"context"
	"net/url"
	"runtime"
	"strings"
	"sync"

	"github.com/stacklok/snowflake-client/pkg/auth"
	"github.com/stacklok/snowflake-client/pkg/errors"
	"github.com/stacklok/snowflake-client/pkg/logger"
	"github.com/stacklok/snowflake-client/pkg/protocol"
	"github.com/stacklok/snowflake-client/pkg/rest"
)

// Config identifies the tenant and the optional context objects scoped to
// the session. Immutable after construction.
type Config struct {
	AccountIdentifier string
	Username          string
	Warehouse         string
	Database          string
	Schema            string
	Role              string
}

// AuthParts is what a query dispatch needs from the session: a usable auth
// header and the sequence number to stamp on the request.
type AuthParts struct {
	SessionTokenAuthHeader string
	SequenceID             uint64
}

// Session requests, caches, and renews authentication tokens. Snowflake
// sessions persist configuration state and temporary objects, so one Session
// maps to one server-side session.
type Session struct {
	rest  *rest.Client
	creds auth.Credentials

	account   string
	username  string
	warehouse string
	database  string
	schema    string
	role      string

	// mu guards tokens, including the sequence increment; see GetAuthParts.
	mu     sync.Mutex
	tokens *tokenPair
}

// New creates an unauthenticated session. Login happens lazily on the first
// call that needs tokens.
func New(rc *rest.Client, cfg Config, creds auth.Credentials) *Session {
	return &Session{
		rest:      rc,
		creds:     creds,
		account:   strings.ToUpper(cfg.AccountIdentifier),
		username:  strings.ToUpper(cfg.Username),
		warehouse: cfg.Warehouse,
		database:  cfg.Database,
		schema:    cfg.Schema,
		role:      cfg.Role,
	}
}

// AccountIdentifier returns the uppercased tenant identifier.
func (s *Session) AccountIdentifier() string {
	return s.account
}

// GetAuthParts returns an auth header backed by valid tokens and the next
// sequence number. It logs in when no tokens are cached or the master token
// expired, and renews when only the session token expired; renewal preserves
// the sequence counter, a fresh login resets it. The entire check-renew-
// increment path holds the session mutex, so concurrent callers serialize
// here but run their actual query requests in parallel.
func (s *Session) GetAuthParts(ctx context.Context) (AuthParts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.tokens == nil || s.tokens.master.isExpired():
		// A dead master token cannot renew anything; start over.
		tokens, err := s.login(ctx)
		if err != nil {
			return AuthParts{}, err
		}
		s.tokens = tokens
	case s.tokens.session.isExpired():
		tokens, err := s.renew(ctx, s.tokens)
		if err != nil {
			return AuthParts{}, err
		}
		s.tokens = tokens
	}

	s.tokens.sequenceID++
	return AuthParts{
		SessionTokenAuthHeader: s.tokens.session.authHeader(),
		SequenceID:             s.tokens.sequenceID,
	}, nil
}

// Close deletes the server-side session and drops the cached tokens. Closing
// an unauthenticated session is a no-op. The call is not retried on failure;
// the tokens are dropped either way.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens == nil {
		return nil
	}
	tokens := s.tokens
	s.tokens = nil

	logger.Debug("closing session")

	params := url.Values{"delete": []string{"true"}}
	resp, err := rest.Request[protocol.AuthResponse](
		ctx, s.rest, rest.CloseSession, s.account, params, tokens.session.authHeader(), nil)
	if err != nil {
		return err
	}

	switch {
	case resp.Close != nil:
		return nil
	case resp.Error != nil:
		return errors.NewAuthFailedError(resp.Error.ErrCode(), resp.Error.ErrMessage())
	default:
		return errors.NewUnexpectedResponseError("unexpected variant on session close", nil)
	}
}

func (s *Session) login(ctx context.Context) (*tokenPair, error) {
	var body any
	switch creds := s.creds.(type) {
	case auth.KeyPair:
		logger.Info("starting session with keypair authentication")
		jwt, err := auth.IssueJWT(creds.PrivateKeyPEM, s.account+"."+s.username)
		if err != nil {
			return nil, err
		}
		body = protocol.LoginRequest[protocol.KeyPairLoginData]{
			Data: protocol.KeyPairLoginData{
				LoginRequestCommon: s.loginRequestCommon(),
				Authenticator:      "SNOWFLAKE_JWT",
				Token:              jwt,
			},
		}
	case auth.Password:
		logger.Info("starting session with password authentication")
		body = protocol.LoginRequest[protocol.PasswordLoginData]{
			Data: protocol.PasswordLoginData{
				LoginRequestCommon: s.loginRequestCommon(),
				Password:           creds.Password,
			},
		}
	case auth.OAuth:
		logger.Info("starting session with oauth authentication")
		body = protocol.LoginRequest[protocol.OAuthLoginData]{
			Data: protocol.OAuthLoginData{
				LoginRequestCommon: s.loginRequestCommon(),
				Authenticator:      "OAUTH",
				Token:              creds.AccessToken,
			},
		}
	default:
		return nil, errors.NewCredentialError("no credentials configured", nil)
	}

	params := url.Values{}
	if s.warehouse != "" {
		params.Set("warehouse", s.warehouse)
	}
	if s.database != "" {
		params.Set("databaseName", s.database)
	}
	if s.schema != "" {
		params.Set("schemaName", s.schema)
	}
	if s.role != "" {
		params.Set("roleName", s.role)
	}

	resp, err := rest.Request[protocol.AuthResponse](
		ctx, s.rest, rest.LoginRequest, s.account, params, "", body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.Login != nil:
		data := resp.Login.Data
		logger.Debugw("session created", "sessionID", data.SessionID, "serverVersion", data.ServerVersion)
		return &tokenPair{
			session:    newAuthToken(data.Token, data.ValidityInSeconds),
			master:     newAuthToken(data.MasterToken, data.MasterValidityInSeconds),
			sequenceID: 0,
		}, nil
	case resp.Error != nil:
		return nil, errors.NewAuthFailedError(resp.Error.ErrCode(), resp.Error.ErrMessage())
	default:
		return nil, errors.NewUnexpectedResponseError("unexpected variant on login", nil)
	}
}

func (s *Session) renew(ctx context.Context, old *tokenPair) (*tokenPair, error) {
	logger.Debug("renewing the session token")

	body := protocol.RenewSessionRequest{
		OldSessionToken: old.session.token,
		RequestType:     protocol.RenewRequestType,
	}

	resp, err := rest.Request[protocol.AuthResponse](
		ctx, s.rest, rest.TokenRequest, s.account, nil, old.master.authHeader(), body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.Renew != nil:
		data := resp.Renew.Data
		return &tokenPair{
			session:    newAuthToken(data.SessionToken, data.ValidityInSecondsST),
			master:     newAuthToken(data.MasterToken, data.ValidityInSecondsMT),
			sequenceID: old.sequenceID,
		}, nil
	case resp.Error != nil:
		return nil, errors.NewAuthFailedError(resp.Error.ErrCode(), resp.Error.ErrMessage())
	default:
		return nil, errors.NewUnexpectedResponseError("unexpected variant on token renew", nil)
	}
}

func (s *Session) loginRequestCommon() protocol.LoginRequestCommon {
	return protocol.LoginRequestCommon{
		ClientAppID:      protocol.ClientAppID,
		ClientAppVersion: protocol.ClientAppVersion,
		AccountName:      s.account,
		LoginName:        s.username,
		SessionParameters: protocol.SessionParameters{
			ClientValidateDefaultParameters: true,
		},
		ClientEnvironment: protocol.ClientEnvironment{
			Application: "snowflake-client",
			OS:          runtime.GOOS,
			OSVersion:   runtime.GOARCH,
			OCSPMode:    "FAIL_OPEN",
		},
	}
}
