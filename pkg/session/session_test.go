// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/snowflake-client/pkg/auth"
	"github.com/stacklok/snowflake-client/pkg/errors"
	"github.com/stacklok/snowflake-client/pkg/rest"
)

// mockAPI fakes the auth endpoints and records what the session sends.
type mockAPI struct {
	mu     sync.Mutex
	logins int
	renews int
	closes int

	lastLoginBody  []byte
	lastLoginQuery map[string][]string
	lastRenewBody  []byte
	lastRenewAuth  string
	lastCloseAuth  string
	lastCloseQuery map[string][]string

	// Validity windows stamped on login replies. Zero means immediately
	// expired, negative means never expires.
	sessionValidity int64
	masterValidity  int64

	failLogin bool
}

func (m *mockAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/session/v1/login-request":
			if m.failLogin {
				fmt.Fprint(w, `{"success":false,"code":"390100",
					"message":"Incorrect username or password was specified.",
					"data":{"authnMethod":"PASSWORD"}}`)
				return
			}
			m.logins++
			m.lastLoginBody = body
			m.lastLoginQuery = r.URL.Query()
			fmt.Fprintf(w, `{"success":true,"code":null,"message":null,"data":{
				"sessionId":17,"token":"st-%d","masterToken":"mt-%d",
				"serverVersion":"9.1.0",
				"validityInSeconds":%d,"masterValidityInSeconds":%d,
				"sessionInfo":{"databaseName":null,"schemaName":null,
					"warehouseName":null,"roleName":"PUBLIC"}}}`,
				m.logins, m.logins, m.sessionValidity, m.masterValidity)
		case "/session/token-request":
			m.renews++
			m.lastRenewBody = body
			m.lastRenewAuth = r.Header.Get("Authorization")
			fmt.Fprint(w, `{"success":true,"code":null,"message":null,"data":{
				"sessionToken":"renewed-st","validityInSecondsST":3600,
				"masterToken":"renewed-mt","validityInSecondsMT":14400,"sessionId":17}}`)
		case "/session":
			m.closes++
			m.lastCloseAuth = r.Header.Get("Authorization")
			m.lastCloseQuery = r.URL.Query()
			fmt.Fprint(w, `{"success":true,"code":null,"message":null,"data":null}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestSession(t *testing.T, api *mockAPI, cfg Config, creds auth.Credentials) *Session {
	t.Helper()

	if api.sessionValidity == 0 && api.masterValidity == 0 {
		api.sessionValidity = 3600
		api.masterValidity = 14400
	}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	rc := rest.NewClient(
		rest.WithHost(strings.TrimPrefix(srv.URL, "http://")),
		rest.WithScheme("http"),
		rest.WithBackOffFactory(func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = time.Millisecond
			return bo
		}),
	)
	return New(rc, cfg, creds)
}

func TestAccountAndUsernameUppercased(t *testing.T) {
	t.Parallel()

	s := New(nil, Config{AccountIdentifier: "acme-x", Username: "admin"}, nil)
	assert.Equal(t, "ACME-X", s.AccountIdentifier())
	assert.Equal(t, "ADMIN", s.username)
}

func TestGetAuthPartsSequenceMonotonic(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	s := newTestSession(t, api, Config{Username: "admin"}, auth.Password{Password: "pw"})

	for want := uint64(1); want <= 3; want++ {
		parts, err := s.GetAuthParts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, parts.SequenceID)
		assert.Equal(t, `Snowflake Token="st-1"`, parts.SessionTokenAuthHeader)
	}
	assert.Equal(t, 1, api.logins)
}

func TestGetAuthPartsSingleLoginUnderConcurrency(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	s := newTestSession(t, api, Config{Username: "admin"}, auth.Password{Password: "pw"})

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var seen []uint64

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			parts, err := s.GetAuthParts(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			seen = append(seen, parts.SequenceID)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, api.logins, "concurrent callers must share one login")

	// Every caller gets a distinct sequence number from a contiguous range.
	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	require.Len(t, seen, callers)
	for i, id := range seen {
		assert.Equal(t, uint64(i+1), id)
	}
}

func TestSessionTokenRenewalPreservesSequence(t *testing.T) {
	t.Parallel()

	// The login grants an already-expired session token next to a healthy
	// master token, forcing the second call onto the renewal path.
	api := &mockAPI{sessionValidity: 0, masterValidity: 14400}
	s := newTestSession(t, api, Config{Username: "admin"}, auth.Password{Password: "pw"})

	first, err := s.GetAuthParts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.SequenceID)

	second, err := s.GetAuthParts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.SequenceID, "renewal must not reset the sequence")
	assert.Equal(t, `Snowflake Token="renewed-st"`, second.SessionTokenAuthHeader)

	assert.Equal(t, 1, api.logins)
	assert.Equal(t, 1, api.renews)

	// Renewal is authorized by the master token and names the old session token.
	assert.Equal(t, `Snowflake Token="mt-1"`, api.lastRenewAuth)
	var renewBody struct {
		OldSessionToken string `json:"oldSessionToken"`
		RequestType     string `json:"requestType"`
	}
	require.NoError(t, json.Unmarshal(api.lastRenewBody, &renewBody))
	assert.Equal(t, "st-1", renewBody.OldSessionToken)
	assert.Equal(t, "RENEW", renewBody.RequestType)
}

func TestMasterExpiryForcesFreshLogin(t *testing.T) {
	t.Parallel()

	// Both tokens expire immediately, so every call starts a new session.
	api := &mockAPI{sessionValidity: -1, masterValidity: 1}
	s := newTestSession(t, api, Config{Username: "admin"}, auth.Password{Password: "pw"})

	first, err := s.GetAuthParts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.SequenceID)

	// Let the master token lapse.
	time.Sleep(1100 * time.Millisecond)

	second, err := s.GetAuthParts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.SequenceID, "a fresh login restarts the sequence")
	assert.Equal(t, `Snowflake Token="st-2"`, second.SessionTokenAuthHeader)

	assert.Equal(t, 2, api.logins)
	assert.Equal(t, 0, api.renews)
}

func TestPasswordLoginBody(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	s := newTestSession(t, api, Config{
		Username:  "admin",
		Warehouse: "COMPUTE_WH",
		Database:  "ANALYTICS",
		Schema:    "PUBLIC",
		Role:      "SYSADMIN",
	}, auth.Password{Password: "hunter2"})

	_, err := s.GetAuthParts(context.Background())
	require.NoError(t, err)

	var body struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(api.lastLoginBody, &body))
	assert.JSONEq(t, `"Go"`, string(body.Data["CLIENT_APP_ID"]))
	assert.JSONEq(t, `"1.6.22"`, string(body.Data["CLIENT_APP_VERSION"]))
	assert.JSONEq(t, `"ADMIN"`, string(body.Data["LOGIN_NAME"]))
	assert.JSONEq(t, `"hunter2"`, string(body.Data["PASSWORD"]))
	assert.NotContains(t, body.Data, "AUTHENTICATOR")
	assert.JSONEq(t, `{"CLIENT_VALIDATE_DEFAULT_PARAMETERS":true}`,
		string(body.Data["SESSION_PARAMETERS"]))

	var env struct {
		OCSPMode string `json:"OCSP_MODE"`
	}
	require.NoError(t, json.Unmarshal(body.Data["CLIENT_ENVIRONMENT"], &env))
	assert.Equal(t, "FAIL_OPEN", env.OCSPMode)

	// Context objects travel as query parameters, not body fields.
	assert.Equal(t, "COMPUTE_WH", api.lastLoginQuery["warehouse"][0])
	assert.Equal(t, "ANALYTICS", api.lastLoginQuery["databaseName"][0])
	assert.Equal(t, "PUBLIC", api.lastLoginQuery["schemaName"][0])
	assert.Equal(t, "SYSADMIN", api.lastLoginQuery["roleName"][0])
}

func TestKeyPairLoginBody(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	api := &mockAPI{}
	s := newTestSession(t, api, Config{Username: "admin"}, auth.KeyPair{PrivateKeyPEM: keyPEM})

	_, err = s.GetAuthParts(context.Background())
	require.NoError(t, err)

	var body struct {
		Data struct {
			Authenticator string `json:"AUTHENTICATOR"`
			Token         string `json:"TOKEN"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(api.lastLoginBody, &body))
	assert.Equal(t, "SNOWFLAKE_JWT", body.Data.Authenticator)
	assert.NotEmpty(t, body.Data.Token)
}

func TestOAuthLoginBody(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	s := newTestSession(t, api, Config{Username: "admin"}, auth.OAuth{AccessToken: "at"})

	_, err := s.GetAuthParts(context.Background())
	require.NoError(t, err)

	var body struct {
		Data struct {
			Authenticator string `json:"AUTHENTICATOR"`
			Token         string `json:"TOKEN"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(api.lastLoginBody, &body))
	assert.Equal(t, "OAUTH", body.Data.Authenticator)
	assert.Equal(t, "at", body.Data.Token)
}

func TestLoginFailure(t *testing.T) {
	t.Parallel()

	api := &mockAPI{failLogin: true}
	s := newTestSession(t, api, Config{Username: "admin"}, auth.Password{Password: "wrong"})

	_, err := s.GetAuthParts(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsAuthFailed(err))
	assert.Contains(t, err.Error(), "390100")
}

func TestCloseSession(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	s := newTestSession(t, api, Config{Username: "admin"}, auth.Password{Password: "pw"})

	// Closing before any login never talks to the server.
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 0, api.closes)

	_, err := s.GetAuthParts(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 1, api.closes)
	assert.Equal(t, `Snowflake Token="st-1"`, api.lastCloseAuth)
	assert.Equal(t, "true", api.lastCloseQuery["delete"][0])

	// A second close is a no-op; the tokens are already gone.
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 1, api.closes)
}
