// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"time"
)

// authToken is one bearer token with its validity window, measured against
// the local clock from the moment it was received.
type authToken struct {
	token    string
	issuedAt time.Time
	validFor time.Duration
	// never is set when the server reports a negative validity, which means
	// the token does not expire.
	never bool
}

func newAuthToken(token string, validityInSeconds int64) authToken {
	return authToken{
		token:    token,
		issuedAt: time.Now(),
		validFor: time.Duration(validityInSeconds) * time.Second,
		never:    validityInSeconds < 0,
	}
}

func (t authToken) isExpired() bool {
	if t.never {
		return false
	}
	return time.Since(t.issuedAt) >= t.validFor
}

// authHeader renders the session-scoped Authorization value. This shape is
// distinct from the "Bearer" form used by the public statement API.
func (t authToken) authHeader() string {
	return fmt.Sprintf("Snowflake Token=%q", t.token)
}

// tokenPair is the dual-token session state. The session token authorizes
// queries; the master token only authorizes renewing the session token.
type tokenPair struct {
	session authToken
	master  authToken
	// sequenceID is expected by the API to strictly increase across queries
	// within one session. Guarded by the session mutex.
	sequenceID uint64
}
