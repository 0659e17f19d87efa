// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth holds the credential variants accepted by the client and the
// keypair JWT issuer used for SNOWFLAKE_JWT authentication.
package auth

// Credentials is the set of authentication methods accepted at login.
// Exactly one concrete type is supplied per session.
type Credentials interface {
	credentials()
}

// KeyPair authenticates with an RSA keypair registered for the user.
// PrivateKeyPEM holds the PKCS#8 PEM-encoded private key.
type KeyPair struct {
	PrivateKeyPEM string
}

// Password authenticates with the user's password.
type Password struct {
	Password string
}

// OAuth authenticates with a pre-obtained OAuth access token.
type OAuth struct {
	AccessToken string
}

func (KeyPair) credentials()  {}
func (Password) credentials() {}
func (OAuth) credentials()    {}
