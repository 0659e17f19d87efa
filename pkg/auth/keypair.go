// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/snowflake-client/pkg/errors"
)

// jwtValidity is how long an issued keypair JWT stays valid. Snowflake caps
// the acceptable lifetime at one day.
const jwtValidity = 24 * time.Hour

// IssueJWT builds the keypair-authenticator JWT for the given identity.
// fullIdentifier is "<ACCOUNT>.<USERNAME>", both uppercase. The issuer claim
// carries the SHA-256 fingerprint of the DER-encoded public key, and the
// iat/exp claims are whole seconds as required for JWT numeric dates.
func IssueJWT(privateKeyPEM, fullIdentifier string) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return "", errors.NewCredentialError("parsing RSA private key", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", errors.NewCredentialError("encoding public key", err)
	}
	fingerprint := publicKeyFingerprint(der)

	iat := time.Now().UTC().Truncate(time.Second)
	exp := iat.Add(jwtValidity)

	claims := jwt.RegisteredClaims{
		Issuer:    fullIdentifier + ".SHA256:" + fingerprint,
		Subject:   fullIdentifier,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", errors.NewCredentialError("signing JWT", err)
	}

	return signed, nil
}

// publicKeyFingerprint hashes the DER-encoded public key and returns the
// padded standard-alphabet base64 of the digest.
func publicKeyFingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return base64.StdEncoding.EncodeToString(sum[:])
}
