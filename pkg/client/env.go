// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/stacklok/snowflake-client/pkg/auth"
)

// Environment variables honored by FromEnv. Account and user are required;
// exactly one credential source must be present.
const (
	envAccount        = "SNOWFLAKE_ACCOUNT"
	envUser           = "SNOWFLAKE_USER"
	envWarehouse      = "SNOWFLAKE_WAREHOUSE"
	envDatabase       = "SNOWFLAKE_DATABASE"
	envSchema         = "SNOWFLAKE_SCHEMA"
	envRole           = "SNOWFLAKE_ROLE"
	envPassword       = "SNOWFLAKE_PASSWORD"
	envPrivateKeyPath = "SNOWFLAKE_PRIVATE_KEY_PATH"
	envOAuthToken     = "SNOWFLAKE_OAUTH_TOKEN"
)

// FromEnv builds a client from SNOWFLAKE_* environment variables.
func FromEnv(opts ...Option) (*Client, error) {
	cfg, err := configFromEnv(viper.New())
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

func configFromEnv(v *viper.Viper) (Config, error) {
	for _, key := range []string{
		envAccount, envUser, envWarehouse, envDatabase, envSchema, envRole,
		envPassword, envPrivateKeyPath, envOAuthToken,
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	cfg := Config{
		Account:   v.GetString(envAccount),
		Username:  v.GetString(envUser),
		Warehouse: v.GetString(envWarehouse),
		Database:  v.GetString(envDatabase),
		Schema:    v.GetString(envSchema),
		Role:      v.GetString(envRole),
	}
	if cfg.Account == "" {
		return Config{}, fmt.Errorf("environment variable %s is required", envAccount)
	}
	if cfg.Username == "" {
		return Config{}, fmt.Errorf("environment variable %s is required", envUser)
	}

	creds, err := credentialsFromEnv(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Credentials = creds

	return cfg, nil
}

func credentialsFromEnv(v *viper.Viper) (auth.Credentials, error) {
	switch {
	case v.GetString(envPrivateKeyPath) != "":
		path := v.GetString(envPrivateKeyPath)
		pem, err := os.ReadFile(path) // #nosec G304 - key path is supplied by the operator
		if err != nil {
			return nil, fmt.Errorf("reading private key %s: %w", path, err)
		}
		return auth.KeyPair{PrivateKeyPEM: string(pem)}, nil
	case v.GetString(envPassword) != "":
		return auth.Password{Password: v.GetString(envPassword)}, nil
	case v.GetString(envOAuthToken) != "":
		return auth.OAuth{AccessToken: v.GetString(envOAuthToken)}, nil
	default:
		return nil, fmt.Errorf(
			"no credentials in environment: set one of %s, %s, %s",
			envPrivateKeyPath, envPassword, envOAuthToken)
	}
}
