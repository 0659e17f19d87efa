// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app implements the sfsql command: a thin front-end over
// pkg/client that executes one SQL statement against a Snowflake account
// configured through SNOWFLAKE_* environment variables.
package app

import (
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/snowflake-client/pkg/client"
	"github.com/stacklok/snowflake-client/pkg/logger"
	"github.com/stacklok/snowflake-client/pkg/query"
	"github.com/stacklok/snowflake-client/pkg/versions"
)

// NewRootCmd creates the root command for sfsql.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sfsql <sql>",
		Short: "Execute a SQL statement against Snowflake",
		Long: `sfsql executes a single SQL statement against a Snowflake account and
prints the result. Connection settings come from SNOWFLAKE_* environment
variables; PUT and GET statements move staged files as a side effect.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		Version:      versions.GetVersionInfo().Version,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		RunE: run,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("json", false, "Force the JSON endpoint (diagnostic)")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("failed to bind debug flag: %v", err)
	}

	return rootCmd
}

func run(cmd *cobra.Command, args []string) error {
	sql := args[0]

	c, err := client.FromEnv()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer func() {
		if err := c.CloseSession(ctx); err != nil {
			logger.Warnf("failed to close session: %v", err)
		}
	}()

	if forceJSON, _ := cmd.Flags().GetBool("json"); forceJSON {
		raw, err := c.ExecJSON(ctx, sql)
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	}

	result, err := c.Exec(ctx, sql)
	if err != nil {
		return err
	}
	return printResult(result)
}

func printResult(result query.Result) error {
	switch res := result.(type) {
	case query.EmptyResult:
		fmt.Println("OK (no rows)")
		return nil
	case query.JSONResult:
		fmt.Println(string(res.Value))
		return nil
	case query.ArrowResult:
		defer res.Release()
		for _, batch := range res.Batches {
			if err := array.RecordToJSON(batch, os.Stdout); err != nil {
				return fmt.Errorf("rendering record batch: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown result type %T", result)
	}
}
