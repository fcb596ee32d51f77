// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/shake/pkg/logging"
	"github.com/AleutianAI/shake/services/shake/config"
)

var (
	configPath string
	logLevel   string
	logJSON    bool
	logDir     string

	// logger is set up by the root command before any subcommand runs.
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "shake",
		Short: "Remove unreachable types and members from a symbol graph",
		Long: `shake walks a compiled program's symbol graph from its entry points,
public surface and implicitly used symbols, then removes every type and
member that was never reached.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  setupLogging,
		PersistentPostRunE: closeLogging,
	}

	runCmd = &cobra.Command{
		Use:   "run [graph file...]",
		Short: "Shake one or more graph documents",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runShake, // Defined in cmd_run.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the shake HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the shake version",
		Args:  cobra.NoArgs,
		Run:   runVersion, // Defined in cmd_version.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default: $"+config.EnvConfigPath+", ./config/shake.yaml or ./shake.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "also write logs to a daily file in this directory")

	registerRunFlags(runCmd)
	registerServeFlags(serveCmd)

	rootCmd.AddCommand(runCmd, serveCmd, versionCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger = logging.New(logging.Config{
		Level:  level,
		LogDir: logDir,
		JSON:   logJSON,
		Writer: cmd.ErrOrStderr(),
	})
	return nil
}

func closeLogging(cmd *cobra.Command, args []string) error {
	if logger == nil {
		return nil
	}
	if err := logger.Close(); err != nil {
		return fmt.Errorf("closing log: %w", err)
	}
	return nil
}
