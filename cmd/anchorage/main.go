// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anchorage-ai/anchorage/pkg/config"
	"github.com/anchorage-ai/anchorage/pkg/logging"
	"github.com/anchorage-ai/anchorage/services/gateway"
)

func main() {
	root := &cobra.Command{
		Use:   "anchorage",
		Short: "Multi-tenant LLM chat backend",
	}
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			logger, err := logging.New(logging.Config{
				Level:   logging.ParseLevel(cfg.LogLevel),
				LogDir:  cfg.LogDir,
				Service: "gateway",
			})
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := gateway.New(ctx, cfg, logger.Logger)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
