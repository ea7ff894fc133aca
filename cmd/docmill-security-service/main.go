// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

// docmill-security-service runs document protection operations:
// encryption, decryption, permission changes, watermarking,
// sanitization, and redaction.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/docmill/docmill/lib/app"
	"github.com/docmill/docmill/lib/config"
	"github.com/docmill/docmill/lib/service"
	"github.com/docmill/docmill/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := pflag.String("config", "", "path to the configuration file")
	showVersion := pflag.Bool("version", false, "print version information and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("docmill-security-service %s\n", version.Info())
		return nil
	}

	logger := service.NewLogger()

	ctx, stop := service.SignalContext()
	defer stop()

	configPath, err := config.Resolve(*configFlag)
	if err != nil {
		return err
	}

	application, err := app.Bootstrap(ctx, configPath, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address: application.Config.Listen.Address,
		Handler: newHandler(application, logger),
		Logger:  logger,
	})

	logger.Info("docmill-security-service starting", "version", version.Info())
	return server.Serve(ctx)
}
