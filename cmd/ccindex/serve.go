package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiang66/ccls/internal/mcp"
	"github.com/xiang66/ccls/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the MCP server over stdio",
	SilenceUsage: true,
	RunE:         runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Printf("ccindex MCP server %s starting...", version)
	log.Printf("Build Mode: %s, Driver: %s, Workers: %d", storage.BuildMode, storage.DriverName, cfg.Workers)

	server, err := mcp.NewServer(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Println("MCP server ready, listening on stdio...")
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	log.Println("Server stopped")
	return nil
}
