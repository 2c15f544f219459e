package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/codequery/internal/cache"
	"github.com/dshills/codequery/internal/embedder"
	"github.com/dshills/codequery/internal/mcp"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("CodeQuery MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", cache.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", cache.DriverName)
		os.Exit(0)
	}

	// Log to stderr; stdout is reserved for the MCP protocol
	log.SetOutput(os.Stderr)
	log.Printf("CodeQuery MCP Server v%s starting...", version)
	log.Printf("Build Mode: %s, Driver: %s", cache.BuildMode, cache.DriverName)
	if provider := embedder.DetectProvider(); provider != "" {
		log.Printf("Embedding provider: %s", provider)
	} else {
		log.Printf("No embedding provider configured; semantic search disabled")
	}

	root := os.Getenv("CODEQUERY_ROOT")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("Failed to determine working directory: %v", err)
		}
		root = cwd
	}

	server, err := mcp.NewServer(root)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	server.SetLogger(log.Default())

	ctx, cancel := context.WithCancel(context.Background())
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
			log.Fatalf("Server error: %v", err)
		}
	}

	log.Println("Server stopped")
}
