// Package cmd provides the CLI commands for the chat UI backend.
//
// Commands:
//   - serve: HTTP API server with SSE streaming
//   - migrate: run database migrations and exit
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fahadahaf/chat-ui/internal/log"
)

// Execute is the main entry point for the CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "migrate":
		return runMigrate(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("chat-ui - backend for the streaming chat front-end")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  chat-ui serve      Start the HTTP API server")
	fmt.Println("  chat-ui migrate    Run database migrations and exit")
	fmt.Println("  chat-ui --version  Show version information")
	fmt.Println("  chat-ui --help     Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DATABASE_URL           PostgreSQL connection URL")
	fmt.Println("  CHATUI_SERVER_ADDR     Listen address (default :8080)")
	fmt.Println("  CHATUI_PROVIDER        Default chat provider (agent, ollama, amazon)")
	fmt.Println("  DEBUG                  Enable debug logging")
}
