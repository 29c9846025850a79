package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"dropflow/internal/app"
)

func main() {
	_ = app.LoadEnvFile(".env")

	serverJoinURL := flag.String("server", app.EnvOrDefault("DROPFLOW_SERVER", "ws://127.0.0.1:5000/ws"), "WebSocket URL (e.g., ws://192.168.1.20:5000/ws)")
	username := flag.String("user", app.EnvOrDefault("DROPFLOW_USER", ""), "display name in chat and notes")
	poll := flag.Duration("poll", 3*time.Second, "file list poll interval")
	flag.Parse()

	cfg := app.ClientConfig{
		ServerURL:    *serverJoinURL,
		Username:     *username,
		PollInterval: *poll,
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
