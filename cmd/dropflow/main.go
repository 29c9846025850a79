package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	intrnl "dropflow/internal"
	"dropflow/internal/app"
	"dropflow/internal/logging"
)

const (
	modeServer = "server"
	modeClient = "client"
	modeLocal  = "local"
)

func main() {
	mode, args := parseMode(os.Args[1:])
	envErr := app.LoadEnvFile(app.EnvOrDefault("DROPFLOW_ENV_FILE", ".env"))
	if mode != modeServer && os.Getenv("DROPFLOW_LOG_LEVEL") == "" {
		// the TUI owns the terminal
		_ = os.Setenv("DROPFLOW_LOG_LEVEL", "error")
	}
	logger := logging.New("main")
	if envErr != nil {
		logger.Warn("could not load env file", "error", envErr)
	}

	flagSet := flag.NewFlagSet("dropflow", flag.ExitOnError)
	addr := flagSet.String("addr", app.EnvOrDefault("DROPFLOW_ADDR", defaultAddrForMode(mode)), "server listen address")
	path := flagSet.String("path", app.EnvOrDefault("DROPFLOW_PATH", "/ws"), "websocket path")
	uploadDir := flagSet.String("uploads", app.EnvOrDefault("DROPFLOW_UPLOAD_DIR", app.DefaultUploadDir), "directory holding shared files")
	dataDir := flagSet.String("data", app.EnvOrDefault("DROPFLOW_DATA_DIR", app.DefaultDataDir), "directory holding persisted notes")
	store := flagSet.String("store", app.EnvOrDefault("DROPFLOW_STORE", app.StoreJSON), "note store backend: json or sqlite")
	db := flagSet.String("db", app.EnvOrDefault("DROPFLOW_DB_PATH", ""), "sqlite database path (sqlite store only)")
	maxUpload := flagSet.String("max-upload", app.EnvOrDefault("DROPFLOW_MAX_UPLOAD", app.DefaultMaxUpload), "maximum upload request size, e.g. 512MB or 16GiB")
	publicURL := flagSet.String("public-url", app.EnvOrDefault("DROPFLOW_PUBLIC_URL", ""), "URL advertised to other devices (default: derived from the LAN address)")
	serverURL := flagSet.String("server", app.EnvOrDefault("DROPFLOW_SERVER", "ws://127.0.0.1:5000/ws"), "server websocket URL (client mode)")
	username := flagSet.String("user", app.EnvOrDefault("DROPFLOW_USER", ""), "display name in chat and notes")
	showVersion := flagSet.Bool("version", false, "print the version and exit")
	poll := flagSet.Duration("poll", durationFromEnv("DROPFLOW_POLL_INTERVAL", 3*time.Second), "file list poll interval (client mode)")
	flagSet.Parse(args)
	if *showVersion {
		fmt.Println("dropflow", intrnl.Version)
		return
	}

	maxBytes, err := app.ParseSize(*maxUpload)
	if err != nil {
		fail(err)
	}
	serverCfg := app.ServerConfig{
		Addr:      *addr,
		Path:      app.NormalizeJoinPath(*path),
		UploadDir: *uploadDir,
		DataDir:   *dataDir,
		Store:     *store,
		DBPath:    *db,
		MaxUpload: maxBytes,
		PublicURL: *publicURL,
	}
	clientCfg := app.ClientConfig{
		ServerURL:    *serverURL,
		Username:     *username,
		PollInterval: *poll,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case modeServer:
		err = runServerMode(ctx, serverCfg)
	case modeLocal:
		err = runLocalMode(ctx, serverCfg, clientCfg)
	default:
		err = app.RunClient(clientCfg)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fail(err)
	}
}

func runServerMode(ctx context.Context, cfg app.ServerConfig) error {
	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("DropFlow is running. Open %s on any device on this network.\n", handle.PublicURL())
	return handle.Wait()
}

func runLocalMode(ctx context.Context, serverCfg app.ServerConfig, clientCfg app.ClientConfig) error {
	handle, err := app.RunServer(ctx, serverCfg)
	if err != nil {
		return err
	}
	defer stopServer(handle)

	if err := waitForServer(handle.Addr(), 5*time.Second); err != nil {
		return err
	}
	clientCfg.ServerURL = buildWebsocketURL(handle.Addr(), serverCfg.Path)

	if err := app.RunClient(clientCfg); err != nil {
		return err
	}
	stopServer(handle)
	return handle.Wait()
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildWebsocketURL(addr, path string) string {
	path = app.NormalizeJoinPath(path)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://%s%s", addr, path)
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, port), path)
}

func parseMode(args []string) (string, []string) {
	if len(args) == 0 {
		return modeServer, args
	}
	switch strings.ToLower(args[0]) {
	case modeServer, modeClient, modeLocal:
		return strings.ToLower(args[0]), args[1:]
	}
	return modeServer, args
}

func defaultAddrForMode(mode string) string {
	if mode == modeLocal {
		return "127.0.0.1:0"
	}
	return app.DefaultAddr
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := app.EnvOrDefault(key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func stopServer(handle *app.ServerHandle) {
	if handle == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "dropflow: %v\n", err)
	os.Exit(1)
}
