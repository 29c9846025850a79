package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dropflow/internal/app"
)

func main() {
	_ = app.LoadEnvFile(".env")

	addr := flag.String("addr", app.EnvOrDefault("DROPFLOW_ADDR", app.DefaultAddr), "server listen address")
	uploadDir := flag.String("uploads", app.EnvOrDefault("DROPFLOW_UPLOAD_DIR", app.DefaultUploadDir), "directory holding shared files")
	dataDir := flag.String("data", app.EnvOrDefault("DROPFLOW_DATA_DIR", app.DefaultDataDir), "directory holding persisted notes")
	store := flag.String("store", app.EnvOrDefault("DROPFLOW_STORE", app.StoreJSON), "note store backend: json or sqlite")
	maxUpload := flag.String("max-upload", app.EnvOrDefault("DROPFLOW_MAX_UPLOAD", app.DefaultMaxUpload), "maximum upload request size")
	flag.Parse()

	maxBytes, err := app.ParseSize(*maxUpload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, app.ServerConfig{
		Addr:      *addr,
		UploadDir: *uploadDir,
		DataDir:   *dataDir,
		Store:     *store,
		DBPath:    app.EnvOrDefault("DROPFLOW_DB_PATH", ""),
		MaxUpload: maxBytes,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("DropFlow server: %s\n", handle.PublicURL())
	if err := handle.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
