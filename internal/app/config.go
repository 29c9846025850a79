package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"

	DefaultAddr      = ":5000"
	DefaultUploadDir = "uploads"
	DefaultDataDir   = "data"
	DefaultMaxUpload = "16GiB"
)

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr      string
	Path      string
	UploadDir string
	DataDir   string

	// Store selects the note persistence backend: json or sqlite.
	Store     string
	DBPath    string
	MaxUpload int64

	// PublicURL is advertised on GET /. Empty means derive it from the
	// listener and the first non-loopback IPv4 address.
	PublicURL   string
	FileOpLimit int
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL    string
	Username     string
	PollInterval time.Duration
}

// LoadEnvFile reads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func EnvOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// DefaultDBPath is where the sqlite backend keeps its database when no path
// is configured.
func DefaultDBPath(dataDir string) string {
	if env := os.Getenv("DROPFLOW_DB_PATH"); env != "" {
		return env
	}
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	return filepath.Join(dataDir, "dropflow.db")
}

// NormalizeJoinPath guarantees the websocket path starts with '/' and
// falls back to /ws when empty.
func NormalizeJoinPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}

// ParseSize accepts human sizes such as "512MB", "16GiB" or plain bytes.
func ParseSize(value string) (int64, error) {
	size, err := humanize.ParseBytes(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", value, err)
	}
	if size == 0 || size > 1<<62 {
		return 0, fmt.Errorf("size %q out of range", value)
	}
	return int64(size), nil
}

// ParseStore validates a store backend name.
func ParseStore(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", StoreJSON:
		return StoreJSON, nil
	case StoreSQLite:
		return StoreSQLite, nil
	default:
		return "", fmt.Errorf("unknown store %q (want %s or %s)", value, StoreJSON, StoreSQLite)
	}
}

// LocalIP returns the first non-loopback IPv4 address, or 127.0.0.1.
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}

// PublicURLFor builds the http URL other devices on the network should use
// to reach a server listening on listenAddr.
func PublicURLFor(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + listenAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = LocalIP()
	}
	return "http://" + net.JoinHostPort(host, port)
}
