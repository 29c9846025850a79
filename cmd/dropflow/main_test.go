package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	mode, rest := parseMode(nil)
	assert.Equal(t, modeServer, mode)
	assert.Empty(t, rest)

	mode, rest = parseMode([]string{"Client", "--user", "bob"})
	assert.Equal(t, modeClient, mode)
	assert.Equal(t, []string{"--user", "bob"}, rest)

	mode, rest = parseMode([]string{"--addr", ":6000"})
	assert.Equal(t, modeServer, mode)
	assert.Equal(t, []string{"--addr", ":6000"}, rest)
}

func TestBuildWebsocketURL(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:5000/ws", buildWebsocketURL("127.0.0.1:5000", ""))
	assert.Equal(t, "ws://[::1]:5000/socket", buildWebsocketURL("[::1]:5000", "socket"))
}

func TestDurationFromEnv(t *testing.T) {
	t.Setenv("DROPFLOW_POLL_INTERVAL", "")
	assert.Equal(t, 3*time.Second, durationFromEnv("DROPFLOW_POLL_INTERVAL", 3*time.Second))
	t.Setenv("DROPFLOW_POLL_INTERVAL", "750ms")
	assert.Equal(t, 750*time.Millisecond, durationFromEnv("DROPFLOW_POLL_INTERVAL", 3*time.Second))
	t.Setenv("DROPFLOW_POLL_INTERVAL", "often")
	assert.Equal(t, 3*time.Second, durationFromEnv("DROPFLOW_POLL_INTERVAL", 3*time.Second))
}
