package internal

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxMsgSize  = 64 * 1024
	sendBacklog = 256
)

// Client is one websocket connection. It satisfies Session.
type Client struct {
	id     string
	conn   *websocket.Conn
	remote string

	mutex  sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn, remote string) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		remote: remote,
		send:   make(chan []byte, sendBacklog),
	}
}

func (client *Client) ID() string {
	return client.id
}

// Deliver queues frame without blocking. A client whose backlog is full is
// considered too slow: its send channel is closed, which makes writePump
// hang up and readPump run the disconnect cleanup.
func (client *Client) Deliver(frame []byte) bool {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	if client.closed {
		return false
	}
	select {
	case client.send <- frame:
		return true
	default:
		client.closed = true
		close(client.send)
		return false
	}
}

func (client *Client) shutdown() {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	if !client.closed {
		client.closed = true
		close(client.send)
	}
}

func (client *Client) readPump(server *Server) {
	defer func() {
		server.Disconnect(client)
		client.shutdown()
		client.conn.Close()
	}()
	client.conn.SetReadLimit(maxMsgSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		messageType, payload, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				server.logger.Debug("read error", "client", client.id, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		server.HandleFrame(client, payload)
	}
}

func (client *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
