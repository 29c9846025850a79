package internal

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request to the push channel. The new connection
// lands in main_chat and receives the recent chat history straight away.
func (s *Server) ServeWS(writer http.ResponseWriter, request *http.Request) {
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "remote", request.RemoteAddr, "error", err)
		return
	}
	client := newClient(conn, clientIP(request))
	s.logger.Info("client connected", "client", client.id, "remote", client.remote)

	go client.writePump()
	s.Connect(client)
	go client.readPump(s)
}
