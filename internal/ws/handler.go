package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP connections to WebSocket and registers the observer.
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("failed to upgrade websocket", zap.Error(err))
			return
		}
		c := &client{
			hub:  hub,
			conn: conn,
			send: make(chan []byte, sendBuffer),
		}
		if !hub.add(c) {
			conn.Close()
			return
		}
		go c.writePump()
		go c.readPump()
	}
}
