package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pollroom/internal/config"
	"pollroom/internal/hub"
)

// Handler upgrades HTTP requests and pumps frames into the hub. It owns the
// socket plumbing only; every message lands on the dispatch loop untouched.
type Handler struct {
	registry *Registry
	events   *hub.Hub
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewHandler creates the WebSocket endpoint handler.
func NewHandler(registry *Registry, events *hub.Hub, cfg config.WebSocketConfig) *Handler {
	return &Handler{
		registry: registry,
		events:   events,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// Classroom clients connect from whatever host the teacher
			// projected; origin checks happen at the deployment proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the connection's read pump.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	conn := NewConnection(socket, h.cfg.SendQueueSize, h.cfg.WriteTimeout)
	h.registry.Register(conn)
	log.Printf("Connection established: handle=%s remote=%s", conn.ID(), r.RemoteAddr)

	go h.pingLoop(conn, socket)
	h.readLoop(conn, socket)
}

func (h *Handler) readLoop(conn *Connection, socket *websocket.Conn) {
	defer func() {
		h.registry.Unregister(conn)
		if err := h.events.EnqueueDisconnect(conn); err != nil {
			log.Printf("Failed to enqueue disconnect for %s: %v", conn.ID(), err)
		}
		_ = conn.Close()
		log.Printf("Connection closed: handle=%s", conn.ID())
	}()

	socket.SetReadLimit(h.cfg.MaxMessageSize)
	_ = socket.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Unexpected close on %s: %v", conn.ID(), err)
			}
			return
		}
		if err := h.events.EnqueueMessage(conn, data); err != nil {
			log.Printf("Dropped message from %s: %v", conn.ID(), err)
		}
	}
}

func (h *Handler) pingLoop(conn *Connection, socket *websocket.Conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := socket.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Context().Done():
			return
		}
	}
}
