// Package status serves the gateway's debug HTTP surface: liveness, worker
// status, Prometheus exposition, and a live websocket tail of decoded
// beacons for local troubleshooting.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/commatea/ruuvi-gateway/internal/beacon"
	"github.com/commatea/ruuvi-gateway/internal/supervisor"
)

// Server exposes /healthz, /status, /metrics, and /ws/beacons.
type Server struct {
	addr       string
	supervisor *supervisor.Supervisor
	log        *slog.Logger
	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewServer constructs a Server bound to addr (e.g. ":8090"). sup provides
// the worker states rendered at /status.
func NewServer(addr string, sup *supervisor.Supervisor, log *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		supervisor: sup,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws/beacons", s.handleBeaconsWS)

	s.httpServer = &http.Server{Addr: s.addr, Handler: r}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("status: server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"workers": s.supervisor.States(),
	})
}

func (s *Server) handleBeaconsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("status: websocket upgrade failed", "error", err)
		return
	}

	send := make(chan []byte, 64)
	s.mu.Lock()
	s.clients[conn] = send
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			_ = conn.Close()
		}()
		for msg := range send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()
}

// BroadcastBeacon fans a decoded beacon out to every connected debug client.
// Never blocks: a client whose send buffer is full is dropped silently.
func (s *Server) BroadcastBeacon(b beacon.Beacon) {
	data, err := json.Marshal(b)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, send := range s.clients {
		select {
		case send <- data:
		default:
			delete(s.clients, conn)
			close(send)
			_ = conn.Close()
		}
	}
}

// Addr returns the bound address, for logging at startup.
func (s *Server) Addr() string {
	return fmt.Sprintf("http://%s", s.addr)
}
