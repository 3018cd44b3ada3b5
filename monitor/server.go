// Package monitor serves a read-only view of the queue: aggregate status
// counts over HTTP and a live transition tail over websocket. It never
// mutates queue state.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teliris/jobscout/errors"
	"github.com/teliris/jobscout/pipeline"
	"github.com/teliris/jobscout/queue"
)

// Websocket timeouts following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Server exposes GET /status and GET /tail.
type Server struct {
	driver  *queue.Driver
	matches *pipeline.MatchStore
	log     *zap.SugaredLogger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer wires the monitoring endpoints. The driver supplies both the
// store for counts and the transition feed for the tail.
func NewServer(addr string, driver *queue.Driver, matches *pipeline.MatchStore, log *zap.SugaredLogger) *Server {
	s := &Server{
		driver:  driver,
		matches: matches,
		log:     log.Named("monitor"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
		},
	}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the route mux, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/tail", s.handleTail)
	return mux
}

// Start begins serving in the background. Returns immediately; serve
// errors other than graceful shutdown are logged.
func (s *Server) Start() {
	s.log.Infow("Monitor listening", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("Monitor server failed", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// StatusResponse is the /status body.
type StatusResponse struct {
	ByStatus         map[queue.Status]int                    `json:"by_status"`
	ByType           map[queue.ItemType]map[queue.Status]int `json:"by_type"`
	MatchesTotal     int                                     `json:"matches_total"`
	MatchesQualified int                                     `json:"matches_qualified"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store := s.driver.Store()
	byStatus, err := store.CountByStatus()
	if err != nil {
		s.log.Errorw("Status counts failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	byType, err := store.CountByTypeAndStatus()
	if err != nil {
		s.log.Errorw("Status counts failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	total, qualified, err := s.matches.Count()
	if err != nil {
		s.log.Errorw("Match counts failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		ByStatus:         byStatus,
		ByType:           byType,
		MatchesTotal:     total,
		MatchesQualified: qualified,
	})
}

// handleTail upgrades to websocket and streams item transitions until
// the client goes away.
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("Tail upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	transitions := s.driver.Subscribe()
	defer func() {
		s.driver.Unsubscribe(transitions)
		conn.Close()
	}()

	s.log.Debugw("Tail client connected", "remote", r.RemoteAddr)

	// Reader drains control frames and signals disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case t := <-transitions:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(t); err != nil {
				s.log.Debugw("Tail client dropped", "remote", r.RemoteAddr, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
