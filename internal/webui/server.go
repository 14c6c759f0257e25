// Package webui serves a live view of a running simulation: per-tick
// statistics pushed to browser clients over a websocket.
package webui

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ipd-simulator/pkg/model"
	"github.com/ipd-simulator/pkg/utils"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 2 * time.Second
)

// Server pushes per-tick statistics to connected websocket clients. The
// engine drives it through Publish from the run observer; clients come and
// go freely.
type Server struct {
	log      utils.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	latest  []byte

	srv *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, log utils.Logger) *Server {
	s := &Server{
		log:     log,
		clients: make(map[*websocket.Conn]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWS)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Handler exposes the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("webui server: %v", err)
		}
	}()
	s.log.Info("webui listening on %s", s.srv.Addr)
}

// Shutdown stops the server and closes all client connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		c.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()
	return s.srv.Shutdown(ctx)
}

// Publish broadcasts one statistics record to every connected client. Clients
// that cannot keep up are dropped.
func (s *Server) Publish(stats *model.StepStats) {
	payload, err := json.Marshal(stats)
	if err != nil {
		s.log.Error("marshal stats: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = payload
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.Close()
			delete(s.clients, c)
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	latest := s.latest
	s.mu.Unlock()

	// New clients immediately see the last tick.
	if latest != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, latest)
	}

	// Drain (and discard) client messages until the peer goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.mu.Lock()
				delete(s.clients, conn)
				s.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>ipd-simulator</title></head>
<body>
<h1>ipd-simulator live statistics</h1>
<pre id="stats">waiting for ticks...</pre>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => {
  document.getElementById("stats").textContent =
      JSON.stringify(JSON.parse(ev.data), null, 2);
};
</script>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = indexTemplate.Execute(w, nil)
}
