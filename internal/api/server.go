// Package api implements the HTTP REST + WebSocket control surface: add,
// override, delete and show flows against the RIB, and stream flow
// lifecycle events and install-rate stats to WebSocket subscribers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/upa-network/flowchaind/internal/flow"
	"github.com/upa-network/flowchaind/internal/flowevents"
	"github.com/upa-network/flowchaind/internal/metrics"
	"github.com/upa-network/flowchaind/internal/rib"
	"github.com/upa-network/flowchaind/internal/topology"
)

// Server implements the HTTP REST + WebSocket API described in spec §6.
type Server struct {
	log     *zap.Logger
	listen  string
	rib     *rib.RIB
	fps     *topology.FunctionPools
	metrics *metrics.Collector
	events  *flowevents.Dispatcher

	startTime time.Time

	httpServer *http.Server

	wsMu    sync.RWMutex
	wsConns map[*websocket.Conn]struct{}

	upgrader websocket.Upgrader
}

// NewServer creates a new API server bound to listen (host:port).
func NewServer(
	log *zap.Logger,
	listen string,
	r *rib.RIB,
	fps *topology.FunctionPools,
	mc *metrics.Collector,
	ed *flowevents.Dispatcher,
) *Server {
	s := &Server{
		log:       log,
		listen:    listen,
		rib:       r,
		fps:       fps,
		metrics:   mc,
		events:    ed,
		startTime: time.Now(),
		wsConns:   make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	ed.OnEvent(s.broadcastFlowEvent)
	return s
}

// Start registers routes and begins serving. It returns once the listener
// is bound; HTTP serving and the WebSocket broadcast loop run in the
// background.
func (s *Server) Start() error {
	r := mux.NewRouter()

	r.HandleFunc("/add/{prefix}/{preflen}/{natted}/{nattedlen}/{start}/{chain}", s.handleAdd).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/override/{prefix}/{preflen}/{natted}/{nattedlen}/{start}/{chain}", s.handleOverride).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/delete/{prefix}/{preflen}", s.handleDelete).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/show/flow", s.handleShow(false, false)).Methods(http.MethodGet)
	r.HandleFunc("/show/flow/extensive", s.handleShow(true, false)).Methods(http.MethodGet)
	r.HandleFunc("/show/flow/html", s.handleShow(true, true)).Methods(http.MethodGet)
	r.HandleFunc("/show/flow/url", s.handleShowURL).Methods(http.MethodGet)
	r.HandleFunc("/show/flow/json", s.handleShowJSON).Methods(http.MethodGet)

	r.HandleFunc("/api/v1/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/ws/flows", s.handleWS)

	s.httpServer = &http.Server{Handler: corsMiddleware(r)}

	lis, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.listen, err)
	}

	s.log.Info("HTTP API server starting", zap.String("listen", s.listen))

	go func() {
		if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.log.Error("HTTP server error", zap.Error(err))
		}
	}()

	go s.broadcastStats()

	return nil
}

// Stop gracefully stops the HTTP server and closes any open WebSocket
// connections.
func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
		s.log.Info("HTTP API server stopped")
	}
	s.wsMu.Lock()
	for c := range s.wsConns {
		c.Close()
	}
	s.wsMu.Unlock()
}

// --- WebSocket ---

type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.wsMu.Lock()
	s.wsConns[conn] = struct{}{}
	s.wsMu.Unlock()

	s.log.Debug("websocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.wsMu.Lock()
	delete(s.wsConns, conn)
	s.wsMu.Unlock()
	conn.Close()

	s.log.Debug("websocket client disconnected", zap.String("remote", conn.RemoteAddr().String()))
}

func (s *Server) broadcast(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.wsMu.RLock()
	defer s.wsMu.RUnlock()

	for c := range s.wsConns {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			c.Close()
			go func(conn *websocket.Conn) {
				s.wsMu.Lock()
				delete(s.wsConns, conn)
				s.wsMu.Unlock()
			}(c)
		}
	}
}

func (s *Server) broadcastStats() {
	ch := s.metrics.Subscribe(4)
	for snap := range ch {
		s.broadcast(wsMessage{Type: "stats", Data: snap})
	}
}

func (s *Server) broadcastFlowEvent(ev flowevents.Event) {
	s.broadcast(wsMessage{
		Type: "flow_event",
		Data: map[string]interface{}{
			"kind": ev.Kind.String(),
			"flow": ev.Flow,
		},
	})
}

// --- add / override / delete ---

// flowFromVars parses the {prefix}/{preflen}/{natted}/{nattedlen}/{start}/{chain}
// path segments shared by /add and /override into a *flow.Flow.
func flowFromVars(vars map[string]string) *flow.Flow {
	prefix := fmt.Sprintf("%s/%s", vars["prefix"], vars["preflen"])

	var prefixNatted string
	if vars["natted"] != "none" && vars["nattedlen"] != "none" {
		prefixNatted = fmt.Sprintf("%s/%s", vars["natted"], vars["nattedlen"])
	}

	chain := strings.Split(vars["chain"], "_")
	return flow.New(vars["start"], chain, prefix, prefixNatted)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	f := flowFromVars(mux.Vars(r))
	if err := s.rib.Add(f); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.events.Publish(flowevents.Event{Kind: flowevents.Added, Flow: f})
	s.log.Info("flow added", zap.String("flow", f.String()))
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	f := flowFromVars(mux.Vars(r))
	if err := s.rib.Override(f); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.events.Publish(flowevents.Event{Kind: flowevents.Overridden, Flow: f})
	s.log.Info("flow overridden", zap.String("flow", f.String()))
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	prefix := fmt.Sprintf("%s/%s", vars["prefix"], vars["preflen"])

	f := s.rib.FindByPrefix(prefix)
	if f == nil {
		http.Error(w, fmt.Sprintf("no flow installed for prefix %q", prefix), http.StatusBadRequest)
		return
	}
	if err := s.rib.Delete(f); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.events.Publish(flowevents.Event{Kind: flowevents.Deleted, Flow: f})
	s.log.Info("flow deleted", zap.String("flow", f.String()))
	writeJSON(w, map[string]bool{"ok": true})
}

// --- show ---

func (s *Server) handleShow(extensive, html bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flows := s.rib.All()

		var b strings.Builder
		if html {
			b.WriteString("<html>")
			if len(flows) == 0 {
				b.WriteString("no flow installed.")
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		for _, f := range flows {
			b.WriteString(f.Show(extensive, html))
		}
		if html {
			b.WriteString("</html>")
		}
		w.Write([]byte(b.String()))
	}
}

func (s *Server) handleShowURL(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	for _, f := range s.rib.All() {
		b.WriteString(f.URL())
		b.WriteString("\n")
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(b.String()))
}

func (s *Server) handleShowJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.rib.All())
}

// --- status / stats ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"uptimeSeconds": int64(time.Since(s.startTime).Seconds()),
		"flowCount":     s.rib.Len(),
		"poolCount":     len(s.fps.Pools()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Current()
	if snap == nil {
		writeJSON(w, map[string]interface{}{})
		return
	}
	writeJSON(w, snap)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
