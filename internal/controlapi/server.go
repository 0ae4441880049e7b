// Package controlapi exposes the control plane over HTTP: health/status
// endpoints, snapshot inspection, the patch enable toggle, a websocket
// event feed, and Prometheus metrics (§4.6).
//
// Grounded on the teacher's cmd/server/main.go chi+middleware+cors wiring,
// generalized from "serve the GraphQL handler" to "serve the router's own
// status/control endpoints."
package controlapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/dridi14/p1-router/internal/bindaddr"
	"github.com/dridi14/p1-router/internal/controlplane"
	"github.com/dridi14/p1-router/internal/mapping"
	"github.com/dridi14/p1-router/internal/observer"
	"github.com/dridi14/p1-router/internal/patch"
)

// Server serves the router's control-plane HTTP API.
type Server struct {
	cp             *controlplane.Controlplane
	corsOrigin     string
	requestLogging bool

	mappingSnap *mapping.Snapshot
	patchSnap   *patch.Snapshot
	patchOn     bool

	upgrader websocket.Upgrader
}

// New creates a Server bound to cp. The snapshots reported read-only by
// /snapshot/* are supplied afterwards through SetSnapshots. requestLogging
// toggles chi's per-request access log.
func New(cp *controlplane.Controlplane, corsOrigin string, requestLogging bool) *Server {
	return &Server{
		cp:             cp,
		corsOrigin:     corsOrigin,
		requestLogging: requestLogging,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetSnapshots records the active mapping/patch snapshots and the patch
// enabled flag for read-only reporting; it does not affect routing, which
// is driven by controlplane's own SwapMapping/SwapPatch/SetPatchEnabled.
func (s *Server) SetSnapshots(m *mapping.Snapshot, p *patch.Snapshot, patchOn bool) {
	s.mappingSnap = m
	s.patchSnap = p
	s.patchOn = patchOn
}

// Handler builds the chi router for this server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.requestLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{s.corsOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	r.Use(corsMiddleware.Handler)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Get("/interfaces", s.handleInterfaces)
	r.Get("/snapshot/mapping", s.handleSnapshotMapping)
	r.Get("/snapshot/patch", s.handleSnapshotPatch)
	r.Post("/patch/enabled", s.handlePatchEnabled)
	r.Get("/events", s.handleEvents)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	keys := s.cp.Registry().OrderedKeys()
	universes := make([]string, len(keys))
	for i, k := range keys {
		universes[i] = k.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_universes": universes,
		"patch_enabled":    s.patchOn,
	})
}

// handleInterfaces lists candidate bind interfaces, to help an operator
// pick a concrete listen_addr instead of "auto".
func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	candidates, err := bindaddr.Candidates()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interfaces": candidates})
}

func (s *Server) handleSnapshotMapping(w http.ResponseWriter, r *http.Request) {
	if s.mappingSnap == nil {
		writeJSON(w, http.StatusOK, map[string]any{"keys": []string{}})
		return
	}
	keys := s.mappingSnap.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": out})
}

func (s *Server) handleSnapshotPatch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"enabled": s.patchOn})
}

func (s *Server) handlePatchEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	s.cp.SetPatchEnabled(body.Enabled)
	s.patchOn = body.Enabled
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": body.Enabled})
}

// handleEvents upgrades to a websocket and streams decoded/send/counter
// events until the client disconnects (§4.6 "subscribe(observer)").
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	topics := []observer.Topic{observer.TopicDecoded, observer.TopicSend, observer.TopicCounter, observer.TopicFatal}
	subs := make([]*observer.Subscriber, len(topics))
	for i, topic := range topics {
		subs[i] = s.cp.Subscribe(topic)
	}
	defer func() {
		for _, sub := range subs {
			s.cp.Unsubscribe(sub)
		}
	}()

	merged := make(chan observer.Event, 256)
	done := make(chan struct{})
	for _, sub := range subs {
		go func(sub *observer.Subscriber) {
			for {
				select {
				case ev, ok := <-sub.Events:
					if !ok {
						return
					}
					select {
					case merged <- ev:
					case <-done:
						return
					}
				case <-done:
					return
				}
			}
		}(sub)
	}
	defer close(done)

	for ev := range merged {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
