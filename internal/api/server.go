// Package api exposes the HTTP surface: snapshot reads, service-call
// dispatch, health and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"zcsmower/internal/mower"
	"zcsmower/internal/router"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server hosts the HTTP API.
type Server struct {
	router   *router.Router
	registry *prometheus.Registry
	logger   *zap.Logger
	port     int
	srv      *http.Server
}

// NewServer creates the HTTP server.
func NewServer(r *router.Router, registry *prometheus.Registry, logger *zap.Logger, port int) *Server {
	return &Server{
		router:   r,
		registry: registry,
		logger:   logger,
		port:     port,
	}
}

// mowerJSON is the wire shape of one snapshot row.
type mowerJSON struct {
	IMEI              string     `json:"imei"`
	Name              string     `json:"name"`
	State             string     `json:"state"`
	Connected         bool       `json:"connected"`
	Available         bool       `json:"available"`
	Manufacturer      string     `json:"manufacturer"`
	Model             string     `json:"model,omitempty"`
	Serial            *string    `json:"serial,omitempty"`
	SWVersion         *string    `json:"sw_version,omitempty"`
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	LastCommunication *time.Time `json:"last_communication,omitempty"`
	LastSeen          *time.Time `json:"last_seen,omitempty"`
}

func toMowerJSON(d mower.Device) mowerJSON {
	out := mowerJSON{
		IMEI:              d.IMEI,
		Name:              d.Name,
		State:             d.State.String(),
		Connected:         d.Connected,
		Available:         d.Available(),
		Manufacturer:      d.Manufacturer(),
		Model:             d.Model(),
		Serial:            d.Serial,
		SWVersion:         d.SWVersion,
		LastCommunication: d.LastCommunication,
		LastSeen:          d.LastSeen,
	}
	if d.Location != nil {
		out.Latitude = &d.Location.Latitude
		out.Longitude = &d.Location.Longitude
	}
	return out
}

// serviceRequest is the body of POST /api/services/{service}.
type serviceRequest struct {
	DeviceIDs []string `json:"device_ids"`
	router.Params
}

// Handler returns the routed handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/mowers", s.handleMowers)
	mux.HandleFunc("/api/services/", s.handleService)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}
	s.logger.Info("HTTP API listening", zap.Int("port", s.port))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMowers returns every account's snapshot keyed by account name.
func (s *Server) handleMowers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := make(map[string][]mowerJSON)
	for name, c := range s.router.Coordinators() {
		snapshot := c.Snapshot()
		rows := make([]mowerJSON, 0, len(snapshot))
		for _, device := range snapshot {
			rows = append(rows, toMowerJSON(device))
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].IMEI < rows[j].IMEI })
		response[name] = rows
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleService dispatches one platform service call. Dispatch is
// fire-and-forget, so acceptance is 202 with the launched target count.
func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	service := strings.TrimPrefix(r.URL.Path, "/api/services/")
	if service == "" || strings.Contains(service, "/") {
		http.Error(w, "unknown service", http.StatusNotFound)
		return
	}

	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.DeviceIDs) == 0 {
		http.Error(w, "device_ids is required", http.StatusBadRequest)
		return
	}

	// Commands outlive the request, so they must not inherit its context.
	dispatched, err := s.router.Dispatch(context.Background(), service, req.DeviceIDs, req.Params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Info("Service dispatched",
		zap.String("service", service),
		zap.Int("targets", dispatched))
	s.writeJSON(w, http.StatusAccepted, map[string]int{"dispatched": dispatched})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
