// Package adminhttp exposes a small read-only HTTP surface for
// operational visibility: Prometheus scraping and a JSON status
// endpoint. It never accepts writes and cannot be used to bypass the
// OPER gate enforced by internal/hub.
package adminhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// StatusProvider supplies the live figures rendered at /status.
type StatusProvider interface {
	Status() Status
}

// Status is the JSON body served at /status.
type Status struct {
	ServerName    string   `json:"server_name"`
	Role          string   `json:"role"`
	LocalUsers    int      `json:"local_users"`
	LocalChannels int      `json:"local_channels"`
	Neighbors     []string `json:"neighbors"`
	Uptime        string   `json:"uptime"`
}

// Server wraps an http.Server serving /metrics and /status.
type Server struct {
	httpServer *http.Server
	log        *logrus.Entry
}

// New builds the admin HTTP server. It does not start listening until
// Serve is called.
func New(addr string, provider StatusProvider, log *logrus.Entry) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(provider.Status()); err != nil {
			log.WithError(err).Warn("adminhttp: failed to encode status")
		}
	}).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Serve blocks until the listener fails or Shutdown is called.
func (s *Server) Serve() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("adminhttp: listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server immediately, closing the listener and any
// open connections without waiting for in-flight requests.
func (s *Server) Shutdown() error {
	return s.httpServer.Close()
}
