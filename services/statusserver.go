package services

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/metrics"
)

type statusResponse struct {
	Uptime string         `json:"uptime"`
	Chains []*ChainStatus `json:"chains"`
}

// NewStatusRouter serves /metrics, /healthz and /status of svc.
func NewStatusRouter(svc *IndexerService, withMetrics bool) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db.ReaderDb == nil || db.ReaderDb.PingContext(r.Context()) != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}).Methods("GET")

	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		response := &statusResponse{
			Chains: svc.Status(),
		}
		if !svc.started.IsZero() {
			response.Uptime = time.Since(svc.started).Round(time.Second).String()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logrus.WithError(err).Error("error encoding status response")
		}
	}).Methods("GET")

	if withMetrics {
		router.Handle("/metrics", metrics.GetMetricsHandler())
	}

	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.UseHandler(router)
	return n
}

// StartStatusServer listens on host:port and serves the status router in the background.
func StartStatusServer(svc *IndexerService, logger logrus.FieldLogger, host string, port string, withMetrics bool) (*http.Server, error) {
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:              host + ":" + port,
		Handler:           NewStatusRouter(svc, withMetrics),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, err
	}

	logger.Infof("status server listening on %v", srv.Addr)
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("error serving status")
		}
	}()

	return srv, nil
}
