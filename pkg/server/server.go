// Copyright 2025 Certen Protocol
//
// HTTP server wiring: one ServeMux exposing the status/registration API
// and the Prometheus metrics endpoint.

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux builds the executor's HTTP surface: GET /status, POST
// /contracts, DELETE /contracts/{addr}, GET /metrics.
func NewMux(orch Registrar) *http.ServeMux {
	handlers := NewStatusHandlers(orch)

	mux := http.NewServeMux()
	mux.HandleFunc("/status", handlers.HandleStatus)
	mux.HandleFunc("/contracts", handlers.HandleRegisterContract)
	mux.HandleFunc("/contracts/", handlers.HandleUnregisterContract)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
