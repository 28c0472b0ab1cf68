package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/turn", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandleTurn(w, r)
	})

	mux.HandleFunc("/v1/calls/", func(w http.ResponseWriter, r *http.Request) {
		// /v1/calls/{tenant}/{call}/events
		path := strings.TrimSuffix(r.URL.Path, "/")
		const prefix = "/v1/calls/"
		if !strings.HasPrefix(path, prefix) {
			http.NotFound(w, r)
			return
		}
		parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			http.NotFound(w, r)
			return
		}
		tenant, call, tail := parts[0], parts[1], parts[2]

		switch tail {
		case "events":
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h.HandleListEvents(w, r, tenant, call)
			return
		default:
			http.NotFound(w, r)
			return
		}
	})

	return mux
}
