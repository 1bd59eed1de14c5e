package main

import (
	"net/http"
	"strings"
	"time"

	"moledger/internal/handlers/manufacturing"
	"moledger/internal/response"
	"moledger/internal/server"
)

// Mutating requests allowed per client per minute.
const postRateLimit = 120

func newRouter(a *App) http.Handler {
	h := &manufacturing.Handler{
		Service:  a.Service,
		Hub:      a.Hub,
		Catalog:  a.Store,
		EmailLog: a.Store,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, "", map[string]interface{}{"status": "ok", "ws_clients": a.Hub.Clients()})
	})
	mux.HandleFunc("/api/v1/ws", h.Events)

	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/"), "/")
		parts := strings.Split(path, "/")

		switch {
		case parts[0] == "mo" && len(parts) == 1 && r.Method == "POST":
			h.CreateMO(w, r)
		case parts[0] == "mo" && len(parts) == 1 && r.Method == "GET":
			h.Reprint(w, r)
		case parts[0] == "mo" && len(parts) == 2 && parts[1] == "batch" && r.Method == "POST":
			h.CreateBatch(w, r)
		case parts[0] == "mo" && len(parts) == 2 && r.Method == "GET":
			h.GetMO(w, r, parts[1])
		case parts[0] == "products" && len(parts) == 2 && r.Method == "GET":
			h.GetProduct(w, r, parts[1])
		case path == "scan" && r.Method == "POST":
			h.ParseScan(w, r)
		case path == "catalog/import" && r.Method == "POST":
			h.ImportCatalog(w, r)
		case path == "email-log" && r.Method == "GET":
			h.ListEmailLog(w, r)
		default:
			response.Err(w, "not found", http.StatusNotFound)
		}
	})

	return server.Chain(mux,
		server.RequestID,
		server.LoggingMiddleware,
		server.SecurityHeaders,
		server.RateLimitMiddleware(server.NewRateLimiter(postRateLimit, time.Minute)),
		server.Identity,
		server.GzipMiddleware,
	)
}
