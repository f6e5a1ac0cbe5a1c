package api

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

//go:embed web/index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type formData struct {
	DefaultDelay float64
	MinDelay     float64
	MaxDelay     float64
	ProfileName  string
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", h.Index).Methods("GET")

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// OPTIONS is listed so corsMiddleware can answer preflights
	api.HandleFunc("/sheets/preview", h.PreviewSheet).Methods("POST", "OPTIONS")
	api.HandleFunc("/runs", h.StartRun).Methods("POST", "OPTIONS")

	api.HandleFunc("/runs/current", h.GetCurrentRun).Methods("GET")
	api.HandleFunc("/runs/current/stop", h.StopRun).Methods("POST", "OPTIONS")
	api.HandleFunc("/runs/current/results.csv", h.DownloadResults).Methods("GET")
	api.HandleFunc("/runs/current/ws", h.StreamStatus).Methods("GET")

	api.HandleFunc("/session", h.GetSession).Methods("GET")
	api.HandleFunc("/session/screenshot", h.GetScreenshot).Methods("GET")
	api.HandleFunc("/session/profile", h.DeleteProfile).Methods("DELETE", "OPTIONS")

	r.Use(corsMiddleware)
	r.Use(loggingMiddleware(h.logger))

	return r
}

// Index serves the operator form
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTmpl.Execute(w, formData{
		DefaultDelay: h.opts.DefaultDelay.Seconds(),
		MinDelay:     h.opts.MinDelay.Seconds(),
		MaxDelay:     h.opts.MaxDelay.Seconds(),
		ProfileName:  h.opts.ProfileName,
	})
	if err != nil {
		h.logger.Error("failed to render form", zap.Error(err))
	}
}
