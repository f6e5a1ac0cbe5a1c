package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/whatsapp-sender/internal/profile"
	"github.com/shehryarbajwa/whatsapp-sender/internal/ratelimit"
	"github.com/shehryarbajwa/whatsapp-sender/internal/sender"
	"github.com/shehryarbajwa/whatsapp-sender/internal/session"
	"github.com/shehryarbajwa/whatsapp-sender/internal/sheet"
	"github.com/shehryarbajwa/whatsapp-sender/internal/status"
	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

// Runner starts and controls send runs
type Runner interface {
	ValidateDelay(delay time.Duration) error
	Start(batch *models.Batch, delay time.Duration) (sender.RunInfo, error)
	Stop() error
	Running() bool
	LoginState() session.LoginState
	Screenshot(ctx context.Context) ([]byte, error)
}

// SheetFetcher downloads a published spreadsheet
type SheetFetcher func(ctx context.Context, sheetURL string) (*models.Batch, error)

// Options configures the HTTP handlers
type Options struct {
	DefaultDelay   time.Duration
	MinDelay       time.Duration
	MaxDelay       time.Duration
	MaxUploadBytes int64
	ProfileName    string
	UserDataDir    string
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	runner   Runner
	tracker  *status.Tracker
	hub      *status.Hub
	fetch    SheetFetcher
	profiles *profile.Store
	limiter  *ratelimit.Limiter
	opts     Options
	logger   *zap.Logger
}

// NewHandler creates the HTTP handler set. profiles and limiter may be nil.
func NewHandler(runner Runner, tracker *status.Tracker, hub *status.Hub, fetch SheetFetcher, profiles *profile.Store, limiter *ratelimit.Limiter, opts Options, logger *zap.Logger) *Handler {
	return &Handler{
		runner:   runner,
		tracker:  tracker,
		hub:      hub,
		fetch:    fetch,
		profiles: profiles,
		limiter:  limiter,
		opts:     opts,
		logger:   logger.Named("api"),
	}
}

// StartRunResponse is returned when a run is accepted
type StartRunResponse struct {
	RunID    string  `json:"runId"`
	Source   string  `json:"source"`
	Total    int     `json:"total"`
	Sendable int     `json:"sendable"`
	Skipped  int     `json:"skipped"`
	Delay    float64 `json:"delaySeconds"`
}

// PreviewResponse shows what a run over the sheet would do
type PreviewResponse struct {
	Source   string       `json:"source"`
	Total    int          `json:"total"`
	Sendable int          `json:"sendable"`
	Skipped  int          `json:"skipped"`
	Rows     []models.Row `json:"rows"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

// StartRun handles POST /v1/runs. Only requests that would start a run
// count against the rate limit.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}

	delay, err := h.parseDelay(r.FormValue("delay"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.runner.Running() {
		writeError(w, http.StatusConflict, models.ErrRunInProgress.Error())
		return
	}

	batch, ok := h.loadOrReject(w, r)
	if !ok {
		return
	}

	if !allowRunStart(h.limiter, w, r) {
		return
	}

	info, err := h.runner.Start(batch, delay)
	if errors.Is(err, models.ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, StartRunResponse{
		RunID:    info.ID,
		Source:   info.Source,
		Total:    info.Total,
		Sendable: batch.Sendable(),
		Skipped:  info.Total - batch.Sendable(),
		Delay:    delay.Seconds(),
	})
}

// PreviewSheet handles POST /v1/sheets/preview. It loads the sheet the
// same way StartRun does and sends nothing.
func (h *Handler) PreviewSheet(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}

	batch, ok := h.loadOrReject(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, PreviewResponse{
		Source:   batch.Source,
		Total:    len(batch.Rows),
		Sendable: batch.Sendable(),
		Skipped:  len(batch.Rows) - batch.Sendable(),
		Rows:     batch.Rows,
	})
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "Invalid form: "+err.Error())
		return false
	}
	return true
}

// loadOrReject loads the submitted sheet, answering 400 when it is unusable
func (h *Handler) loadOrReject(w http.ResponseWriter, r *http.Request) (*models.Batch, bool) {
	batch, err := h.loadBatch(r)
	if err == nil {
		return batch, true
	}

	var loadErr *models.LoadError
	if errors.As(err, &loadErr) {
		h.logger.Info("spreadsheet rejected", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Missing: loadErr.Missing})
		return nil, false
	}
	writeError(w, http.StatusBadRequest, err.Error())
	return nil, false
}

func (h *Handler) parseDelay(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return h.opts.DefaultDelay, nil
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, errors.New("delay must be a number of seconds")
	}
	delay := time.Duration(secs * float64(time.Second))
	if err := h.runner.ValidateDelay(delay); err != nil {
		return 0, err
	}
	return delay, nil
}

func (h *Handler) loadBatch(r *http.Request) (*models.Batch, error) {
	if sheetURL := strings.TrimSpace(r.FormValue("sheetUrl")); sheetURL != "" {
		if h.fetch == nil {
			return nil, errors.New("sheet URLs are not supported")
		}
		return h.fetch(r.Context(), sheetURL)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("provide a spreadsheet file or a sheet URL")
	}
	defer file.Close()

	return sheet.Load(header.Filename, file)
}

// GetCurrentRun handles GET /v1/runs/current
func (h *Handler) GetCurrentRun(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.tracker.Snapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "no run yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// StopRun handles POST /v1/runs/current/stop
func (h *Handler) StopRun(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Stop(); err != nil {
		if errors.Is(err, sender.ErrNoActiveRun) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DownloadResults handles GET /v1/runs/current/results.csv
func (h *Handler) DownloadResults(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.tracker.Snapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "no run yet")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"results-%s.csv\"", shortID(snap.RunID)))

	cw := csv.NewWriter(w)
	cw.Write([]string{"Row", "Number", "Message", "Status", "Error", "Time"})
	for _, res := range snap.Results {
		cw.Write([]string{
			strconv.Itoa(res.Row.Index),
			res.Row.Record.Number,
			res.Row.Record.Message,
			string(res.Status),
			res.Error,
			res.At.Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn("failed to write results csv", zap.Error(err))
	}
}

// StreamStatus handles GET /v1/runs/current/ws
func (h *Handler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r, h.tracker.Attach)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
