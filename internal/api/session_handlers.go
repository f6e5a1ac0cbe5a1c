package api

import (
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/whatsapp-sender/internal/profile"
	"github.com/shehryarbajwa/whatsapp-sender/internal/sender"
	"github.com/shehryarbajwa/whatsapp-sender/internal/session"
	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

// SessionResponse describes the browser session
type SessionResponse struct {
	LoginState session.LoginState `json:"loginState"`
	Running    bool               `json:"running"`
	Profile    *models.Profile    `json:"profile,omitempty"`
}

// GetSession handles GET /v1/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	resp := SessionResponse{
		LoginState: h.runner.LoginState(),
		Running:    h.runner.Running(),
	}
	if h.profiles != nil {
		if p, err := h.profiles.Get(h.opts.ProfileName); err == nil {
			resp.Profile = p
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetScreenshot handles GET /v1/session/screenshot. It is how the
// operator sees the QR code when the browser runs headless.
func (h *Handler) GetScreenshot(w http.ResponseWriter, r *http.Request) {
	buf, err := h.runner.Screenshot(r.Context())
	if errors.Is(err, sender.ErrNoActiveRun) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("screenshot failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to capture screenshot: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.Write(buf)
}

// DeleteProfile handles DELETE /v1/session/profile. The next run will
// need a fresh QR scan.
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if h.runner.Running() {
		writeError(w, http.StatusConflict, models.ErrRunInProgress.Error())
		return
	}

	if h.profiles != nil {
		if err := h.profiles.Delete(h.opts.ProfileName); err != nil && !errors.Is(err, profile.ErrNoSnapshot) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if h.opts.UserDataDir != "" {
		if err := os.RemoveAll(h.opts.UserDataDir); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to clear browser profile: "+err.Error())
			return
		}
	}

	h.logger.Info("saved login cleared", zap.String("profile", h.opts.ProfileName))
	w.WriteHeader(http.StatusNoContent)
}
