package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/streamsense-live/backend/config"
)

// HandleOAuthStart initiates the YouTube OAuth flow for a user. The state
// token carries the user id so the callback knows who to store tokens for.
func (h *Handlers) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	cfg, _ := config.Load() // ignore error; minimal usage
	if err := cfg.ValidateStreamReady(); err != nil {
		http.Error(w, "oauth not configured (need YT_CLIENT_ID + YT_CLIENT_SECRET)", http.StatusBadRequest)
		return
	}
	userID := userIDFromRequest(r)
	if userID == "" {
		http.Error(w, "missing user (set X-User-ID header or ?user=)", http.StatusBadRequest)
		return
	}
	// generate state
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b) + ":" + userID
	h.addOAuthState(st, time.Now().Add(10*time.Minute))
	http.Redirect(w, r, h.yt.AuthCodeURL(st), http.StatusFound)
}

// HandleOAuthCallback handles the OAuth callback from Google and stores tokens.
func (h *Handlers) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.takeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	userID := userIDFromState(st)
	if userID == "" {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	if err := h.yt.Exchange(r.Context(), userID, code); err != nil {
		slog.Error("oauth exchange failed", slog.String("user", userID), slog.Any("err", err))
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}
	slog.Info("youtube account connected", slog.String("user", userID))
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"status": "ok", "user": userID}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
