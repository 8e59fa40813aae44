package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/streamsense-live/backend/chat"
	"github.com/streamsense-live/backend/telemetry"
)

// chatEvent is the wire form of a delivered batch.
type chatEvent struct {
	Messages  []chat.AnnotatedMessage `json:"messages"`
	Timestamp string                  `json:"timestamp"`
}

// HandleStreamsList handles GET /streams: the caller's currently-live
// broadcasts.
func (h *Handlers) HandleStreamsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := userIDFromRequest(r)
	if userID == "" {
		http.Error(w, "missing user (set X-User-ID header or ?user=)", http.StatusBadRequest)
		return
	}
	streams, err := h.yt.ListLiveStreams(r.Context(), userID)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"streams": streams}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// HandleStreamsDispatcher routes /streams/{id}, /streams/{id}/chat and
// /streams/{id}/chat/stream.
func (h *Handlers) HandleStreamsDispatcher(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/streams/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	streamID := parts[0]
	switch {
	case len(parts) == 1:
		h.handleStreamDetail(w, r, streamID)
	case len(parts) == 2 && parts[1] == "chat":
		h.handleChatSnapshot(w, r, streamID)
	case len(parts) == 3 && parts[1] == "chat" && parts[2] == "stream":
		h.handleChatStream(w, r, streamID)
	default:
		http.NotFound(w, r)
	}
}

// handleStreamDetail handles GET /streams/{id}.
func (h *Handlers) handleStreamDetail(w http.ResponseWriter, r *http.Request, streamID string) {
	userID := userIDFromRequest(r)
	if userID == "" {
		http.Error(w, "missing user (set X-User-ID header or ?user=)", http.StatusBadRequest)
		return
	}
	stream, err := h.yt.GetStream(r.Context(), userID, streamID)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stream); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// handleChatSnapshot handles GET /streams/{id}/chat: one classified page of
// chat, request-scoped, no subscription.
func (h *Handlers) handleChatSnapshot(w http.ResponseWriter, r *http.Request, streamID string) {
	userID := userIDFromRequest(r)
	if userID == "" {
		http.Error(w, "missing user (set X-User-ID header or ?user=)", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	token, err := h.yt.AccessToken(ctx, userID)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	liveChatID, err := h.yt.ResolveLiveChatID(ctx, streamID, token)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	page, err := h.yt.ListMessages(ctx, liveChatID, r.URL.Query().Get("pageToken"), token)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}

	texts := make([]string, len(page.Messages))
	for i, m := range page.Messages {
		texts[i] = m.Text
	}
	results := h.classifier.ClassifyBatch(ctx, texts)

	annotated := make([]chat.AnnotatedMessage, len(page.Messages))
	for i, m := range page.Messages {
		annotated[i] = chat.AnnotatedMessage{
			ID:        m.ID,
			Author:    m.Author,
			Text:      m.Text,
			Timestamp: m.Timestamp,
			Sentiment: results[i].Label,
			Score:     results[i].Score,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"messages":      annotated,
		"nextPageToken": page.NextPageToken,
	}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// handleChatStream handles GET /streams/{id}/chat/stream: the live SSE feed.
// The handshake is a bare "connected" event; every later event is a JSON
// batch, and the final event before close (if any) carries an error code.
func (h *Handlers) handleChatStream(w http.ResponseWriter, r *http.Request, streamID string) {
	userID := userIDFromRequest(r)
	if userID == "" {
		http.Error(w, "missing user (set X-User-ID header or ?user=)", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	batches, dispose, err := h.scheduler.Subscribe(ctx, streamID, userID)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	defer dispose()

	telemetry.AddSSEClients(1)
	defer telemetry.AddSSEClients(-1)
	logger := telemetry.LoggerWithCorr(ctx)
	logger.Info("sse client connected", slog.String("stream", streamID), slog.String("user", userID))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	_, _ = w.Write([]byte("data: connected\n\n"))
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			logger.Info("sse client disconnected", slog.String("stream", streamID))
			return
		case b, open := <-batches:
			if !open {
				return
			}
			if b.Err != "" {
				payload, _ := json.Marshal(map[string]string{"error": b.Err})
				_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
				flusher.Flush()
				logger.Info("sse stream closed by upstream", slog.String("stream", streamID), slog.String("reason", b.Err))
				return
			}
			payload, err := json.Marshal(chatEvent{
				Messages:  b.Messages,
				Timestamp: b.Timestamp.Format(time.RFC3339),
			})
			if err != nil {
				logger.Warn("failed to marshal chat event", slog.Any("err", err))
				continue
			}
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
			flusher.Flush()
		}
	}
}

// writeUpstreamError maps the upstream failure taxonomy to HTTP statuses.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	logger := telemetry.LoggerWithCorr(r.Context())
	switch {
	case errors.Is(err, chat.ErrUnauthorized), errors.Is(err, chat.ErrAuthExpired):
		logger.Warn("request rejected: credentials", slog.String("path", r.URL.Path), slog.Any("err", err))
		http.Error(w, "not authorized with youtube", http.StatusUnauthorized)
	case errors.Is(err, chat.ErrNotFound):
		http.Error(w, "stream not found or not live", http.StatusNotFound)
	case errors.Is(err, chat.ErrQuotaExceeded):
		logger.Warn("request rejected: upstream quota", slog.String("path", r.URL.Path))
		w.Header().Set("Retry-After", "60")
		http.Error(w, "upstream quota exceeded", http.StatusTooManyRequests)
	default:
		logger.Error("upstream request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		http.Error(w, "upstream error", http.StatusBadGateway)
	}
}
