package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockYouTubeServer creates a test server that mocks YouTube Data API responses
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer creates a new mock YouTube API server. Wire it into
// the client under test via option.WithEndpoint(srv.URL).
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockVideoResponse adds a handler for the videos.list endpoint returning one
// video with the given live chat id ("" means not live).
func (m *MockYouTubeServer) MockVideoResponse(videoID, activeLiveChatID string) {
	m.Handlers["/youtube/v3/videos"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"items": []map[string]interface{}{
				{
					"id": videoID,
					"snippet": map[string]interface{}{
						"title":        "Test Broadcast",
						"channelTitle": "Test Channel",
					},
					"liveStreamingDetails": map[string]interface{}{
						"activeLiveChatId":  activeLiveChatID,
						"concurrentViewers": "42",
						"actualStartTime":   "2026-01-02T15:04:05Z",
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockEmptyVideoResponse makes videos.list return no items.
func (m *MockYouTubeServer) MockEmptyVideoResponse() {
	m.Handlers["/youtube/v3/videos"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}}) //nolint:errcheck // test mock response
	}
}

// ChatItem is one message in a mocked liveChatMessages.list response.
type ChatItem struct {
	ID          string
	Author      string
	Text        string
	PublishedAt string
}

// MockChatMessages adds a handler for the liveChatMessages.list endpoint.
func (m *MockYouTubeServer) MockChatMessages(items []ChatItem, nextPageToken string, pollingIntervalMillis int64) {
	m.Handlers["/youtube/v3/liveChat/messages"] = func(w http.ResponseWriter, r *http.Request) {
		out := make([]map[string]interface{}, 0, len(items))
		for _, it := range items {
			out = append(out, map[string]interface{}{
				"id": it.ID,
				"snippet": map[string]interface{}{
					"displayMessage": it.Text,
					"publishedAt":    it.PublishedAt,
				},
				"authorDetails": map[string]interface{}{
					"displayName": it.Author,
				},
			})
		}
		response := map[string]interface{}{
			"items":                 out,
			"nextPageToken":         nextPageToken,
			"pollingIntervalMillis": pollingIntervalMillis,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockAPIError makes the given endpoint path fail with a googleapi-shaped
// error body (e.g. status 403 with reason "quotaExceeded").
func (m *MockYouTubeServer) MockAPIError(path string, status int, reason, message string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		response := map[string]interface{}{
			"error": map[string]interface{}{
				"code":    status,
				"message": message,
				"errors": []map[string]string{
					{"reason": reason, "message": message},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
