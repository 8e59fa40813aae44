package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/streamsense-live/backend/chat"
	"github.com/streamsense-live/backend/config"
	"github.com/streamsense-live/backend/testutil"
)

// mockTokenStore implements TokenStore for testing
type mockTokenStore struct {
	tokens map[string]tokenData
}

type tokenData struct {
	access  string
	refresh string
	expiry  time.Time
	scope   string
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: make(map[string]tokenData)}
}

func (m *mockTokenStore) key(userID, provider string) string { return userID + "/" + provider }

func (m *mockTokenStore) UpsertToken(ctx context.Context, userID, provider, accessToken, refreshToken string, expiry time.Time, scope string) error {
	m.tokens[m.key(userID, provider)] = tokenData{access: accessToken, refresh: refreshToken, expiry: expiry, scope: scope}
	return nil
}

func (m *mockTokenStore) GetToken(ctx context.Context, userID, provider string) (string, string, time.Time, string, error) {
	td := m.tokens[m.key(userID, provider)]
	return td.access, td.refresh, td.expiry, td.scope, nil
}

func testConfig() *config.Config {
	return &config.Config{
		YTClientID:     "client-id",
		YTClientSecret: "client-secret",
		YTRedirectURI:  "http://localhost:8080/auth/youtube/callback",
	}
}

func newTestService(t *testing.T, ts TokenStore) (*Service, *testutil.MockYouTubeServer) {
	t.Helper()
	mock := testutil.NewMockYouTubeServer(t)
	svc := New(testConfig(), ts, option.WithEndpoint(mock.URL))
	return svc, mock
}

func TestResolveLiveChatID(t *testing.T) {
	svc, mock := newTestService(t, newMockTokenStore())
	mock.MockVideoResponse("vid123", "chat456")

	id, err := svc.ResolveLiveChatID(context.Background(), "vid123", "token")
	if err != nil {
		t.Fatalf("ResolveLiveChatID failed: %v", err)
	}
	if id != "chat456" {
		t.Errorf("live chat id = %q, want chat456", id)
	}
}

func TestResolveLiveChatIDNotLive(t *testing.T) {
	svc, mock := newTestService(t, newMockTokenStore())
	mock.MockVideoResponse("vid123", "")

	_, err := svc.ResolveLiveChatID(context.Background(), "vid123", "token")
	if !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("expected ErrNotFound for video without live chat, got %v", err)
	}
}

func TestResolveLiveChatIDMissingVideo(t *testing.T) {
	svc, mock := newTestService(t, newMockTokenStore())
	mock.MockEmptyVideoResponse()

	_, err := svc.ResolveLiveChatID(context.Background(), "nope", "token")
	if !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing video, got %v", err)
	}
}

func TestListMessagesMapping(t *testing.T) {
	svc, mock := newTestService(t, newMockTokenStore())
	mock.MockChatMessages([]testutil.ChatItem{
		{ID: "m1", Author: "alice", Text: "hello", PublishedAt: "2026-01-02T15:04:05Z"},
		{ID: "m2", Author: "bob", Text: "world", PublishedAt: "2026-01-02T15:04:06Z"},
	}, "page2", 3000)

	page, err := svc.ListMessages(context.Background(), "chat456", "", "token")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(page.Messages))
	}
	if page.NextPageToken != "page2" {
		t.Errorf("next page token = %q, want page2", page.NextPageToken)
	}
	if page.PollIntervalHint != 3*time.Second {
		t.Errorf("poll interval hint = %v, want 3s", page.PollIntervalHint)
	}
	m := page.Messages[0]
	if m.ID != "m1" || m.Author != "alice" || m.Text != "hello" {
		t.Errorf("unexpected first message: %+v", m)
	}
	want := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	if !m.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", m.Timestamp, want)
	}
}

func TestListMessagesQuotaError(t *testing.T) {
	svc, mock := newTestService(t, newMockTokenStore())
	mock.MockAPIError("/youtube/v3/liveChat/messages", 403, "quotaExceeded", "The request cannot be completed because you have exceeded your quota.")

	_, err := svc.ListMessages(context.Background(), "chat456", "", "token")
	if !errors.Is(err, chat.ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestListMessagesAuthError(t *testing.T) {
	svc, mock := newTestService(t, newMockTokenStore())
	mock.MockAPIError("/youtube/v3/liveChat/messages", 401, "authError", "Invalid Credentials")

	_, err := svc.ListMessages(context.Background(), "chat456", "", "token")
	if !errors.Is(err, chat.ErrAuthExpired) {
		t.Errorf("expected ErrAuthExpired, got %v", err)
	}
}

func TestWrapAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "403 quotaExceeded",
			err:  &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}},
			want: chat.ErrQuotaExceeded,
		},
		{
			name: "403 rateLimitExceeded",
			err:  &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}},
			want: chat.ErrQuotaExceeded,
		},
		{
			name: "429",
			err:  &googleapi.Error{Code: 429},
			want: chat.ErrQuotaExceeded,
		},
		{
			name: "401",
			err:  &googleapi.Error{Code: 401},
			want: chat.ErrAuthExpired,
		},
		{
			name: "404",
			err:  &googleapi.Error{Code: 404},
			want: chat.ErrNotFound,
		},
		{
			name: "invalid credentials string",
			err:  fmt.Errorf("oauth2: %s", "Invalid Credentials"),
			want: chat.ErrAuthExpired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapAPIError("op", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("wrapAPIError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapAPIErrorPassthrough(t *testing.T) {
	cause := errors.New("connection reset")
	got := wrapAPIError("op", cause)
	if !errors.Is(got, cause) {
		t.Errorf("transient error should be wrapped, got %v", got)
	}
	for _, sentinel := range []error{chat.ErrQuotaExceeded, chat.ErrAuthExpired, chat.ErrNotFound} {
		if errors.Is(got, sentinel) {
			t.Errorf("transient error should not match %v", sentinel)
		}
	}
}

func TestAccessTokenFresh(t *testing.T) {
	ts := newMockTokenStore()
	_ = ts.UpsertToken(context.Background(), "user1", Provider, "fresh-token", "refresh", time.Now().Add(time.Hour), "scope")
	svc := New(testConfig(), ts)

	tok, err := svc.AccessToken(context.Background(), "user1")
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if tok != "fresh-token" {
		t.Errorf("token = %q, want fresh-token", tok)
	}
}

func TestAccessTokenNoCredentials(t *testing.T) {
	svc := New(testConfig(), newMockTokenStore())

	_, err := svc.AccessToken(context.Background(), "nobody")
	if !errors.Is(err, chat.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for unknown user, got %v", err)
	}
}

func TestRefreshAccessTokenNoRefreshToken(t *testing.T) {
	ts := newMockTokenStore()
	_ = ts.UpsertToken(context.Background(), "user1", Provider, "stale", "", time.Now().Add(-time.Hour), "scope")
	svc := New(testConfig(), ts)

	_, err := svc.RefreshAccessToken(context.Background(), "user1")
	if !errors.Is(err, chat.ErrAuthExpired) {
		t.Errorf("expected ErrAuthExpired without refresh token, got %v", err)
	}
}

func TestNewScopesOverride(t *testing.T) {
	cfg := testConfig()
	cfg.YTScopes = "scope-a, scope-b"
	svc := New(cfg, newMockTokenStore())

	if len(svc.oauth.Scopes) != 2 || svc.oauth.Scopes[0] != "scope-a" || svc.oauth.Scopes[1] != "scope-b" {
		t.Errorf("unexpected scopes: %v", svc.oauth.Scopes)
	}
}

func TestAuthCodeURLContainsState(t *testing.T) {
	svc := New(testConfig(), newMockTokenStore())
	url := svc.AuthCodeURL("state-token:user1")
	if url == "" {
		t.Fatal("empty auth url")
	}
	for _, want := range []string{"state-token", "access_type=offline", "client-id"} {
		if !strings.Contains(url, want) {
			t.Errorf("auth url missing %q: %s", want, url)
		}
	}
}
