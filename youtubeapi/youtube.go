// Package youtubeapi wraps Google OAuth2 client config and the YouTube Data
// API as the live-chat provider: resolving a video's active live chat,
// paging its messages and discovering a user's live broadcasts. Tokens are
// persisted per user via the provided TokenStore so they survive restarts
// and can be refreshed by background workers.
package youtubeapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/streamsense-live/backend/chat"
	"github.com/streamsense-live/backend/config"
)

// Provider is the token-store key for this upstream.
const Provider = "youtube"

// TokenStore persists OAuth tokens per user and provider.
type TokenStore interface {
	UpsertToken(ctx context.Context, userID, provider, accessToken, refreshToken string, expiry time.Time, scope string) error
	// GetToken returns the stored token fields; a user with no stored
	// token comes back as empty strings with a nil error.
	GetToken(ctx context.Context, userID, provider string) (accessToken, refreshToken string, expiry time.Time, scope string, err error)
}

// Service implements chat.Provider and chat.CredentialStore on top of the
// YouTube Data API v3.
type Service struct {
	cfg   *config.Config
	db    TokenStore
	oauth *oauth2.Config
	opts  []option.ClientOption
}

// New builds a Service. Extra client options (endpoint overrides) are for
// tests.
func New(cfg *config.Config, ts TokenStore, opts ...option.ClientOption) *Service {
	scopes := []string{yt.YoutubeReadonlyScope}
	if cfg.YTScopes != "" {
		// allow comma or space separated
		s := strings.ReplaceAll(cfg.YTScopes, ",", " ")
		if fields := strings.Fields(s); len(fields) > 0 {
			scopes = fields
		}
	}
	oc := &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.YTRedirectURI,
		Scopes:       scopes,
	}
	return &Service{cfg: cfg, db: ts, oauth: oc, opts: opts}
}

// client builds a per-call API client bound to one access token.
func (s *Service) client(ctx context.Context, token string) (*yt.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	opts := append([]option.ClientOption{option.WithTokenSource(src)}, s.opts...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}
	return svc, nil
}

// ResolveLiveChatID maps a video id to its active live chat id. Videos that
// do not exist or are not currently live come back as chat.ErrNotFound.
func (s *Service) ResolveLiveChatID(ctx context.Context, videoID, token string) (string, error) {
	svc, err := s.client(ctx, token)
	if err != nil {
		return "", err
	}
	resp, err := svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", wrapAPIError("videos.list", err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("video %s: %w", videoID, chat.ErrNotFound)
	}
	details := resp.Items[0].LiveStreamingDetails
	if details == nil || details.ActiveLiveChatId == "" {
		return "", fmt.Errorf("video %s has no active live chat: %w", videoID, chat.ErrNotFound)
	}
	return details.ActiveLiveChatId, nil
}

// ListMessages fetches one page of live chat messages.
func (s *Service) ListMessages(ctx context.Context, liveChatID, pageToken, token string) (*chat.Page, error) {
	svc, err := s.client(ctx, token)
	if err != nil {
		return nil, err
	}
	call := svc.LiveChatMessages.List(liveChatID, []string{"snippet", "authorDetails"}).
		MaxResults(200).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, wrapAPIError("liveChatMessages.list", err)
	}

	page := &chat.Page{
		NextPageToken:    resp.NextPageToken,
		PollIntervalHint: time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
		Messages:         make([]chat.Message, 0, len(resp.Items)),
	}
	for _, item := range resp.Items {
		if item.Snippet == nil {
			continue
		}
		m := chat.Message{ID: item.Id, Text: item.Snippet.DisplayMessage}
		if item.AuthorDetails != nil {
			m.Author = item.AuthorDetails.DisplayName
		}
		if ts, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			m.Timestamp = ts
		}
		page.Messages = append(page.Messages, m)
	}
	return page, nil
}
