package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/streamsense-live/backend/chat"
)

// LiveStream is one currently-live broadcast of the authenticated user.
type LiveStream struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ChannelTitle string    `json:"channelTitle"`
	Thumbnail    string    `json:"thumbnail"`
	Viewers      uint64    `json:"viewers"`
	StartedAt    time.Time `json:"startedAt,omitempty"`
	IsLive       bool      `json:"isLive"`
}

// ListLiveStreams returns the user's broadcasts that are live right now.
// An expired token gets one refresh-and-retry before the error surfaces.
func (s *Service) ListLiveStreams(ctx context.Context, userID string) ([]LiveStream, error) {
	return withAuthRetry(ctx, s, userID, s.listLiveStreams)
}

// GetStream returns details for one video, live or not.
func (s *Service) GetStream(ctx context.Context, userID, videoID string) (*LiveStream, error) {
	return withAuthRetry(ctx, s, userID, func(ctx context.Context, token string) (*LiveStream, error) {
		svc, err := s.client(ctx, token)
		if err != nil {
			return nil, err
		}
		streams, err := fetchVideos(ctx, svc, videoID)
		if err != nil {
			return nil, err
		}
		if len(streams) == 0 {
			return nil, fmt.Errorf("video %s: %w", videoID, chat.ErrNotFound)
		}
		return &streams[0], nil
	})
}

// withAuthRetry runs fn with the user's access token, refreshing once when
// the upstream says the token expired.
func withAuthRetry[T any](ctx context.Context, s *Service, userID string, fn func(ctx context.Context, token string) (T, error)) (T, error) {
	var zero T
	token, err := s.AccessToken(ctx, userID)
	if err != nil {
		return zero, err
	}
	out, err := fn(ctx, token)
	if err == nil || !errors.Is(err, chat.ErrAuthExpired) {
		return out, err
	}
	token, rerr := s.RefreshAccessToken(ctx, userID)
	if rerr != nil {
		return zero, rerr
	}
	return fn(ctx, token)
}

func (s *Service) listLiveStreams(ctx context.Context, token string) ([]LiveStream, error) {
	svc, err := s.client(ctx, token)
	if err != nil {
		return nil, err
	}
	chans, err := svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("channels.list", err)
	}
	if len(chans.Items) == 0 {
		return []LiveStream{}, nil
	}
	channelID := chans.Items[0].Id

	search, err := svc.Search.List([]string{"id"}).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("search.list", err)
	}
	ids := make([]string, 0, len(search.Items))
	for _, item := range search.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	if len(ids) == 0 {
		return []LiveStream{}, nil
	}
	return fetchVideos(ctx, svc, ids...)
}

func fetchVideos(ctx context.Context, svc *yt.Service, ids ...string) ([]LiveStream, error) {
	resp, err := svc.Videos.List([]string{"snippet", "liveStreamingDetails"}).
		Id(ids...).
		Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("videos.list", err)
	}
	streams := make([]LiveStream, 0, len(resp.Items))
	for _, v := range resp.Items {
		ls := LiveStream{ID: v.Id}
		if v.Snippet != nil {
			ls.Title = v.Snippet.Title
			ls.Description = v.Snippet.Description
			ls.ChannelTitle = v.Snippet.ChannelTitle
			if v.Snippet.Thumbnails != nil && v.Snippet.Thumbnails.High != nil {
				ls.Thumbnail = v.Snippet.Thumbnails.High.Url
			}
		}
		if d := v.LiveStreamingDetails; d != nil {
			ls.Viewers = d.ConcurrentViewers
			ls.IsLive = d.ActiveLiveChatId != ""
			if d.ActualStartTime != "" {
				if ts, err := time.Parse(time.RFC3339, d.ActualStartTime); err == nil {
					ls.StartedAt = ts
				}
			}
		}
		streams = append(streams, ls)
	}
	return streams, nil
}
