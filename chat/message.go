package chat

import (
	"context"
	"errors"
	"time"

	"github.com/streamsense-live/backend/sentiment"
)

// Upstream failure taxonomy. Provider implementations map their transport
// errors onto these sentinels; everything else is treated as transient.
var (
	// ErrNotFound means the room does not exist or has no live chat attached.
	ErrNotFound = errors.New("live chat not found")
	// ErrQuotaExceeded means the upstream API rejected the call for quota
	// or rate-limit reasons.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrAuthExpired means the access token was rejected and needs a refresh.
	ErrAuthExpired = errors.New("credentials expired")
	// ErrUnauthorized means no credentials exist for the user at all.
	ErrUnauthorized = errors.New("not authorized")
)

// Message is one raw chat message from the upstream provider. IDs are opaque
// but ordered within a room; pages arrive oldest first.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AnnotatedMessage is a Message with its sentiment attached, in delivery form.
type AnnotatedMessage struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Sentiment string    `json:"sentiment"`
	Score     float64   `json:"sentimentScore"`
}

// Page is one upstream poll result.
type Page struct {
	Messages      []Message
	NextPageToken string
	// PollIntervalHint is the upstream's suggested wait before the next
	// poll; zero means no hint.
	PollIntervalHint time.Duration
}

// Batch is one hub delivery: either classified messages or, exactly once at
// end of life, a terminal error code ("quota_exceeded", "auth_expired").
type Batch struct {
	Messages  []AnnotatedMessage
	Timestamp time.Time
	Err       string
}

// Provider fetches live chat from the upstream API. The access token is
// passed per call; providers hold no credential state.
type Provider interface {
	// ResolveLiveChatID maps a video/room id to its live chat id, or
	// ErrNotFound when the video is not live.
	ResolveLiveChatID(ctx context.Context, videoID, token string) (string, error)
	// ListMessages fetches one page of chat for a live chat id.
	ListMessages(ctx context.Context, liveChatID, pageToken, token string) (*Page, error)
}

// CredentialStore hands out access tokens per user and refreshes them when
// the upstream reports them expired.
type CredentialStore interface {
	// AccessToken returns the stored access token for the user, or
	// ErrUnauthorized when none exists.
	AccessToken(ctx context.Context, userID string) (string, error)
	// RefreshAccessToken performs a refresh grant, persists the result and
	// returns the new access token.
	RefreshAccessToken(ctx context.Context, userID string) (string, error)
}

// Classifier is the sentiment dependency of the scheduler, satisfied by
// *sentiment.Classifier. ClassifyBatch returns one result per input,
// index-aligned with texts.
type Classifier interface {
	ClassifyBatch(ctx context.Context, texts []string) []sentiment.Result
}
