package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/streamsense-live/backend/telemetry"
)

const (
	// tickInterval is the shared timer period; every room's eligibility is
	// re-checked on this cadence.
	tickInterval = time.Second

	// Poll interval bounds. Upstream hints and backoff doublings are both
	// clamped into this range.
	MinPollInterval     = time.Second
	MaxPollInterval     = 10 * time.Second
	DefaultPollInterval = 5 * time.Second

	// maxQuotaErrors is the number of consecutive quota failures after
	// which a room is closed with a terminal quota_exceeded event.
	maxQuotaErrors = 3
)

// Terminal close reasons delivered to subscribers.
const (
	CloseQuotaExceeded = "quota_exceeded"
	CloseAuthExpired   = "auth_expired"
)

// Scheduler polls registered rooms on a single shared ticker and publishes
// classified message batches to its Hub. All polling state is owned by the
// tick goroutine; subscriptions arrive through the Hub and the registry.
type Scheduler struct {
	provider   Provider
	creds      CredentialStore
	classifier Classifier
	clock      clockwork.Clock

	registry *Registry
	hub      *Hub
}

// NewScheduler wires a scheduler from its dependencies. Pass
// clockwork.NewRealClock() in production.
func NewScheduler(provider Provider, creds CredentialStore, classifier Classifier, clock clockwork.Clock) *Scheduler {
	s := &Scheduler{
		provider:   provider,
		creds:      creds,
		classifier: classifier,
		clock:      clock,
		registry:   NewRegistry(),
	}
	s.hub = NewHub(s.roomEmptied)
	return s
}

// Hub exposes the scheduler's hub for delivery endpoints.
func (s *Scheduler) Hub() *Hub { return s.hub }

// Registry exposes room state for the status endpoint.
func (s *Scheduler) Registry() *Registry { return s.registry }

// Subscribe registers roomID for polling on behalf of userID (resolving its
// live chat id on first use) and returns a batch channel plus disposer.
// The hub subscription is taken before the room is registered: the tick's
// idle sweep deletes registered rooms with zero subscribers, so the reverse
// order would let a tick unregister a room between the two steps.
func (s *Scheduler) Subscribe(ctx context.Context, roomID, userID string) (<-chan Batch, func(), error) {
	ch, dispose := s.hub.Subscribe(roomID)
	if err := s.ensureRoom(ctx, roomID, userID); err != nil {
		dispose()
		return nil, nil, err
	}
	return ch, dispose, nil
}

func (s *Scheduler) ensureRoom(ctx context.Context, roomID, userID string) error {
	if s.registry.Get(roomID) != nil {
		return nil
	}
	token, err := s.creds.AccessToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("credentials for %s: %w", userID, err)
	}
	liveChatID, err := s.provider.ResolveLiveChatID(ctx, roomID, token)
	if err != nil {
		return fmt.Errorf("resolve live chat for %s: %w", roomID, err)
	}
	s.registry.Put(roomID, &Conn{
		LiveChatID:   liveChatID,
		UserID:       userID,
		PollInterval: DefaultPollInterval,
	})
	slog.Info("chat room registered", slog.String("room", roomID), slog.String("live_chat_id", liveChatID))
	return nil
}

// roomEmptied is the hub's onEmpty hook: last subscriber left, stop polling.
// The room may not be registered yet when a subscribe fails mid-setup.
func (s *Scheduler) roomEmptied(roomID string) {
	if s.registry.Get(roomID) == nil {
		return
	}
	s.registry.Delete(roomID)
	telemetry.IncRoomClosed("idle")
	slog.Info("chat room released", slog.String("room", roomID))
}

// Run drives the shared ticker until ctx is cancelled. Ticks are processed on
// this goroutine; rooms are polled sequentially within a tick, so a room can
// never have two polls in flight.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(tickInterval)
	defer ticker.Stop()
	slog.Info("chat scheduler started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("chat scheduler stopped")
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

// tick polls every registered room whose interval has elapsed.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()
	for _, roomID := range s.registry.Rooms() {
		conn := s.registry.Get(roomID)
		if conn == nil {
			continue
		}
		if s.hub.SubscriberCount(roomID) == 0 {
			// Registered but nobody listening; drop instead of burning quota.
			s.registry.Delete(roomID)
			telemetry.IncRoomClosed("idle")
			continue
		}
		if !conn.LastPollAt.IsZero() && now.Sub(conn.LastPollAt) < conn.PollInterval {
			continue
		}
		s.poll(ctx, roomID, conn)
	}
}

func (s *Scheduler) poll(ctx context.Context, roomID string, conn *Conn) {
	// The attempt itself advances the clock on the room, success or not.
	conn.LastPollAt = s.clock.Now()
	telemetry.IncPoll()

	token, err := s.creds.AccessToken(ctx, conn.UserID)
	if err != nil {
		s.handleAuthFailure(ctx, roomID, conn, err)
		return
	}
	var page *Page
	telemetry.TimeFunc(telemetry.PollDuration, func() {
		page, err = s.provider.ListMessages(ctx, conn.LiveChatID, conn.NextPageToken, token)
	})

	switch {
	case errors.Is(err, ErrQuotaExceeded):
		s.handleQuotaError(roomID, conn)
	case errors.Is(err, ErrAuthExpired):
		s.handleAuthFailure(ctx, roomID, conn, err)
	case err != nil:
		telemetry.IncPollError("transient")
		slog.Warn("chat poll failed", slog.String("room", roomID), slog.Any("err", err))
	default:
		s.handlePage(ctx, roomID, conn, page)
	}
}

func (s *Scheduler) handleQuotaError(roomID string, conn *Conn) {
	telemetry.IncPollError("quota")
	conn.QuotaErrors++
	if conn.QuotaErrors >= maxQuotaErrors {
		slog.Error("chat room closed: quota exhausted", slog.String("room", roomID))
		s.closeRoom(roomID, CloseQuotaExceeded)
		return
	}
	doubled := conn.PollInterval * 2
	conn.PollInterval = clampInterval(doubled)
	telemetry.IncQuotaBackoff()
	slog.Warn("quota error, backing off",
		slog.String("room", roomID),
		slog.Int("consecutive", conn.QuotaErrors),
		slog.Duration("interval", conn.PollInterval))
}

// handleAuthFailure tries one synchronous refresh. The refreshed token is
// persisted by the credential store and picked up on the next eligible tick;
// a failed refresh is terminal for the room.
func (s *Scheduler) handleAuthFailure(ctx context.Context, roomID string, conn *Conn, cause error) {
	telemetry.IncPollError("auth")
	slog.Warn("chat poll auth failure, refreshing", slog.String("room", roomID), slog.Any("err", cause))
	if _, err := s.creds.RefreshAccessToken(ctx, conn.UserID); err != nil {
		telemetry.IncTokenRefresh("failed")
		slog.Error("token refresh failed, closing room", slog.String("room", roomID), slog.Any("err", err))
		s.closeRoom(roomID, CloseAuthExpired)
		return
	}
	telemetry.IncTokenRefresh("ok")
}

func (s *Scheduler) handlePage(ctx context.Context, roomID string, conn *Conn, page *Page) {
	conn.QuotaErrors = 0
	conn.NextPageToken = page.NextPageToken
	if page.PollIntervalHint > 0 {
		conn.PollInterval = clampInterval(page.PollIntervalHint)
	}

	fresh := freshMessages(page.Messages, conn.LastSeenMessageID)
	if len(fresh) == 0 {
		return
	}
	conn.LastSeenMessageID = fresh[len(fresh)-1].ID

	texts := make([]string, len(fresh))
	for i, m := range fresh {
		texts[i] = m.Text
	}
	results := s.classifier.ClassifyBatch(ctx, texts)

	annotated := make([]AnnotatedMessage, len(fresh))
	for i, m := range fresh {
		annotated[i] = AnnotatedMessage{
			ID:        m.ID,
			Author:    m.Author,
			Text:      m.Text,
			Timestamp: m.Timestamp,
			Sentiment: results[i].Label,
			Score:     results[i].Score,
		}
	}
	s.hub.Publish(roomID, Batch{Messages: annotated, Timestamp: s.clock.Now().UTC()})
	telemetry.AddMessagesPublished(len(annotated))
}

func (s *Scheduler) closeRoom(roomID, code string) {
	s.hub.CloseRoom(roomID, code)
	s.registry.Delete(roomID)
	telemetry.IncRoomClosed(code)
}

// freshMessages keeps messages whose id is above the high-water mark.
// IDs are opaque but ordered strings within a room, so a byte-wise compare
// matches the upstream ordering.
func freshMessages(msgs []Message, lastSeen string) []Message {
	if lastSeen == "" {
		return msgs
	}
	fresh := msgs[:0:0]
	for _, m := range msgs {
		if m.ID > lastSeen {
			fresh = append(fresh, m)
		}
	}
	return fresh
}

func clampInterval(d time.Duration) time.Duration {
	if d < MinPollInterval {
		return MinPollInterval
	}
	if d > MaxPollInterval {
		return MaxPollInterval
	}
	return d
}
