// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollsTotal        prometheus.Counter
	PollErrors        *prometheus.CounterVec // reason: quota, auth, transient
	QuotaBackoffs     prometheus.Counter
	RoomsClosed       *prometheus.CounterVec // reason: idle, quota_exceeded, auth_expired
	MessagesPublished prometheus.Counter
	TokenRefreshes    *prometheus.CounterVec // outcome: ok, failed
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	CacheEvictions    prometheus.Counter

	// Histograms (seconds)
	ClassifyDuration prometheus.Observer
	PollDuration     prometheus.Observer

	// Gauges
	ActiveRooms prometheus.Gauge
	SSEClients  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_polls_total", Help: "Number of upstream chat polls attempted"})
		PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_poll_errors_total", Help: "Number of failed chat polls by reason"}, []string{"reason"})
		QuotaBackoffs = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_quota_backoffs_total", Help: "Number of poll interval doublings caused by quota errors"})
		RoomsClosed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_rooms_closed_total", Help: "Number of chat rooms torn down by reason"}, []string{"reason"})
		MessagesPublished = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_published_total", Help: "Number of classified chat messages fanned out to subscribers"})
		TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "oauth_token_refreshes_total", Help: "Number of OAuth access-token refreshes by outcome"}, []string{"outcome"})
		CacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "sentiment_cache_hits_total", Help: "Sentiment cache hits"})
		CacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "sentiment_cache_misses_total", Help: "Sentiment cache misses"})
		CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{Name: "sentiment_cache_evictions_total", Help: "Sentiment cache entries evicted"})
		ClassifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "sentiment_classify_duration_seconds", Help: "Single-text classification duration seconds", Buckets: prometheus.DefBuckets})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_poll_duration_seconds", Help: "Upstream poll duration seconds", Buckets: prometheus.DefBuckets})
		ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_active_rooms", Help: "Current number of polled chat rooms"})
		SSEClients = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_sse_clients", Help: "Current number of connected SSE subscribers"})
	})
}

// IncPoll records one attempted upstream poll.
func IncPoll() {
	if PollsTotal != nil {
		PollsTotal.Inc()
	}
}

// IncPollError records one failed poll with its classified reason.
func IncPollError(reason string) {
	if PollErrors != nil {
		PollErrors.WithLabelValues(reason).Inc()
	}
}

// IncQuotaBackoff records one interval doubling.
func IncQuotaBackoff() {
	if QuotaBackoffs != nil {
		QuotaBackoffs.Inc()
	}
}

// IncRoomClosed records one room teardown with its reason.
func IncRoomClosed(reason string) {
	if RoomsClosed != nil {
		RoomsClosed.WithLabelValues(reason).Inc()
	}
}

// AddMessagesPublished records n messages delivered to the hub.
func AddMessagesPublished(n int) {
	if MessagesPublished != nil {
		MessagesPublished.Add(float64(n))
	}
}

// IncTokenRefresh records one refresh attempt outcome ("ok" or "failed").
func IncTokenRefresh(outcome string) {
	if TokenRefreshes != nil {
		TokenRefreshes.WithLabelValues(outcome).Inc()
	}
}

func IncCacheHit() {
	if CacheHits != nil {
		CacheHits.Inc()
	}
}

func IncCacheMiss() {
	if CacheMisses != nil {
		CacheMisses.Inc()
	}
}

func AddCacheEvictions(n int) {
	if CacheEvictions != nil {
		CacheEvictions.Add(float64(n))
	}
}

// SetActiveRooms records the current registry size.
func SetActiveRooms(n int) {
	if ActiveRooms != nil {
		ActiveRooms.Set(float64(n))
	}
}

// AddSSEClients moves the connected-subscriber gauge by delta (+1/-1).
func AddSSEClients(delta int) {
	if SSEClients != nil {
		SSEClients.Add(float64(delta))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
