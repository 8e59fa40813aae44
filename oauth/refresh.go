// Package oauth provides token refresh scheduling for providers whose tokens
// are persisted in the accounts table. It performs jittered checks and
// refreshes every account whose expiry falls within a configured window.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/streamsense-live/backend/db"
	"github.com/streamsense-live/backend/telemetry"
)

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope)
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// StartRefresher launches a goroutine that periodically scans the accounts
// table and refreshes tokens close to expiry.
// provider: provider key in the accounts table.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, dbx *sql.DB, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			refreshDueAccounts(ctx, dbx, provider, window, fn)
		}
	}()
}

// refreshDueAccounts refreshes every account of the provider whose token
// expires within the window. Reads and writes go through the db package so
// encrypted rows are handled transparently.
func refreshDueAccounts(ctx context.Context, dbx *sql.DB, provider string, window time.Duration, fn RefreshFunc) {
	rows, err := dbx.QueryContext(ctx,
		`SELECT user_id FROM accounts
		 WHERE provider=$1
		   AND COALESCE(refresh_token,'') <> ''
		   AND (expires_at IS NULL OR expires_at <= NOW() + $2::interval)`,
		provider, window.String())
	if err != nil {
		slog.Warn("refresh scan failed", slog.String("provider", provider), slog.Any("err", err))
		return
	}
	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			users = append(users, id)
		}
	}
	rows.Close()

	for _, userID := range users {
		_, rt, _, scope, err := db.GetToken(ctx, dbx, userID, provider)
		if err != nil || rt == "" {
			continue
		}
		// Small pre-refresh jitter to avoid stampedes when many pods see
		// the same expiry.
		//nolint:gosec // G404: math/rand is sufficient for jitter, not used for security
		pre := time.Duration(rand.Int63n(int64(2 * time.Second)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(pre):
		}
		ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
		newAT, newRT, newExp, newScope, err := fn(ctx2, rt)
		cancel()
		if err != nil {
			telemetry.IncTokenRefresh("failed")
			slog.Warn("token refresh failed", slog.String("provider", provider), slog.String("user", userID), slog.Any("err", err))
			continue
		}
		if newRT == "" {
			newRT = rt
		}
		if newScope == "" {
			newScope = scope
		}
		if err := db.UpsertToken(ctx, dbx, userID, provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
			slog.Warn("token persist failed", slog.String("provider", provider), slog.String("user", userID), slog.Any("err", err))
			continue
		}
		telemetry.IncTokenRefresh("ok")
		slog.Info("token refreshed", slog.String("provider", provider), slog.String("user", userID))
	}
}
