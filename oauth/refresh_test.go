package oauth

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streamsense-live/backend/testutil"
)

func insertAccount(t *testing.T, dbx *sql.DB, userID, access, refresh string, expiry time.Time, scope string) {
	t.Helper()
	_, err := dbx.Exec(`INSERT INTO accounts (user_id, provider, access_token, refresh_token, expires_at, scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id, provider) DO UPDATE SET
		  access_token=EXCLUDED.access_token, refresh_token=EXCLUDED.refresh_token,
		  expires_at=EXCLUDED.expires_at, scope=EXCLUDED.scope, encryption_version=0, updated_at=NOW()`,
		userID, "test-provider", access, refresh, expiry, scope)
	if err != nil {
		t.Fatalf("failed to insert test account: %v", err)
	}
}

func TestStartRefresherOutsideWindow(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	insertAccount(t, dbx, "user-far", "access123", "refresh456", time.Now().Add(time.Hour), "scope1")

	var refreshCalled atomic.Bool
	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		refreshCalled.Store(true)
		return "new-access", "new-refresh", time.Now().Add(2 * time.Hour), "scope1", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	StartRefresher(ctx, dbx, "test-provider", 50*time.Millisecond, 30*time.Minute, refreshFunc)
	<-ctx.Done()

	if refreshCalled.Load() {
		t.Error("refresh should not have been called for token that expires in 1 hour with 30 min window")
	}
}

func TestStartRefresherWithinWindow(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	insertAccount(t, dbx, "user-due", "old-access", "old-refresh", time.Now().Add(5*time.Minute), "scope1")

	var refreshCalled atomic.Bool
	newExpiry := time.Now().Add(2 * time.Hour)
	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		if refreshToken != "old-refresh" {
			t.Errorf("refresh called with wrong token: got %s, want old-refresh", refreshToken)
		}
		refreshCalled.Store(true)
		return "new-access", "new-refresh", newExpiry, "scope2", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartRefresher(ctx, dbx, "test-provider", 100*time.Millisecond, 15*time.Minute, refreshFunc)

	deadline := time.Now().Add(5 * time.Second)
	for !refreshCalled.Load() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()

	if !refreshCalled.Load() {
		t.Fatal("refresh should have been called for token expiring within window")
	}

	var access, refresh, scope string
	err := dbx.QueryRow(`SELECT access_token, refresh_token, scope FROM accounts WHERE user_id='user-due' AND provider='test-provider'`).
		Scan(&access, &refresh, &scope)
	if err != nil {
		t.Fatalf("failed to query updated token: %v", err)
	}
	if access != "new-access" {
		t.Errorf("access token not updated: got %s, want new-access", access)
	}
	if refresh != "new-refresh" {
		t.Errorf("refresh token not updated: got %s, want new-refresh", refresh)
	}
	if scope != "scope2" {
		t.Errorf("scope not updated: got %s, want scope2", scope)
	}
}

func TestStartRefresherRefreshError(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	insertAccount(t, dbx, "user-err", "old-access", "old-refresh", time.Now().Add(5*time.Minute), "scope1")

	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		return "", "", time.Time{}, "", errors.New("refresh failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	StartRefresher(ctx, dbx, "test-provider", 50*time.Millisecond, 15*time.Minute, refreshFunc)
	<-ctx.Done()

	var access string
	err := dbx.QueryRow(`SELECT access_token FROM accounts WHERE user_id='user-err' AND provider='test-provider'`).Scan(&access)
	if err != nil {
		t.Fatalf("failed to query token: %v", err)
	}
	if access != "old-access" {
		t.Errorf("token should not have been updated on error, got %s", access)
	}
}

func TestStartRefresherNoRefreshToken(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	insertAccount(t, dbx, "user-norefresh", "access123", "", time.Now().Add(5*time.Minute), "scope1")

	var refreshCalled atomic.Bool
	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		refreshCalled.Store(true)
		return "new-access", "new-refresh", time.Now().Add(2 * time.Hour), "scope1", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	StartRefresher(ctx, dbx, "test-provider", 50*time.Millisecond, 15*time.Minute, refreshFunc)
	<-ctx.Done()

	if refreshCalled.Load() {
		t.Error("refresh should not be called when refresh_token is empty")
	}
}

func TestStartRefresherCancellation(t *testing.T) {
	dbx := testutil.SetupTestDB(t)

	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		return "access", "refresh", time.Now().Add(time.Hour), "scope", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	StartRefresher(ctx, dbx, "test-provider", time.Second, 15*time.Minute, refreshFunc)
	cancel()
	// Exits without hanging.
	time.Sleep(50 * time.Millisecond)
}

func TestStartRefresherPreservesRefreshTokenAndScope(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	insertAccount(t, dbx, "user-preserve", "old-access", "original-refresh", time.Now().Add(5*time.Minute), "scope1")

	var refreshCalled atomic.Bool
	// Provider omits refresh token and scope; originals must be preserved.
	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		refreshCalled.Store(true)
		return "new-access", "", time.Now().Add(2 * time.Hour), "", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartRefresher(ctx, dbx, "test-provider", 50*time.Millisecond, 15*time.Minute, refreshFunc)

	deadline := time.Now().Add(5 * time.Second)
	for !refreshCalled.Load() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()

	var refresh, scope string
	err := dbx.QueryRow(`SELECT refresh_token, scope FROM accounts WHERE user_id='user-preserve' AND provider='test-provider'`).
		Scan(&refresh, &scope)
	if err != nil {
		t.Fatalf("failed to query token: %v", err)
	}
	if refresh != "original-refresh" {
		t.Errorf("refresh token should be preserved, got %s, want original-refresh", refresh)
	}
	if scope != "scope1" {
		t.Errorf("scope should be preserved, got %s, want scope1", scope)
	}
}

func TestStartRefresherScansMultipleUsers(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	insertAccount(t, dbx, "user-m1", "a1", "r1", time.Now().Add(5*time.Minute), "s")
	insertAccount(t, dbx, "user-m2", "a2", "r2", time.Now().Add(5*time.Minute), "s")

	var refreshes atomic.Int64
	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		refreshes.Add(1)
		return "fresh-" + refreshToken, refreshToken, time.Now().Add(2 * time.Hour), "s", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartRefresher(ctx, dbx, "test-provider", 50*time.Millisecond, 15*time.Minute, refreshFunc)

	deadline := time.Now().Add(10 * time.Second)
	for refreshes.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()

	if refreshes.Load() < 2 {
		t.Errorf("expected both accounts refreshed, got %d", refreshes.Load())
	}
}
