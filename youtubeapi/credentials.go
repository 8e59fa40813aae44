package youtubeapi

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/streamsense-live/backend/chat"
	"github.com/streamsense-live/backend/telemetry"
)

// expirySlack refreshes tokens slightly before they actually expire so a
// poll never goes out with a token about to die mid-flight.
const expirySlack = 2 * time.Minute

// AuthCodeURL returns the consent URL for the connect flow. Offline access
// is forced so a refresh token is always issued.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens and persists them for
// userID.
func (s *Service) Exchange(ctx context.Context, userID, code string) error {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("oauth exchange: %w", err)
	}
	scope, _ := tok.Extra("scope").(string)
	if err := s.db.UpsertToken(ctx, userID, Provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, scope); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

// AccessToken implements chat.CredentialStore. Tokens close to expiry are
// refreshed inline.
func (s *Service) AccessToken(ctx context.Context, userID string) (string, error) {
	access, refresh, expiry, _, err := s.db.GetToken(ctx, userID, Provider)
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if access == "" && refresh == "" {
		return "", fmt.Errorf("user %s: %w", userID, chat.ErrUnauthorized)
	}
	if access != "" && (expiry.IsZero() || time.Until(expiry) > expirySlack) {
		return access, nil
	}
	return s.RefreshAccessToken(ctx, userID)
}

// RefreshAccessToken implements chat.CredentialStore: runs the refresh grant
// and persists the result, keeping the old refresh token and scope when the
// provider omits them.
func (s *Service) RefreshAccessToken(ctx context.Context, userID string) (string, error) {
	_, refresh, _, scope, err := s.db.GetToken(ctx, userID, Provider)
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if refresh == "" {
		return "", fmt.Errorf("user %s has no refresh token: %w", userID, chat.ErrAuthExpired)
	}
	tok, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		telemetry.IncTokenRefresh("failed")
		return "", fmt.Errorf("refresh grant: %w: %v", chat.ErrAuthExpired, err)
	}
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refresh
	}
	if err := s.db.UpsertToken(ctx, userID, Provider, tok.AccessToken, newRefresh, tok.Expiry, scope); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	telemetry.IncTokenRefresh("ok")
	return tok.AccessToken, nil
}
