package pixiv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/knosm/pixisync/app/settings"
)

const (
	// tokenValidity is the fixed window a refreshed access token is trusted
	// for before EnsureValid refreshes again.
	tokenValidity = time.Hour
	// expiryMargin refreshes slightly early so a token never expires mid-run.
	expiryMargin = 5 * time.Minute
)

// TokenManager owns the credential pair lifecycle. All reads and writes go
// through the settings store so credentials survive restarts.
type TokenManager struct {
	store  *settings.Store
	client Client
	now    func() time.Time
}

func NewTokenManager(store *settings.Store, client Client) *TokenManager {
	return &TokenManager{
		store:  store,
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EnsureValid returns a usable credential triple, refreshing and persisting
// it when the cached expiry has passed. A missing refresh token is an
// AuthError: fatal for the invoking strategy, not retried.
func (m *TokenManager) EnsureValid(ctx context.Context) (Credentials, error) {
	refreshToken := m.store.GetString(settings.KeyRefreshToken, "")
	if refreshToken == "" {
		return Credentials{}, &AuthError{Reason: "no refresh token configured"}
	}

	now := m.now()
	expiry := m.store.GetTime(settings.KeyTokenExpiresAt)
	userID := int64(m.store.GetInt(settings.KeyRemoteUserID, 0))

	if expiry != nil && now.Before(expiry.Add(-expiryMargin)) && userID != 0 {
		slog.Debug("Token still valid", "expires_at", expiry)
		return Credentials{
			AccessToken:  m.store.GetString(settings.KeyAccessToken, ""),
			RefreshToken: refreshToken,
			UserID:       userID,
		}, nil
	}

	slog.Warn("Token expired, refreshing", "expires_at", expiry)
	creds, err := m.client.RefreshTokens(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to refresh tokens: %w", err)
	}

	newExpiry := now.Add(tokenValidity)
	if err := m.persist(creds, newExpiry); err != nil {
		return Credentials{}, err
	}

	if err := m.client.VerifyToken(ctx); err != nil {
		slog.Warn("Token verification failed after refresh", "error", err)
	} else {
		slog.Info("Token refreshed", "valid_until", newExpiry)
	}

	return creds, nil
}

func (m *TokenManager) persist(creds Credentials, expiry time.Time) error {
	if err := m.store.SetString(settings.KeyAccessToken, creds.AccessToken); err != nil {
		return fmt.Errorf("failed to persist access token: %w", err)
	}
	if err := m.store.SetString(settings.KeyRefreshToken, creds.RefreshToken); err != nil {
		return fmt.Errorf("failed to persist refresh token: %w", err)
	}
	if creds.UserID != 0 {
		if err := m.store.SetInt(settings.KeyRemoteUserID, int(creds.UserID)); err != nil {
			return fmt.Errorf("failed to persist remote user id: %w", err)
		}
	}
	if err := m.store.SetTime(settings.KeyTokenExpiresAt, expiry); err != nil {
		return fmt.Errorf("failed to persist token expiry: %w", err)
	}
	return nil
}
