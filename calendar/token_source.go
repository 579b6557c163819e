package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rental-backend/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ErrNotAuthorized means no usable Google credentials are stored yet.
var ErrNotAuthorized = errors.New("google calendar not authorized")

const accessTokenKey = "calendar:google:access_token"

// expirySkew refreshes tokens slightly before Google expires them.
const expirySkew = time.Minute

// CredentialStore persists the single Google credential row.
type CredentialStore interface {
	Load(ctx context.Context) (*models.GoogleOAuthCredential, error)
	Save(ctx context.Context, cred *models.GoogleOAuthCredential) error
}

// GormCredentialStore keeps credentials in the relational store.
type GormCredentialStore struct {
	DB *gorm.DB
}

func NewGormCredentialStore(db *gorm.DB) *GormCredentialStore {
	return &GormCredentialStore{DB: db}
}

func (s *GormCredentialStore) Load(ctx context.Context) (*models.GoogleOAuthCredential, error) {
	var cred models.GoogleOAuthCredential
	err := s.DB.WithContext(ctx).Order("id").First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load google credentials: %w", err)
	}
	return &cred, nil
}

func (s *GormCredentialStore) Save(ctx context.Context, cred *models.GoogleOAuthCredential) error {
	if cred.ID == 0 {
		var existing models.GoogleOAuthCredential
		err := s.DB.WithContext(ctx).Order("id").First(&existing).Error
		if err == nil {
			cred.ID = existing.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load google credentials: %w", err)
		}
	}
	return s.DB.WithContext(ctx).Save(cred).Error
}

// TokenSource hands out valid access tokens, refreshing them when they expire.
// Tokens are cached in redis with a TTL when a client is configured.
type TokenSource struct {
	oauth *OAuth
	store CredentialStore
	cache *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

func NewTokenSource(oauth *OAuth, store CredentialStore, cache *redis.Client, ttl time.Duration) *TokenSource {
	return &TokenSource{oauth: oauth, store: store, cache: cache, ttl: ttl, now: time.Now}
}

// AccessToken returns a token valid for at least expirySkew.
func (ts *TokenSource) AccessToken(ctx context.Context) (string, error) {
	if ts.cache != nil {
		tok, err := ts.cache.Get(ctx, accessTokenKey).Result()
		if err == nil && tok != "" {
			return tok, nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			slog.Warn("calendar token cache read failed", slog.String("error", err.Error()))
		}
	}

	cred, err := ts.store.Load(ctx)
	if err != nil {
		return "", err
	}

	now := ts.now()
	if cred.Token != "" && cred.Expiry != nil && cred.Expiry.After(now.Add(expirySkew)) {
		ts.remember(ctx, cred.Token, *cred.Expiry)
		return cred.Token, nil
	}

	tok, err := ts.oauth.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh google token: %w", err)
	}
	cred.Token = tok.AccessToken
	cred.RefreshToken = tok.RefreshToken
	cred.Expiry = &tok.Expiry
	if err := ts.store.Save(ctx, cred); err != nil {
		return "", fmt.Errorf("save refreshed google token: %w", err)
	}
	ts.remember(ctx, tok.AccessToken, tok.Expiry)
	return tok.AccessToken, nil
}

// Authorize stores the token set obtained from the consent flow.
func (ts *TokenSource) Authorize(ctx context.Context, code string) error {
	tok, err := ts.oauth.Exchange(ctx, code)
	if err != nil {
		return err
	}
	cred := &models.GoogleOAuthCredential{
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     ts.oauth.TokenURL(),
		ClientID:     ts.oauth.ClientID(),
		ClientSecret: ts.oauth.ClientSecret(),
		Scopes:       strings.TrimSpace(tok.Scope),
		Expiry:       &tok.Expiry,
	}
	if cred.Scopes == "" {
		cred.Scopes = Scope
	}
	if err := ts.store.Save(ctx, cred); err != nil {
		return fmt.Errorf("save google credentials: %w", err)
	}
	if ts.cache != nil {
		if err := ts.cache.Del(ctx, accessTokenKey).Err(); err != nil {
			slog.Warn("calendar token cache clear failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (ts *TokenSource) remember(ctx context.Context, token string, expiry time.Time) {
	if ts.cache == nil {
		return
	}
	ttl := expiry.Sub(ts.now()) - expirySkew
	if ts.ttl > 0 && ts.ttl < ttl {
		ttl = ts.ttl
	}
	if ttl <= 0 {
		return
	}
	if err := ts.cache.Set(ctx, accessTokenKey, token, ttl).Err(); err != nil {
		slog.Warn("calendar token cache write failed", slog.String("error", err.Error()))
	}
}
