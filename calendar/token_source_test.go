package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"rental-backend/models"
	"rental-backend/testutil"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func tokenServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		assert.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "refresh_token":
			assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
			json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh", "expires_in": 3600})
		case "authorization_code":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "first", "refresh_token": "refresh-1", "expires_in": 3600, "scope": Scope,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func TestOAuth_AuthCodeURL(t *testing.T) {
	o := NewOAuth(OAuthConfig{ClientID: "cid", RedirectURL: "http://localhost/cb"})
	u, err := url.Parse(o.AuthCodeURL("st"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "st", q.Get("state"))
	assert.Equal(t, Scope, q.Get("scope"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "code", q.Get("response_type"))
}

func TestOAuth_RefreshErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	}))
	defer srv.Close()

	o := NewOAuth(OAuthConfig{ClientID: "cid", ClientSecret: "sec", TokenURL: srv.URL, HTTPClient: srv.Client()})
	_, err := o.Refresh(context.Background(), "revoked")
	var rerr *oauth2.RetrieveError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "invalid_grant", rerr.ErrorCode)

	_, err = o.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestTokenSource_RefreshesExpiredAndCaches(t *testing.T) {
	calls := 0
	srv := tokenServer(t, &calls)
	defer srv.Close()

	db := testutil.NewDB(t)
	expired := time.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&models.GoogleOAuthCredential{Token: "stale", RefreshToken: "refresh-1", Expiry: &expired}).Error)

	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet(accessTokenKey).RedisNil()
	mock.ExpectSet(accessTokenKey, "fresh", 50*time.Minute).SetVal("OK")

	oauth := NewOAuth(OAuthConfig{ClientID: "cid", ClientSecret: "sec", TokenURL: srv.URL})
	ts := NewTokenSource(oauth, NewGormCredentialStore(db), rdb, 50*time.Minute)

	tok, err := ts.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())

	var stored models.GoogleOAuthCredential
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "fresh", stored.Token)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	require.NotNil(t, stored.Expiry)
	assert.True(t, stored.Expiry.After(time.Now()))
}

func TestTokenSource_UsesCache(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet(accessTokenKey).SetVal("cached")

	ts := NewTokenSource(NewOAuth(OAuthConfig{}), NewGormCredentialStore(testutil.NewDB(t)), rdb, time.Minute)
	tok, err := ts.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", tok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenSource_WithoutCredentials(t *testing.T) {
	ts := NewTokenSource(NewOAuth(OAuthConfig{}), NewGormCredentialStore(testutil.NewDB(t)), nil, time.Minute)
	_, err := ts.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestTokenSource_AuthorizeStoresSingleRow(t *testing.T) {
	calls := 0
	srv := tokenServer(t, &calls)
	defer srv.Close()

	db := testutil.NewDB(t)
	oauth := NewOAuth(OAuthConfig{ClientID: "cid", ClientSecret: "sec", TokenURL: srv.URL})
	ts := NewTokenSource(oauth, NewGormCredentialStore(db), nil, time.Minute)

	ctx := context.Background()
	require.NoError(t, ts.Authorize(ctx, "code-1"))
	require.NoError(t, ts.Authorize(ctx, "code-2"))

	var count int64
	db.Model(&models.GoogleOAuthCredential{}).Count(&count)
	assert.Equal(t, int64(1), count)

	tok, err := ts.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", tok)
	assert.Equal(t, 2, calls)
}
