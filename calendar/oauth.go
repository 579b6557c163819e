package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	defaultTokenURL = "https://oauth2.googleapis.com/token"

	// Scope grants read/write access to events.
	Scope = "https://www.googleapis.com/auth/calendar"
)

// OAuthConfig configures the Google OAuth2 web flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Overridable in tests.
	AuthURL    string
	TokenURL   string
	HTTPClient *http.Client
}

// OAuth exchanges authorization codes and refresh tokens with Google.
type OAuth struct {
	config *oauth2.Config
	http   *http.Client
}

func NewOAuth(config OAuthConfig) *OAuth {
	if config.AuthURL == "" {
		config.AuthURL = defaultAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http: config.HTTPClient,
	}
}

// Token is an OAuth2 token set.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	Expiry       time.Time
}

func fromOAuth2(tok *oauth2.Token) *Token {
	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry.UTC(),
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out
}

func (o *OAuth) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.http)
}

// AuthCodeURL builds the consent URL. Offline access with a forced prompt
// makes Google return a refresh token on every authorization.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange trades an authorization code for a token set.
func (o *OAuth) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := o.config.Exchange(o.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return fromOAuth2(tok), nil
}

// Refresh obtains a new access token. Google omits the refresh token from the
// response, so the one passed in is carried over.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token stored", ErrNotAuthorized)
	}
	src := o.config.TokenSource(o.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	out := fromOAuth2(tok)
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

// TokenURL is the endpoint stored alongside credentials.
func (o *OAuth) TokenURL() string { return o.config.Endpoint.TokenURL }

func (o *OAuth) ClientID() string { return o.config.ClientID }

func (o *OAuth) ClientSecret() string { return o.config.ClientSecret }
