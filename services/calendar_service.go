package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"rental-backend/calendar"
	"rental-backend/utils"

	"github.com/redis/go-redis/v9"
)

const (
	oauthStateTTL    = 10 * time.Minute
	oauthStatePrefix = "calendar:oauth:state:"
)

// CalendarAuthService runs the consent flow that authorizes the property
// calendar account.
type CalendarAuthService struct {
	OAuth  *calendar.OAuth
	Tokens *calendar.TokenSource
	Cache  *redis.Client // optional; states are kept in memory without it

	mu     sync.Mutex
	states map[string]time.Time
}

func NewCalendarAuthService(oauth *calendar.OAuth, tokens *calendar.TokenSource, cache *redis.Client) *CalendarAuthService {
	return &CalendarAuthService{OAuth: oauth, Tokens: tokens, Cache: cache, states: map[string]time.Time{}}
}

// AuthURL starts the flow and returns the consent page to redirect to.
func (s *CalendarAuthService) AuthURL(ctx context.Context) (string, error) {
	state, err := utils.GenerateSecureToken(16)
	if err != nil {
		return "", Internal(err)
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, oauthStatePrefix+state, "1", oauthStateTTL).Err(); err != nil {
			return "", Internal(err)
		}
	} else {
		s.mu.Lock()
		now := time.Now()
		for k, exp := range s.states {
			if now.After(exp) {
				delete(s.states, k)
			}
		}
		s.states[state] = now.Add(oauthStateTTL)
		s.mu.Unlock()
	}
	return s.OAuth.AuthCodeURL(state), nil
}

func (s *CalendarAuthService) consumeState(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	if s.Cache != nil {
		_, err := s.Cache.GetDel(ctx, oauthStatePrefix+state).Result()
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return err == nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.states[state]
	delete(s.states, state)
	return ok && time.Now().Before(exp), nil
}

// Complete exchanges the code returned to the redirect URL and stores the credentials.
func (s *CalendarAuthService) Complete(ctx context.Context, code, state string) error {
	ok, err := s.consumeState(ctx, state)
	if err != nil {
		return Internal(err)
	}
	if !ok {
		return Validation("error.invalidState", "authorization state is invalid or expired")
	}
	if code == "" {
		return Validation("error.validation", "authorization code is missing")
	}
	if err := s.Tokens.Authorize(ctx, code); err != nil {
		return External("error.calendar", "could not authorize the calendar account", err)
	}
	return nil
}
