// Package calendar talks to Google Calendar v3 over its REST API.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rental-backend/availability"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// TokenProvider supplies bearer tokens for API calls.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// EventTime is either an all-day Date or a timed DateTime.
type EventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// parse returns the instant in UTC, the zone ListEvents queries in and the
// zone reservation dates are stored in.
func (t EventTime) parse() (time.Time, error) {
	if t.DateTime != "" {
		at, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, err
		}
		return at.UTC(), nil
	}
	if t.Date != "" {
		return availability.ParseDate(t.Date)
	}
	return time.Time{}, errors.New("event time has neither date nor dateTime")
}

type Event struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
}

// AllDayEvent builds an event covering the nights of [start, end).
func AllDayEvent(summary, description string, start, end time.Time) Event {
	return Event{
		Summary:     summary,
		Description: description,
		Start:       EventTime{Date: availability.Day(start).Format("2006-01-02")},
		End:         EventTime{Date: availability.Day(end).Format("2006-01-02")},
	}
}

// BusyDays expands the event into the UTC days it occupies. The end instant
// is exclusive; a timed event shorter than a day still occupies its start day.
func (e Event) BusyDays() (availability.DateSet, error) {
	start, err := e.Start.parse()
	if err != nil {
		return nil, fmt.Errorf("event %s start: %w", e.ID, err)
	}
	end, err := e.End.parse()
	if err != nil {
		return nil, fmt.Errorf("event %s end: %w", e.ID, err)
	}
	days := availability.NewDateSet()
	for cur := start; cur.Before(end); cur = cur.AddDate(0, 0, 1) {
		days.Add(cur)
	}
	return days, nil
}

// Mentions reports whether the summary names the room, ignoring case.
func (e Event) Mentions(roomName string) bool {
	name := strings.ToLower(strings.TrimSpace(roomName))
	return name != "" && strings.Contains(strings.ToLower(e.Summary), name)
}

// APIError is a non-2xx answer from the Calendar API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google calendar returned status %d: %s", e.StatusCode, e.Body)
}

// Client is a minimal Calendar v3 client.
type Client struct {
	baseURL string
	tokens  TokenProvider
	http    *http.Client
}

// NewClient creates a Client. baseURL may be empty to use Google's endpoint.
func NewClient(tokens TokenProvider, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), tokens: tokens, http: httpClient}
}

type eventList struct {
	Items         []Event `json:"items"`
	NextPageToken string  `json:"nextPageToken"`
}

// ListEvents returns the single events of a calendar intersecting [timeMin, timeMax).
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Event, error) {
	var out []Event
	pageToken := ""
	for {
		q := url.Values{
			"singleEvents": {"true"},
			"orderBy":      {"startTime"},
			"timeMin":      {timeMin.UTC().Format(time.RFC3339)},
			"timeMax":      {timeMax.UTC().Format(time.RFC3339)},
			"maxResults":   {"250"},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page eventList
		if err := c.do(ctx, http.MethodGet, c.eventsURL(calendarID, "")+"?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		for _, ev := range page.Items {
			if ev.Status != "cancelled" {
				out = append(out, ev)
			}
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// InsertEvent creates ev and returns its id.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, ev Event) (string, error) {
	var created Event
	if err := c.do(ctx, http.MethodPost, c.eventsURL(calendarID, ""), ev, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("google calendar returned an event without id")
	}
	return created.ID, nil
}

// DeleteEvent removes an event. An event that is already gone counts as deleted.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := c.do(ctx, http.MethodDelete, c.eventsURL(calendarID, eventID), nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusGone {
		return nil
	}
	return err
}

func (c *Client) eventsURL(calendarID, eventID string) string {
	u := c.baseURL + "/calendars/" + url.PathEscape(calendarID) + "/events"
	if eventID != "" {
		u += "/" + url.PathEscape(eventID)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u string, in, out any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("google calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
