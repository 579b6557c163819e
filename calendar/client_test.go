package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

func TestEvent_BusyDays(t *testing.T) {
	tests := []struct {
		name     string
		ev       Event
		expected []string
	}{
		{
			name:     "all day end exclusive",
			ev:       Event{Start: EventTime{Date: "2025-08-10"}, End: EventTime{Date: "2025-08-12"}},
			expected: []string{"2025-08-10", "2025-08-11"},
		},
		{
			name:     "timed same day",
			ev:       Event{Start: EventTime{DateTime: "2025-08-10T15:00:00+02:00"}, End: EventTime{DateTime: "2025-08-10T18:00:00+02:00"}},
			expected: []string{"2025-08-10"},
		},
		{
			name:     "timed across nights",
			ev:       Event{Start: EventTime{DateTime: "2025-08-10T15:00:00Z"}, End: EventTime{DateTime: "2025-08-12T10:00:00Z"}},
			expected: []string{"2025-08-10", "2025-08-11"},
		},
		{
			name:     "offset moves the day",
			ev:       Event{Start: EventTime{DateTime: "2025-08-10T23:30:00-02:00"}, End: EventTime{DateTime: "2025-08-11T01:00:00-02:00"}},
			expected: []string{"2025-08-11"},
		},
		{
			name:     "offsets differ between start and end",
			ev:       Event{Start: EventTime{DateTime: "2025-08-11T01:00:00+02:00"}, End: EventTime{DateTime: "2025-08-10T23:30:00Z"}},
			expected: []string{"2025-08-10"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, err := tt.ev.BusyDays()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, days.Sorted())
		})
	}

	_, err := Event{ID: "x"}.BusyDays()
	assert.Error(t, err)
}

func TestEvent_Mentions(t *testing.T) {
	ev := Event{Summary: "Prenotazione CAMERA Blu - Rossi"}
	assert.True(t, ev.Mentions("camera blu"))
	assert.False(t, ev.Mentions("Camera Rossa"))
	assert.False(t, ev.Mentions(" "))
}

func TestClient_ListEvents_Paginates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		assert.Equal(t, "2025-08-01T00:00:00Z", r.URL.Query().Get("timeMin"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"id": "a", "summary": "one", "start": map[string]string{"date": "2025-08-10"}, "end": map[string]string{"date": "2025-08-12"}},
					{"id": "gone", "status": "cancelled", "start": map[string]string{"date": "2025-08-10"}, "end": map[string]string{"date": "2025-08-11"}},
				},
				"nextPageToken": "p2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "b", "summary": "two", "start": map[string]string{"date": "2025-08-20"}, "end": map[string]string{"date": "2025-08-21"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(staticToken("tok"), srv.URL, srv.Client())
	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	events, err := c.ListEvents(context.Background(), "primary", from, from.AddDate(0, 1, 0))
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].ID)
	assert.Equal(t, "b", events[1].ID)
}

func TestClient_InsertAndDelete(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(map[string]string{"id": "evt-1"})
		case r.Method == http.MethodDelete && r.URL.Path == "/calendars/cal/events/evt-1":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete && r.URL.Path == "/calendars/cal/events/old":
			w.WriteHeader(http.StatusGone)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"notFound"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(staticToken("tok"), srv.URL, srv.Client())
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	id, err := c.InsertEvent(ctx, "cal", AllDayEvent("Camera Blu - Rossi", "", start, start.AddDate(0, 0, 3)))
	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)
	assert.Equal(t, "2025-06-01", got.Start.Date)
	assert.Equal(t, "2025-06-04", got.End.Date)

	assert.NoError(t, c.DeleteEvent(ctx, "cal", "evt-1"))
	assert.NoError(t, c.DeleteEvent(ctx, "cal", "old"))

	err = c.DeleteEvent(ctx, "cal", "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
