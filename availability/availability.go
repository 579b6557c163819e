// Package availability holds the busy-date set and the free/busy decision for a room.
//
// A stay occupies the nights from check-in up to, but not including, the
// check-out day, so a guest leaving on day N frees day N for the next arrival.
package availability

import (
	"fmt"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// DateSet is a set of calendar days keyed as YYYY-MM-DD.
type DateSet map[string]struct{}

func NewDateSet(days ...string) DateSet {
	s := make(DateSet, len(days))
	for _, d := range days {
		s[d] = struct{}{}
	}
	return s
}

func (s DateSet) Add(day time.Time) {
	s[Day(day).Format(dateLayout)] = struct{}{}
}

// AddRange adds every day in [start, end).
func (s DateSet) AddRange(start, end time.Time) {
	for d := Day(start); d.Before(Day(end)); d = d.AddDate(0, 0, 1) {
		s.Add(d)
	}
}

func (s DateSet) Has(day time.Time) bool {
	_, ok := s[Day(day).Format(dateLayout)]
	return ok
}

// Union adds every member of other to s.
func (s DateSet) Union(other DateSet) DateSet {
	for k := range other {
		s[k] = struct{}{}
	}
	return s
}

// Sorted returns the members in chronological order.
func (s DateSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsAvailable reports whether no night of [checkIn, checkOut) is busy.
func IsAvailable(busy DateSet, checkIn, checkOut time.Time) bool {
	for d := Day(checkIn); d.Before(Day(checkOut)); d = d.AddDate(0, 0, 1) {
		if busy.Has(d) {
			return false
		}
	}
	return true
}

// Conflicts returns the busy nights inside [checkIn, checkOut).
func Conflicts(busy DateSet, checkIn, checkOut time.Time) []string {
	var out []string
	for d := Day(checkIn); d.Before(Day(checkOut)); d = d.AddDate(0, 0, 1) {
		if busy.Has(d) {
			out = append(out, d.Format(dateLayout))
		}
	}
	return out
}

// Nights is the number of nights between two days.
func Nights(checkIn, checkOut time.Time) int {
	return int(Day(checkOut).Sub(Day(checkIn)).Hours() / 24)
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
