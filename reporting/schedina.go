// Package reporting builds the guest and movement reports sent to the
// police lodging service (Alloggiati Web) and to the DMS Puglia regional system.
package reporting

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Tipo alloggiato codes.
const (
	GuestSingle       = "16"
	GuestFamilyHead   = "17"
	GuestGroupHead    = "18"
	GuestFamilyMember = "19"
	GuestGroupMember  = "20"
)

// ItalyCode is the state code of Italy in the service code tables.
const ItalyCode = "100000100"

// SchedinaLength is the width of one record.
const SchedinaLength = 168

// MaxStayDays is the longest stay a single record can declare.
const MaxStayDays = 30

// Schedina is one guest record.
type Schedina struct {
	GuestType      string
	Arrival        time.Time
	Days           int
	LastName       string
	FirstName      string
	Sex            string // M or F
	BirthDate      time.Time
	BirthPlace     string // comune code, Italian births only
	BirthProvince  string // two letters, Italian births only
	BirthCountry   string
	Citizenship    string
	DocumentType   string
	DocumentNumber string
	DocumentIssued string // place of issue code
}

type field struct {
	name  string
	value string
	width int
}

// IsMember reports whether the guest travels under a family or group head.
// Members carry no document data.
func (s Schedina) IsMember() bool {
	return s.GuestType == GuestFamilyMember || s.GuestType == GuestGroupMember
}

// Validate checks the record against the service rules.
func (s Schedina) Validate() error {
	var errs []error
	switch s.GuestType {
	case GuestSingle, GuestFamilyHead, GuestGroupHead, GuestFamilyMember, GuestGroupMember:
	default:
		errs = append(errs, fmt.Errorf("invalid guest type %q", s.GuestType))
	}
	if s.Arrival.IsZero() {
		errs = append(errs, errors.New("arrival date is required"))
	}
	if s.Days < 1 || s.Days > MaxStayDays {
		errs = append(errs, fmt.Errorf("stay must be 1-%d days, got %d", MaxStayDays, s.Days))
	}
	if strings.TrimSpace(s.LastName) == "" || strings.TrimSpace(s.FirstName) == "" {
		errs = append(errs, errors.New("first and last name are required"))
	}
	if s.Sex != "M" && s.Sex != "F" {
		errs = append(errs, fmt.Errorf("sex must be M or F, got %q", s.Sex))
	}
	if s.BirthDate.IsZero() {
		errs = append(errs, errors.New("birth date is required"))
	}
	if s.BirthCountry == "" || s.Citizenship == "" {
		errs = append(errs, errors.New("birth country and citizenship are required"))
	}
	if s.BirthCountry == ItalyCode && (s.BirthPlace == "" || s.BirthProvince == "") {
		errs = append(errs, errors.New("birth place and province are required for guests born in Italy"))
	}
	if !s.IsMember() && (s.DocumentType == "" || s.DocumentNumber == "" || s.DocumentIssued == "") {
		errs = append(errs, errors.New("document type, number and place of issue are required"))
	}
	return errors.Join(errs...)
}

func (s Schedina) fields() []field {
	place, province := "", ""
	if s.BirthCountry == ItalyCode {
		place, province = s.BirthPlace, strings.ToUpper(s.BirthProvince)
	}
	docType, docNumber, docIssued := s.DocumentType, s.DocumentNumber, s.DocumentIssued
	if s.IsMember() {
		docType, docNumber, docIssued = "", "", ""
	}
	sex := "1"
	if s.Sex == "F" {
		sex = "2"
	}
	return []field{
		{"tipo alloggiato", s.GuestType, 2},
		{"data arrivo", s.Arrival.Format("02/01/2006"), 10},
		{"giorni permanenza", fmt.Sprintf("%02d", s.Days), 2},
		{"cognome", strings.ToUpper(strings.TrimSpace(s.LastName)), 50},
		{"nome", strings.ToUpper(strings.TrimSpace(s.FirstName)), 30},
		{"sesso", sex, 1},
		{"data nascita", s.BirthDate.Format("02/01/2006"), 10},
		{"comune nascita", place, 9},
		{"provincia nascita", province, 2},
		{"stato nascita", s.BirthCountry, 9},
		{"cittadinanza", s.Citizenship, 9},
		{"tipo documento", docType, 5},
		{"numero documento", strings.ToUpper(docNumber), 20},
		{"luogo rilascio", docIssued, 9},
	}
}

// Line renders the fixed-width record: every field left-justified and
// right-padded with spaces to its width.
func (s Schedina) Line() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, f := range s.fields() {
		n := utf8.RuneCountInString(f.value)
		if n > f.width {
			return "", fmt.Errorf("%s %q exceeds %d characters", f.name, f.value, f.width)
		}
		sb.WriteString(f.value)
		sb.WriteString(strings.Repeat(" ", f.width-n))
	}
	return sb.String(), nil
}

// Lines renders a batch, stopping at the first invalid record.
func Lines(records []Schedina) ([]string, error) {
	out := make([]string, 0, len(records))
	for i, r := range records {
		line, err := r.Line()
		if err != nil {
			return nil, fmt.Errorf("guest %d (%s %s): %w", i+1, r.FirstName, r.LastName, err)
		}
		out = append(out, line)
	}
	return out, nil
}
