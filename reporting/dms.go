package reporting

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"time"
)

// Movement kinds.
const (
	MovementArrival   = "arrivo"
	MovementDeparture = "partenza"
)

// DmsGuest is one person inside a movement.
type DmsGuest struct {
	GuestType   string `xml:"tipo_alloggiato,attr"`
	LastName    string `xml:"cognome"`
	FirstName   string `xml:"nome"`
	Sex         string `xml:"sesso"`
	BirthDate   string `xml:"data_nascita"`
	Citizenship string `xml:"cittadinanza"`
	Residence   string `xml:"residenza,omitempty"`
}

// Movement is one arrival or departure for a reservation.
type Movement struct {
	Kind        string     `xml:"tipo,attr"`
	Reservation string     `xml:"prenotazione,attr"`
	Room        string     `xml:"camera"`
	Nights      int        `xml:"notti"`
	Guests      []DmsGuest `xml:"ospite"`
}

func (m Movement) key() string { return m.Kind + "/" + m.Reservation }

// DailyReport is the per-structure, per-day movements document.
type DailyReport struct {
	XMLName   xml.Name   `xml:"movimenti"`
	Structure string     `xml:"codice_struttura,attr"`
	Date      string     `xml:"data,attr"`
	Movements []Movement `xml:"movimento"`
}

// NewDailyReport starts an empty document for a structure and day.
func NewDailyReport(cis string, day time.Time) *DailyReport {
	return &DailyReport{Structure: cis, Date: day.Format("2006-01-02")}
}

// DmsFileName is the storage path of the report for a structure and day.
func DmsFileName(cis string, day time.Time) string {
	return fmt.Sprintf("dms_puglia_xml/%s_%s.xml", cis, day.Format("20060102"))
}

// ParseDailyReport decodes a previously written document.
func ParseDailyReport(data []byte) (*DailyReport, error) {
	var r DailyReport
	if err := xml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse dms report: %w", err)
	}
	return &r, nil
}

// Merge adds movements to the report. A movement for the same kind and
// reservation replaces the earlier one, so re-running a day is idempotent.
func (r *DailyReport) Merge(movements ...Movement) {
	idx := make(map[string]int, len(r.Movements))
	for i, m := range r.Movements {
		idx[m.key()] = i
	}
	for _, m := range movements {
		if i, ok := idx[m.key()]; ok {
			r.Movements[i] = m
			continue
		}
		idx[m.key()] = len(r.Movements)
		r.Movements = append(r.Movements, m)
	}
	sort.SliceStable(r.Movements, func(i, j int) bool {
		if r.Movements[i].Kind != r.Movements[j].Kind {
			return r.Movements[i].Kind == MovementArrival
		}
		return r.Movements[i].Reservation < r.Movements[j].Reservation
	})
}

// Counts returns the number of arrivals and departures.
func (r *DailyReport) Counts() (arrivals, departures int) {
	for _, m := range r.Movements {
		switch m.Kind {
		case MovementArrival:
			arrivals++
		case MovementDeparture:
			departures++
		}
	}
	return arrivals, departures
}

// Marshal renders the indented document with its XML header.
func (r *DailyReport) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode dms report: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
