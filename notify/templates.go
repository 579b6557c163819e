package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

// ReservationView is the data rendered into reservation messages.
type ReservationView struct {
	Code          string
	GuestName     string
	Email         string
	Phone         string
	RoomName      string
	StructureName string
	Address       string
	CheckIn       string
	CheckOut      string
	Nights        int
	People        int
	Total         float64
	Link          string
}

const layout = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="background:#f5f7fb;font-family:Arial,Helvetica,sans-serif;color:#222">
<div style="max-width:640px;margin:20px auto;background:#fff;border:1px solid #e6eef6;padding:24px;border-radius:8px">
<h2>{{.Title}}</h2>
{{.Body}}
</div>
</body>
</html>`

var layoutTmpl = template.Must(template.New("layout").Parse(layout))

var bodies = template.Must(template.New("bodies").Funcs(template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f €", v) },
}).Parse(`
{{define "details"}}
<ul>
<li>Codice prenotazione: {{.Code}}</li>
<li>Struttura: {{.StructureName}}</li>
<li>Camera: {{.RoomName}}</li>
<li>Check-in: {{.CheckIn}}</li>
<li>Check-out: {{.CheckOut}}</li>
<li>Notti: {{.Nights}}</li>
<li>Ospiti: {{.People}}</li>
<li>Totale: {{money .Total}}</li>
</ul>
{{end}}

{{define "confirmed"}}
<p>Gentile {{.GuestName}},</p>
<p>il pagamento è stato ricevuto e la tua prenotazione è confermata.</p>
{{template "details" .}}
<p>Ti aspettiamo!</p>
{{end}}

{{define "owner_confirmed"}}
<p>Nuova prenotazione pagata da {{.GuestName}} ({{.Email}}, {{.Phone}}).</p>
{{template "details" .}}
{{end}}

{{define "canceled"}}
<p>Gentile {{.GuestName}},</p>
<p>la tua prenotazione è stata cancellata.</p>
{{template "details" .}}
{{end}}

{{define "owner_canceled"}}
<p>La prenotazione di {{.GuestName}} è stata cancellata.</p>
{{template "details" .}}
{{end}}

{{define "refund"}}
<p>Gentile {{.GuestName}},</p>
<p>il rimborso di {{money .Total}} per la prenotazione {{.Code}} è stato emesso. L'accredito può richiedere alcuni giorni.</p>
{{end}}

{{define "reminder"}}
<p>Gentile {{.GuestName}},</p>
<p>oggi è il giorno del tuo arrivo presso {{.StructureName}}{{if .Address}}, {{.Address}}{{end}}.</p>
<p>Completa il self check-in prima dell'arrivo:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
{{template "details" .}}
{{end}}

{{define "verify"}}
<p>Ciao {{.GuestName}},</p>
<p>conferma il tuo indirizzo email aprendo questo link:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
{{end}}
`))

func render(name, title string, v ReservationView) (string, error) {
	var body bytes.Buffer
	if err := bodies.ExecuteTemplate(&body, name, v); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	var out bytes.Buffer
	err := layoutTmpl.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body.String())})
	if err != nil {
		return "", fmt.Errorf("render layout: %w", err)
	}
	return out.String(), nil
}

// whatsappText renders the short message body sent over WhatsApp.
func whatsappText(kind string, v ReservationView) string {
	switch kind {
	case "confirmed":
		return fmt.Sprintf("Ciao %s, la prenotazione %s per %s dal %s al %s è confermata. Totale %.2f €.",
			v.GuestName, v.Code, v.RoomName, v.CheckIn, v.CheckOut, v.Total)
	case "owner_confirmed":
		return fmt.Sprintf("Nuova prenotazione %s: %s, %s dal %s al %s (%d ospiti).",
			v.Code, v.GuestName, v.RoomName, v.CheckIn, v.CheckOut, v.People)
	case "canceled":
		return fmt.Sprintf("Ciao %s, la prenotazione %s dal %s al %s è stata cancellata.",
			v.GuestName, v.Code, v.CheckIn, v.CheckOut)
	case "owner_canceled":
		return fmt.Sprintf("Prenotazione %s di %s (%s, %s - %s) cancellata.",
			v.Code, v.GuestName, v.RoomName, v.CheckIn, v.CheckOut)
	case "reminder":
		return fmt.Sprintf("Ciao %s, oggi è il giorno del tuo arrivo a %s. Self check-in: %s",
			v.GuestName, v.StructureName, v.Link)
	}
	return ""
}
