package notify

import (
	"context"
	"log/slog"
)

// Dispatcher sends every reservation notification. Delivery failures are
// logged and never returned.
type Dispatcher struct {
	mailer     Mailer
	whatsapp   Messenger
	ownerEmail string
	ownerPhone string
}

// NewDispatcher wires the channels. Pass a *Queue as whatsapp for async delivery.
func NewDispatcher(mailer Mailer, whatsapp Messenger, ownerEmail, ownerPhone string) *Dispatcher {
	return &Dispatcher{mailer: mailer, whatsapp: whatsapp, ownerEmail: ownerEmail, ownerPhone: ownerPhone}
}

func (d *Dispatcher) ReservationConfirmed(ctx context.Context, v ReservationView) {
	d.email(ctx, v.Email, "confirmed", "Conferma di pagamento per la tua prenotazione", v)
	d.text(ctx, v.Phone, whatsappText("confirmed", v))
	d.email(ctx, d.ownerEmail, "owner_confirmed", "Nuova prenotazione "+v.Code, v)
	d.text(ctx, d.ownerPhone, whatsappText("owner_confirmed", v))
}

func (d *Dispatcher) ReservationCanceled(ctx context.Context, v ReservationView) {
	d.email(ctx, v.Email, "canceled", "Cancellazione della tua prenotazione", v)
	d.text(ctx, v.Phone, whatsappText("canceled", v))
	d.email(ctx, d.ownerEmail, "owner_canceled", "Prenotazione cancellata "+v.Code, v)
	d.text(ctx, d.ownerPhone, whatsappText("owner_canceled", v))
}

func (d *Dispatcher) RefundIssued(ctx context.Context, v ReservationView) {
	d.email(ctx, v.Email, "refund", "Conferma di rimborso per la tua prenotazione", v)
}

func (d *Dispatcher) CheckinReminder(ctx context.Context, v ReservationView) {
	d.email(ctx, v.Email, "reminder", "Self check-in per la tua prenotazione", v)
	d.text(ctx, v.Phone, whatsappText("reminder", v))
}

func (d *Dispatcher) EmailVerification(ctx context.Context, to, name, link string) {
	d.email(ctx, to, "verify", "Conferma il tuo indirizzo email", ReservationView{GuestName: name, Link: link})
}

func (d *Dispatcher) email(ctx context.Context, to, tmpl, subject string, v ReservationView) {
	if to == "" || d.mailer == nil {
		return
	}
	body, err := render(tmpl, subject, v)
	if err != nil {
		slog.ErrorContext(ctx, "notification render failed", slog.String("template", tmpl), slog.String("error", err.Error()))
		return
	}
	if err := d.mailer.Send(ctx, Email{To: to, Subject: subject, HTML: body}); err != nil {
		slog.ErrorContext(ctx, "email notification failed",
			slog.String("template", tmpl),
			slog.String("reservation", v.Code),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) text(ctx context.Context, to, body string) {
	if to == "" || body == "" || d.whatsapp == nil {
		return
	}
	if err := d.whatsapp.SendWhatsApp(ctx, to, body); err != nil {
		slog.ErrorContext(ctx, "whatsapp notification failed", slog.String("to", to), slog.String("error", err.Error()))
	}
}
