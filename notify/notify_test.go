package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

func view() ReservationView {
	return ReservationView{
		Code:          "8f0c",
		GuestName:     "Mario Rossi",
		Email:         "mario@example.com",
		Phone:         "+393331112222",
		RoomName:      "Camera Blu",
		StructureName: "Casa Mare",
		CheckIn:       "2025-06-01",
		CheckOut:      "2025-06-04",
		Nights:        3,
		People:        2,
		Total:         300,
	}
}

func TestPlainText_StripsMarkup(t *testing.T) {
	out := PlainText(`<p>Gentile <b>Mario</b>,</p><ul><li>Totale: 300 &euro;</li></ul><script>x()</script>`)
	assert.NotContains(t, out, "<")
	assert.Contains(t, out, "Gentile Mario,")
	assert.Contains(t, out, "Totale: 300 €")
}

func TestSMTPMailer_BuildAndSend(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.local", Port: "587", Username: "noreply@casa.it", Password: "pw", FromName: "Casa\r\nBcc: x"})
	var gotAddr string
	var gotMsg []byte
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.Equal(t, "noreply@casa.it", from)
		assert.Equal(t, []string{"mario@example.com"}, to)
		return nil
	}

	body, err := render("confirmed", "Conferma", view())
	require.NoError(t, err)
	require.NoError(t, m.Send(context.Background(), Email{To: "mario@example.com", Subject: "Conferma", HTML: body}))

	assert.Equal(t, "smtp.local:587", gotAddr)
	msg := string(gotMsg)
	assert.Contains(t, msg, "Content-Type: multipart/alternative")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, msg, "Camera Blu")
	assert.Contains(t, msg, "300.00 €")
	// header injection is neutralised
	assert.NotContains(t, msg, "\r\nBcc:")
}

func TestSMTPMailer_MockWhenUnconfigured(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{})
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("must not send")
		return nil
	}
	assert.NoError(t, m.Send(context.Background(), Email{To: "a@b.c", Subject: "s", HTML: "<p>x</p>"}))
	assert.Error(t, m.Send(context.Background(), Email{Subject: "s"}))
}

type fakeMessageAPI struct {
	sent []*twilioapi.CreateMessageParams
	err  error
}

func (f *fakeMessageAPI) CreateMessage(p *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, p)
	sid := "SM1"
	return &twilioapi.ApiV2010Message{Sid: &sid}, nil
}

func TestWhatsAppClient_Send(t *testing.T) {
	api := &fakeMessageAPI{}
	c := &WhatsAppClient{from: "+14155238886", api: api}
	require.NoError(t, c.SendWhatsApp(context.Background(), "+393331112222", "ciao"))

	require.Len(t, api.sent, 1)
	assert.Equal(t, "whatsapp:+393331112222", *api.sent[0].To)
	assert.Equal(t, "whatsapp:+14155238886", *api.sent[0].From)
	assert.Equal(t, "ciao", *api.sent[0].Body)

	api.err = &twilioclient.TwilioRestError{Status: 400, Code: 21211, Message: "invalid To"}
	err := c.SendWhatsApp(context.Background(), "+393331112222", "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid To")
	assert.Error(t, c.SendWhatsApp(context.Background(), " ", "x"))
}

func TestWhatsAppClient_WithoutAccountLogsOnly(t *testing.T) {
	c := NewWhatsAppClient(WhatsAppConfig{From: "+14155238886"})
	assert.Nil(t, c.api)
	assert.NoError(t, c.SendWhatsApp(context.Background(), "+393331112222", "ciao"))

	c = NewWhatsAppClient(WhatsAppConfig{AccountSID: "AC1", AuthToken: "tok", From: "+14155238886"})
	assert.NotNil(t, c.api)
}

func TestQueue_EnqueueAndNext(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	q := NewQueue(rdb)
	ctx := context.Background()

	job := Job{To: "+39333", Body: "ciao", QueuedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	raw, err := json.Marshal(job)
	require.NoError(t, err)

	mock.ExpectLPush(defaultQueueKey, raw).SetVal(1)
	require.NoError(t, q.Enqueue(ctx, job))

	mock.ExpectBRPop(q.timeout, defaultQueueKey).SetVal([]string{defaultQueueKey, string(raw)})
	got, err := q.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ciao", got.Body)

	mock.ExpectBRPop(q.timeout, defaultQueueKey).RedisNil()
	got, err = q.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeMessenger struct {
	sent []string
	err  error
}

func (f *fakeMessenger) SendWhatsApp(_ context.Context, to, body string) error {
	f.sent = append(f.sent, to+":"+body)
	return f.err
}

func TestQueue_HandleRequeuesFailures(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	q := NewQueue(rdb)
	m := &fakeMessenger{err: errors.New("down")}

	job := Job{To: "+39333", Body: "ciao", QueuedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	retry := job
	retry.Attempts = 1
	raw, _ := json.Marshal(retry)
	mock.ExpectLPush(defaultQueueKey, raw).SetVal(1)

	q.handle(context.Background(), m, job)

	// last attempt is dropped without re-queue
	job.Attempts = maxAttempts - 1
	q.handle(context.Background(), m, job)

	assert.Len(t, m.sent, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeMailer struct {
	sent []Email
	err  error
}

func (f *fakeMailer) Send(_ context.Context, e Email) error {
	f.sent = append(f.sent, e)
	return f.err
}

func TestDispatcher_ConfirmedReachesGuestAndOwner(t *testing.T) {
	mailer := &fakeMailer{}
	wa := &fakeMessenger{}
	d := NewDispatcher(mailer, wa, "owner@casa.it", "+39000")

	d.ReservationConfirmed(context.Background(), view())

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "mario@example.com", mailer.sent[0].To)
	assert.Equal(t, "owner@casa.it", mailer.sent[1].To)
	require.Len(t, wa.sent, 2)
	assert.True(t, strings.HasPrefix(wa.sent[0], "+393331112222:"))
	assert.True(t, strings.HasPrefix(wa.sent[1], "+39000:"))
}

func TestDispatcher_SwallowsFailures(t *testing.T) {
	d := NewDispatcher(&fakeMailer{err: errors.New("smtp down")}, &fakeMessenger{err: errors.New("wa down")}, "", "")
	assert.NotPanics(t, func() {
		d.ReservationCanceled(context.Background(), view())
		d.RefundIssued(context.Background(), view())
		d.CheckinReminder(context.Background(), view())
		d.EmailVerification(context.Background(), "a@b.c", "Anna", "http://x/verify")
	})
}
