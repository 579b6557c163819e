package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Messenger sends a WhatsApp text.
type Messenger interface {
	SendWhatsApp(ctx context.Context, to, body string) error
}

// WhatsAppConfig holds the Twilio account used for WhatsApp messages.
type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// messageAPI is the part of the Twilio REST API used here.
type messageAPI interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

type WhatsAppClient struct {
	from string
	api  messageAPI // nil logs messages instead of sending them
}

func NewWhatsAppClient(cfg WhatsAppConfig) *WhatsAppClient {
	c := &WhatsAppClient{from: cfg.From}
	if cfg.AccountSID != "" && cfg.AuthToken != "" && cfg.From != "" {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		c.api = rest.Api
	}
	return c
}

func whatsappAddress(n string) string {
	n = strings.TrimSpace(n)
	if strings.HasPrefix(n, "whatsapp:") {
		return n
	}
	return "whatsapp:" + n
}

func (c *WhatsAppClient) SendWhatsApp(ctx context.Context, to, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("whatsapp message has no recipient")
	}
	if c.api == nil {
		slog.InfoContext(ctx, "[MOCK WHATSAPP]", slog.String("to", to), slog.String("body", body))
		return nil
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(whatsappAddress(to))
	params.SetFrom(whatsappAddress(c.from))
	params.SetBody(body)

	msg, err := c.api.CreateMessage(params)
	if err != nil {
		var apiErr *twilioclient.TwilioRestError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("whatsapp api returned status %d (code %d): %s: %w", apiErr.Status, apiErr.Code, apiErr.Message, err)
		}
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	if msg != nil && msg.Sid != nil {
		slog.DebugContext(ctx, "whatsapp sent", slog.String("sid", *msg.Sid))
	}
	return nil
}
