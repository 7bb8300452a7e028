package services

import (
	"context"
	"fmt"

	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Messenger delivers outbound chat messages.
type Messenger interface {
	Send(ctx context.Context, to, body string) error
}

type TwilioService struct {
	client *twilio.RestClient
	from   string // whatsapp:+14155238886
	log    *zap.Logger
}

// NewTwilioService creates a new Twilio service instance
func NewTwilioService(cfg config.TwilioConfig, log *zap.Logger) (*TwilioService, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.WhatsAppFrom == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}
	if log == nil {
		log = zap.NewNop()
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioService{
		client: client,
		from:   cfg.WhatsAppFrom,
		log:    log,
	}, nil
}

// Send sends a WhatsApp message via Twilio
func (t *TwilioService) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo("whatsapp:" + to)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		t.log.Error("failed to send WhatsApp message", zap.Error(err))
		return err
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, msg)
	}

	if resp.Sid != nil {
		t.log.Debug("WhatsApp message sent", zap.String("sid", *resp.Sid))
	}
	return nil
}

// LogMessenger writes outbound messages to the log when Twilio is not configured.
type LogMessenger struct {
	Log *zap.Logger
}

func (l LogMessenger) Send(_ context.Context, to, body string) error {
	l.Log.Info("outbound message", zap.String("to", to), zap.String("body", body))
	return nil
}
