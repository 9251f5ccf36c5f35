package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// DefaultBrevoURL is the Brevo API base path. The SDK appends /smtp/email.
const DefaultBrevoURL = "https://api.brevo.com/v3"

// BrevoConfig holds the sender settings.
type BrevoConfig struct {
	APIKey      string
	URL         string
	SenderEmail string
	SenderName  string
	// AdminEmail, when set, receives a blind copy of every quote.
	AdminEmail string
}

// BrevoSender sends quote emails through the Brevo transactional API.
type BrevoSender struct {
	cfg    BrevoConfig
	emails *brevo.TransactionalEmailsApiService
}

// NewBrevoSender validates cfg. client may be nil.
func NewBrevoSender(cfg BrevoConfig, client *http.Client) (*BrevoSender, error) {
	if cfg.APIKey == "" || cfg.SenderEmail == "" {
		return nil, errors.New("missing Brevo configuration")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultBrevoURL
	}
	if cfg.SenderName == "" {
		cfg.SenderName = "Quote Bot"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	apiCfg := brevo.NewConfiguration()
	apiCfg.BasePath = cfg.URL
	apiCfg.HTTPClient = client
	apiCfg.AddDefaultHeader("api-key", cfg.APIKey)

	return &BrevoSender{cfg: cfg, emails: brevo.NewAPIClient(apiCfg).TransactionalEmailsApi}, nil
}

func (s *BrevoSender) SendQuote(ctx context.Context, q QuoteEmail) error {
	if q.Email == "" {
		return errors.New("quote has no recipient email")
	}
	htmlBody, textBody, err := Render(q)
	if err != nil {
		return err
	}

	msg := brevo.SendSmtpEmail{
		Sender:      &brevo.SendSmtpEmailSender{Email: s.cfg.SenderEmail, Name: s.cfg.SenderName},
		To:          []brevo.SendSmtpEmailTo{{Email: q.Email, Name: plainText(q.Name)}},
		Subject:     subject,
		HtmlContent: htmlBody,
		TextContent: textBody,
		Tags:        []string{"quote"},
	}
	if s.cfg.AdminEmail != "" {
		msg.Bcc = []brevo.SendSmtpEmailBcc{{Email: s.cfg.AdminEmail}}
	}

	accepted, resp, err := s.emails.SendTransacEmail(ctx, msg)
	if err != nil {
		var apiErr brevo.GenericSwaggerError
		if errors.As(err, &apiErr) && resp != nil {
			return fmt.Errorf("brevo API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(apiErr.Body()))
		}
		return fmt.Errorf("failed to call Brevo: %w", err)
	}
	slog.Info("Quote email accepted.", "quoteId", q.QuoteID, "messageId", accepted.MessageId)
	return nil
}
