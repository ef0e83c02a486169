// Package services отправляет письма по событиям из RabbitMQ.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/lib/smtp"
	"github.com/magabrotheeeer/vpn-access/internal/models"
)

// SenderService формирует и отправляет письма.
type SenderService struct {
	transport   smtp.TransportInterface
	log         *slog.Logger
	frontendURL string
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(log *slog.Logger, transport smtp.TransportInterface, frontendURL string) *SenderService {
	return &SenderService{
		transport:   transport,
		log:         log,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// SendTrialExpiring напоминает, что пробный период скоро закончится.
func (s *SenderService) SendTrialExpiring(ctx context.Context, body []byte) error {
	const op = "services.sender.SendTrialExpiring"
	var message models.TrialExpiringMessage
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: error unmarshalling message: %w", op, err)
	}
	if message.Email == "" {
		return fmt.Errorf("%s: message has no recipient", op)
	}

	subject := "Your VPN free trial ends soon"
	bodyText := fmt.Sprintf("Hello!\r\n\r\n"+
		"Your free VPN trial ends on %s.\r\n"+
		"After that you will not be able to sign in until you upgrade to VIP.\r\n\r\n"+
		"Upgrade here: %s/pricing\r\n",
		message.TrialExpiresAt.UTC().Format(time.RFC1123), s.frontendURL)

	return s.sendEmail(ctx, []string{message.Email}, subject, bodyText)
}

// SendAccountUpgraded подтверждает переход на VIP.
func (s *SenderService) SendAccountUpgraded(ctx context.Context, body []byte) error {
	const op = "services.sender.SendAccountUpgraded"
	var message models.AccountUpgradedMessage
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: error unmarshalling message: %w", op, err)
	}
	if message.Email == "" {
		return fmt.Errorf("%s: message has no recipient", op)
	}

	subject := "Welcome to VPN VIP"
	bodyText := fmt.Sprintf("Hello!\r\n\r\n"+
		"Your payment was received and your account is now VIP.\r\n"+
		"Your VPN configuration is available in the dashboard: %s/dashboard\r\n",
		s.frontendURL)

	return s.sendEmail(ctx, []string{message.Email}, subject, bodyText)
}

func (s *SenderService) sendEmail(ctx context.Context, to []string, subject, bodyText string) error {
	const op = "services.sender.sendEmail"
	log := s.log.With(slog.String("op", op))
	from := s.transport.GetSMTPUser()

	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect(ctx)
	if err != nil {
		log.Error("failed to connect to SMTP server", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		log.Error("failed to get Data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		log.Error("failed to write email body", sl.Err(err))
		_ = wc.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = wc.Close(); err != nil {
		log.Error("failed to close Data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = client.Quit(); err != nil {
		log.Error("failed to quit SMTP client", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email sent", slog.Int("recipients", len(to)))
	return nil
}
