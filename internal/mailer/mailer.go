package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/merchforge/apiserver/config"
	"go.uber.org/zap"
	"gopkg.in/mail.v2"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns the mailer selected by cfg.Driver.
func New(cfg config.MailConfig, logger *zap.Logger) (Mailer, error) {
	switch cfg.Driver {
	case config.MailDriverSMTP:
		return NewSMTPMailer(cfg, logger)
	case config.MailDriverLog:
		return NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

// SMTPMailer sends email over an implicit-TLS SMTP connection.
type SMTPMailer struct {
	dialer *mail.Dialer
	from   string
	logger *zap.Logger
}

// NewSMTPMailer constructs an SMTPMailer from config.
func NewSMTPMailer(cfg config.MailConfig, logger *zap.Logger) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.Username) == "" || cfg.Password == "" {
		return nil, errors.New("smtp username and password are required")
	}

	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = 20 * time.Second
	d.SSL = cfg.Port == 465
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	if !d.SSL {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}

	from := cfg.From
	if strings.TrimSpace(from) == "" {
		from = cfg.Username
	}

	return &SMTPMailer{dialer: d, from: from, logger: logger}, nil
}

// Send delivers msg. The context only bounds the wait; the SMTP dialog itself
// is limited by the dialer timeout.
func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			s.logger.Error("send email failed", zap.Error(err), zap.String("subject", msg.Subject))
			return fmt.Errorf("send email: %w", err)
		}
	}

	s.logger.Info("email sent", zap.String("subject", msg.Subject))
	return nil
}

// LogMailer writes emails to the logger instead of delivering them. Used in
// development and tests.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (l *LogMailer) Send(ctx context.Context, msg Message) error {
	l.logger.Info("email (log driver)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("bytes", len(msg.HTML)))
	return nil
}
