package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig holds the outgoing server account
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	TLS      bool
}

// Notification is one plain-text message, optionally with a file attached
type Notification struct {
	To             string
	Subject        string
	Body           string
	AttachmentPath string
}

// Sender delivers notifications through an SMTP relay
type Sender struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSender(cfg SMTPConfig, logger *slog.Logger) *Sender {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &Sender{cfg: cfg, logger: logger}
}

// Notify builds and sends one message. A missing attachment is logged and
// the message is sent without it.
func (s *Sender) Notify(ctx context.Context, n Notification) error {
	msg, err := s.build(n)
	if err != nil {
		return err
	}

	c, err := gomail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", n.To, err)
	}

	s.logger.Info("Notification sent", "to", n.To, "subject", n.Subject)
	return nil
}

func (s *Sender) build(n Notification) (*gomail.Msg, error) {
	if n.To == "" {
		return nil, errors.New("notification has no recipient")
	}

	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", s.cfg.From, err)
	}
	if err := msg.To(n.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", n.To, err)
	}
	msg.Subject(n.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, n.Body)

	if n.AttachmentPath != "" {
		if _, err := os.Stat(n.AttachmentPath); err != nil {
			s.logger.Warn("Attachment not found, sending without it", "file", n.AttachmentPath, "error", err)
		} else {
			msg.AttachFile(n.AttachmentPath, gomail.WithFileName(filepath.Base(n.AttachmentPath)))
		}
	}
	return msg, nil
}

func (s *Sender) options() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTimeout(30 * time.Second),
	}
	if s.cfg.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.User),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	if s.cfg.TLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	return opts
}
