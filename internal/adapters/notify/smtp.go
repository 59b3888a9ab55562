package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/okian/sudea/internal/domain/model"
)

// SMTPConfig holds the mail transport settings.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	ImplicitTLS bool
}

// SMTPSender delivers notifications over SMTP.
type SMTPSender struct {
	client *mail.Client
	from   string
}

// NewSMTPSender builds a sender. The connection is opened per message.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("%w: smtp host and from address are required", ErrInvalidConfig)
	}

	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.ImplicitTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

// Send implements worker.Sender.
func (s *SMTPSender) Send(ctx context.Context, n model.Notification) error {
	msg, err := buildMessage(s.from, n)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: smtp: %w", ErrDelivery, err)
	}
	return nil
}

func buildMessage(from string, n model.Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("%w: from address: %w", ErrDelivery, err)
	}
	if err := msg.To(n.To...); err != nil {
		return nil, fmt.Errorf("%w: recipients: %w", ErrDelivery, err)
	}
	msg.Subject(n.Subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, n.HTMLBody)
	return msg, nil
}
