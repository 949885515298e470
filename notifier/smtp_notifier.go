package notifier

import (
	"context"
	"fmt"
	"net/smtp"

	pkgerrors "github.com/pkg/errors"
)

var _ Notifier = (*SMTPNotifier)(nil)

// SMTPNotifier delivers email notifications over plain SMTP with auth.
type SMTPNotifier struct {
	host     string
	port     string
	account  string
	password string
	from     string
}

func NewSMTPNotifier(host, port, account, password, from string) *SMTPNotifier {
	if from == "" {
		from = account
	}
	return &SMTPNotifier{
		host:     host,
		port:     port,
		account:  account,
		password: password,
		from:     from,
	}
}

func (n *SMTPNotifier) Send(_ context.Context, channel ChannelType, destination, subject, body string) error {
	if channel != ChannelEmail {
		return pkgerrors.Errorf("[SMTPNotifier.Send] unsupported channel %q", channel)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", n.from, destination, subject, body)
	auth := smtp.PlainAuth("", n.account, n.password, n.host)
	if err := smtp.SendMail(n.host+":"+n.port, auth, n.from, []string{destination}, []byte(msg)); err != nil {
		return pkgerrors.Wrap(err, "[SMTPNotifier.Send] smtp.SendMail")
	}
	return nil
}
