// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package mailservice sends template-backed notification mail.
package mailservice

import (
	"bytes"
	"context"
	"net/smtp"
	"strings"
	texttemplate "text/template"

	"github.com/shopspring/decimal"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	// Error describes internal mailservice error.
	Error = errs.Class("mailservice")

	mon = monkit.Package()
)

// Config defines values needed by mailservice service.
type Config struct {
	SMTPServerAddress string `help:"smtp server address" default:""`
	From              string `help:"sender email address" default:"no-reply@countercart.io"`
	AuthType          string `help:"mail authentication type, simulate or plain" default:"simulate"`
	Login             string `help:"plain auth user login" default:""`
	Password          string `help:"plain auth user password" default:""`
}

// Message is one outgoing mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender sends emails.
type Sender interface {
	SendEmail(ctx context.Context, msg *Message) error
}

// SimulateSender logs messages instead of sending them. Used in
// development and tests.
type SimulateSender struct {
	log *zap.Logger
}

// NewSimulateSender creates a sender that only logs.
func NewSimulateSender(log *zap.Logger) *SimulateSender {
	return &SimulateSender{log: log}
}

// SendEmail implements Sender.
func (sender *SimulateSender) SendEmail(ctx context.Context, msg *Message) error {
	sender.log.Info("simulated email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

// SMTPSender delivers messages through a plain SMTP server.
type SMTPSender struct {
	config Config
}

// NewSMTPSender creates a sender talking to the configured SMTP server.
func NewSMTPSender(config Config) *SMTPSender {
	return &SMTPSender{config: config}
}

// SendEmail implements Sender.
func (sender *SMTPSender) SendEmail(ctx context.Context, msg *Message) error {
	var auth smtp.Auth
	if sender.config.AuthType == "plain" {
		host := sender.config.SMTPServerAddress
		if i := strings.Index(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", sender.config.Login, sender.config.Password, host)
	}

	var body bytes.Buffer
	body.WriteString("From: " + sender.config.From + "\r\n")
	body.WriteString("To: " + msg.To + "\r\n")
	body.WriteString("Subject: " + msg.Subject + "\r\n")
	body.WriteString("\r\n")
	body.WriteString(msg.Body)

	err := smtp.SendMail(sender.config.SMTPServerAddress, auth, sender.config.From, []string{msg.To}, body.Bytes())
	return Error.Wrap(err)
}

// NewSender creates the sender matching the configured auth type.
func NewSender(log *zap.Logger, config Config) Sender {
	if config.AuthType == "simulate" || config.SMTPServerAddress == "" {
		return NewSimulateSender(log)
	}
	return NewSMTPSender(config)
}

var (
	receiptTemplate = texttemplate.Must(texttemplate.New("receipt").Parse(
		`Hi {{.Name}},

your weekly round-up of ${{.Amount}} reached {{.Charities}}. Thank you for
countering your cart.

CounterCart
`))

	debitFailedTemplate = texttemplate.Must(texttemplate.New("debitFailed").Parse(
		`Hi {{.Name}},

we could not collect your weekly donation of ${{.Amount}} from your bank
account. No retry will happen automatically; please review your bank
connection in the dashboard.

CounterCart
`))

	itemAttentionTemplate = texttemplate.Must(texttemplate.New("itemAttention").Parse(
		`Hi,

your connection to {{.Institution}} needs attention ({{.Reason}}). Round-ups
pause until it is fixed. Please reconnect your bank in the dashboard.

CounterCart
`))
)

// Service renders and sends the notification mails of the donation
// pipeline.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	sender Sender
}

// New creates new mail service.
func New(log *zap.Logger, sender Sender) *Service {
	return &Service{log: log, sender: sender}
}

// SendDonationReceipt confirms completed giving to the user.
func (service *Service) SendDonationReceipt(ctx context.Context, email, name string, amount decimal.Decimal, charities []string) {
	service.send(ctx, email, "Your donations went through", receiptTemplate, map[string]string{
		"Name":      name,
		"Amount":    amount.StringFixed(2),
		"Charities": strings.Join(charities, ", "),
	})
}

// SendDebitFailed tells the user their weekly debit did not go through.
func (service *Service) SendDebitFailed(ctx context.Context, email, name string, amount decimal.Decimal) {
	service.send(ctx, email, "We could not collect your donation", debitFailedTemplate, map[string]string{
		"Name":   name,
		"Amount": amount.StringFixed(2),
	})
}

// SendItemAttention notifies the owner of a broken bank connection.
func (service *Service) SendItemAttention(ctx context.Context, email, institution, reason string) {
	service.send(ctx, email, "Your bank connection needs attention", itemAttentionTemplate, map[string]string{
		"Institution": institution,
		"Reason":      reason,
	})
}

// send renders and delivers one message. Mail failures are logged, never
// surfaced: notifications must not break the pipeline.
func (service *Service) send(ctx context.Context, to, subject string, tmpl *texttemplate.Template, data interface{}) {
	defer mon.Task()(&ctx)(nil)

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		service.log.Error("rendering mail failed", zap.String("subject", subject), zap.Error(err))
		return
	}

	err := service.sender.SendEmail(ctx, &Message{To: to, Subject: subject, Body: body.String()})
	if err != nil {
		service.log.Error("sending mail failed",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err))
	}
}
