// Package channel holds the delivery adapters behind the notification
// dispatcher: email over SES or SMTP, SMS and mobile push over SNS, push
// through an HTTP relay, and a log-only sender for development.
//
// Every adapter reports (true, nil) on success. A false result with a nil
// error means the provider refused without saying why.
package channel

import (
	"context"
	"errors"
)

// PushSender delivers a mobile push notification to a device token
type PushSender interface {
	SendPush(ctx context.Context, token, title, body string, data map[string]string) (bool, error)
}

// SMSSender delivers a text message to a phone number
type SMSSender interface {
	SendSMS(ctx context.Context, phone, text string) (bool, error)
}

// EmailSender delivers a multipart email
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html, text string) (bool, error)
}

// Set is the adapter bundle handed to the dispatcher. A nil member means the
// channel is not configured in this deployment.
type Set struct {
	Push  PushSender
	SMS   SMSSender
	Email EmailSender
}

var (
	errMissingRecipient = errors.New("missing recipient")
	errEmptyMessage     = errors.New("empty message")
)

func validate(recipient, message string) error {
	if recipient == "" {
		return errMissingRecipient
	}
	if message == "" {
		return errEmptyMessage
	}
	return nil
}
