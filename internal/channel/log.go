package channel

import (
	"context"

	"go.uber.org/zap"
)

// LogSender logs every message instead of delivering it (development and demos)
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendPush(ctx context.Context, token, title, body string, data map[string]string) (bool, error) {
	if err := validate(token, body); err != nil {
		return false, err
	}
	s.logger.Info("push logged (development mode)",
		zap.String("title", title),
		zap.String("body", body),
		zap.Any("data", data),
	)
	return true, nil
}

func (s *LogSender) SendSMS(ctx context.Context, phone, text string) (bool, error) {
	if err := validate(phone, text); err != nil {
		return false, err
	}
	s.logger.Info("sms logged (development mode)",
		zap.String("phone_number", phone),
		zap.String("text", text),
	)
	return true, nil
}

func (s *LogSender) SendEmail(ctx context.Context, to, subject, html, text string) (bool, error) {
	if err := validate(to, subject); err != nil {
		return false, err
	}
	s.logger.Info("email logged (development mode)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("html_bytes", len(html)),
	)
	return true, nil
}
