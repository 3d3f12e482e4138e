package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/channel"
	"github.com/lalithlochan/quorum/internal/circuitbreaker"
	"github.com/lalithlochan/quorum/internal/config"
	"github.com/lalithlochan/quorum/internal/metrics"
)

func newBreaker(name string, logger *zap.Logger) *circuitbreaker.Breaker {
	cfg := circuitbreaker.DefaultConfig(name)
	cfg.OnReject = metrics.RecordBreakerRejection
	return circuitbreaker.New(cfg, logger)
}

// buildChannels picks an adapter per channel from config and puts each
// behind its own breaker. The breakers are returned for the health endpoint.
func buildChannels(ctx context.Context, cfg *config.Config, logger *zap.Logger) (channel.Set, []*circuitbreaker.Breaker, error) {
	var (
		set      channel.Set
		breakers []*circuitbreaker.Breaker
		logOnly  = channel.NewLogSender(logger)
	)

	// Email
	var email channel.EmailSender
	switch cfg.EmailProvider {
	case config.EmailSES:
		ses, err := channel.NewSESSender(ctx, channel.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
		if err != nil {
			return set, nil, fmt.Errorf("failed to create SES email sender: %w", err)
		}
		email = ses
	case config.EmailSMTP:
		email = channel.NewSMTPSender(channel.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SESFromName,
		}, logger)
	default:
		email = logOnly
	}
	protectedEmail := channel.NewProtectedEmail(email, newBreaker("email-"+cfg.EmailProvider, logger))
	set.Email = protectedEmail
	breakers = append(breakers, protectedEmail.Breaker())

	// SMS
	if cfg.SMSEnabled {
		sms, err := channel.NewSNSSMSSender(ctx, channel.SNSConfig{Region: cfg.SNSRegion}, logger)
		if err != nil {
			logger.Warn("SNS sender unavailable, SMS notifications disabled", zap.Error(err))
		} else {
			protectedSMS := channel.NewProtectedSMS(sms, newBreaker("sns-sms", logger))
			set.SMS = protectedSMS
			breakers = append(breakers, protectedSMS.Breaker())
		}
	}

	// Push
	var push channel.PushSender
	switch cfg.PushProvider {
	case config.PushSNS:
		sns, err := channel.NewSNSPushSender(ctx, channel.SNSConfig{Region: cfg.SNSRegion}, logger)
		if err != nil {
			logger.Warn("SNS push unavailable, push notifications disabled", zap.Error(err))
		} else {
			push = sns
		}
	case config.PushRelay:
		push = channel.NewRelaySender(channel.RelayConfig{URL: cfg.PushRelayURL, Timeout: cfg.PushTimeout}, logger)
	default:
		push = logOnly
	}
	if push != nil {
		protectedPush := channel.NewProtectedPush(push, newBreaker("push-"+cfg.PushProvider, logger))
		set.Push = protectedPush
		breakers = append(breakers, protectedPush.Breaker())
	}

	logger.Info("initialized notification channels",
		zap.String("email_provider", cfg.EmailProvider),
		zap.Bool("sms_enabled", set.SMS != nil),
		zap.String("push_provider", cfg.PushProvider),
		zap.Bool("push_enabled", set.Push != nil),
	)

	return set, breakers, nil
}
