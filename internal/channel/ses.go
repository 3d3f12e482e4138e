package channel

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

type sesAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender sends email via AWS SES
type SESSender struct {
	client sesAPI
	source string
	logger *zap.Logger
}

type SESConfig struct {
	Region    string
	FromEmail string
	FromName  string
}

func NewSESSender(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}

	return &SESSender{
		client: ses.NewFromConfig(awsCfg),
		source: (&mail.Address{Name: cfg.FromName, Address: cfg.FromEmail}).String(),
		logger: logger,
	}, nil
}

// SendEmail sends an HTML email with a plain-text alternative
func (s *SESSender) SendEmail(ctx context.Context, to, subject, html, text string) (bool, error) {
	if err := validate(to, subject); err != nil {
		return false, err
	}

	body := &types.Body{}
	if html != "" {
		body.Html = &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")}
	}
	if text != "" {
		body.Text = &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")}
	}
	if body.Html == nil && body.Text == nil {
		return false, errEmptyMessage
	}

	result, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(s.source),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	})
	if err != nil {
		return false, fmt.Errorf("ses send failed: %w", err)
	}

	s.logger.Info("email sent via SES",
		zap.String("to", to),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return true, nil
}
