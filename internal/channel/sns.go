package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSConfig struct {
	Region   string
	SenderID string // optional alphanumeric sender ID for SMS
}

func newSNSClient(ctx context.Context, region string) (*sns.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}
	return sns.NewFromConfig(awsCfg), nil
}

// SNSSMSSender sends SMS via direct-to-phone SNS publishes
type SNSSMSSender struct {
	client   snsAPI
	senderID string
	logger   *zap.Logger
}

func NewSNSSMSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSMSSender, error) {
	client, err := newSNSClient(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	return &SNSSMSSender{client: client, senderID: cfg.SenderID, logger: logger}, nil
}

func (s *SNSSMSSender) SendSMS(ctx context.Context, phone, text string) (bool, error) {
	if err := validate(phone, text); err != nil {
		return false, err
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	result, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(text),
		MessageAttributes: attrs,
	})
	if err != nil {
		return false, fmt.Errorf("sns sms publish failed: %w", err)
	}

	s.logger.Info("SMS sent via SNS",
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return true, nil
}

// SNSPushSender publishes to SNS mobile platform endpoints. The device token
// stored on the user is the endpoint ARN.
type SNSPushSender struct {
	client snsAPI
	logger *zap.Logger
}

func NewSNSPushSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSPushSender, error) {
	client, err := newSNSClient(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	return &SNSPushSender{client: client, logger: logger}, nil
}

type gcmPayload struct {
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
	Data map[string]string `json:"data,omitempty"`
}

type apnsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// buildPushMessage renders the per-platform JSON envelope SNS expects when
// MessageStructure is "json"
func buildPushMessage(title, body string, data map[string]string) (string, error) {
	var gcm gcmPayload
	gcm.Notification.Title = title
	gcm.Notification.Body = body
	gcm.Data = data

	gcmJSON, err := json.Marshal(gcm)
	if err != nil {
		return "", fmt.Errorf("marshal gcm payload: %w", err)
	}

	apns := map[string]any{
		"aps": map[string]any{
			"alert": apnsAlert{Title: title, Body: body},
			"sound": "default",
		},
	}
	for k, v := range data {
		apns[k] = v
	}
	apnsJSON, err := json.Marshal(apns)
	if err != nil {
		return "", fmt.Errorf("marshal apns payload: %w", err)
	}

	envelope, err := json.Marshal(map[string]string{
		"default":      body,
		"GCM":          string(gcmJSON),
		"APNS":         string(apnsJSON),
		"APNS_SANDBOX": string(apnsJSON),
	})
	if err != nil {
		return "", fmt.Errorf("marshal push envelope: %w", err)
	}
	return string(envelope), nil
}

func (s *SNSPushSender) SendPush(ctx context.Context, token, title, body string, data map[string]string) (bool, error) {
	if err := validate(token, body); err != nil {
		return false, err
	}

	message, err := buildPushMessage(title, body, data)
	if err != nil {
		return false, err
	}

	result, err := s.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(token),
		Message:          aws.String(message),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		return false, fmt.Errorf("sns push publish failed: %w", err)
	}

	s.logger.Info("push sent via SNS",
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return true, nil
}
