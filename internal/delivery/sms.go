package delivery

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
)

// ProviderSNS identifies receipts from Amazon SNS.
const ProviderSNS = "aws-sns"

// maxSMSLength is the SNS limit for a single SMS publish.
const maxSMSLength = 1600

var e164Pattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// SNSSender sends SMS through Amazon SNS direct-to-phone publishing.
type SNSSender struct {
	api      snsiface.SNSAPI
	senderID string
	smsType  string
}

// NewSNSSender creates an SMS adapter from an AWS session.
func NewSNSSender(sess *session.Session, senderID, smsType string) *SNSSender {
	return NewSNSSenderWithAPI(sns.New(sess), senderID, smsType)
}

// NewSNSSenderWithAPI creates an SMS adapter over an existing SNS client.
// An empty smsType defaults to Transactional.
func NewSNSSenderWithAPI(api snsiface.SNSAPI, senderID, smsType string) *SNSSender {
	if smsType == "" {
		smsType = "Transactional"
	}
	return &SNSSender{api: api, senderID: senderID, smsType: smsType}
}

// SendMessage publishes message to phone. messageType overrides the
// configured SMS type when it is Promotional or Transactional.
func (s *SNSSender) SendMessage(ctx context.Context, userID, phone, message, messageType, _ string) (SMSReceipt, error) {
	receipt := SMSReceipt{Provider: ProviderSNS, Status: StatusFailed}
	if s.api == nil {
		return receipt, ErrNotConfigured
	}
	if !e164Pattern.MatchString(phone) {
		return receipt, fmt.Errorf("%w: phone for user %s is not E.164", ErrInvalidRecipient, userID)
	}
	if len(message) > maxSMSLength {
		message = message[:maxSMSLength]
	}

	smsType := s.smsType
	if messageType == "Promotional" || messageType == "Transactional" {
		smsType = messageType
	}
	attrs := map[string]*sns.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String(smsType)},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = &sns.MessageAttributeValue{
			DataType: aws.String("String"), StringValue: aws.String(s.senderID),
		}
	}

	out, err := s.api.PublishWithContext(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return receipt, fmt.Errorf("%w: sns publish: %w", ErrProvider, err)
	}

	receipt.ID = aws.StringValue(out.MessageId)
	receipt.Status = StatusSent
	return receipt, nil
}
