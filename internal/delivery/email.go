package delivery

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
)

// ProviderSES identifies receipts from Amazon SES.
const ProviderSES = "aws-ses"

const charset = "UTF-8"

// SESSender sends plain-text email through Amazon SES.
type SESSender struct {
	api    sesiface.SESAPI
	sender string
}

// NewSESSender creates an email adapter from an AWS session.
func NewSESSender(sess *session.Session, sender string) *SESSender {
	return NewSESSenderWithAPI(ses.New(sess), sender)
}

// NewSESSenderWithAPI creates an email adapter over an existing SES client.
func NewSESSenderWithAPI(api sesiface.SESAPI, sender string) *SESSender {
	return &SESSender{api: api, sender: sender}
}

// SendEmail sends subject and body to a single recipient.
func (s *SESSender) SendEmail(ctx context.Context, to, subject, body string) (EmailReceipt, error) {
	receipt := EmailReceipt{Provider: ProviderSES, Status: StatusFailed}
	if s.api == nil || s.sender == "" {
		return receipt, ErrNotConfigured
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return receipt, fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}

	out, err := s.api.SendEmailWithContext(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.sender),
		Destination: &ses.Destination{ToAddresses: []*string{aws.String(to)}},
		Message: &ses.Message{
			Subject: &ses.Content{Charset: aws.String(charset), Data: aws.String(subject)},
			Body: &ses.Body{
				Text: &ses.Content{Charset: aws.String(charset), Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return receipt, fmt.Errorf("%w: ses send: %w", ErrProvider, err)
	}

	receipt.ID = aws.StringValue(out.MessageId)
	receipt.Status = StatusSent
	return receipt, nil
}
