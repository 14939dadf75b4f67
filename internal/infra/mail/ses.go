package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

func NewSESClient(cfg aws.Config) *sesv2.Client {
	return sesv2.NewFromConfig(cfg)
}

type SESSender struct {
	client SESClient
	from   string
}

func NewSESSender(cfg *MailConfig, client SESClient) *SESSender {
	return &SESSender{client: client, from: cfg.From}
}

func (s *SESSender) SendMail(ctx context.Context, to []string, subject string, body Body) error {
	mailBody := &types.Body{}
	if body.Text != "" {
		mailBody.Text = utf8(body.Text)
	}
	if body.HTML != "" {
		mailBody.Html = utf8(body.HTML)
	}
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8(subject),
				Body:    mailBody,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	slog.Info("mail sent", "driver", DriverSES, "to", to, "messageID", aws.ToString(out.MessageId))
	return nil
}

func utf8(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}
