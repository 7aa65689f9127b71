// Package email is the notification side of C10: it turns a completed
// batch's counters into an operator-facing email, reusing the teacher's
// SMTP worker-pool client and template manager rather than the protobuf/
// Kafka-routed relay the teacher built for end-user messaging — a batch
// outcome notification is a single synchronous send triggered by the
// facade, not an inbound request stream.
package email

import (
	"bytes"
	"context"
	"fmt"

	"fatorch/src/clients/email"
	"fatorch/src/fat/model"

	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

const batchOutcomeTemplateID templateID = "batch_outcome"

type Service struct {
	client       *email.Client
	templates    *templateManager
	from         string
	organization string
	logger       zerolog.Logger
}

type ServiceOptions struct {
	Client            *email.Client
	TemplatesLocation string
	From              string
	Organization      string
	Logger            zerolog.Logger
}

func NewService(options ServiceOptions) *Service {
	return &Service{
		client: options.Client,
		templates: newTemplateManager(&templateManagerOptions{
			Location: options.TemplatesLocation,
		}),
		from:         options.From,
		organization: options.Organization,
		logger:       options.Logger,
	}
}

// BatchOutcomeData is the template payload for the "batch_outcome" template
// pair (index.txt / index.html under TemplatesLocation/batch_outcome/<locale>).
type BatchOutcomeData struct {
	Batch    model.TestBatch
	Counters model.BatchCounters
}

// NotifyBatchOutcome sends the completion-with-failures (or full-pass)
// summary spec.md's Open Question decisions call for whenever a batch's
// counters show no instance left in a non-terminal state (§9).
func (s *Service) NotifyBatchOutcome(ctx context.Context, to []string, data BatchOutcomeData) error {
	if len(to) == 0 {
		return fmt.Errorf("notify_batch_outcome: no recipients configured")
	}

	tmpl, err := s.templates.Get(batchOutcomeTemplateID, defaultLocale)
	if err != nil {
		return fmt.Errorf("notify_batch_outcome: %w", err)
	}

	message := mail.NewMsg()
	if err := message.From(s.from); err != nil {
		return fmt.Errorf("notify_batch_outcome: failed to set from address: %w", err)
	}
	for _, recipient := range to {
		if err := message.AddTo(recipient); err != nil {
			return fmt.Errorf("notify_batch_outcome: failed to add recipient '%s': %w", recipient, err)
		}
	}
	message.Subject(fmt.Sprintf("FAT batch '%s' completed: %s", data.Batch.BatchID, data.Batch.OverallStatus))
	message.SetOrganization(s.organization)

	if tmpl.text != nil {
		var rendered bytes.Buffer
		if err := tmpl.text.Execute(&rendered, data); err != nil {
			return fmt.Errorf("notify_batch_outcome: failed to render text body: %w", err)
		}
		message.AddAlternativeString(mail.TypeTextPlain, rendered.String())
	}
	if tmpl.html != nil {
		var rendered bytes.Buffer
		if err := tmpl.html.Execute(&rendered, data); err != nil {
			return fmt.Errorf("notify_batch_outcome: failed to render html body: %w", err)
		}
		message.AddAlternativeString(mail.TypeTextHTML, rendered.String())
	}

	response := make(chan error, 1)
	if err := s.client.Send(email.Request{
		SendOptions: email.SendEmailOptions{
			Email: message,
			SendOptions: &smtp.MailOptions{
				Return: smtp.DSNReturnHeaders,
			},
			ReceiveOptions: &smtp.RcptOptions{
				Notify: []smtp.DSNNotify{smtp.DSNNotifyFailure},
			},
		},
		Response: response,
	}); err != nil {
		return fmt.Errorf("notify_batch_outcome: %w", err)
	}

	if err := <-response; err != nil {
		s.logger.Error().Err(err).Str("batch_id", data.Batch.BatchID).Msg("failed to deliver batch outcome email")
		return fmt.Errorf("notify_batch_outcome: %w", err)
	}
	return nil
}
