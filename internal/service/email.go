package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qabox/qabox/internal/model"
	"github.com/resend/resend-go/v2"
)

const notificationPreviewLength = 280

type EmailService struct {
	client    *resend.Client
	fromEmail string
	toEmail   string
	isDev     bool
	appURL    string
	appName   string
}

// NewEmailService returns nil when no admin address is configured, which
// turns notifications off.
func NewEmailService(apiKey, fromEmail, toEmail, appURL, appName string, isDev bool) *EmailService {
	if toEmail == "" {
		return nil
	}

	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		toEmail:   toEmail,
		isDev:     isDev,
		appURL:    appURL,
		appName:   appName,
	}
}

// NotifyNewQuestion emails the admin a short preview of a new question.
func (s *EmailService) NotifyNewQuestion(ctx context.Context, question *model.Question) error {
	subject, body := newQuestionEmailTemplate(question, s.appURL, s.appName)

	if s.isDev {
		slog.Info("email sent (dev mode)", "type", "new_question", "to", s.toEmail, "subject", subject, "question_id", question.ID)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{s.toEmail},
		Subject: subject,
		Text:    body,
	}

	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err == nil {
		slog.Info("email sent", "type", "new_question", "to", s.toEmail, "question_id", question.ID)
	}
	return err
}

func newQuestionEmailTemplate(question *model.Question, appURL, appName string) (subject, body string) {
	subject = fmt.Sprintf("New question on %s", appName)

	preview := strings.TrimSpace(question.Content)
	if runes := []rune(preview); len(runes) > notificationPreviewLength {
		preview = string(runes[:notificationPreviewLength]) + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A new question was submitted at %s.\n\n", question.CreatedAt.Format(time.RFC1123))
	b.WriteString(preview)
	b.WriteString("\n\n")
	if len(question.Images) > 0 {
		fmt.Fprintf(&b, "Attached images: %d\n\n", len(question.Images))
	}
	fmt.Fprintf(&b, "Question ID: %s\n", question.ID)
	if appURL != "" {
		fmt.Fprintf(&b, "%s\n", appURL)
	}

	return subject, b.String()
}
