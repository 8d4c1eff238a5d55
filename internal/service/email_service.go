package service

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"abapractice/internal/metrics"
)

// sesAPI is the slice of the SES client the service uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client     sesAPI
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	logger     *zap.Logger
}

// NewEmailService creates a new email service. An empty fromEmail yields a
// disabled service that logs and skips every send.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, appBaseURL string, logger *zap.Logger) (*EmailService, error) {
	if fromEmail == "" {
		logger.Info("email service disabled: ses_from_email not configured")
		return &EmailService{enabled: false, logger: logger, appBaseURL: appBaseURL}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("email service enabled", zap.String("from", fromEmail), zap.String("region", awsRegion))
	return newEmailServiceWithClient(sesv2.NewFromConfig(cfg), fromEmail, fromName, appBaseURL, logger), nil
}

func newEmailServiceWithClient(client sesAPI, fromEmail, fromName, appBaseURL string, logger *zap.Logger) *EmailService {
	return &EmailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
		logger:     logger,
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s != nil && s.enabled
}

type emailContent struct {
	Name        string
	PatientName string
	Email       string
	Password    string
	Link        string
}

var (
	resetHTML = htmltemplate.Must(htmltemplate.New("reset").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<p>Olá {{.Name}},</p>
<p>Recebemos um pedido para redefinir sua senha.</p>
<p><a href="{{.Link}}">Redefinir senha</a></p>
<p style="font-size: 12px; color: #666;">{{.Link}}</p>
<p><strong>O link expira em 1 hora.</strong> Se você não fez este pedido, ignore este email.</p>
</body></html>`))
	resetText = texttemplate.Must(texttemplate.New("reset").Parse(`Olá {{.Name}},

Recebemos um pedido para redefinir sua senha. Acesse o link abaixo (válido por 1 hora):

{{.Link}}

Se você não fez este pedido, ignore este email.
`))

	welcomeHTML = htmltemplate.Must(htmltemplate.New("welcome").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<p>Olá {{.Name}},</p>
<p>Sua conta foi criada e o período de teste já começou.</p>
<p><a href="{{.Link}}">Acessar o painel</a></p>
</body></html>`))
	welcomeText = texttemplate.Must(texttemplate.New("welcome").Parse(`Olá {{.Name}},

Sua conta foi criada e o período de teste já começou.

{{.Link}}
`))

	invitationHTML = htmltemplate.Must(htmltemplate.New("invitation").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<p>Olá {{.Name}},</p>
<p>Você recebeu acesso ao portal da família para acompanhar o progresso de <strong>{{.PatientName}}</strong>.</p>
<p>Email: {{.Email}}<br>Senha temporária: <code>{{.Password}}</code></p>
<p>No primeiro acesso você precisará definir uma nova senha.</p>
<p><a href="{{.Link}}">Entrar no portal</a></p>
</body></html>`))
	invitationText = texttemplate.Must(texttemplate.New("invitation").Parse(`Olá {{.Name}},

Você recebeu acesso ao portal da família para acompanhar o progresso de {{.PatientName}}.

Email: {{.Email}}
Senha temporária: {{.Password}}

No primeiro acesso você precisará definir uma nova senha.

{{.Link}}
`))
)

func render(html *htmltemplate.Template, text *texttemplate.Template, data emailContent) (string, string, error) {
	var h, t bytes.Buffer
	if err := html.Execute(&h, data); err != nil {
		return "", "", fmt.Errorf("failed to render html body: %w", err)
	}
	if err := text.Execute(&t, data); err != nil {
		return "", "", fmt.Errorf("failed to render text body: %w", err)
	}
	return h.String(), t.String(), nil
}

// SendPasswordResetEmail sends a password reset link
func (s *EmailService) SendPasswordResetEmail(ctx context.Context, toEmail, toName, resetToken string) error {
	if s == nil {
		return nil
	}
	data := emailContent{Name: toName, Link: fmt.Sprintf("%s/reset-password?token=%s", s.appBaseURL, resetToken)}
	htmlBody, textBody, err := render(resetHTML, resetText, data)
	if err != nil {
		return err
	}
	return s.send(ctx, "password_reset", toEmail, "Redefinição de senha", htmlBody, textBody)
}

// SendWelcomeEmail greets a new practitioner
func (s *EmailService) SendWelcomeEmail(ctx context.Context, toEmail, toName string) error {
	if s == nil {
		return nil
	}
	data := emailContent{Name: toName, Link: s.appBaseURL + "/dashboard"}
	htmlBody, textBody, err := render(welcomeHTML, welcomeText, data)
	if err != nil {
		return err
	}
	return s.send(ctx, "welcome", toEmail, "Bem-vindo(a)", htmlBody, textBody)
}

// SendFamilyInvitation tells a guardian how to sign in to the family portal
func (s *EmailService) SendFamilyInvitation(ctx context.Context, toEmail, familyName, patientName, temporaryPassword string) error {
	if s == nil {
		return nil
	}
	data := emailContent{
		Name:        familyName,
		PatientName: patientName,
		Email:       toEmail,
		Password:    temporaryPassword,
		Link:        s.appBaseURL + "/family",
	}
	htmlBody, textBody, err := render(invitationHTML, invitationText, data)
	if err != nil {
		return err
	}
	return s.send(ctx, "invitation", toEmail, "Acesso ao portal da família", htmlBody, textBody)
}

func (s *EmailService) send(ctx context.Context, kind, toEmail, subject, htmlBody, textBody string) error {
	if !s.IsEnabled() {
		metrics.EmailsSent.WithLabelValues(kind, "disabled").Inc()
		if s != nil {
			s.logger.Debug("skipping email send (service disabled)", zap.String("kind", kind), zap.String("to", toEmail))
		}
		return nil
	}

	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		metrics.EmailsSent.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	metrics.EmailsSent.WithLabelValues(kind, "ok").Inc()
	fields := []zap.Field{zap.String("kind", kind), zap.String("to", toEmail)}
	if result != nil && result.MessageId != nil {
		fields = append(fields, zap.String("message_id", *result.MessageId))
	}
	s.logger.Info("email sent", fields...)
	return nil
}
