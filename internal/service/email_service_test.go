package service

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestEmailServiceDisabled(t *testing.T) {
	svc, err := NewEmailService(context.Background(), "us-east-1", "", "", "http://localhost", zap.NewNop())
	require.NoError(t, err)
	assert.False(t, svc.IsEnabled())
	assert.NoError(t, svc.SendFamilyInvitation(context.Background(), "a@example.com", "Ana", "Lucas", "temp123"))

	var nilSvc *EmailService
	assert.False(t, nilSvc.IsEnabled())
	assert.NoError(t, nilSvc.SendWelcomeEmail(context.Background(), "a@example.com", "Ana"))
}

func TestSendFamilyInvitation(t *testing.T) {
	ses := &fakeSES{}
	svc := newEmailServiceWithClient(ses, "no-reply@clinic.example", "Clínica", "https://clinic.example", zap.NewNop())

	require.NoError(t, svc.SendFamilyInvitation(context.Background(), "ana@example.com", "Ana <b>", "Lucas", "temp123"))
	require.Len(t, ses.inputs, 1)

	in := ses.inputs[0]
	assert.Equal(t, "Clínica <no-reply@clinic.example>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ana@example.com"}, in.Destination.ToAddresses)

	html := aws.ToString(in.Content.Simple.Body.Html.Data)
	text := aws.ToString(in.Content.Simple.Body.Text.Data)
	assert.Contains(t, html, "Ana &lt;b&gt;")
	assert.Contains(t, html, "https://clinic.example/family")
	assert.Contains(t, text, "Senha temporária: temp123")
	assert.Contains(t, text, "Lucas")
}

func TestSendPasswordResetEmailError(t *testing.T) {
	ses := &fakeSES{err: errors.New("throttled")}
	svc := newEmailServiceWithClient(ses, "no-reply@clinic.example", "", "https://clinic.example", zap.NewNop())

	err := svc.SendPasswordResetEmail(context.Background(), "psy@example.com", "Paula", "tok")
	require.Error(t, err)
	assert.Equal(t, "no-reply@clinic.example", aws.ToString(ses.inputs[0].FromEmailAddress))
	assert.Contains(t, aws.ToString(ses.inputs[0].Content.Simple.Body.Text.Data), "https://clinic.example/reset-password?token=tok")
}
