package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

func TestNewSMTPMailer_RequiresHostAndFrom(t *testing.T) {
	_, err := NewSMTPMailer(config.NotifyConfig{}, logger.Nop())
	require.Error(t, err)

	_, err = NewSMTPMailer(config.NotifyConfig{SMTPHost: "smtp.example.com", SMTPFrom: "not an address"}, logger.Nop())
	require.Error(t, err)

	m, err := NewSMTPMailer(config.NotifyConfig{SMTPHost: "smtp.example.com", SMTPFrom: "Sacred Numerology <no-reply@example.com>"}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 587, m.cfg.SMTPPort)
	assert.Equal(t, 1, m.cfg.SMTPRetries)
}

func TestSMTPMailer_RetriesUntilDelivered(t *testing.T) {
	m, err := NewSMTPMailer(config.NotifyConfig{
		SMTPHost:    "smtp.example.com",
		SMTPFrom:    "no-reply@example.com",
		SMTPRetries: 3,
	}, logger.Nop())
	require.NoError(t, err)

	calls := 0
	m.deliver = func(context.Context, Message) error {
		calls++
		if calls < 2 {
			return errors.New("421 try again later")
		}
		return nil
	}

	require.NoError(t, m.Send(context.Background(), Message{To: "buyer@example.com", Subject: "hi", Text: "body"}))
	assert.Equal(t, 2, calls)
}

func TestSMTPMailer_GivesUpAfterRetries(t *testing.T) {
	m, err := NewSMTPMailer(config.NotifyConfig{
		SMTPHost:    "smtp.example.com",
		SMTPFrom:    "no-reply@example.com",
		SMTPRetries: 2,
	}, logger.Nop())
	require.NoError(t, err)

	calls := 0
	m.deliver = func(context.Context, Message) error {
		calls++
		return errors.New("550 mailbox unavailable")
	}

	err = m.Send(context.Background(), Message{To: "buyer@example.com", Subject: "hi", Text: "body"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, calls)
}

func TestSMTPMailer_RejectsBadRecipient(t *testing.T) {
	m, err := NewSMTPMailer(config.NotifyConfig{SMTPHost: "smtp.example.com", SMTPFrom: "no-reply@example.com"}, logger.Nop())
	require.NoError(t, err)
	m.deliver = func(context.Context, Message) error {
		t.Fatal("deliver must not be called")
		return nil
	}
	assert.Error(t, m.Send(context.Background(), Message{To: "nobody"}))
}

func TestBuildMessage_EncodesHeadersAndLineEndings(t *testing.T) {
	raw := string(buildMessage("no-reply@example.com", Message{
		To:      "buyer@example.com",
		Subject: "Namaste ✨\r\nBcc: evil@example.com",
		Text:    "line one\nline two",
	}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	assert.Contains(t, raw, "Subject: =?utf-8?q?")
	assert.NotContains(t, raw, "\r\nBcc:")
	assert.Contains(t, raw, "Date: Fri, 02 Jan 2026 03:04:05 +0000\r\n")
	assert.True(t, strings.HasSuffix(raw, "line one\r\nline two\r\n"))
}

func TestOTPMailer_ComposesCodeEmail(t *testing.T) {
	mailer := &fakeMailer{}
	sender := NewOTPMailer(mailer)
	sender.now = func() time.Time { return fixedNow }

	err := sender.SendOTP(context.Background(), OTPMessage{
		Email:        "asha@example.com",
		Name:         "Asha",
		Code:         "042917",
		ProductTitle: "Numerology Foundations",
		PurchaseID:   uuid.New(),
		ExpiresAt:    fixedNow.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "asha@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Text, "Hello Asha,")
	assert.Contains(t, mailer.sent[0].Text, "042917")
	assert.Contains(t, mailer.sent[0].Text, "expires in 10 minutes")
}

func TestOTPMailer_ComposesPasswordResetEmail(t *testing.T) {
	mailer := &fakeMailer{}
	sender := NewOTPMailer(mailer)
	sender.now = func() time.Time { return fixedNow }

	err := sender.SendOTP(context.Background(), OTPMessage{
		Purpose:   OTPPurposePasswordReset,
		Email:     "asha@example.com",
		Name:      "Asha",
		Code:      "550911",
		ExpiresAt: fixedNow.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Reset your Sacred Numerology password", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Text, "550911")
	assert.Contains(t, mailer.sent[0].Text, "expires in 10 minutes")
	assert.NotContains(t, mailer.sent[0].Text, "Reference:")
}

func TestLogMailer_NeverFails(t *testing.T) {
	assert.NoError(t, NewLogMailer(logger.Nop(), true).Send(context.Background(), Message{To: "a@example.com"}))
	assert.NoError(t, NewLogMailer(nil, false).Send(context.Background(), Message{To: "a@example.com"}))
}

func TestWhatsAppLink(t *testing.T) {
	link := WhatsAppLink("+91 90676-90333", "*New Course Enrollment*\nPrice: ₹4999 & more")
	assert.Equal(t, "https://wa.me/919067690333?text=%2ANew%20Course%20Enrollment%2A%0APrice%3A%20%E2%82%B94999%20%26%20more", link)
}
