package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OTPPurpose says what a code unlocks. The zero value is purchase enrollment.
type OTPPurpose int

const (
	OTPPurposeEnrollment OTPPurpose = iota
	OTPPurposePasswordReset
)

// OTPMessage carries a freshly issued code to the buyer.
type OTPMessage struct {
	Purpose      OTPPurpose
	Email        string
	Name         string
	Code         string
	ProductTitle string
	PurchaseID   uuid.UUID
	ExpiresAt    time.Time
}

// OTPSender delivers one-time codes.
type OTPSender interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
}

// OTPMailer emails codes through a Mailer.
type OTPMailer struct {
	mailer Mailer
	now    func() time.Time
}

// NewOTPMailer wraps mailer as an OTPSender.
func NewOTPMailer(mailer Mailer) *OTPMailer {
	return &OTPMailer{mailer: mailer, now: time.Now}
}

func (s *OTPMailer) SendOTP(ctx context.Context, msg OTPMessage) error {
	minutes := int(msg.ExpiresAt.Sub(s.now()).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	greeting := "Hello,"
	if msg.Name != "" {
		greeting = fmt.Sprintf("Hello %s,", msg.Name)
	}
	if msg.Purpose == OTPPurposePasswordReset {
		return s.mailer.Send(ctx, Message{
			To:      msg.Email,
			Subject: "Reset your Sacred Numerology password",
			Text: fmt.Sprintf(`%s

Your password reset code is %s

Enter it with your new password to finish the reset.
The code expires in %d minutes and can only be used once.

If you did not ask to reset your password, ignore this email. Your password stays unchanged.`, greeting, msg.Code, minutes),
		})
	}
	text := fmt.Sprintf(`%s

Your verification code is %s

Enter it to confirm your email and finish enrolling in %s.
The code expires in %d minutes and can only be used once.

Reference: %s

If you did not request this, ignore this email.`, greeting, msg.Code, msg.ProductTitle, minutes, msg.PurchaseID)

	return s.mailer.Send(ctx, Message{
		To:      msg.Email,
		Subject: "Your Sacred Numerology verification code",
		Text:    text,
	})
}
