package purchases

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/payloads"
)

// Summary renders the human-readable booking text sent to the business chat.
func Summary(p *models.Purchase, productTitle string) string {
	profile, ok := profileFor(p.ProductKind)
	label := string(p.ProductKind)
	if ok {
		label = profile.label
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*New %s*\n", label)
	fmt.Fprintf(&b, "Service: %s\n", productTitle)
	fmt.Fprintf(&b, "Price: %s%s\n", p.Currency.Symbol(), FormatAmount(p.Amount))
	fmt.Fprintf(&b, "Name: %s\n", p.BuyerName)
	fmt.Fprintf(&b, "Email: %s\n", p.BuyerEmail)
	fmt.Fprintf(&b, "Phone: %s\n", p.BuyerPhone)
	writeLine(&b, "Date of Birth", p.Details.DateOfBirth)
	writeLine(&b, "Birth Time", p.Details.BirthTime)
	writeLine(&b, "Birth Place", p.Details.BirthPlace)
	writeLine(&b, "Questions", p.Details.Questions)
	if p.NewAccountRequested {
		b.WriteString("New account: yes\n")
	}
	fmt.Fprintf(&b, "Booking ID: %s", p.ID)
	return b.String()
}

func writeLine(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

// FormatAmount prints whole amounts without decimals and the rest with two places.
func FormatAmount(amount decimal.Decimal) string {
	if amount.IsInteger() {
		return amount.String()
	}
	return amount.StringFixed(2)
}

// SubmittedEvent builds the payload emitted when a purchase enters moderation.
func SubmittedEvent(p *models.Purchase, productTitle string) payloads.PurchaseSubmittedEvent {
	proofRef := ""
	if p.ProofRef != nil {
		proofRef = *p.ProofRef
	}
	return payloads.PurchaseSubmittedEvent{
		PurchaseID:  p.ID,
		ProductKind: p.ProductKind,
		ProductRef:  p.ProductRef,
		ProductName: productTitle,
		BuyerName:   p.BuyerName,
		BuyerEmail:  p.BuyerEmail,
		BuyerPhone:  p.BuyerPhone,
		Amount:      p.Amount,
		Currency:    p.Currency,
		ProofRef:    proofRef,
		Summary:     Summary(p, productTitle),
		SubmittedAt: p.UpdatedAt,
	}
}

func decidedEvent(p *models.Purchase, productTitle string, outcome enums.DecisionOutcome) payloads.PurchaseDecidedEvent {
	evt := payloads.PurchaseDecidedEvent{
		PurchaseID:      p.ID,
		ProductKind:     p.ProductKind,
		ProductRef:      p.ProductRef,
		ProductName:     productTitle,
		BuyerName:       p.BuyerName,
		BuyerEmail:      p.BuyerEmail,
		BuyerUserID:     p.BuyerUserID,
		Outcome:         outcome,
		Status:          p.Status,
		AccessExpiresAt: p.AccessExpiresAt,
		AccountCreated:  p.NewAccountRequested,
		Amount:          p.Amount,
		Currency:        p.Currency,
	}
	if p.DecisionNote != nil {
		evt.Note = *p.DecisionNote
	}
	if p.DecidedBy != nil {
		evt.DecidedBy = *p.DecidedBy
	}
	if p.DecidedAt != nil {
		evt.DecidedAt = *p.DecidedAt
	}
	return evt
}
