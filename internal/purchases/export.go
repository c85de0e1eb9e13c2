package purchases

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/pagination"
)

var exportHeader = []string{
	"purchase_id", "product_kind", "product", "buyer_name", "buyer_email", "buyer_phone",
	"amount", "currency", "status", "date_of_birth", "birth_time", "birth_place", "questions",
	"new_account", "decision_note", "created_at", "decided_at",
}

// Export writes every purchase matching filter as CSV in ledger order.
func (s *service) Export(ctx context.Context, w io.Writer, filter Filter) error {
	out := csv.NewWriter(w)
	if err := out.Write(exportHeader); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write export header")
	}

	var cursor *pagination.Cursor
	for {
		rows, err := s.repo.List(ctx, filter, cursor, pagination.MaxLimit)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list purchases for export")
		}
		items, err := s.toDTOs(ctx, rows)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := out.Write(exportRecord(item)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write export row")
			}
		}
		if len(rows) < pagination.MaxLimit {
			break
		}
		last := rows[len(rows)-1]
		cursor = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	out.Flush()
	if err := out.Error(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flush export")
	}
	return nil
}

func exportRecord(p PurchaseDTO) []string {
	note := ""
	if p.DecisionNote != nil {
		note = *p.DecisionNote
	}
	newAccount := "no"
	if p.NewAccountRequested {
		newAccount = "yes"
	}
	return []string{
		p.ID.String(),
		string(p.ProductKind),
		p.ProductTitle,
		p.BuyerName,
		p.BuyerEmail,
		p.BuyerPhone,
		p.Amount.StringFixed(2),
		string(p.Currency),
		string(p.Status),
		p.Details.DateOfBirth,
		p.Details.BirthTime,
		p.Details.BirthPlace,
		p.Details.Questions,
		newAccount,
		note,
		p.CreatedAt.UTC().Format(time.RFC3339),
		formatOptionalTime(p.DecidedAt),
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

