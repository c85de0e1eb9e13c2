package purchases

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sacrednumerology/sacred-backend/api/controllers/requestctx"
	"github.com/sacrednumerology/sacred-backend/api/middleware"
	"github.com/sacrednumerology/sacred-backend/api/responses"
	"github.com/sacrednumerology/sacred-backend/api/validators"
	"github.com/sacrednumerology/sacred-backend/internal/proofs"
	internalpurchases "github.com/sacrednumerology/sacred-backend/internal/purchases"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/types"
)

const proofField = "paymentProof"

// Create accepts a multipart purchase submission with its payment proof.
func Create(svc internalpurchases.Service, maxProofBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		if err := validators.ParseMultipart(w, r, maxProofBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		input, err := createInputFromForm(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		file, header, err := validators.FormFile(r, proofField)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer file.Close()
		input.Proof = proofs.Upload{Filename: header.Filename, Body: file}

		result, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			ctx := logg.WithPurchaseID(r.Context(), result.PurchaseID.String())
			logg.Info(ctx, "purchase.submitted")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func createInputFromForm(r *http.Request) (internalpurchases.CreateInput, error) {
	var input internalpurchases.CreateInput

	kind, err := enums.ParseProductKind(r.FormValue("productKind"))
	if err != nil {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{"productKind": "is invalid"})
	}
	ref, err := validators.ParseUUID(r.FormValue("productRef"), "productRef")
	if err != nil {
		return input, err
	}
	amount, err := decimal.NewFromString(validators.FormValue(r, "amount"))
	if err != nil {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{"amount": "must be a number"})
	}
	newAccount, err := validators.FormBool(r, "newAccount")
	if err != nil {
		return input, err
	}

	input = internalpurchases.CreateInput{
		ProductKind: kind,
		ProductRef:  ref,
		BuyerName:   validators.FormValue(r, "name"),
		BuyerEmail:  validators.FormValue(r, "email"),
		BuyerPhone:  validators.FormValue(r, "phone"),
		BuyerUserID: requestctx.OptionalUserID(r),
		Amount:      amount,
		Details: types.PurchaseDetails{
			DateOfBirth: validators.FormValue(r, "dob"),
			BirthTime:   validators.FormValue(r, "birthTime"),
			BirthPlace:  validators.FormValue(r, "birthPlace"),
			Questions:   validators.FormValue(r, "questions"),
		},
		NewAccount: newAccount,
		Password:   r.FormValue("password"),
	}
	return input, nil
}

// ReplaceProof swaps the payment proof of a purchase that is still pending.
func ReplaceProof(svc internalpurchases.Service, maxProofBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		purchaseID, err := validators.ParseUUID(chi.URLParam(r, "purchaseId"), "purchaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := validators.ParseMultipart(w, r, maxProofBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := validators.FormFile(r, proofField)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer file.Close()

		email := validators.FormValue(r, "email")
		purchase, err := svc.AttachProof(r.Context(), purchaseID, email, proofs.Upload{Filename: header.Filename, Body: file})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, purchase)
	}
}

// Mine lists the caller's own purchases, newest first.
func Mine(svc internalpurchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		userID, err := requestctx.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListForBuyer(r.Context(), userID, middleware.EmailFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": list})
	}
}
