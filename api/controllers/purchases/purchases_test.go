package purchases

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/api/middleware"
	"github.com/sacrednumerology/sacred-backend/internal/proofs"
	internalpurchases "github.com/sacrednumerology/sacred-backend/internal/purchases"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

type stubPurchaseService struct {
	listParams   internalpurchases.ListParams
	exportFilter internalpurchases.Filter
	created      internalpurchases.CreateInput
	proofBytes   []byte
	attachedID   uuid.UUID
	attachedBy   string
	listedUser   uuid.UUID
	listedEmail  string
	createResult *internalpurchases.CreateResult
}

func (s *stubPurchaseService) Create(_ context.Context, input internalpurchases.CreateInput) (*internalpurchases.CreateResult, error) {
	s.created = input
	s.proofBytes, _ = io.ReadAll(input.Proof.Body)
	if s.createResult != nil {
		return s.createResult, nil
	}
	return &internalpurchases.CreateResult{PurchaseID: uuid.New(), Status: enums.PurchaseStatusPendingModeration, NextStep: enums.NextStepAwaitModeration}, nil
}

func (s *stubPurchaseService) AttachProof(_ context.Context, purchaseID uuid.UUID, buyerEmail string, upload proofs.Upload) (*internalpurchases.PurchaseDTO, error) {
	s.attachedID = purchaseID
	s.attachedBy = buyerEmail
	s.proofBytes, _ = io.ReadAll(upload.Body)
	return &internalpurchases.PurchaseDTO{ID: purchaseID, HasProof: true}, nil
}

func (s *stubPurchaseService) Decide(context.Context, internalpurchases.DecideInput) (*internalpurchases.PurchaseDTO, error) {
	panic("unimplemented")
}

func (s *stubPurchaseService) Get(context.Context, uuid.UUID) (*internalpurchases.PurchaseDTO, error) {
	panic("unimplemented")
}

func (s *stubPurchaseService) OpenProof(context.Context, uuid.UUID) (io.ReadCloser, string, error) {
	panic("unimplemented")
}

func (s *stubPurchaseService) ListByStatus(_ context.Context, params internalpurchases.ListParams) (*internalpurchases.ListResult, error) {
	s.listParams = params
	return &internalpurchases.ListResult{Items: []internalpurchases.PurchaseDTO{{ID: uuid.New()}}}, nil
}

func (s *stubPurchaseService) ListForBuyer(_ context.Context, userID uuid.UUID, email string) ([]internalpurchases.PurchaseDTO, error) {
	s.listedUser = userID
	s.listedEmail = email
	return []internalpurchases.PurchaseDTO{{ID: uuid.New()}}, nil
}

func (s *stubPurchaseService) Stats(context.Context) ([]internalpurchases.StatusCount, error) {
	return []internalpurchases.StatusCount{{Kind: enums.ProductKindCourse, Status: enums.PurchaseStatusApproved, Count: 3}}, nil
}

func (s *stubPurchaseService) Export(_ context.Context, w io.Writer, filter internalpurchases.Filter) error {
	s.exportFilter = filter
	_, err := io.WriteString(w, "id,status\n")
	return err
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if file != nil {
		part, err := mw.CreateFormFile(proofField, "upi.png")
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		_, _ = part.Write(file)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateParsesMultipartSubmission(t *testing.T) {
	svc := &stubPurchaseService{}
	ref := uuid.New()
	req := multipartRequest(t, http.MethodPost, "/api/v1/purchases", map[string]string{
		"productKind": "consultation",
		"productRef":  ref.String(),
		"name":        " Priya Sharma ",
		"email":       "priya@example.com",
		"phone":       "+919800000000",
		"amount":      "2100",
		"dob":         "1992-03-14",
		"birthTime":   "06:45",
		"birthPlace":  "Pune",
		"questions":   "Career change?",
	}, []byte("proof-bytes"))
	resp := httptest.NewRecorder()

	Create(svc, 1<<20, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	got := svc.created
	if got.ProductKind != enums.ProductKindConsultation || got.ProductRef != ref {
		t.Fatalf("unexpected product %s %s", got.ProductKind, got.ProductRef)
	}
	if got.BuyerName != "Priya Sharma" || got.Amount.String() != "2100" {
		t.Fatalf("unexpected buyer fields %+v", got)
	}
	if got.Details.BirthPlace != "Pune" || got.Details.Questions != "Career change?" {
		t.Fatalf("unexpected details %+v", got.Details)
	}
	if got.BuyerUserID != nil || got.NewAccount {
		t.Fatal("anonymous submission must not carry a user or registration")
	}
	if string(svc.proofBytes) != "proof-bytes" {
		t.Fatalf("unexpected proof body %q", svc.proofBytes)
	}

	var payload struct {
		Data struct {
			NextStep string `json:"nextStep"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.NextStep != string(enums.NextStepAwaitModeration) {
		t.Fatalf("unexpected next step %q", payload.Data.NextStep)
	}
}

// Overlong or trailing-garbage fields reach the service untouched so it can
// reject them, instead of being cut into a different valid value.
func TestCreatePassesFieldsThroughUncut(t *testing.T) {
	svc := &stubPurchaseService{}
	longEmail := strings.Repeat("a", 290) + "@example.com"
	longPlace := strings.Repeat("Pune ", 40) + "East"
	req := multipartRequest(t, http.MethodPost, "/api/v1/purchases", map[string]string{
		"productKind": "consultation",
		"productRef":  uuid.NewString(),
		"name":        "Priya Sharma",
		"email":       longEmail,
		"phone":       "+919800000000",
		"amount":      "2100",
		"dob":         "1992-03-14-garbage",
		"birthTime":   "06:4599",
		"birthPlace":  longPlace,
	}, []byte("proof-bytes"))
	resp := httptest.NewRecorder()

	Create(svc, 1<<20, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected the stub to be reached, got %d: %s", resp.Code, resp.Body.String())
	}
	got := svc.created
	if got.Details.DateOfBirth != "1992-03-14-garbage" || got.Details.BirthTime != "06:4599" {
		t.Fatalf("birth fields were altered: %+v", got.Details)
	}
	if got.BuyerEmail != longEmail || got.Details.BirthPlace != longPlace {
		t.Fatal("long fields were truncated")
	}
}

func TestCreateTakesBuyerFromSessionOnly(t *testing.T) {
	svc := &stubPurchaseService{}
	userID := uuid.New()
	req := multipartRequest(t, http.MethodPost, "/api/v1/purchases", map[string]string{
		"productKind": "course",
		"productRef":  uuid.NewString(),
		"name":        "Priya",
		"email":       "priya@example.com",
		"phone":       "+919800000000",
		"amount":      "4999",
		"buyerUserId": uuid.NewString(),
	}, []byte("x"))
	req = req.WithContext(middleware.WithIdentity(req.Context(), userID.String(), "priya@example.com", "customer"))
	resp := httptest.NewRecorder()

	Create(svc, 1<<20, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if svc.created.BuyerUserID == nil || *svc.created.BuyerUserID != userID {
		t.Fatalf("expected buyer from session, got %v", svc.created.BuyerUserID)
	}
}

func TestCreateRejectsMalformedForms(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			"productKind": "e_report",
			"productRef":  uuid.NewString(),
			"amount":      "1100",
			"newAccount":  "false",
		}
	}
	cases := map[string]func() *http.Request{
		"missing proof": func() *http.Request {
			return multipartRequest(t, http.MethodPost, "/api/v1/purchases", base(), nil)
		},
		"bad kind": func() *http.Request {
			f := base()
			f["productKind"] = "tarot"
			return multipartRequest(t, http.MethodPost, "/api/v1/purchases", f, []byte("x"))
		},
		"bad amount": func() *http.Request {
			f := base()
			f["amount"] = "lots"
			return multipartRequest(t, http.MethodPost, "/api/v1/purchases", f, []byte("x"))
		},
		"bad flag": func() *http.Request {
			f := base()
			f["newAccount"] = "maybe"
			return multipartRequest(t, http.MethodPost, "/api/v1/purchases", f, []byte("x"))
		},
		"not multipart": func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/api/v1/purchases", bytes.NewBufferString(`{}`))
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			Create(&stubPurchaseService{}, 1<<20, nil).ServeHTTP(resp, build())
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
		})
	}
}

func TestReplaceProofPassesPathAndEmail(t *testing.T) {
	svc := &stubPurchaseService{}
	id := uuid.New()
	req := multipartRequest(t, http.MethodPut, "/api/v1/purchases/"+id.String()+"/proof", map[string]string{"email": "priya@example.com"}, []byte("new-proof"))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("purchaseId", id.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	resp := httptest.NewRecorder()

	ReplaceProof(svc, 1<<20, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.attachedID != id || svc.attachedBy != "priya@example.com" || string(svc.proofBytes) != "new-proof" {
		t.Fatalf("unexpected attach call id=%s email=%s", svc.attachedID, svc.attachedBy)
	}
}

func TestMineUsesSessionIdentity(t *testing.T) {
	svc := &stubPurchaseService{}
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/purchases", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), userID.String(), "priya@example.com", "customer"))
	resp := httptest.NewRecorder()

	Mine(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.listedUser != userID || svc.listedEmail != "priya@example.com" {
		t.Fatalf("unexpected list call %s %s", svc.listedUser, svc.listedEmail)
	}

	anon := httptest.NewRecorder()
	Mine(svc, nil).ServeHTTP(anon, httptest.NewRequest(http.MethodGet, "/api/v1/me/purchases", nil))
	if anon.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", anon.Code)
	}
}
