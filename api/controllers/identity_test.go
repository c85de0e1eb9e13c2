package controllers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/internal/identity"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
)

type stubIdentityService struct {
	issued    uuid.UUID
	verified  identity.VerifyInput
	verifyErr error
	userID    uuid.UUID
}

func (s *stubIdentityService) Issue(_ context.Context, email string, purchaseID uuid.UUID) (*identity.Challenge, error) {
	s.issued = purchaseID
	return &identity.Challenge{PurchaseID: purchaseID, Email: email, ExpiresAt: time.Now().Add(10 * time.Minute)}, nil
}

func (s *stubIdentityService) IssueChallenge(ctx context.Context, email string, purchaseID uuid.UUID) error {
	_, err := s.Issue(ctx, email, purchaseID)
	return err
}

func (s *stubIdentityService) Verify(_ context.Context, input identity.VerifyInput) (*identity.VerifyResult, error) {
	s.verified = input
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return &identity.VerifyResult{PurchaseID: input.PurchaseID, Status: enums.PurchaseStatusPendingModeration, UserID: s.userID}, nil
}

func TestIdentityIssueOTP(t *testing.T) {
	svc := &stubIdentityService{}
	purchaseID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identity/otp", bytes.NewBufferString(`{"email":"priya@example.com","purchaseId":"`+purchaseID.String()+`"}`))
	resp := httptest.NewRecorder()
	IdentityIssueOTP(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.issued != purchaseID {
		t.Fatalf("expected challenge for %s", purchaseID)
	}
	if bytes.Contains(resp.Body.Bytes(), []byte("code")) {
		t.Fatal("response must not leak the code")
	}
}

func TestIdentityIssueOTPRejectsBadPurchaseID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identity/otp", bytes.NewBufferString(`{"email":"priya@example.com","purchaseId":"42"}`))
	resp := httptest.NewRecorder()
	IdentityIssueOTP(&stubIdentityService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestIdentityVerifyOTPSignsIn(t *testing.T) {
	userID := uuid.New()
	svc := &stubIdentityService{userID: userID}
	sessions := &stubAuthService{}
	purchaseID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identity/otp/verify", bytes.NewBufferString(`{"email":"priya@example.com","purchaseId":"`+purchaseID.String()+`","code":"482913"}`))
	resp := httptest.NewRecorder()
	IdentityVerifyOTP(svc, sessions, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.verified.Code != "482913" || svc.verified.PurchaseID != purchaseID {
		t.Fatalf("unexpected verify input %+v", svc.verified)
	}
	if sessions.issuedFor != userID {
		t.Fatalf("expected session for %s got %s", userID, sessions.issuedFor)
	}
	if resp.Header().Get(TokenHeader) != "access-otp" {
		t.Fatal("expected token header after verification")
	}
}

func TestIdentityVerifyOTPSurfacesDistinctErrors(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeOTPInvalid:          http.StatusBadRequest,
		pkgerrors.CodeOTPExpired:          http.StatusGone,
		pkgerrors.CodeOTPAttemptsExceeded: http.StatusTooManyRequests,
	}
	for code, status := range cases {
		svc := &stubIdentityService{verifyErr: pkgerrors.New(code, "nope")}
		sessions := &stubAuthService{}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/identity/otp/verify", bytes.NewBufferString(`{"email":"priya@example.com","purchaseId":"`+uuid.NewString()+`","code":"000000"}`))
		resp := httptest.NewRecorder()
		IdentityVerifyOTP(svc, sessions, nil).ServeHTTP(resp, req)
		if resp.Code != status {
			t.Fatalf("%s: expected %d got %d", code, status, resp.Code)
		}
		if !bytes.Contains(resp.Body.Bytes(), []byte(string(code))) {
			t.Fatalf("%s: expected code in body %s", code, resp.Body.String())
		}
		if sessions.issuedFor != uuid.Nil {
			t.Fatalf("%s: no session may be issued on failure", code)
		}
	}
}
