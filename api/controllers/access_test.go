package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/api/middleware"
	"github.com/sacrednumerology/sacred-backend/internal/access"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
)

type stubAccessService struct {
	allowed  map[uuid.UUID]bool
	lastWho  access.Identity
	openErr  error
	contents string
}

func (s *stubAccessService) CanAccess(_ context.Context, who access.Identity, assetID uuid.UUID) (bool, error) {
	s.lastWho = who
	return s.allowed[assetID], nil
}

func (s *stubAccessService) AuthorizeStream(ctx context.Context, who access.Identity, assetID uuid.UUID) (*access.StreamTicket, error) {
	ok, _ := s.CanAccess(ctx, who, assetID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotAuthorized, "purchase is still pending")
	}
	return &access.StreamTicket{Ticket: "t-1", ExpiresAt: time.Now().Add(time.Minute), StreamURL: "https://api.example.com/api/v1/stream/t-1"}, nil
}

func (s *stubAccessService) OpenStream(_ context.Context, ticket string) (*access.Stream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &access.Stream{Body: io.NopCloser(strings.NewReader(s.contents)), ContentType: "video/mp4", Size: int64(len(s.contents))}, nil
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func signedIn(r *http.Request) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), uuid.NewString(), "priya@example.com", "customer"))
}

func TestAccessCheck(t *testing.T) {
	asset := uuid.New()
	svc := &stubAccessService{allowed: map[uuid.UUID]bool{asset: true}}

	for id, want := range map[string]bool{asset.String(): true, uuid.NewString(): false, "nope": false} {
		req := withParam(signedIn(httptest.NewRequest(http.MethodGet, "/api/v1/access/assets/"+id, nil)), "assetId", id)
		resp := httptest.NewRecorder()
		AccessCheck(svc, nil).ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", resp.Code)
		}
		var payload struct {
			Data struct {
				Allowed bool `json:"allowed"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload.Data.Allowed != want {
			t.Fatalf("asset %s: expected allowed=%v", id, want)
		}
	}
	if svc.lastWho.Email != "priya@example.com" {
		t.Fatalf("expected session email to reach the gate, got %q", svc.lastWho.Email)
	}
}

func TestAccessStreamTicketDeniesUniformly(t *testing.T) {
	svc := &stubAccessService{allowed: map[uuid.UUID]bool{}}
	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		req := withParam(signedIn(httptest.NewRequest(http.MethodPost, "/", nil)), "assetId", id)
		resp := httptest.NewRecorder()
		AccessStreamTicket(svc, nil).ServeHTTP(resp, req)
		if resp.Code != http.StatusForbidden {
			t.Fatalf("expected 403 got %d", resp.Code)
		}
		body := resp.Body.String()
		if !strings.Contains(body, `"not authorized"`) || strings.Contains(body, "pending") {
			t.Fatalf("expected uniform denial, got %s", body)
		}
	}
}

func TestStreamWritesAssetBytes(t *testing.T) {
	svc := &stubAccessService{contents: "frames"}
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/stream/t-1", nil), "ticket", "t-1")
	resp := httptest.NewRecorder()
	Stream(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Body.String() != "frames" || resp.Header().Get("Content-Type") != "video/mp4" {
		t.Fatalf("unexpected stream %q %s", resp.Body.String(), resp.Header().Get("Content-Type"))
	}
	if resp.Header().Get("Content-Length") != "6" {
		t.Fatalf("unexpected length %s", resp.Header().Get("Content-Length"))
	}
}

func TestStreamStorageFailureIsRetryable(t *testing.T) {
	svc := &stubAccessService{openErr: pkgerrors.New(pkgerrors.CodeStorage, "open asset")}
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/stream/t-1", nil), "ticket", "t-1")
	resp := httptest.NewRecorder()
	Stream(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}
