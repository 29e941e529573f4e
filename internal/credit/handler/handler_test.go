package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"canopy/internal/credit"
	"canopy/internal/identity"
	id "canopy/pkg/domain"
)

// staticValidator maps bearer tokens straight to account ids so handler
// tests skip real JWT plumbing.
type staticValidator map[string]id.AccountID

func (v staticValidator) ValidateToken(token string) (id.AccountID, error) {
	if account, ok := v[token]; ok {
		return account, nil
	}
	return "", errors.New("unknown token")
}

func newCreditRouter(t *testing.T) http.Handler {
	t.Helper()
	roles := identity.NewRegistry(nil, []string{"acct-issuer"})
	svc := credit.NewService(credit.NewInMemoryStore(), roles)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	validator := staticValidator{
		"issuer-token": "acct-issuer",
		"alice-token":  "acct-alice",
	}
	h := New(svc, logger, validator)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	router := newCreditRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/credits", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/credits", "bogus-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with invalid token, got %d", rec.Code)
	}
}

func TestMintTransferRetireViaHandlers(t *testing.T) {
	router := newCreditRouter(t)

	mintPayload := map[string]any{
		"recipient":         "acct-alice",
		"project_id":        "proj-wind-07",
		"vintage_year":      2024,
		"methodology":       "VCS-0003",
		"amount":            10,
		"verification_hash": "deadbeef",
	}
	rec := doJSON(t, router, http.MethodPost, "/credits", "issuer-token", mintPayload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 minting, got %d: %s", rec.Code, rec.Body.String())
	}

	var minted struct {
		ID    id.CreditID  `json:"id"`
		Owner id.AccountID `json:"owner"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&minted); err != nil {
		t.Fatalf("decode mint response: %v", err)
	}
	if minted.ID == 0 || minted.Owner != "acct-alice" {
		t.Fatalf("unexpected mint response: %+v", minted)
	}

	// Non-issuer mints are rejected with the domain error envelope.
	rec = doJSON(t, router, http.MethodPost, "/credits", "alice-token", mintPayload)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-issuer mint, got %d", rec.Code)
	}
	var envelope map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope["error"] != "unauthorized" {
		t.Fatalf("expected unauthorized error code, got %q", envelope["error"])
	}

	// The owner sees the credit in her holdings.
	rec = doJSON(t, router, http.MethodGet, "/credits", "alice-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing credits, got %d", rec.Code)
	}
	var listing struct {
		Credits []json.RawMessage `json:"credits"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Credits) != 1 {
		t.Fatalf("expected 1 credit in holdings, got %d", len(listing.Credits))
	}

	creditPath := "/credits/" + minted.ID.String()

	// Only the owner can transfer.
	rec = doJSON(t, router, http.MethodPost, creditPath+"/transfer", "issuer-token", map[string]string{"new_owner": "acct-issuer"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner transfer, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, creditPath+"/retire", "alice-token", map[string]string{"reason": "offsetting 2025 travel"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 retiring, got %d: %s", rec.Code, rec.Body.String())
	}

	// Retiring twice surfaces the terminal-state conflict.
	rec = doJSON(t, router, http.MethodPost, creditPath+"/retire", "alice-token", map[string]string{"reason": "again"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for double retire, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/credits/retired", "alice-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing retired, got %d", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&listing); err != nil {
		t.Fatalf("decode retired listing: %v", err)
	}
	if len(listing.Credits) != 1 {
		t.Fatalf("expected 1 retired credit, got %d", len(listing.Credits))
	}
}

func TestGetCreditValidation(t *testing.T) {
	router := newCreditRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/credits/not-a-number", "alice-token", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed credit id, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/credits/999", "alice-token", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown credit, got %d", rec.Code)
	}
}

func TestRegistryTotalsViaHandler(t *testing.T) {
	router := newCreditRouter(t)

	mintPayload := map[string]any{
		"recipient":         "acct-alice",
		"project_id":        "proj-solar-01",
		"vintage_year":      2023,
		"methodology":       "GS-1001",
		"amount":            4,
		"verification_hash": "cafebabe",
	}
	rec := doJSON(t, router, http.MethodPost, "/credits", "issuer-token", mintPayload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 minting, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/registry/totals", "alice-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching totals, got %d", rec.Code)
	}
	var totals struct {
		Minted  int64 `json:"total_minted"`
		Retired int64 `json:"total_retired"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&totals); err != nil {
		t.Fatalf("decode totals: %v", err)
	}
	if totals.Minted != 4 || totals.Retired != 0 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}
