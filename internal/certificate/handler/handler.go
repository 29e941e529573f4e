package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"canopy/internal/certificate"
	"canopy/internal/platform/middleware"
	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/httputil"
	"canopy/pkg/requestcontext"
)

// Service defines the certificate registry operations the handler exposes.
type Service interface {
	Issue(ctx context.Context, caller id.AccountID, req certificate.IssueRequest) (*certificate.Certificate, error)
	Verify(ctx context.Context, verifier id.AccountID, certID id.CertificateID) (*certificate.VerifyResult, error)
	BatchVerify(ctx context.Context, verifier id.AccountID, certIDs []id.CertificateID) []certificate.VerifyResult
	Revoke(ctx context.Context, caller id.AccountID, certID id.CertificateID, reason string) (*certificate.Certificate, error)
	Get(ctx context.Context, certID id.CertificateID) (*certificate.Certificate, error)
	ListByRecipient(ctx context.Context, recipient id.AccountID) ([]*certificate.Certificate, error)
}

// Handler exposes the certificate registry over HTTP.
type Handler struct {
	certs     Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(certs Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{certs: certs, logger: logger, validator: validator}
}

// Register mounts the certificate routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequireAccount(h.validator, h.logger))
		router.Post("/certificates", h.handleIssue)
		router.Get("/certificates", h.handleList)
		router.Get("/certificates/{certID}", h.handleGet)
		router.Post("/certificates/{certID}/verify", h.handleVerify)
		router.Post("/certificates/{certID}/revoke", h.handleRevoke)
		router.Post("/certificates/verify/batch", h.handleBatchVerify)
	})
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.AccountID(ctx)

	var req certificate.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	cert, err := h.certs.Issue(ctx, caller, req)
	if err != nil {
		h.logger.WarnContext(ctx, "certificate issuance rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, cert)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, err := id.ParseCertificateID(chi.URLParam(r, "certID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.certs.Verify(ctx, requestcontext.AccountID(ctx), certID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type batchVerifyRequest struct {
	CertificateIDs []string `json:"certificate_ids"`
}

func (h *Handler) handleBatchVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req batchVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	certIDs := make([]id.CertificateID, 0, len(req.CertificateIDs))
	for _, raw := range req.CertificateIDs {
		certID, err := id.ParseCertificateID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		certIDs = append(certIDs, certID)
	}

	results := h.certs.BatchVerify(ctx, requestcontext.AccountID(ctx), certIDs)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, err := id.ParseCertificateID(chi.URLParam(r, "certID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	cert, err := h.certs.Revoke(ctx, requestcontext.AccountID(ctx), certID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	certID, err := id.ParseCertificateID(chi.URLParam(r, "certID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cert, err := h.certs.Get(r.Context(), certID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certs, err := h.certs.ListByRecipient(ctx, requestcontext.AccountID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"certificates": certs})
}
