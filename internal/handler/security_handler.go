package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sentinel/internal/model"
	"sentinel/internal/service"
	"sentinel/internal/util"
)

// SecurityHandler exposes the security core over HTTP for the surrounding
// platform: credential checks, token lifecycle, MFA, threat evaluation, and
// the operational dashboard.
type SecurityHandler struct {
	services *service.ServiceFactory
	logger   *zap.Logger
}

func NewSecurityHandler(services *service.ServiceFactory, logger *zap.Logger) *SecurityHandler {
	return &SecurityHandler{
		services: services,
		logger:   logger,
	}
}

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

func errorResponse(message string) Response {
	return Response{Success: false, Error: message}
}

func (h *SecurityHandler) RegisterRoutes(router chi.Router) {
	router.Route("/security", func(r chi.Router) {
		r.Post("/passwords/validate", h.ValidatePassword)

		r.Post("/tokens", h.IssueToken)
		r.Post("/tokens/validate", h.ValidateToken)
		r.Post("/tokens/revoke", h.RevokeToken)

		r.Post("/mfa/enroll", h.EnrollMFA)
		r.Post("/mfa/confirm", h.ConfirmMFA)
		r.Post("/mfa/validate", h.ValidateMFA)

		r.Post("/threats/evaluate", h.EvaluateThreat)

		r.Get("/dashboard", h.Dashboard)
	})
}

type validatePasswordRequest struct {
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

func (h *SecurityHandler) ValidatePassword(w http.ResponseWriter, r *http.Request) {
	var req validatePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	result := h.services.CredentialPolicy().Validate(req.Password, model.UserContext{
		Name:  req.Name,
		Email: req.Email,
	})
	h.writeJSON(w, http.StatusOK, successResponse(result, ""))
}

type issueTokenRequest struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
}

func (h *SecurityHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse("user_id is required"))
		return
	}

	tokenType := model.TokenType(req.TokenType)
	if tokenType != model.TokenTypeAccess && tokenType != model.TokenTypeRefresh {
		tokenType = model.TokenTypeAccess
	}

	ids := identifiersFromRequest(r, req.UserID)
	if err := h.services.RateLimiter().Enforce(r.Context(), service.ActionAPICall, ids); err != nil {
		h.writeRateLimitError(w, err)
		return
	}

	token, err := h.services.TokenService().Issue(r.Context(), req.UserID, tokenType)
	if err != nil {
		h.logger.Error("Token issuance failed", zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse("token issuance failed"))
		return
	}
	h.writeJSON(w, http.StatusCreated, successResponse(map[string]string{
		"token":      token,
		"token_type": string(tokenType),
	}, "token issued"))
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *SecurityHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	claims, err := h.services.TokenService().Validate(r.Context(), req.Token)
	if err != nil {
		// Expired/revoked/malformed stay distinct in the log only; the
		// caller sees a uniform authentication failure.
		h.logger.Info("Token validation failed", zap.Error(err))
		h.writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse(map[string]string{
		"user_id":    claims.Subject,
		"token_type": string(claims.TokenType),
	}, ""))
}

func (h *SecurityHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	revoked, err := h.services.TokenService().Revoke(r.Context(), req.Token)
	if err != nil {
		h.logger.Error("Token revocation failed", zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse("revocation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse(map[string]bool{"revoked": revoked}, ""))
}

type enrollMFARequest struct {
	UserID      string `json:"user_id"`
	AccountName string `json:"account_name"`
	Method      string `json:"method"`
}

func (h *SecurityHandler) EnrollMFA(w http.ResponseWriter, r *http.Request) {
	var req enrollMFARequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse("user_id is required"))
		return
	}

	accountName := util.SanitizeInput(req.AccountName)
	enrollment, err := h.services.MFAService().Enroll(r.Context(), req.UserID, accountName, model.MFAMethod(req.Method))
	if err != nil {
		if errors.Is(err, model.ErrMFAMethodNotSupported) {
			h.writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		h.logger.Error("MFA enrollment failed", zap.String("user_id", req.UserID), zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse("mfa enrollment failed"))
		return
	}
	h.writeJSON(w, http.StatusCreated, successResponse(enrollment, "mfa enrollment staged"))
}

type mfaCodeRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
	Method string `json:"method"`
}

func (h *SecurityHandler) ConfirmMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.services.MFAService().ConfirmEnrollment(r.Context(), req.UserID, req.Code)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, successResponse(nil, "mfa enrollment confirmed"))
	case errors.Is(err, model.ErrMFASetupExpired):
		h.writeJSON(w, http.StatusGone, errorResponse("mfa setup expired"))
	case errors.Is(err, model.ErrMFARejected):
		h.writeJSON(w, http.StatusUnauthorized, errorResponse("invalid code"))
	default:
		h.logger.Error("MFA confirmation failed", zap.String("user_id", req.UserID), zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse("mfa confirmation failed"))
	}
}

func (h *SecurityHandler) ValidateMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	method := model.MFAMethod(req.Method)
	if req.Method == "" {
		method = model.MFAMethodTOTP
	}
	valid, err := h.services.MFAService().Validate(r.Context(), req.UserID, req.Code, method, requestContextFrom(r))
	if err != nil {
		h.logger.Error("MFA validation failed", zap.String("user_id", req.UserID), zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse("mfa validation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse(map[string]bool{"valid": valid}, ""))
}

type evaluateThreatRequest struct {
	UserID         string  `json:"user_id"`
	CallsPerMinute float64 `json:"calls_per_minute"`
	DataAccessedMB float64 `json:"data_accessed_mb"`
	FailedAuths    int     `json:"failed_auths"`
	TotalAuths     int     `json:"total_auths"`
}

func (h *SecurityHandler) EvaluateThreat(w http.ResponseWriter, r *http.Request) {
	var req evaluateThreatRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse("user_id is required"))
		return
	}

	eval, err := h.services.ThreatScorer().Evaluate(r.Context(), req.UserID, requestContextFrom(r), model.ActivitySnapshot{
		CallsPerMinute: req.CallsPerMinute,
		DataAccessedMB: req.DataAccessedMB,
		FailedAuths:    req.FailedAuths,
		TotalAuths:     req.TotalAuths,
	})
	if err != nil {
		h.logger.Error("Threat evaluation failed", zap.String("user_id", req.UserID), zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse("threat evaluation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse(eval, ""))
}

func (h *SecurityHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	data, err := h.services.EventLog().Dashboard(r.Context())
	if err != nil {
		h.logger.Error("Dashboard query failed", zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse("dashboard unavailable"))
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse(data, ""))
}

func (h *SecurityHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}

func (h *SecurityHandler) writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *SecurityHandler) writeRateLimitError(w http.ResponseWriter, err error) {
	var limitErr *model.RateLimitedError
	if errors.As(err, &limitErr) {
		w.Header().Set("Retry-After", limitErr.RetryAfter.String())
		h.writeJSON(w, http.StatusTooManyRequests, errorResponse("rate limit exceeded"))
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, errorResponse("rate limiter unavailable"))
}

func requestContextFrom(r *http.Request) model.RequestContext {
	return model.RequestContext{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

func identifiersFromRequest(r *http.Request, userID string) model.Identifiers {
	return model.Identifiers{
		IPAddress: r.RemoteAddr,
		UserID:    userID,
		UserAgent: r.UserAgent(),
	}
}
