package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/config"
	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/service"
	"jobdesk-auth/internal/util"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

// AuthHandler handles HTTP requests for the OTP and session flows
type AuthHandler struct {
	otpService   *service.OTPService
	tokenService *service.TokenService
	cfg          *config.Config
}

func NewAuthHandler(otpService *service.OTPService, tokenService *service.TokenService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		otpService:   otpService,
		tokenService: tokenService,
		cfg:          cfg,
	}
}

// RegisterRoutes registers all auth routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/otp", func(r chi.Router) {
		r.Post("/send", h.SendOTP)
		r.Post("/verify", h.VerifyOTP)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAdmin)
			r.Post("/blacklist", h.Blacklist)
			r.Delete("/blacklist", h.Unblacklist)
		})
	})

	router.Route("/session", func(r chi.Router) {
		r.Post("/refresh", h.RefreshSession)
		r.Post("/logout", h.Logout)
	})

	router.Route("/auth", func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/me", h.Me)
		r.Post("/revoke-all", h.RevokeAll)
	})
}

type sendOTPRequest struct {
	ContactValue string `json:"contactValue"`
	ContactType  string `json:"contactType"`
}

type sendOTPResponse struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	UserID       string    `json:"userId"`
	ExpiresAt    time.Time `json:"expiresAt"`
	ContactValue string    `json:"contactValue"`
	ContactType  string    `json:"contactType"`
}

// SendOTP handles POST /otp/send
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}
	if req.ContactValue == "" || req.ContactType == "" {
		h.respondError(w, apperr.New(apperr.KindValidation, "contactValue and contactType are required"))
		return
	}
	if util.ContainsSuspicious(req.ContactValue) {
		h.respondError(w, apperr.New(apperr.KindValidation, "contact value contains invalid characters"))
		return
	}

	result, err := h.otpService.SendCode(r.Context(), util.SanitizeInput(req.ContactValue), model.ContactKind(req.ContactType))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, sendOTPResponse{
		Success:      true,
		Message:      "verification code sent",
		UserID:       result.UserID,
		ExpiresAt:    result.ExpiresAt,
		ContactValue: result.Contact.Value,
		ContactType:  string(result.Contact.Kind),
	})
}

type verifyOTPRequest struct {
	UserID       string `json:"userId"`
	ContactValue string `json:"contactValue"`
	Code         string `json:"code"`
	Type         string `json:"type"`
}

type verifyOTPResponse struct {
	Success     bool        `json:"success"`
	User        *model.User `json:"user"`
	AccessToken string      `json:"accessToken"`
}

// VerifyOTP handles POST /otp/verify. On success it issues the session
// pair: access token in body and both credentials as HTTP-only cookies.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}
	if req.Code == "" || req.Type == "" {
		h.respondError(w, apperr.New(apperr.KindValidation, "code and type are required"))
		return
	}
	if req.UserID == "" && req.ContactValue == "" {
		h.respondError(w, apperr.New(apperr.KindValidation, "userId or contactValue is required"))
		return
	}

	user, err := h.otpService.VerifyCode(r.Context(), req.UserID,
		util.SanitizeInput(req.ContactValue), model.ContactKind(req.Type), req.Code)
	if err != nil {
		h.respondError(w, err)
		return
	}

	session, err := h.tokenService.IssueSession(r.Context(), user, r.UserAgent())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.setSessionCookies(w, session)
	h.respondJSON(w, http.StatusOK, verifyOTPResponse{
		Success:     true,
		User:        user,
		AccessToken: session.AccessToken,
	})
}

type refreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
}

// RefreshSession handles POST /session/refresh. The refresh credential is
// read from the cookie, falling back to the request body.
func (h *AuthHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	presented := h.refreshCredential(r)
	if presented == "" {
		h.respondError(w, apperr.New(apperr.KindTokenInvalid, "no refresh token presented"))
		return
	}

	session, _, err := h.tokenService.Refresh(r.Context(), presented, r.UserAgent())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.setSessionCookies(w, session)
	h.respondJSON(w, http.StatusOK, refreshResponse{
		Success:     true,
		AccessToken: session.AccessToken,
	})
}

// Logout handles POST /session/logout. The credential cookies are always
// cleared and the endpoint always reports success, whether or not a live
// session was presented.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if presented := h.refreshCredential(r); presented != "" {
		if err := h.tokenService.Revoke(r.Context(), presented); err != nil {
			util.Warn("Logout revocation failed", zap.Error(err))
		}
	}

	h.clearSessionCookies(w)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "logged out",
	})
}

// Me handles GET /auth/me for an authenticated caller
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		h.respondError(w, apperr.New(apperr.KindTokenInvalid, "not authenticated"))
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user": map[string]interface{}{
			"id":         claims.UserID,
			"email":      claims.Email,
			"phone":      claims.Phone,
			"isVerified": claims.IsVerified,
		},
	})
}

// RevokeAll handles POST /auth/revoke-all, invalidating every refresh
// token belonging to the caller
func (h *AuthHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		h.respondError(w, apperr.New(apperr.KindTokenInvalid, "not authenticated"))
		return
	}

	if err := h.tokenService.RevokeAllForUser(r.Context(), claims.UserID); err != nil {
		h.respondError(w, err)
		return
	}

	h.clearSessionCookies(w)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "all sessions revoked",
	})
}

type blacklistRequest struct {
	ContactValue string `json:"contactValue"`
	ContactType  string `json:"contactType"`
}

// Blacklist handles POST /otp/blacklist, imposing a manual ban
func (h *AuthHandler) Blacklist(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}

	if err := h.otpService.Ban(r.Context(), util.SanitizeInput(req.ContactValue), model.ContactKind(req.ContactType)); err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "contact blacklisted",
	})
}

// Unblacklist handles DELETE /otp/blacklist, lifting any ban
func (h *AuthHandler) Unblacklist(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}

	if err := h.otpService.Unban(r.Context(), util.SanitizeInput(req.ContactValue), model.ContactKind(req.ContactType)); err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "contact removed from blacklist",
	})
}

// refreshCredential pulls the refresh token from the cookie or body
func (h *AuthHandler) refreshCredential(r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		return body.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, session *service.Session) {
	secure := h.cfg.IsProduction()

	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  session.AccessExpiresAt,
		MaxAge:   int(time.Until(session.AccessExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    session.RefreshToken,
		Path:     "/",
		Expires:  session.RefreshExpiresAt,
		MaxAge:   int(time.Until(session.RefreshExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	secure := h.cfg.IsProduction()

	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (h *AuthHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		util.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError maps a tagged error to its HTTP status and wire body
func (h *AuthHandler) respondError(w http.ResponseWriter, err error) {
	appErr := apperr.As(err)
	if appErr == nil {
		appErr = apperr.Wrap(apperr.KindInternal, "internal error", err)
	}

	status := statusForKind(appErr.Kind)
	if status >= http.StatusInternalServerError {
		util.Error("Request failed", zap.Error(err))
	}

	// Code-verification failures are collapsed on the wire so clients cannot
	// probe which codes exist, whether one expired, or how many attempts
	// remain. The full kind still reaches the logs and audit trail.
	kind, message := string(appErr.Kind), appErr.Message
	switch appErr.Kind {
	case apperr.KindExpired, apperr.KindAlreadyUsed, apperr.KindInvalidCode:
		kind, message = "invalid_code", "invalid or expired code"
	}

	body := map[string]interface{}{
		"error":   kind,
		"message": message,
	}
	if appErr.RetryAfter > 0 {
		seconds := int(appErr.RetryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		body["retryAfter"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	h.respondJSON(w, status, body)
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindExpired, apperr.KindAlreadyUsed, apperr.KindInvalidCode:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRateLimited, apperr.KindBlacklisted:
		return http.StatusTooManyRequests
	case apperr.KindTokenInvalid, apperr.KindTokenExpired, apperr.KindTokenRevoked:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
