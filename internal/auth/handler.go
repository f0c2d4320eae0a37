package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/redmonkez12/go-auth-service/internal/httputil"
	"github.com/redmonkez12/go-auth-service/internal/logging"
	"github.com/redmonkez12/go-auth-service/internal/ratelimit"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

// EmailService defines the interface for outbound mail
type EmailService interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
}

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service      *Service
	rateLimiter  *ratelimit.Limiter
	emailService EmailService
	logger       *logging.Logger
	isProduction bool
}

func NewHandler(service *Service, rateLimiter *ratelimit.Limiter, emailService EmailService, logger *logging.Logger, isProduction bool) *Handler {
	return &Handler{
		service:      service,
		rateLimiter:  rateLimiter,
		emailService: emailService,
		logger:       logger,
		isProduction: isProduction,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordRequest represents the password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// RegisterResponse represents the registration response
type RegisterResponse struct {
	User    UserResponse `json:"user"`
	Message string       `json:"message"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.rateLimited(w, r, "register") {
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	newUser, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists):
			logger.Warn("registration failed: email already exists")
			respondError(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
		case errors.Is(err, ErrEmailRequired):
			respondError(w, err.Error(), httputil.CodeEmailRequired, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordRequired):
			respondError(w, err.Error(), httputil.CodePasswordRequired, http.StatusBadRequest)
		default:
			logger.Error("registration failed: internal error", "error", err.Error())
			respondError(w, "failed to register user", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user registered successfully", "user_id", newUser.ID)

	respondJSON(w, RegisterResponse{
		User:    UserResponse{ID: newUser.ID, Email: newUser.Email},
		Message: "user created",
	}, http.StatusCreated)
}

// Login validates credentials and opens a session, delivered as a cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.rateLimited(w, r, "login") {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	ok, err := h.service.ValidLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		logger.Error("login failed: internal error", "error", err.Error())
		respondError(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}
	if !ok {
		logger.Warn("login failed: invalid credentials")
		respondError(w, "invalid email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
		return
	}

	sessionID, err := h.service.CreateSession(r.Context(), req.Email)
	if err != nil {
		logger.Error("login failed: could not create session", "error", err.Error())
		respondError(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}
	if sessionID == "" {
		// User vanished between ValidLogin and CreateSession.
		logger.Warn("login failed: user no longer exists")
		respondError(w, "invalid email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
		return
	}

	logger.Info("user logged in successfully")

	SetSessionCookie(w, sessionID, h.isProduction)
	respondJSON(w, map[string]string{
		"email":   req.Email,
		"message": "logged in",
	}, http.StatusOK)
}

// Logout destroys the current session and clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	sessionID, err := GetSessionFromCookie(r)
	if err != nil {
		respondError(w, "missing session", httputil.CodeMissingSession, http.StatusUnauthorized)
		return
	}

	sessionUser, err := h.service.GetUserBySession(r.Context(), sessionID)
	if err != nil {
		logger.Error("logout failed: internal error", "error", err.Error())
		respondError(w, "failed to logout", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}
	if sessionUser == nil {
		respondError(w, "invalid session", httputil.CodeInvalidSession, http.StatusUnauthorized)
		return
	}

	if err := h.service.DestroySession(r.Context(), sessionUser.ID); err != nil {
		logger.Error("logout failed: could not destroy session", "error", err.Error())
		respondError(w, "failed to logout", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	ClearSessionCookie(w)

	logger.Info("user logged out successfully", "user_id", sessionUser.ID)

	respondJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

// Profile returns the authenticated user's account. Requires RequireSession.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	sessionUser, ok := GetUserFromContext(r.Context())
	if !ok {
		respondError(w, "missing session", httputil.CodeMissingSession, http.StatusUnauthorized)
		return
	}

	respondJSON(w, UserResponse{ID: sessionUser.ID, Email: sessionUser.Email}, http.StatusOK)
}

// ForgotPassword issues a reset token and mails it. The response is the
// same whether or not the account exists, to prevent email enumeration.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.rateLimited(w, r, "forgot-password") {
		return
	}

	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid forgot-password request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	token, err := h.service.RequestReset(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			logger.Error("failed to create reset token", "error", err.Error())
		}
		// Fall through; respond as if the mail went out.
	} else {
		go func() {
			emailCtx := context.Background()
			if err := h.emailService.SendPasswordResetEmail(emailCtx, req.Email, token); err != nil {
				h.logger.Warn("failed to send password reset email", "email", req.Email, "error", err)
			}
		}()
	}

	respondJSON(w, map[string]string{
		"message": "if the account exists, a reset email has been sent",
	}, http.StatusOK)
}

// ResetPassword consumes a reset token and sets the new password.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset-password request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if req.Token == "" || req.NewPassword == "" {
		respondError(w, "token and new password are required", httputil.CodeResetTokenRequired, http.StatusBadRequest)
		return
	}

	if err := h.service.UpdatePassword(r.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			logger.Warn("password reset failed: invalid token")
			respondError(w, "invalid or already used reset token", httputil.CodeInvalidResetToken, http.StatusForbidden)
			return
		}
		logger.Error("password reset failed: internal error", "error", err.Error())
		respondError(w, "failed to reset password", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("password updated via reset token")

	respondJSON(w, map[string]string{"message": "password updated"}, http.StatusOK)
}

// rateLimited checks and records the caller's rate-limit window, responding
// 429 and returning true when the request should not proceed. Limiter errors
// fail open: an unreachable Redis must not take down login.
func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request, purpose string) bool {
	logger := logging.GetLoggerFromContext(r.Context())

	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return true
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	return false
}

// getClientIP returns the request's remote IP. The RealIP middleware has
// already rewritten RemoteAddr when the request came through a proxy.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}
