package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"portfolio-chat/internal/middleware"
)

// TokenCookie is the HTTP-only cookie carrying the admin JWT.
const TokenCookie = "admin-token"

type Handler struct {
	service *Service
	secure  bool // Secure cookie flag, off in dev
	log     zerolog.Logger
}

func NewHandler(service *Service, secure bool, log zerolog.Logger) *Handler {
	return &Handler{service: service, secure: secure, log: log}
}

// Login handles POST /api/admin/login. The token is returned in the body
// and set as an HTTP-only cookie for browser sessions.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	res, err := h.service.Login(r.Context(), &req)
	if errors.Is(err, ErrInvalidCredentials) {
		respondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("login")
		respondError(w, http.StatusInternalServerError, "An error occurred during login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    res.AccessToken,
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure,
	})
	respond(w, http.StatusOK, map[string]any{"success": true, "login": res})
}

// Me handles GET /api/admin/me for the authenticated admin.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	username, _ := r.Context().Value(middleware.UsernameKey).(string)
	a, err := h.service.GetByUsername(r.Context(), username)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respond(w, http.StatusOK, map[string]any{"success": true, "user": a})
}

// ListUsers handles GET /api/admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	admins, err := h.service.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list admins")
		respondError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	if admins == nil {
		admins = []*Admin{}
	}
	respond(w, http.StatusOK, map[string]any{"success": true, "users": admins})
}

// CreateUser handles POST /api/admin/users. Only a super-admin may create
// accounts.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	username, _ := r.Context().Value(middleware.UsernameKey).(string)
	current, err := h.service.GetByUsername(r.Context(), username)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if current.Role != RoleSuperAdmin {
		respondError(w, http.StatusForbidden, "Only super-admin can create users")
		return
	}

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username, email and password are required")
		return
	}

	a, err := h.service.CreateAdmin(r.Context(), req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		h.log.Error().Err(err).Str("username", req.Username).Msg("create admin")
		respondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	respond(w, http.StatusCreated, map[string]any{"success": true, "user": a})
}

// ForgotPassword handles POST /api/admin/forgot-password.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		respondError(w, http.StatusBadRequest, "Email is required")
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.log.Error().Err(err).Msg("forgot password")
		respondError(w, http.StatusInternalServerError, "Failed to process request")
		return
	}
	// Same response whether or not the email exists.
	respond(w, http.StatusOK, map[string]any{"success": true})
}

// VerifyOTP handles POST /api/admin/verify-otp.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.OTP == "" {
		respondError(w, http.StatusBadRequest, "Email and OTP are required")
		return
	}

	token, err := h.service.VerifyOTP(r.Context(), req.Email, req.OTP)
	if errors.Is(err, ErrInvalidOTP) {
		respondError(w, http.StatusUnauthorized, "Invalid or expired code")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("verify otp")
		respondError(w, http.StatusInternalServerError, "Failed to verify code")
		return
	}
	respond(w, http.StatusOK, map[string]any{"success": true, "resetToken": token})
}

// ResetPassword handles POST /api/admin/reset-password.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResetToken  string `json:"resetToken"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ResetToken == "" || req.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "Reset token and new password are required")
		return
	}

	err := h.service.ResetPassword(r.Context(), req.ResetToken, req.NewPassword)
	if errors.Is(err, ErrInvalidResetToken) {
		respondError(w, http.StatusUnauthorized, "Invalid or expired reset token")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("reset password")
		respondError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}
	respond(w, http.StatusOK, map[string]any{"success": true})
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]any{"success": false, "error": msg})
}
