package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/auth"
	"github.com/markdave123-py/AgroIntelX/internal/models"
	"github.com/markdave123-py/AgroIntelX/internal/services"
)

type AuthHandler struct {
	users  *services.UserService
	tokens *auth.TokenIssuer
	logger *zap.Logger
}

func NewAuthHandler(users *services.UserService, tokens *auth.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, logger: logger.Named("auth_handler")}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string             `json:"message"`
	User    models.UserSummary `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err, "Signup failed")
		return
	}

	user, err := h.users.Register(r.Context(), req.Name, req.Email, req.Password)
	if errors.Is(err, apperrors.ErrConflict) {
		_ = ErrorResponse(w, http.StatusConflict, "User already exists")
		return
	}
	if err != nil {
		writeError(w, h.logger, err, "Signup failed")
		return
	}

	if err := h.tokens.SetCookie(w, user.ID, user.Role); err != nil {
		writeError(w, h.logger, err, "Signup failed")
		return
	}
	_ = WriteJSON(w, http.StatusCreated, authResponse{Message: "Signup successful", User: user.Summary()})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err, "Signin failed")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, apperrors.ErrUnauthenticated) {
		_ = ErrorResponse(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		writeError(w, h.logger, err, "Signin failed")
		return
	}

	if err := h.tokens.SetCookie(w, user.ID, user.Role); err != nil {
		writeError(w, h.logger, err, "Signin failed")
		return
	}
	_ = WriteJSON(w, http.StatusOK, authResponse{Message: "Signin successful", User: user.Summary()})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.tokens.ClearCookie(w)
	_ = WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		_ = ErrorResponse(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          user.Summary(),
	})
}

// currentUser returns the authenticated user or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		_ = ErrorResponse(w, http.StatusUnauthorized, "Not authenticated")
	}
	return user, ok
}
