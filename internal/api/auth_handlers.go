package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fotopro/fotopro/internal/auth"
	"github.com/fotopro/fotopro/internal/middleware"
)

// TokenRequest represents the request body for minting tokens.
type TokenRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// TokenResponse carries a freshly minted token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthHandlers holds dependencies for token HTTP handlers.
// The mint endpoint exists for development and testing; production deploys
// sit behind an identity provider and disable it.
type AuthHandlers struct {
	jwtService *auth.JWTService
	enabled    bool
	logger     *slog.Logger
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(jwtService *auth.JWTService, enabled bool, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{jwtService: jwtService, enabled: enabled, logger: logger}
}

// MintToken handles POST /auth/token.
func (h *AuthHandlers) MintToken(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Token minting is disabled")
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "user_id is required")
		return
	}
	if req.Role != auth.RolePhotographer && req.Role != auth.RoleCustomer {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "role must be photographer or customer")
		return
	}

	access, err := h.jwtService.GenerateAccessToken(req.UserID, req.Role)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to generate access token", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to mint token")
		return
	}
	refresh, err := h.jwtService.GenerateRefreshToken(req.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to generate refresh token", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to mint token")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
	})
}
