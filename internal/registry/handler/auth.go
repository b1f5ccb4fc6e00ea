package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"github.com/skilldex-dev/skilldex/internal/registry/service"
	"go.uber.org/zap"
)

// AuthHandler serves the device-auth flow.
type AuthHandler struct {
	svc    *service.AuthService
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Register wires the auth routes. Init, token, and refresh are unauthenticated
// by design — the session flow is the authentication. Approve and deny run in
// the user's browser and require a signed-in user.
func (h *AuthHandler) Register(r *gin.Engine, auth *Authenticator) {
	g := r.Group("/auth")
	g.POST("/init", h.Init)
	g.POST("/token", h.Token)
	g.POST("/refresh", h.Refresh)

	g.POST("/sessions/:id/approve", auth.Required(), h.Approve)
	g.POST("/sessions/:id/deny", auth.Required(), h.Deny)
}

type initRequest struct {
	CallbackURL         string `json:"callback_url" binding:"required"`
	State               string `json:"state"`
	ClientInfo          string `json:"client_info"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// Init handles POST /auth/init.
func (h *AuthHandler) Init(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "callback_url is required"})
		return
	}
	res, err := h.svc.Init(c.Request.Context(), service.InitParams{
		CallbackURL:         req.CallbackURL,
		State:               req.State,
		ClientInfo:          req.ClientInfo,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": res.SessionID,
		"expires_in": res.ExpiresIn,
	})
}

type tokenRequest struct {
	Code         string    `json:"code" binding:"required"`
	SessionID    uuid.UUID `json:"session_id" binding:"required"`
	CodeVerifier string    `json:"code_verifier"`
}

// Token handles POST /auth/token: the device-side exchange of an approved
// session's code for a bearer token pair.
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and session_id are required"})
		return
	}
	pair, err := h.svc.Exchange(c.Request.Context(), req.SessionID, req.Code, req.CodeVerifier)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair))
}

func tokenResponse(pair *service.TokenPair) gin.H {
	resp := gin.H{
		"access_token":       pair.AccessToken,
		"token_type":         "Bearer",
		"expires_in":         pair.ExpiresIn,
		"refresh_token":      pair.RefreshToken,
		"refresh_expires_in": pair.RefreshExpiresIn,
	}
	if pair.User != nil {
		resp["user"] = gin.H{
			"id":         pair.User.ID,
			"username":   pair.User.Username,
			"avatar_url": pair.User.AvatarURL,
		}
	}
	return resp
}

// Approve handles POST /auth/sessions/{id}/approve on behalf of the signed-in
// browser user. The response carries the code and callback URL the browser
// uses to complete the device's flow.
func (h *AuthHandler) Approve(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	acc := accessor(c)
	if acc.Anonymous() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	res, err := h.svc.Approve(c.Request.Context(), sessionID, *acc.UserID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":         res.Code,
		"callback_url": res.CallbackURL,
	})
}

// Deny handles POST /auth/sessions/{id}/deny.
func (h *AuthHandler) Deny(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	if err := h.svc.Deny(c.Request.Context(), sessionID); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": model.SessionDenied})
}
