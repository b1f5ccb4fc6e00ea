// Package handler exposes the registry over HTTP: the read API, device auth,
// health, and metrics. Handlers translate between the wire format and the
// service layer; no business logic lives here.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/access"
	"github.com/skilldex-dev/skilldex/internal/identity"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"github.com/skilldex-dev/skilldex/internal/registry/repository"
	"github.com/skilldex-dev/skilldex/internal/registry/service"
	"go.uber.org/zap"
)

const (
	ctxAccessor      = "accessor"
	ctxCorrelationID = "correlation_id"
	headerRequestID  = "X-Request-Id"
)

// CorrelationID tags every request with an id that travels through logs and
// error responses.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxCorrelationID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// Authenticator resolves bearer credentials into an Accessor. Both JWT access
// tokens and stored sk_ API tokens are accepted.
type Authenticator struct {
	issuer *identity.TokenIssuer
	tokens *repository.TokenRepository
	users  *repository.UserRepository // org membership lookup; may be nil
	logger *zap.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(issuer *identity.TokenIssuer, tokens *repository.TokenRepository, users *repository.UserRepository, logger *zap.Logger) *Authenticator {
	return &Authenticator{issuer: issuer, tokens: tokens, users: users, logger: logger}
}

// Optional attaches an Accessor when credentials are present and valid, and
// an anonymous one otherwise. Bad credentials on an optional-auth route are
// rejected rather than silently downgraded.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.Set(ctxAccessor, &access.Accessor{})
			c.Next()
			return
		}
		acc, err := a.resolve(c, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.Set(ctxAccessor, acc)
		c.Next()
	}
}

// Required rejects requests without a valid bearer credential.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		acc, err := a.resolve(c, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.Set(ctxAccessor, acc)
		c.Next()
	}
}

func (a *Authenticator) resolve(c *gin.Context, raw string) (*access.Accessor, error) {
	if strings.HasPrefix(raw, "sk_") {
		row, err := a.tokens.FindByHash(c.Request.Context(), identity.HashToken(raw))
		if err != nil {
			return nil, err
		}
		if !row.Usable(time.Now()) {
			return nil, fmt.Errorf("token revoked or expired")
		}
		acc := &access.Accessor{Scopes: row.Scopes}
		if row.SubjectType == model.SubjectUser {
			id := row.SubjectID
			acc.UserID = &id
		}
		a.attachOrgs(c, acc)
		return acc, nil
	}

	claims, err := a.issuer.Verify(raw)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("malformed user id in token")
	}
	scopes := make([]model.Scope, len(claims.Scopes))
	for i, s := range claims.Scopes {
		scopes[i] = model.Scope(s)
	}
	acc := &access.Accessor{UserID: &userID, Scopes: scopes}
	a.attachOrgs(c, acc)
	return acc, nil
}

func (a *Authenticator) attachOrgs(c *gin.Context, acc *access.Accessor) {
	if a.users == nil || acc.UserID == nil {
		return
	}
	orgs, err := a.users.OrgIDs(c.Request.Context(), *acc.UserID)
	if err != nil {
		a.logger.Warn("resolve org membership", zap.Error(err))
		return
	}
	acc.OrgIDs = orgs
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// accessor returns the Accessor the auth middleware attached, or anonymous.
func accessor(c *gin.Context) *access.Accessor {
	if v, ok := c.Get(ctxAccessor); ok {
		if acc, ok := v.(*access.Accessor); ok {
			return acc
		}
	}
	return &access.Accessor{}
}

// publicCache emits the shared-cache headers for public list/detail reads.
// Authenticated responses are always private.
func publicCache(c *gin.Context, acc *access.Accessor, maxAge time.Duration) {
	if acc.Anonymous() {
		c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d",
			int(maxAge.Seconds()), int(maxAge.Seconds())))
		return
	}
	c.Header("Cache-Control", "private, no-cache")
}

// fail maps a service error onto the wire envelope, logging internal detail
// with the correlation id rather than leaking it.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": shortMessage(err)})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": shortMessage(err)})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": shortMessage(err)})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": shortMessage(err)})
	default:
		logger.Error("request failed",
			zap.String("correlation_id", c.GetString(ctxCorrelationID)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// shortMessage strips wrapped detail down to the user-facing sentence.
func shortMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
