package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credanchor/credanchor/internal/credential"
	"github.com/credanchor/credanchor/internal/identity"
	"github.com/credanchor/credanchor/internal/ledger"
	"github.com/credanchor/credanchor/internal/sharelink"
	"github.com/credanchor/credanchor/internal/users"
)

// CredentialHandler exposes credential issuance, lookup, lifecycle, and
// share-link creation.
type CredentialHandler struct {
	creds    *credential.Service
	shares   *sharelink.Manager
	verifier identity.Verifier
	logger   *zap.Logger
}

// NewCredentialHandler creates a new CredentialHandler.
func NewCredentialHandler(creds *credential.Service, shares *sharelink.Manager, verifier identity.Verifier, logger *zap.Logger) *CredentialHandler {
	return &CredentialHandler{creds: creds, shares: shares, verifier: verifier, logger: logger}
}

// Register mounts the credential routes on the given router group.
func (h *CredentialHandler) Register(rg *gin.RouterGroup) {
	cr := rg.Group("/credentials", identity.Require(h.verifier))
	{
		cr.POST("", identity.Require(h.verifier, string(users.RoleInstitution), string(users.RoleAdmin)), h.Issue)
		cr.GET("", h.ListOwned)
		cr.GET(":id", h.Get)
		cr.POST(":id/revoke", h.Revoke)
		cr.POST(":id/share", h.CreateShareLink)
		cr.GET(":id/shares", h.ListShareLinks)
	}
}

// Issue handles POST /credentials — anchors a new credential for a
// student. Institution and admin accounts only.
func (h *CredentialHandler) Issue(c *gin.Context) {
	principal := identity.FromCtx(c)

	var req credential.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cred, err := h.creds.Issue(c.Request.Context(), principal.SubjectID, &req)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrNotFound):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "student account not found"})
		case errors.Is(err, ledger.ErrInsufficientFunds):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "anchoring account has insufficient funds"})
		case errors.Is(err, ledger.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable, try again later"})
		default:
			h.logger.Error("issue credential", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue credential"})
		}
		return
	}

	RecordIssued()
	c.JSON(http.StatusCreated, cred)
}

// ListOwned handles GET /credentials — lists the caller's own credentials.
func (h *CredentialHandler) ListOwned(c *gin.Context) {
	principal := identity.FromCtx(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	creds, err := h.creds.ListOwned(c.Request.Context(), principal.SubjectID, limit, offset)
	if err != nil {
		h.logger.Error("list credentials", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list credentials"})
		return
	}
	if creds == nil {
		creds = []*credential.Credential{}
	}
	c.JSON(http.StatusOK, gin.H{"credentials": creds})
}

// Get handles GET /credentials/:id.
func (h *CredentialHandler) Get(c *gin.Context) {
	principal := identity.FromCtx(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	cred, err := h.creds.Get(c.Request.Context(), principal.SubjectID, principal.Role, id)
	if err != nil {
		h.writeCredentialError(c, err, "get credential")
		return
	}
	c.JSON(http.StatusOK, cred)
}

// Revoke handles POST /credentials/:id/revoke.
func (h *CredentialHandler) Revoke(c *gin.Context) {
	principal := identity.FromCtx(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	if err := h.creds.Revoke(c.Request.Context(), principal.SubjectID, principal.Role, id); err != nil {
		h.writeCredentialError(c, err, "revoke credential")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// CreateShareLink handles POST /credentials/:id/share — issues a bounded
// share link for a credential the caller owns.
func (h *CredentialHandler) CreateShareLink(c *gin.Context) {
	principal := identity.FromCtx(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	var req sharelink.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	link, err := h.shares.Create(c.Request.Context(), principal.SubjectID, id, &req)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
		case errors.Is(err, sharelink.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "only the credential owner may share it"})
		default:
			h.logger.Error("create share link", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create share link"})
		}
		return
	}
	c.JSON(http.StatusCreated, link)
}

// ListShareLinks handles GET /credentials/:id/shares.
func (h *CredentialHandler) ListShareLinks(c *gin.Context) {
	principal := identity.FromCtx(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	links, err := h.shares.ListForCredential(c.Request.Context(), principal.SubjectID, id)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
		case errors.Is(err, sharelink.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "only the credential owner may list its share links"})
		default:
			h.logger.Error("list share links", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list share links"})
		}
		return
	}
	if links == nil {
		links = []*sharelink.ShareLink{}
	}
	c.JSON(http.StatusOK, gin.H{"share_links": links})
}

func (h *CredentialHandler) writeCredentialError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, credential.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
	case errors.Is(err, credential.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	default:
		h.logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
