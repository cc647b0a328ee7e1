package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/credanchor/credanchor/internal/sharelink"
)

// ShareLinkHandler exposes the public share-link access endpoint. Unlike
// the credential routes this one is unauthenticated: the share identifier
// plus the optional password IS the grant.
type ShareLinkHandler struct {
	shares *sharelink.Manager
	logger *zap.Logger
}

// NewShareLinkHandler creates a new ShareLinkHandler.
func NewShareLinkHandler(shares *sharelink.Manager, logger *zap.Logger) *ShareLinkHandler {
	return &ShareLinkHandler{shares: shares, logger: logger}
}

// Register mounts the share-link routes on the given router group.
func (h *ShareLinkHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/shares")
	{
		s.POST(":shareID/access", h.Access)
	}
}

type accessRequest struct {
	Password string `json:"password,omitempty"`
}

// Access handles POST /shares/:shareID/access — consumes one view and
// returns a read-only snapshot of the shared credential. Expired,
// exhausted, and password-gated failures each get a distinct status so
// the consumer can tell a dead link from a wrong password.
func (h *ShareLinkHandler) Access(c *gin.Context) {
	shareID := c.Param("shareID")

	var req accessRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	snap, err := h.shares.Access(c.Request.Context(), shareID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, sharelink.ErrNotFound):
			RecordShareAccess("not_found")
			c.JSON(http.StatusNotFound, gin.H{"error": "share link not found"})
		case errors.Is(err, sharelink.ErrExpired):
			RecordShareAccess("expired")
			c.JSON(http.StatusGone, gin.H{"error": "share link has expired"})
		case errors.Is(err, sharelink.ErrExhausted):
			RecordShareAccess("exhausted")
			c.JSON(http.StatusGone, gin.H{"error": "share link view limit reached"})
		case errors.Is(err, sharelink.ErrInvalidPassword):
			RecordShareAccess("bad_password")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "password required or incorrect"})
		default:
			h.logger.Error("share link access", zap.String("share_id", shareID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to access share link"})
		}
		return
	}

	RecordShareAccess("ok")
	c.JSON(http.StatusOK, gin.H{"credential": snap})
}
