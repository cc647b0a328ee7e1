package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credanchor/credanchor/internal/contentstore"
	"github.com/credanchor/credanchor/internal/identity"
	"github.com/credanchor/credanchor/internal/verification"
)

// VerificationHandler exposes the verification endpoints: the three
// lookup strategies, the verifier's history, and per-record reports.
type VerificationHandler struct {
	engine   *verification.Engine
	verifier identity.Verifier
	logger   *zap.Logger
}

// NewVerificationHandler creates a new VerificationHandler.
func NewVerificationHandler(engine *verification.Engine, verifier identity.Verifier, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{engine: engine, verifier: verifier, logger: logger}
}

// Register mounts the verification routes on the given router group.
// Every route is authenticated: each check lands in the caller's audit
// trail, so there is no anonymous verification.
func (h *VerificationHandler) Register(rg *gin.RouterGroup) {
	v := rg.Group("/verify", identity.Require(h.verifier))
	{
		v.POST("/document", h.VerifyDocument)
		v.POST("/qr", h.VerifyQR)
		v.POST("/id", h.VerifyByID)
		v.GET("/history", h.History)
		v.GET("/report/:recordID", h.Report)
	}
}

type verifyDocumentRequest struct {
	// Exactly one of Document (the raw file) or Hash (its precomputed
	// content address) must be set.
	Document []byte `json:"document,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// VerifyDocument handles POST /verify/document — hashes the uploaded
// document and checks the result against the registry.
func (h *VerificationHandler) VerifyDocument(c *gin.Context) {
	var req verifyDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	hash := req.Hash
	if len(req.Document) > 0 {
		hash = contentstore.Address(req.Document)
	}
	if hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document or hash is required"})
		return
	}

	h.verify(c, verification.MethodDocumentHash, hash)
}

type verifyTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyQR handles POST /verify/qr — verifies a scanned QR token.
func (h *VerificationHandler) VerifyQR(c *gin.Context) {
	var req verifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	h.verify(c, verification.MethodQR, req.Token)
}

type verifyIDRequest struct {
	CredentialID string `json:"credential_id" binding:"required"`
}

// VerifyByID handles POST /verify/id — verifies by credential or share
// identifier.
func (h *VerificationHandler) VerifyByID(c *gin.Context) {
	var req verifyIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "credential_id is required"})
		return
	}
	h.verify(c, verification.MethodID, req.CredentialID)
}

func (h *VerificationHandler) verify(c *gin.Context, method verification.Method, value string) {
	principal := identity.FromCtx(c)

	result, err := h.engine.Verify(c.Request.Context(), &verification.Request{
		Method:     method,
		Value:      value,
		VerifierID: principal.SubjectID,
	})
	if err != nil {
		if c.Request.Context().Err() != nil {
			// Client went away; nothing left to answer.
			c.Abort()
			return
		}
		h.logger.Error("verification failed", zap.String("method", string(method)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	RecordVerification(string(method), result.IsValid)
	c.JSON(http.StatusOK, result)
}

// History handles GET /verify/history — returns the caller's own audit
// trail, newest first.
func (h *VerificationHandler) History(c *gin.Context) {
	principal := identity.FromCtx(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.engine.History(c.Request.Context(), principal.SubjectID, page, limit)
	if err != nil {
		h.logger.Error("verification history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Report handles GET /verify/report/:recordID — returns one audit record
// together with a snapshot of the credential it covered.
func (h *VerificationHandler) Report(c *gin.Context) {
	principal := identity.FromCtx(c)

	recordID, err := uuid.Parse(c.Param("recordID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recordID must be a UUID"})
		return
	}

	rec, snap, err := h.engine.Report(c.Request.Context(), principal.SubjectID, recordID)
	if err != nil {
		if errors.Is(err, verification.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		h.logger.Error("verification report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record":     rec,
		"credential": snap,
	})
}
