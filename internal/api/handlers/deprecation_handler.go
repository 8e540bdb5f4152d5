package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/teamflux/teamflux-api/internal/api/middleware"
	"github.com/teamflux/teamflux-api/internal/models"
	"github.com/teamflux/teamflux-api/internal/service"
)

// ============================================
// Deprecation Handler
// ============================================

type DeprecationHandler struct {
	deprecationService service.DeprecationService
	log                zerolog.Logger
}

// ListByProject - GET /projects/:id/deprecations
func (h *DeprecationHandler) ListByProject(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	deprecations, err := h.deprecationService.ListByProject(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleServiceError(c, h.log, "list deprecations", err)
		return
	}

	response := make([]models.DeprecationResponse, len(deprecations))
	for i, d := range deprecations {
		response[i] = toDeprecationResponse(d)
	}
	c.JSON(http.StatusOK, response)
}

// Create - POST /projects/:id/deprecations
func (h *DeprecationHandler) Create(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.CreateDeprecationRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.deprecationService.Create(c.Request.Context(), &service.CreateDeprecationRequest{
		ProjectID:            c.Param("id"),
		DeprecatedItem:       req.DeprecatedItem,
		SuggestedReplacement: req.SuggestedReplacement,
		MigrationNotes:       req.MigrationNotes,
		TimelineStart:        req.TimelineStart,
		Deadline:             req.Deadline,
		ProgressStatus:       req.ProgressStatus,
		CreatedBy:            userID,
	})
	if err != nil {
		handleServiceError(c, h.log, "create deprecation", err)
		return
	}

	c.JSON(http.StatusCreated, toDeprecationResponse(d))
}

// Get - GET /deprecations/:id
func (h *DeprecationHandler) Get(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	d, err := h.deprecationService.GetByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleServiceError(c, h.log, "get deprecation", err)
		return
	}

	c.JSON(http.StatusOK, toDeprecationResponse(d))
}

// Update - PUT /deprecations/:id
func (h *DeprecationHandler) Update(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.UpdateDeprecationRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.deprecationService.Update(c.Request.Context(), c.Param("id"), userID, &service.UpdateDeprecationRequest{
		DeprecatedItem:       req.DeprecatedItem,
		SuggestedReplacement: req.SuggestedReplacement,
		MigrationNotes:       req.MigrationNotes,
		TimelineStart:        req.TimelineStart,
		Deadline:             req.Deadline,
		ProgressStatus:       req.ProgressStatus,
	})
	if err != nil {
		handleServiceError(c, h.log, "update deprecation", err)
		return
	}

	c.JSON(http.StatusOK, toDeprecationResponse(d))
}

// Delete - DELETE /deprecations/:id
func (h *DeprecationHandler) Delete(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	if err := h.deprecationService.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		handleServiceError(c, h.log, "delete deprecation", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ============================================
// Relationship ledger
// ============================================

// Link - POST /deprecations/:id/links
func (h *DeprecationHandler) Link(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.LinkRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.deprecationService.Link(c.Request.Context(), c.Param("id"), userID, req.TechnicalDebtIDs)
	if err != nil {
		handleServiceError(c, h.log, "link technical debts", err)
		return
	}

	c.JSON(http.StatusOK, toDeprecationResponse(d))
}

// Unlink - DELETE /deprecations/:id/links/:technicalDebtId
func (h *DeprecationHandler) Unlink(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	h.unlink(c, userID, c.Param("technicalDebtId"))
}

// UnlinkByBody - POST /deprecations/:id/unlink
func (h *DeprecationHandler) UnlinkByBody(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.UnlinkRequest
	if !bindJSON(c, &req) {
		return
	}
	h.unlink(c, userID, req.TechnicalDebtID)
}

func (h *DeprecationHandler) unlink(c *gin.Context, userID, technicalDebtID string) {
	d, err := h.deprecationService.Unlink(c.Request.Context(), c.Param("id"), userID, technicalDebtID)
	if err != nil {
		handleServiceError(c, h.log, "unlink technical debt", err)
		return
	}

	c.JSON(http.StatusOK, toDeprecationResponse(d))
}
