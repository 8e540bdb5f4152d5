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
// Technical Debt Handler
// ============================================

type TechnicalDebtHandler struct {
	debtService       service.TechnicalDebtService
	conversionService service.ConversionService
	log               zerolog.Logger
}

// ListByProject - GET /projects/:id/technical-debts?status=
func (h *TechnicalDebtHandler) ListByProject(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	debts, err := h.debtService.ListByProject(c.Request.Context(), c.Param("id"), c.Query("status"), userID)
	if err != nil {
		handleServiceError(c, h.log, "list technical debts", err)
		return
	}

	c.JSON(http.StatusOK, toTechnicalDebtResponseList(debts))
}

// Create - POST /projects/:id/technical-debts
func (h *TechnicalDebtHandler) Create(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.CreateTechnicalDebtRequest
	if !bindJSON(c, &req) {
		return
	}

	td, err := h.debtService.Create(c.Request.Context(), &service.CreateTechnicalDebtRequest{
		ProjectID:       c.Param("id"),
		Title:           req.Title,
		Description:     req.Description,
		Priority:        req.Priority,
		Status:          req.Status,
		OwnerID:         req.OwnerID,
		DueDate:         req.DueDate,
		EstimatedEffort: req.EstimatedEffort,
		CreatedBy:       userID,
	})
	if err != nil {
		handleServiceError(c, h.log, "create technical debt", err)
		return
	}

	c.JSON(http.StatusCreated, toTechnicalDebtResponse(td))
}

// Get - GET /technical-debts/:id
func (h *TechnicalDebtHandler) Get(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	td, err := h.debtService.GetByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleServiceError(c, h.log, "get technical debt", err)
		return
	}

	c.JSON(http.StatusOK, toTechnicalDebtResponse(td))
}

// Update - PUT /technical-debts/:id
func (h *TechnicalDebtHandler) Update(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.UpdateTechnicalDebtRequest
	if !bindJSON(c, &req) {
		return
	}

	td, err := h.debtService.Update(c.Request.Context(), c.Param("id"), userID, &service.UpdateTechnicalDebtRequest{
		Title:           req.Title,
		Description:     req.Description,
		Priority:        req.Priority,
		Status:          req.Status,
		OwnerID:         req.OwnerID,
		DueDate:         req.DueDate,
		EstimatedEffort: req.EstimatedEffort,
	})
	if err != nil {
		handleServiceError(c, h.log, "update technical debt", err)
		return
	}

	c.JSON(http.StatusOK, toTechnicalDebtResponse(td))
}

// Delete - DELETE /technical-debts/:id
func (h *TechnicalDebtHandler) Delete(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	if err := h.debtService.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		handleServiceError(c, h.log, "delete technical debt", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Convert - POST /technical-debts/:id/convert
// Creates a deprecation linked to the debt and closes the debt, atomically.
func (h *TechnicalDebtHandler) Convert(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.ConvertRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.conversionService.Convert(c.Request.Context(), c.Param("id"), userID, &service.ConvertRequest{
		DeprecatedItem:       req.DeprecatedItem,
		SuggestedReplacement: req.SuggestedReplacement,
		MigrationNotes:       req.MigrationNotes,
		TimelineStart:        req.TimelineStart,
		Deadline:             req.Deadline,
		ProjectID:            req.ProjectID,
	})
	if err != nil {
		handleServiceError(c, h.log, "convert technical debt", err)
		return
	}

	deprecation := toDeprecationResponse(result.Deprecation)
	deprecation.Project = toProjectSummaryResponse(result.Project)
	c.JSON(http.StatusCreated, models.ConversionResponse{
		Deprecation:   deprecation,
		TechnicalDebt: toTechnicalDebtResponse(result.TechnicalDebt),
	})
}

// ============================================
// Comments
// ============================================

// ListComments - GET /technical-debts/:id/comments
func (h *TechnicalDebtHandler) ListComments(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	comments, err := h.debtService.ListComments(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleServiceError(c, h.log, "list comments", err)
		return
	}

	response := make([]models.CommentResponse, len(comments))
	for i, cm := range comments {
		response[i] = toCommentResponse(cm)
	}
	c.JSON(http.StatusOK, response)
}

// AddComment - POST /technical-debts/:id/comments
func (h *TechnicalDebtHandler) AddComment(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.CreateCommentRequest
	if !bindJSON(c, &req) {
		return
	}

	comment, err := h.debtService.AddComment(c.Request.Context(), c.Param("id"), userID, req.Content)
	if err != nil {
		handleServiceError(c, h.log, "add comment", err)
		return
	}

	c.JSON(http.StatusCreated, toCommentResponse(comment))
}
