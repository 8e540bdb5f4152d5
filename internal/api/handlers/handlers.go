package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/teamflux/teamflux-api/internal/api/middleware"
	"github.com/teamflux/teamflux-api/internal/models"
	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/service"
)

const dateLayout = "2006-01-02"

// Handlers contains all HTTP handlers
type Handlers struct {
	Auth          *AuthHandler
	TechnicalDebt *TechnicalDebtHandler
	Deprecation   *DeprecationHandler
}

// NewHandlers creates all handlers
func NewHandlers(services *service.Services, log zerolog.Logger) *Handlers {
	log = log.With().Str("component", "api").Logger()
	return &Handlers{
		Auth:          &AuthHandler{authService: services.Auth, log: log},
		TechnicalDebt: &TechnicalDebtHandler{debtService: services.TechnicalDebt, conversionService: services.Conversion, log: log},
		Deprecation:   &DeprecationHandler{deprecationService: services.Deprecation, log: log},
	}
}

// ============================================
// Errors
// ============================================

// handleServiceError maps service errors onto the error envelope. Internal
// failures are logged in full and answered with an opaque message.
func handleServiceError(c *gin.Context, log zerolog.Logger, action string, err error) {
	status, kind := classify(err)
	if status == http.StatusInternalServerError {
		logAPIError(c, log, action, err)
		c.JSON(status, models.ErrorResponse{Error: kind, Message: "internal server error"})
		return
	}
	c.JSON(status, models.ErrorResponse{Error: kind, Message: publicMessage(err)})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, models.ErrorInvalidInput
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, models.ErrorUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, models.ErrorNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrUserExists):
		return http.StatusConflict, models.ErrorConflict
	default:
		return http.StatusInternalServerError, models.ErrorInternal
	}
}

// publicMessage strips the sentinel prefix from wrapped errors.
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{service.ErrInvalidInput, service.ErrNotFound, service.ErrConflict, service.ErrUnauthorized} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func logAPIError(c *gin.Context, log zerolog.Logger, action string, err error) {
	log.Error().
		Err(err).
		Str("action", action).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("user_id", middleware.GetUserID(c)).
		Msg("request failed")
}

// bindJSON answers malformed bodies with InvalidInput.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorInvalidInput, Message: err.Error()})
		return false
	}
	return true
}

// ============================================
// Response Mappers
// ============================================

func toUserResponse(u *repository.User) models.UserResponse {
	return models.UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
	}
}

func toUserSummaryResponse(u *repository.UserSummary) *models.UserSummaryResponse {
	if u == nil {
		return nil
	}
	return &models.UserSummaryResponse{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar}
}

func toProjectSummaryResponse(p *repository.ProjectSummary) *models.ProjectSummaryResponse {
	if p == nil {
		return nil
	}
	return &models.ProjectSummaryResponse{ID: p.ID, Name: p.Name, Color: p.Color}
}

func toTechnicalDebtResponse(td *repository.TechnicalDebt) models.TechnicalDebtResponse {
	resp := models.TechnicalDebtResponse{
		ID:          td.ID,
		ProjectID:   td.ProjectID,
		Title:       td.Title,
		Description: td.Description,
		Priority:    td.Priority,
		Status:      td.Status,
		OwnerID:     td.OwnerID,
		Owner:       toUserSummaryResponse(td.Owner),
		CreatedBy:   td.CreatedBy,
		CreatedAt:   td.CreatedAt,
		UpdatedAt:   td.UpdatedAt,
	}
	if td.DueDate != nil {
		due := td.DueDate.Format(dateLayout)
		resp.DueDate = &due
	}
	if td.EstimatedEffort.Valid {
		effort := td.EstimatedEffort.Decimal
		resp.EstimatedEffort = &effort
	}
	return resp
}

func toTechnicalDebtResponseList(debts []*repository.TechnicalDebt) []models.TechnicalDebtResponse {
	response := make([]models.TechnicalDebtResponse, len(debts))
	for i, td := range debts {
		response[i] = toTechnicalDebtResponse(td)
	}
	return response
}

func toDeprecationResponse(d *repository.Deprecation) models.DeprecationResponse {
	return models.DeprecationResponse{
		ID:                     d.ID,
		ProjectID:              d.ProjectID,
		DeprecatedItem:         d.DeprecatedItem,
		SuggestedReplacement:   d.SuggestedReplacement,
		MigrationNotes:         d.MigrationNotes,
		TimelineStart:          d.TimelineStart.Format(dateLayout),
		Deadline:               d.Deadline.Format(dateLayout),
		ProgressStatus:         d.ProgressStatus,
		LinkedTechnicalDebtIDs: safeStringSlice(d.LinkedTechnicalDebtIDs),
		CreatedBy:              d.CreatedBy,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}

func toCommentResponse(c *repository.TechnicalDebtComment) models.CommentResponse {
	return models.CommentResponse{
		ID:              c.ID,
		TechnicalDebtID: c.TechnicalDebtID,
		UserID:          c.UserID,
		User:            toUserSummaryResponse(c.User),
		Content:         c.Content,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// Helper to ensure nil slices become empty slices
func safeStringSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
