package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================
// Error DTOs
// ============================================

// Error kinds carried in ErrorResponse.Error
const (
	ErrorInvalidInput = "InvalidInput"
	ErrorUnauthorized = "Unauthorized"
	ErrorNotFound     = "NotFound"
	ErrorConflict     = "Conflict"
	ErrorInternal     = "Internal"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ============================================
// Auth DTOs
// ============================================

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type AuthResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ============================================
// User / Project DTOs
// ============================================

type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    *string   `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserSummaryResponse struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar"`
}

type ProjectSummaryResponse struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color *string `json:"color,omitempty"`
}

// ============================================
// Technical Debt DTOs
// ============================================

type CreateTechnicalDebtRequest struct {
	Title           string           `json:"title"`
	Description     *string          `json:"description,omitempty"`
	Priority        string           `json:"priority,omitempty"`
	Status          string           `json:"status,omitempty"`
	OwnerID         *string          `json:"ownerId,omitempty"`
	DueDate         string           `json:"dueDate,omitempty"`
	EstimatedEffort *decimal.Decimal `json:"estimatedEffort,omitempty"`
}

type UpdateTechnicalDebtRequest struct {
	Title           *string          `json:"title,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Priority        *string          `json:"priority,omitempty"`
	Status          *string          `json:"status,omitempty"`
	OwnerID         *string          `json:"ownerId,omitempty"`
	DueDate         *string          `json:"dueDate,omitempty"`
	EstimatedEffort *decimal.Decimal `json:"estimatedEffort,omitempty"`
}

type TechnicalDebtResponse struct {
	ID              string               `json:"id"`
	ProjectID       string               `json:"projectId"`
	Title           string               `json:"title"`
	Description     *string              `json:"description"`
	Priority        string               `json:"priority"`
	Status          string               `json:"status"`
	OwnerID         *string              `json:"ownerId"`
	Owner           *UserSummaryResponse `json:"owner"`
	DueDate         *string              `json:"dueDate"`
	EstimatedEffort *decimal.Decimal     `json:"estimatedEffort"`
	CreatedBy       *string              `json:"createdBy"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

type CreateCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

type CommentResponse struct {
	ID              string               `json:"id"`
	TechnicalDebtID string               `json:"technicalDebtId"`
	UserID          string               `json:"userId"`
	User            *UserSummaryResponse `json:"user,omitempty"`
	Content         string               `json:"content"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// ============================================
// Deprecation DTOs
// ============================================

type CreateDeprecationRequest struct {
	DeprecatedItem       string  `json:"deprecatedItem"`
	SuggestedReplacement *string `json:"suggestedReplacement,omitempty"`
	MigrationNotes       *string `json:"migrationNotes,omitempty"`
	TimelineStart        string  `json:"timelineStart"`
	Deadline             string  `json:"deadline"`
	ProgressStatus       string  `json:"progressStatus,omitempty"`
}

type UpdateDeprecationRequest struct {
	DeprecatedItem       *string `json:"deprecatedItem,omitempty"`
	SuggestedReplacement *string `json:"suggestedReplacement,omitempty"`
	MigrationNotes       *string `json:"migrationNotes,omitempty"`
	TimelineStart        *string `json:"timelineStart,omitempty"`
	Deadline             *string `json:"deadline,omitempty"`
	ProgressStatus       *string `json:"progressStatus,omitempty"`
}

type DeprecationResponse struct {
	ID                     string                  `json:"id"`
	ProjectID              string                  `json:"projectId"`
	Project                *ProjectSummaryResponse `json:"project,omitempty"`
	DeprecatedItem         string                  `json:"deprecatedItem"`
	SuggestedReplacement   *string                 `json:"suggestedReplacement"`
	MigrationNotes         *string                 `json:"migrationNotes"`
	TimelineStart          string                  `json:"timelineStart"`
	Deadline               string                  `json:"deadline"`
	ProgressStatus         string                  `json:"progressStatus"`
	LinkedTechnicalDebtIDs []string                `json:"linkedTechnicalDebtIds"`
	CreatedBy              *string                 `json:"createdBy"`
	CreatedAt              time.Time               `json:"createdAt"`
	UpdatedAt              time.Time               `json:"updatedAt"`
}

// ============================================
// Relationship ledger / conversion DTOs
// ============================================

type LinkRequest struct {
	TechnicalDebtIDs []string `json:"technicalDebtIds"`
}

type UnlinkRequest struct {
	TechnicalDebtID string `json:"technicalDebtId"`
}

type ConvertRequest struct {
	DeprecatedItem       string  `json:"deprecatedItem"`
	SuggestedReplacement *string `json:"suggestedReplacement,omitempty"`
	MigrationNotes       *string `json:"migrationNotes,omitempty"`
	TimelineStart        string  `json:"timelineStart"`
	Deadline             string  `json:"deadline"`
	ProjectID            *string `json:"projectId,omitempty"`
}

type ConversionResponse struct {
	Deprecation   DeprecationResponse   `json:"deprecation"`
	TechnicalDebt TechnicalDebtResponse `json:"technicalDebt"`
}
