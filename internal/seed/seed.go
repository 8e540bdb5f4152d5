// internal/seed/seed.go
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/types"
)

// DefaultPassword is shared by every seeded account.
const DefaultPassword = "password123"

// SeedData creates demo users, projects, technical debts and a deprecation.
// It does nothing when any user already exists.
func SeedData(ctx context.Context, repos *repository.Repositories, log zerolog.Logger) error {
	log = log.With().Str("component", "seed").Logger()

	count, err := repos.UserRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		log.Info().Int("users", count).Msg("data already exists, skipping seed")
		return nil
	}

	// ============================================
	// USERS
	// ============================================
	password, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	maya := &repository.User{Email: "maya.chen@teamflux.dev", Password: string(password), Name: "Maya Chen"}
	omar := &repository.User{Email: "omar.haddad@teamflux.dev", Password: string(password), Name: "Omar Haddad"}
	for _, u := range []*repository.User{maya, omar} {
		if err := repos.UserRepo.Create(ctx, u); err != nil {
			return fmt.Errorf("create user %s: %w", u.Email, err)
		}
	}

	// ============================================
	// PROJECTS
	// ============================================
	platform := &repository.Project{
		Name:        "Platform",
		Description: stringPtr("Shared services, identity and infrastructure"),
		Color:       stringPtr("#6366F1"),
	}
	checkout := &repository.Project{
		Name:        "Checkout",
		Description: stringPtr("Cart, payments and order flow"),
		Color:       stringPtr("#10B981"),
	}
	for _, p := range []*repository.Project{platform, checkout} {
		if err := repos.ProjectRepo.Create(ctx, p); err != nil {
			return fmt.Errorf("create project %s: %w", p.Name, err)
		}
	}

	// ============================================
	// TECHNICAL DEBT
	// ============================================
	today := time.Now().UTC().Truncate(24 * time.Hour)
	debts := []*repository.TechnicalDebt{
		{
			ProjectID:       platform.ID,
			Title:           "Session store still on the legacy auth database",
			Description:     stringPtr("Sessions are written to the old auth schema and replicated by a nightly job."),
			Priority:        types.PriorityHigh,
			Status:          types.DebtStatusOpen,
			OwnerID:         &maya.ID,
			DueDate:         datePtr(today.AddDate(0, 1, 0)),
			EstimatedEffort: decimal.NewNullDecimal(decimal.RequireFromString("13.50")),
			CreatedBy:       &maya.ID,
		},
		{
			ProjectID: platform.ID,
			Title:     "Hand-rolled retry loop in the mail client",
			Priority:  types.PriorityMedium,
			Status:    types.DebtStatusInReview,
			OwnerID:   &omar.ID,
			CreatedBy: &omar.ID,
		},
		{
			ProjectID:       checkout.ID,
			Title:           "Price rounding duplicated across services",
			Description:     stringPtr("Cart and invoice services round differently for some currencies."),
			Priority:        types.PriorityLow,
			Status:          types.DebtStatusOpen,
			EstimatedEffort: decimal.NewNullDecimal(decimal.NewFromInt(5)),
			CreatedBy:       &omar.ID,
		},
	}
	for _, td := range debts {
		if err := repos.TechnicalDebtRepo.Create(ctx, td); err != nil {
			return fmt.Errorf("create technical debt %q: %w", td.Title, err)
		}
	}

	// ============================================
	// DEPRECATION
	// ============================================
	deprecation := &repository.Deprecation{
		ProjectID:              platform.ID,
		DeprecatedItem:         "SOAP user lookup endpoint",
		SuggestedReplacement:   stringPtr("GET /v2/users/:id"),
		MigrationNotes:         stringPtr("Callers must switch to the REST client before the gateway is retired."),
		TimelineStart:          today,
		Deadline:               today.AddDate(0, 0, 5),
		ProgressStatus:         types.ProgressInProgress,
		LinkedTechnicalDebtIDs: []string{debts[1].ID},
		CreatedBy:              &maya.ID,
	}
	if err := repos.DeprecationRepo.Create(ctx, deprecation); err != nil {
		return fmt.Errorf("create deprecation: %w", err)
	}

	log.Info().
		Int("users", 2).
		Int("projects", 2).
		Int("technical_debts", len(debts)).
		Int("deprecations", 1).
		Str("password", DefaultPassword).
		Msg("seed data created")
	return nil
}

func stringPtr(s string) *string {
	return &s
}

func datePtr(t time.Time) *time.Time {
	return &t
}
