package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/socket"
	"github.com/teamflux/teamflux-api/internal/types"
)

// ConversionService turns an open technical debt into a deprecation.
type ConversionService interface {
	Convert(ctx context.Context, technicalDebtID, userID string, req *ConvertRequest) (*ConversionResult, error)
}

type ConvertRequest struct {
	DeprecatedItem       string
	SuggestedReplacement *string
	MigrationNotes       *string
	TimelineStart        string
	Deadline             string
	// ProjectID defaults to the debt's project
	ProjectID *string
}

type ConversionResult struct {
	Deprecation   *repository.Deprecation
	TechnicalDebt *repository.TechnicalDebt
	Project       *repository.ProjectSummary
}

type conversionService struct {
	debtRepo    repository.TechnicalDebtRepository
	projectRepo repository.ProjectRepository
	userRepo    repository.UserRepository
	tx          repository.Transactor
	cache       *projectCache
	events      *publisher
	log         zerolog.Logger
}

func NewConversionService(
	debtRepo repository.TechnicalDebtRepository,
	projectRepo repository.ProjectRepository,
	userRepo repository.UserRepository,
	tx repository.Transactor,
	cache *projectCache,
	events *publisher,
	log zerolog.Logger,
) ConversionService {
	return &conversionService{
		debtRepo:    debtRepo,
		projectRepo: projectRepo,
		userRepo:    userRepo,
		tx:          tx,
		cache:       cache,
		events:      events,
		log:         log,
	}
}

var errAlreadyClosed = fmt.Errorf("%w: technical debt is already closed", ErrConflict)

// Convert creates the deprecation and closes the debt in one transaction.
// Either both writes land or neither does.
func (s *conversionService) Convert(ctx context.Context, technicalDebtID, userID string, req *ConvertRequest) (*ConversionResult, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", ErrInvalidInput)
	}

	item := strings.TrimSpace(req.DeprecatedItem)
	if item == "" {
		return nil, fmt.Errorf("%w: deprecatedItem is required", ErrInvalidInput)
	}
	start, err := parseDate("timelineStart", req.TimelineStart)
	if err != nil {
		return nil, err
	}
	deadline, err := parseDate("deadline", req.Deadline)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(start, deadline); err != nil {
		return nil, err
	}

	td, err := s.debtRepo.FindByID(ctx, technicalDebtID)
	if err != nil {
		return nil, err
	}
	if td == nil {
		return nil, fmt.Errorf("%w: technical debt %s", ErrNotFound, technicalDebtID)
	}
	if td.Status == types.DebtStatusClosed {
		return nil, errAlreadyClosed
	}

	projectID := td.ProjectID
	if pid := optionalText(req.ProjectID); pid != nil {
		projectID = *pid
	}
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}

	createdBy := userID
	dep := &repository.Deprecation{
		ProjectID:              projectID,
		DeprecatedItem:         item,
		SuggestedReplacement:   optionalText(req.SuggestedReplacement),
		MigrationNotes:         optionalText(req.MigrationNotes),
		TimelineStart:          start,
		Deadline:               deadline,
		ProgressStatus:         types.ProgressNotStarted,
		LinkedTechnicalDebtIDs: []string{td.ID},
		CreatedBy:              &createdBy,
	}

	var closed *repository.TechnicalDebt
	err = s.tx.WithinTx(ctx, func(tx repository.TxRepositories) error {
		locked, err := tx.TechnicalDebts.FindByIDForUpdate(ctx, td.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return fmt.Errorf("%w: technical debt %s", ErrNotFound, td.ID)
		}
		if locked.Status == types.DebtStatusClosed {
			return errAlreadyClosed
		}

		if err := tx.Deprecations.Create(ctx, dep); err != nil {
			return fmt.Errorf("create deprecation: %w", err)
		}

		closed, err = tx.TechnicalDebts.UpdateStatus(ctx, td.ID, types.DebtStatusClosed)
		if err != nil {
			return fmt.Errorf("close technical debt: %w", err)
		}
		if closed == nil {
			return fmt.Errorf("%w: technical debt %s", ErrNotFound, td.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Committed at this point; the owner summary is best effort.
	if err := attachOwner(ctx, s.userRepo, closed); err != nil {
		s.log.Warn().Err(err).Str("technical_debt_id", closed.ID).Msg("owner lookup failed after conversion")
	}

	s.cache.invalidate(ctx, td.ProjectID, projectID)
	s.events.publish(projectID, socket.MessageTechnicalDebtConverted, map[string]interface{}{
		"technicalDebtId": closed.ID,
		"deprecationId":   dep.ID,
		"projectId":       projectID,
		"actorId":         userID,
	})

	return &ConversionResult{
		Deprecation:   dep,
		TechnicalDebt: closed,
		Project:       project.Summary(),
	}, nil
}
