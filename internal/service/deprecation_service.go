package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/socket"
	"github.com/teamflux/teamflux-api/internal/types"
)

type DeprecationService interface {
	Create(ctx context.Context, req *CreateDeprecationRequest) (*repository.Deprecation, error)
	GetByID(ctx context.Context, id, userID string) (*repository.Deprecation, error)
	ListByProject(ctx context.Context, projectID, userID string) ([]*repository.Deprecation, error)
	Update(ctx context.Context, id, userID string, req *UpdateDeprecationRequest) (*repository.Deprecation, error)
	Delete(ctx context.Context, id, userID string) error

	// Link adds technical debts to the deprecation's linked set. Ids already
	// present are ignored; new ones are appended in the order given.
	Link(ctx context.Context, id, userID string, technicalDebtIDs []string) (*repository.Deprecation, error)
	// Unlink removes one technical debt. Removing an id that is not linked
	// succeeds and leaves the set unchanged.
	Unlink(ctx context.Context, id, userID, technicalDebtID string) (*repository.Deprecation, error)
}

type CreateDeprecationRequest struct {
	ProjectID            string
	DeprecatedItem       string
	SuggestedReplacement *string
	MigrationNotes       *string
	TimelineStart        string
	Deadline             string
	ProgressStatus       string
	CreatedBy            string
}

// UpdateDeprecationRequest applies only the non-nil fields.
type UpdateDeprecationRequest struct {
	DeprecatedItem       *string
	SuggestedReplacement *string
	MigrationNotes       *string
	TimelineStart        *string
	Deadline             *string
	ProgressStatus       *string
}

type deprecationService struct {
	deprecationRepo repository.DeprecationRepository
	projectRepo     repository.ProjectRepository
	tx              repository.Transactor
	cache           *projectCache
	events          *publisher
}

func NewDeprecationService(
	deprecationRepo repository.DeprecationRepository,
	projectRepo repository.ProjectRepository,
	tx repository.Transactor,
	cache *projectCache,
	events *publisher,
) DeprecationService {
	return &deprecationService{
		deprecationRepo: deprecationRepo,
		projectRepo:     projectRepo,
		tx:              tx,
		cache:           cache,
		events:          events,
	}
}

func (s *deprecationService) Create(ctx context.Context, req *CreateDeprecationRequest) (*repository.Deprecation, error) {
	if err := requireActor(req.CreatedBy); err != nil {
		return nil, err
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

	progress := req.ProgressStatus
	if progress == "" {
		progress = types.ProgressNotStarted
	}
	if !types.IsValidProgressStatus(progress) {
		return nil, fmt.Errorf("%w: progressStatus must be one of %s", ErrInvalidInput, strings.Join(types.ValidProgressStatuses, ", "))
	}

	if err := s.ensureProject(ctx, req.ProjectID); err != nil {
		return nil, err
	}

	createdBy := req.CreatedBy
	d := &repository.Deprecation{
		ProjectID:              req.ProjectID,
		DeprecatedItem:         item,
		SuggestedReplacement:   optionalText(req.SuggestedReplacement),
		MigrationNotes:         optionalText(req.MigrationNotes),
		TimelineStart:          start,
		Deadline:               deadline,
		ProgressStatus:         progress,
		LinkedTechnicalDebtIDs: []string{},
		CreatedBy:              &createdBy,
	}
	if err := s.deprecationRepo.Create(ctx, d); err != nil {
		return nil, err
	}

	s.cache.invalidate(ctx, d.ProjectID)
	s.events.publish(d.ProjectID, socket.MessageDeprecationCreated, deprecationPayload(d, req.CreatedBy))
	return d, nil
}

func (s *deprecationService) GetByID(ctx context.Context, id, userID string) (*repository.Deprecation, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	return s.find(ctx, id)
}

func (s *deprecationService) ListByProject(ctx context.Context, projectID, userID string) ([]*repository.Deprecation, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if err := s.ensureProject(ctx, projectID); err != nil {
		return nil, err
	}

	key := listKey(projectID, "deprecations")
	var cached []*repository.Deprecation
	if s.cache.get(ctx, key, &cached) {
		return cached, nil
	}

	deprecations, err := s.deprecationRepo.FindByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if deprecations == nil {
		deprecations = []*repository.Deprecation{}
	}
	s.cache.set(ctx, key, deprecations)
	return deprecations, nil
}

func (s *deprecationService) Update(ctx context.Context, id, userID string, req *UpdateDeprecationRequest) (*repository.Deprecation, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	d, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.DeprecatedItem != nil {
		item := strings.TrimSpace(*req.DeprecatedItem)
		if item == "" {
			return nil, fmt.Errorf("%w: deprecatedItem must not be blank", ErrInvalidInput)
		}
		d.DeprecatedItem = item
	}
	if req.SuggestedReplacement != nil {
		d.SuggestedReplacement = optionalText(req.SuggestedReplacement)
	}
	if req.MigrationNotes != nil {
		d.MigrationNotes = optionalText(req.MigrationNotes)
	}
	if req.TimelineStart != nil {
		if d.TimelineStart, err = parseDate("timelineStart", *req.TimelineStart); err != nil {
			return nil, err
		}
	}
	if req.Deadline != nil {
		if d.Deadline, err = parseDate("deadline", *req.Deadline); err != nil {
			return nil, err
		}
	}
	if err := validateWindow(d.TimelineStart, d.Deadline); err != nil {
		return nil, err
	}
	if req.ProgressStatus != nil {
		if !types.IsValidProgressStatus(*req.ProgressStatus) {
			return nil, fmt.Errorf("%w: progressStatus must be one of %s", ErrInvalidInput, strings.Join(types.ValidProgressStatuses, ", "))
		}
		d.ProgressStatus = *req.ProgressStatus
	}

	if err := s.deprecationRepo.Update(ctx, d); err != nil {
		return nil, missingRow(err, "deprecation", id)
	}

	s.cache.invalidate(ctx, d.ProjectID)
	s.events.publish(d.ProjectID, socket.MessageDeprecationUpdated, deprecationPayload(d, userID))
	return d, nil
}

func (s *deprecationService) Delete(ctx context.Context, id, userID string) error {
	if err := requireActor(userID); err != nil {
		return err
	}
	d, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deprecationRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.cache.invalidate(ctx, d.ProjectID)
	s.events.publish(d.ProjectID, socket.MessageDeprecationDeleted, map[string]interface{}{
		"deprecationId": d.ID,
		"projectId":     d.ProjectID,
		"actorId":       userID,
	})
	return nil
}

// ============================================
// Relationship ledger
// ============================================

func (s *deprecationService) Link(ctx context.Context, id, userID string, technicalDebtIDs []string) (*repository.Deprecation, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	ids, err := normalizeIDs(technicalDebtIDs)
	if err != nil {
		return nil, err
	}
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}

	// The share locks keep the debts from being deleted before the link commits.
	var d *repository.Deprecation
	err = s.tx.WithinTx(ctx, func(tx repository.TxRepositories) error {
		existing, err := tx.TechnicalDebts.LockExistingIDs(ctx, ids)
		if err != nil {
			return err
		}
		if unknown := missingIDs(ids, existing); len(unknown) > 0 {
			return fmt.Errorf("%w: unknown technical debt ids: %s", ErrInvalidInput, strings.Join(unknown, ", "))
		}

		if d, err = tx.Deprecations.LinkTechnicalDebts(ctx, id, ids); err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: deprecation %s", ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.invalidate(ctx, d.ProjectID)
	s.events.publish(d.ProjectID, socket.MessageDeprecationLinksChanged, linksPayload(d, userID))
	return d, nil
}

func (s *deprecationService) Unlink(ctx context.Context, id, userID, technicalDebtID string) (*repository.Deprecation, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	technicalDebtID = strings.TrimSpace(technicalDebtID)
	if technicalDebtID == "" {
		return nil, fmt.Errorf("%w: technicalDebtId is required", ErrInvalidInput)
	}

	d, err := s.deprecationRepo.UnlinkTechnicalDebt(ctx, id, technicalDebtID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: deprecation %s", ErrNotFound, id)
	}

	s.cache.invalidate(ctx, d.ProjectID)
	s.events.publish(d.ProjectID, socket.MessageDeprecationLinksChanged, linksPayload(d, userID))
	return d, nil
}

// ============================================
// Helpers
// ============================================

func (s *deprecationService) find(ctx context.Context, id string) (*repository.Deprecation, error) {
	d, err := s.deprecationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: deprecation %s", ErrNotFound, id)
	}
	return d, nil
}

func (s *deprecationService) ensureProject(ctx context.Context, projectID string) error {
	if strings.TrimSpace(projectID) == "" {
		return fmt.Errorf("%w: projectId is required", ErrInvalidInput)
	}
	p, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	return nil
}

// normalizeIDs trims ids, rejects blanks and drops repeats, keeping order.
func normalizeIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: technicalDebtIds must be a non-empty list", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: technicalDebtIds must not contain blank ids", ErrInvalidInput)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func missingIDs(wanted, found []string) []string {
	have := make(map[string]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	var missing []string
	for _, id := range wanted {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func deprecationPayload(d *repository.Deprecation, actorID string) map[string]interface{} {
	return map[string]interface{}{
		"deprecationId":  d.ID,
		"projectId":      d.ProjectID,
		"deprecatedItem": d.DeprecatedItem,
		"progressStatus": d.ProgressStatus,
		"deadline":       d.Deadline.Format(dateLayout),
		"actorId":        actorID,
	}
}
