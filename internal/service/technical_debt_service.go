package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/socket"
	"github.com/teamflux/teamflux-api/internal/types"
)

type TechnicalDebtService interface {
	Create(ctx context.Context, req *CreateTechnicalDebtRequest) (*repository.TechnicalDebt, error)
	GetByID(ctx context.Context, id, userID string) (*repository.TechnicalDebt, error)
	ListByProject(ctx context.Context, projectID, status, userID string) ([]*repository.TechnicalDebt, error)
	Update(ctx context.Context, id, userID string, req *UpdateTechnicalDebtRequest) (*repository.TechnicalDebt, error)
	// Delete also removes the id from every deprecation's linked set.
	Delete(ctx context.Context, id, userID string) error

	AddComment(ctx context.Context, id, userID, content string) (*repository.TechnicalDebtComment, error)
	ListComments(ctx context.Context, id, userID string) ([]*repository.TechnicalDebtComment, error)
}

type CreateTechnicalDebtRequest struct {
	ProjectID       string
	Title           string
	Description     *string
	Priority        string
	Status          string
	OwnerID         *string
	DueDate         string
	EstimatedEffort *decimal.Decimal
	CreatedBy       string
}

// UpdateTechnicalDebtRequest applies only the non-nil fields. An empty
// string clears Description, OwnerID and DueDate.
type UpdateTechnicalDebtRequest struct {
	Title           *string
	Description     *string
	Priority        *string
	Status          *string
	OwnerID         *string
	DueDate         *string
	EstimatedEffort *decimal.Decimal
}

type technicalDebtService struct {
	debtRepo    repository.TechnicalDebtRepository
	commentRepo repository.CommentRepository
	projectRepo repository.ProjectRepository
	userRepo    repository.UserRepository
	tx          repository.Transactor
	cache       *projectCache
	events      *publisher
}

func NewTechnicalDebtService(
	debtRepo repository.TechnicalDebtRepository,
	commentRepo repository.CommentRepository,
	projectRepo repository.ProjectRepository,
	userRepo repository.UserRepository,
	tx repository.Transactor,
	cache *projectCache,
	events *publisher,
) TechnicalDebtService {
	return &technicalDebtService{
		debtRepo:    debtRepo,
		commentRepo: commentRepo,
		projectRepo: projectRepo,
		userRepo:    userRepo,
		tx:          tx,
		cache:       cache,
		events:      events,
	}
}

func (s *technicalDebtService) Create(ctx context.Context, req *CreateTechnicalDebtRequest) (*repository.TechnicalDebt, error) {
	if err := requireActor(req.CreatedBy); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	priority := req.Priority
	if priority == "" {
		priority = types.PriorityMedium
	}
	if !types.IsValidPriority(priority) {
		return nil, fmt.Errorf("%w: priority must be one of %s", ErrInvalidInput, strings.Join(types.ValidPriorities, ", "))
	}

	status := req.Status
	if status == "" {
		status = types.DebtStatusOpen
	}
	if !types.IsValidDebtStatus(status) {
		return nil, fmt.Errorf("%w: status must be one of %s", ErrInvalidInput, strings.Join(types.ValidDebtStatuses, ", "))
	}

	dueDate, err := parseOptionalDate("dueDate", req.DueDate)
	if err != nil {
		return nil, err
	}

	effort, err := normalizeEffort(req.EstimatedEffort)
	if err != nil {
		return nil, err
	}

	if err := s.ensureProject(ctx, req.ProjectID); err != nil {
		return nil, err
	}

	ownerID := optionalText(req.OwnerID)
	owner, err := s.resolveOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	createdBy := req.CreatedBy
	td := &repository.TechnicalDebt{
		ProjectID:       req.ProjectID,
		Title:           title,
		Description:     optionalText(req.Description),
		Priority:        priority,
		Status:          status,
		OwnerID:         ownerID,
		DueDate:         dueDate,
		EstimatedEffort: effort,
		CreatedBy:       &createdBy,
	}
	if err := s.debtRepo.Create(ctx, td); err != nil {
		return nil, err
	}
	td.Owner = owner.Summary()

	s.cache.invalidate(ctx, td.ProjectID)
	s.events.publish(td.ProjectID, socket.MessageTechnicalDebtCreated, debtPayload(td, req.CreatedBy))
	return td, nil
}

func (s *technicalDebtService) GetByID(ctx context.Context, id, userID string) (*repository.TechnicalDebt, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	td, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachOwner(ctx, td); err != nil {
		return nil, err
	}
	return td, nil
}

func (s *technicalDebtService) ListByProject(ctx context.Context, projectID, status, userID string) ([]*repository.TechnicalDebt, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if status != "" && !types.IsValidDebtStatus(status) {
		return nil, fmt.Errorf("%w: unknown status filter %q", ErrInvalidInput, status)
	}
	if err := s.ensureProject(ctx, projectID); err != nil {
		return nil, err
	}

	key := listKey(projectID, "technical-debts:"+statusKey(status))
	var cached []*repository.TechnicalDebt
	if s.cache.get(ctx, key, &cached) {
		return cached, nil
	}

	debts, err := s.debtRepo.FindByProjectID(ctx, projectID, status)
	if err != nil {
		return nil, err
	}
	if debts == nil {
		debts = []*repository.TechnicalDebt{}
	}
	for _, td := range debts {
		if err := s.attachOwner(ctx, td); err != nil {
			return nil, err
		}
	}

	s.cache.set(ctx, key, debts)
	return debts, nil
}

var errReopenClosed = fmt.Errorf("%w: a closed technical debt cannot be reopened", ErrConflict)

// Update applies the request to the row read under lock. Closed is terminal:
// a closed debt may still be edited but not reopened.
func (s *technicalDebtService) Update(ctx context.Context, id, userID string, req *UpdateTechnicalDebtRequest) (*repository.TechnicalDebt, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}

	var (
		title   string
		dueDate *time.Time
		effort  decimal.NullDecimal
		ownerID *string
		err     error
	)
	if req.Title != nil {
		if title = strings.TrimSpace(*req.Title); title == "" {
			return nil, fmt.Errorf("%w: title must not be blank", ErrInvalidInput)
		}
	}
	if req.Priority != nil && !types.IsValidPriority(*req.Priority) {
		return nil, fmt.Errorf("%w: priority must be one of %s", ErrInvalidInput, strings.Join(types.ValidPriorities, ", "))
	}
	if req.Status != nil && !types.IsValidDebtStatus(*req.Status) {
		return nil, fmt.Errorf("%w: status must be one of %s", ErrInvalidInput, strings.Join(types.ValidDebtStatuses, ", "))
	}
	if req.DueDate != nil {
		if dueDate, err = parseOptionalDate("dueDate", *req.DueDate); err != nil {
			return nil, err
		}
	}
	if req.EstimatedEffort != nil {
		if effort, err = normalizeEffort(req.EstimatedEffort); err != nil {
			return nil, err
		}
	}
	if req.OwnerID != nil {
		ownerID = optionalText(req.OwnerID)
		if _, err := s.resolveOwner(ctx, ownerID); err != nil {
			return nil, err
		}
	}

	var td *repository.TechnicalDebt
	err = s.tx.WithinTx(ctx, func(tx repository.TxRepositories) error {
		var err error
		td, err = tx.TechnicalDebts.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if td == nil {
			return fmt.Errorf("%w: technical debt %s", ErrNotFound, id)
		}
		if req.Status != nil && td.Status == types.DebtStatusClosed && *req.Status != types.DebtStatusClosed {
			return errReopenClosed
		}

		if req.Title != nil {
			td.Title = title
		}
		if req.Description != nil {
			td.Description = optionalText(req.Description)
		}
		if req.Priority != nil {
			td.Priority = *req.Priority
		}
		if req.DueDate != nil {
			td.DueDate = dueDate
		}
		if req.EstimatedEffort != nil {
			td.EstimatedEffort = effort
		}
		if req.OwnerID != nil {
			td.OwnerID = ownerID
		}
		if err := tx.TechnicalDebts.Update(ctx, td); err != nil {
			return missingRow(err, "technical debt", id)
		}

		if req.Status == nil || *req.Status == td.Status {
			return nil
		}
		updated, err := tx.TechnicalDebts.UpdateStatus(ctx, id, *req.Status)
		if err != nil {
			return err
		}
		if updated == nil {
			return fmt.Errorf("%w: technical debt %s", ErrNotFound, id)
		}
		td = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.attachOwner(ctx, td); err != nil {
		return nil, err
	}

	s.cache.invalidate(ctx, td.ProjectID)
	s.events.publish(td.ProjectID, socket.MessageTechnicalDebtUpdated, debtPayload(td, userID))
	return td, nil
}

func (s *technicalDebtService) Delete(ctx context.Context, id, userID string) error {
	if err := requireActor(userID); err != nil {
		return err
	}

	var td *repository.TechnicalDebt
	var touched []*repository.Deprecation
	err := s.tx.WithinTx(ctx, func(tx repository.TxRepositories) error {
		var err error
		td, err = tx.TechnicalDebts.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if td == nil {
			return fmt.Errorf("%w: technical debt %s", ErrNotFound, id)
		}
		if touched, err = tx.Deprecations.RemoveTechnicalDebtReferences(ctx, id); err != nil {
			return err
		}
		return tx.TechnicalDebts.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	projects := []string{td.ProjectID}
	for _, d := range touched {
		projects = append(projects, d.ProjectID)
		s.events.publish(d.ProjectID, socket.MessageDeprecationLinksChanged, linksPayload(d, userID))
	}
	s.cache.invalidate(ctx, projects...)
	s.events.publish(td.ProjectID, socket.MessageTechnicalDebtDeleted, map[string]interface{}{
		"technicalDebtId": td.ID,
		"projectId":       td.ProjectID,
		"actorId":         userID,
	})
	return nil
}

// ============================================
// Comments
// ============================================

func (s *technicalDebtService) AddComment(ctx context.Context, id, userID, content string) (*repository.TechnicalDebtComment, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment content is required", ErrInvalidInput)
	}
	td, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	comment := &repository.TechnicalDebtComment{
		TechnicalDebtID: td.ID,
		UserID:          userID,
		Content:         content,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	if author, err := s.userRepo.FindByID(ctx, userID); err == nil {
		comment.User = author.Summary()
	}

	s.events.publish(td.ProjectID, socket.MessageCommentAdded, map[string]interface{}{
		"technicalDebtId": td.ID,
		"commentId":       comment.ID,
		"actorId":         userID,
	})
	return comment, nil
}

func (s *technicalDebtService) ListComments(ctx context.Context, id, userID string) ([]*repository.TechnicalDebtComment, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}

	comments, err := s.commentRepo.FindByTechnicalDebtID(ctx, id)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*repository.TechnicalDebtComment{}
	}

	authors := map[string]*repository.UserSummary{}
	for _, c := range comments {
		summary, ok := authors[c.UserID]
		if !ok {
			u, err := s.userRepo.FindByID(ctx, c.UserID)
			if err != nil {
				return nil, err
			}
			summary = u.Summary()
			authors[c.UserID] = summary
		}
		c.User = summary
	}
	return comments, nil
}

// ============================================
// Helpers
// ============================================

func (s *technicalDebtService) find(ctx context.Context, id string) (*repository.TechnicalDebt, error) {
	td, err := s.debtRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if td == nil {
		return nil, fmt.Errorf("%w: technical debt %s", ErrNotFound, id)
	}
	return td, nil
}

func (s *technicalDebtService) ensureProject(ctx context.Context, projectID string) error {
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

func (s *technicalDebtService) resolveOwner(ctx context.Context, ownerID *string) (*repository.User, error) {
	if ownerID == nil {
		return nil, nil
	}
	owner, err := s.userRepo.FindByID(ctx, *ownerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("%w: owner %s does not exist", ErrInvalidInput, *ownerID)
	}
	return owner, nil
}

func (s *technicalDebtService) attachOwner(ctx context.Context, td *repository.TechnicalDebt) error {
	return attachOwner(ctx, s.userRepo, td)
}

func attachOwner(ctx context.Context, users repository.UserRepository, td *repository.TechnicalDebt) error {
	td.Owner = nil
	if td.OwnerID == nil {
		return nil
	}
	owner, err := users.FindByID(ctx, *td.OwnerID)
	if err != nil {
		return err
	}
	td.Owner = owner.Summary()
	return nil
}

func normalizeEffort(effort *decimal.Decimal) (decimal.NullDecimal, error) {
	if effort == nil {
		return decimal.NullDecimal{}, nil
	}
	if effort.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("%w: estimatedEffort must not be negative", ErrInvalidInput)
	}
	if effort.GreaterThanOrEqual(decimal.NewFromInt(1000000)) {
		return decimal.NullDecimal{}, fmt.Errorf("%w: estimatedEffort is too large", ErrInvalidInput)
	}
	return decimal.NewNullDecimal(effort.Round(2)), nil
}

func statusKey(status string) string {
	if status == "" {
		return "all"
	}
	return status
}

func debtPayload(td *repository.TechnicalDebt, actorID string) map[string]interface{} {
	return map[string]interface{}{
		"technicalDebtId": td.ID,
		"projectId":       td.ProjectID,
		"title":           td.Title,
		"status":          td.Status,
		"priority":        td.Priority,
		"actorId":         actorID,
	}
}

func linksPayload(d *repository.Deprecation, actorID string) map[string]interface{} {
	return map[string]interface{}{
		"deprecationId":          d.ID,
		"projectId":              d.ProjectID,
		"linkedTechnicalDebtIds": []string(d.LinkedTechnicalDebtIDs),
		"actorId":                actorID,
	}
}
