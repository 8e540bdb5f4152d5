package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type TechnicalDebt struct {
	ID              string              `db:"id"`
	ProjectID       string              `db:"project_id"`
	Title           string              `db:"title"`
	Description     *string             `db:"description"`
	Priority        string              `db:"priority"`
	Status          string              `db:"status"`
	OwnerID         *string             `db:"owner_id"`
	DueDate         *time.Time          `db:"due_date"`
	EstimatedEffort decimal.NullDecimal `db:"estimated_effort"`
	CreatedBy       *string             `db:"created_by"`
	CreatedAt       time.Time           `db:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at"`

	// Populated by the service layer
	Owner *UserSummary `db:"-"`
}

type TechnicalDebtRepository interface {
	Create(ctx context.Context, td *TechnicalDebt) error
	FindByID(ctx context.Context, id string) (*TechnicalDebt, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id string) (*TechnicalDebt, error)
	FindByProjectID(ctx context.Context, projectID, status string) ([]*TechnicalDebt, error)
	FindExistingIDs(ctx context.Context, ids []string) ([]string, error)
	// LockExistingIDs is FindExistingIDs holding a share lock on every found
	// row until the surrounding transaction ends.
	LockExistingIDs(ctx context.Context, ids []string) ([]string, error)
	// Update writes the editable fields and reloads Status. Status itself
	// only changes through UpdateStatus.
	Update(ctx context.Context, td *TechnicalDebt) error
	UpdateStatus(ctx context.Context, id, status string) (*TechnicalDebt, error)
	Delete(ctx context.Context, id string) error
}

const technicalDebtColumns = `
	id, project_id, title, description, priority, status, owner_id,
	due_date, estimated_effort, created_by, created_at, updated_at`

type sqlTechnicalDebtRepository struct {
	db sqlx.ExtContext
}

func NewTechnicalDebtRepository(db sqlx.ExtContext) TechnicalDebtRepository {
	return &sqlTechnicalDebtRepository{db: db}
}

func (r *sqlTechnicalDebtRepository) Create(ctx context.Context, td *TechnicalDebt) error {
	query := `
		INSERT INTO technical_debts (
			id, project_id, title, description, priority, status, owner_id,
			due_date, estimated_effort, created_by
		) VALUES (
			COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		td.ID, td.ProjectID, td.Title, td.Description, td.Priority, td.Status,
		td.OwnerID, td.DueDate, td.EstimatedEffort, td.CreatedBy,
	).Scan(&td.ID, &td.CreatedAt, &td.UpdatedAt)
}

func (r *sqlTechnicalDebtRepository) FindByID(ctx context.Context, id string) (*TechnicalDebt, error) {
	return r.findOne(ctx, `SELECT `+technicalDebtColumns+` FROM technical_debts WHERE id = $1`, id)
}

func (r *sqlTechnicalDebtRepository) FindByIDForUpdate(ctx context.Context, id string) (*TechnicalDebt, error) {
	return r.findOne(ctx, `SELECT `+technicalDebtColumns+` FROM technical_debts WHERE id = $1 FOR UPDATE`, id)
}

func (r *sqlTechnicalDebtRepository) findOne(ctx context.Context, query string, args ...interface{}) (*TechnicalDebt, error) {
	td := &TechnicalDebt{}
	err := sqlx.GetContext(ctx, r.db, td, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return td, nil
}

func (r *sqlTechnicalDebtRepository) FindByProjectID(ctx context.Context, projectID, status string) ([]*TechnicalDebt, error) {
	query := `SELECT ` + technicalDebtColumns + ` FROM technical_debts WHERE project_id = $1`
	args := []interface{}{projectID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`

	var debts []*TechnicalDebt
	if err := sqlx.SelectContext(ctx, r.db, &debts, query, args...); err != nil {
		return nil, err
	}
	return debts, nil
}

func (r *sqlTechnicalDebtRepository) FindExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	return r.existingIDs(ctx, `SELECT id FROM technical_debts WHERE id = ANY($1::text[])`, ids)
}

func (r *sqlTechnicalDebtRepository) LockExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	return r.existingIDs(ctx, `SELECT id FROM technical_debts WHERE id = ANY($1::text[]) ORDER BY id FOR SHARE`, ids)
}

func (r *sqlTechnicalDebtRepository) existingIDs(ctx context.Context, query string, ids []string) ([]string, error) {
	var found []string
	if len(ids) == 0 {
		return found, nil
	}
	err := sqlx.SelectContext(ctx, r.db, &found, query, pq.Array(ids))
	return found, err
}

func (r *sqlTechnicalDebtRepository) Update(ctx context.Context, td *TechnicalDebt) error {
	query := `
		UPDATE technical_debts SET
			title = $2, description = $3, priority = $4, owner_id = $5,
			due_date = $6, estimated_effort = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING status, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		td.ID, td.Title, td.Description, td.Priority, td.OwnerID,
		td.DueDate, td.EstimatedEffort,
	).Scan(&td.Status, &td.UpdatedAt)
}

// UpdateStatus returns nil when the row does not exist.
func (r *sqlTechnicalDebtRepository) UpdateStatus(ctx context.Context, id, status string) (*TechnicalDebt, error) {
	query := `
		UPDATE technical_debts SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + technicalDebtColumns
	return r.findOne(ctx, query, id, status)
}

func (r *sqlTechnicalDebtRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM technical_debts WHERE id = $1`, id)
	return err
}
