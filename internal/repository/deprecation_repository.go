package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Deprecation struct {
	ID                     string         `db:"id"`
	ProjectID              string         `db:"project_id"`
	DeprecatedItem         string         `db:"deprecated_item"`
	SuggestedReplacement   *string        `db:"suggested_replacement"`
	MigrationNotes         *string        `db:"migration_notes"`
	TimelineStart          time.Time      `db:"timeline_start"`
	Deadline               time.Time      `db:"deadline"`
	ProgressStatus         string         `db:"progress_status"`
	LinkedTechnicalDebtIDs pq.StringArray `db:"linked_technical_debt_ids"`
	CreatedBy              *string        `db:"created_by"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

type DeprecationRepository interface {
	Create(ctx context.Context, d *Deprecation) error
	FindByID(ctx context.Context, id string) (*Deprecation, error)
	FindByProjectID(ctx context.Context, projectID string) ([]*Deprecation, error)
	// FindOpenDueBy lists deprecations not yet completed whose deadline is on or before the given day.
	FindOpenDueBy(ctx context.Context, day time.Time) ([]*Deprecation, error)
	Update(ctx context.Context, d *Deprecation) error
	Delete(ctx context.Context, id string) error

	// Ledger operations. Both return nil when the deprecation does not exist.
	LinkTechnicalDebts(ctx context.Context, id string, technicalDebtIDs []string) (*Deprecation, error)
	UnlinkTechnicalDebt(ctx context.Context, id, technicalDebtID string) (*Deprecation, error)
	// RemoveTechnicalDebtReferences strips the id from every linked set and
	// returns the affected deprecations.
	RemoveTechnicalDebtReferences(ctx context.Context, technicalDebtID string) ([]*Deprecation, error)
}

const deprecationColumns = `
	id, project_id, deprecated_item, suggested_replacement, migration_notes,
	timeline_start, deadline, progress_status, linked_technical_debt_ids,
	created_by, created_at, updated_at`

type sqlDeprecationRepository struct {
	db sqlx.ExtContext
}

func NewDeprecationRepository(db sqlx.ExtContext) DeprecationRepository {
	return &sqlDeprecationRepository{db: db}
}

func (r *sqlDeprecationRepository) Create(ctx context.Context, d *Deprecation) error {
	if d.LinkedTechnicalDebtIDs == nil {
		d.LinkedTechnicalDebtIDs = pq.StringArray{}
	}
	query := `
		INSERT INTO deprecations (
			id, project_id, deprecated_item, suggested_replacement, migration_notes,
			timeline_start, deadline, progress_status, linked_technical_debt_ids, created_by
		) VALUES (
			COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		d.ID, d.ProjectID, d.DeprecatedItem, d.SuggestedReplacement, d.MigrationNotes,
		d.TimelineStart, d.Deadline, d.ProgressStatus, d.LinkedTechnicalDebtIDs, d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *sqlDeprecationRepository) FindByID(ctx context.Context, id string) (*Deprecation, error) {
	return r.findOne(ctx, `SELECT `+deprecationColumns+` FROM deprecations WHERE id = $1`, id)
}

func (r *sqlDeprecationRepository) findOne(ctx context.Context, query string, args ...interface{}) (*Deprecation, error) {
	d := &Deprecation{}
	err := sqlx.GetContext(ctx, r.db, d, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *sqlDeprecationRepository) FindByProjectID(ctx context.Context, projectID string) ([]*Deprecation, error) {
	query := `SELECT ` + deprecationColumns + ` FROM deprecations
		WHERE project_id = $1 ORDER BY created_at DESC, id`
	var deprecations []*Deprecation
	if err := sqlx.SelectContext(ctx, r.db, &deprecations, query, projectID); err != nil {
		return nil, err
	}
	return deprecations, nil
}

func (r *sqlDeprecationRepository) FindOpenDueBy(ctx context.Context, day time.Time) ([]*Deprecation, error) {
	query := `SELECT ` + deprecationColumns + ` FROM deprecations
		WHERE progress_status <> 'COMPLETED' AND deadline <= $1
		ORDER BY deadline, id`
	var deprecations []*Deprecation
	if err := sqlx.SelectContext(ctx, r.db, &deprecations, query, day); err != nil {
		return nil, err
	}
	return deprecations, nil
}

func (r *sqlDeprecationRepository) Update(ctx context.Context, d *Deprecation) error {
	query := `
		UPDATE deprecations SET
			deprecated_item = $2, suggested_replacement = $3, migration_notes = $4,
			timeline_start = $5, deadline = $6, progress_status = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		d.ID, d.DeprecatedItem, d.SuggestedReplacement, d.MigrationNotes,
		d.TimelineStart, d.Deadline, d.ProgressStatus,
	).Scan(&d.UpdatedAt)
}

func (r *sqlDeprecationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM deprecations WHERE id = $1`, id)
	return err
}

// ============================================
// Ledger
// ============================================

// LinkTechnicalDebts merges ids into the linked set in a single statement.
// Existing entries keep their position and new ones are appended in the
// order given, skipping duplicates.
func (r *sqlDeprecationRepository) LinkTechnicalDebts(ctx context.Context, id string, technicalDebtIDs []string) (*Deprecation, error) {
	query := `
		UPDATE deprecations d SET
			linked_technical_debt_ids = ARRAY(
				SELECT u.id
				FROM unnest(d.linked_technical_debt_ids || $2::text[]) WITH ORDINALITY AS u(id, ord)
				GROUP BY u.id
				ORDER BY MIN(u.ord)
			),
			updated_at = NOW()
		WHERE d.id = $1
		RETURNING ` + deprecationColumns
	return r.findOne(ctx, query, id, pq.Array(technicalDebtIDs))
}

func (r *sqlDeprecationRepository) UnlinkTechnicalDebt(ctx context.Context, id, technicalDebtID string) (*Deprecation, error) {
	query := `
		UPDATE deprecations SET
			linked_technical_debt_ids = array_remove(linked_technical_debt_ids, $2),
			updated_at = CASE WHEN $2 = ANY(linked_technical_debt_ids) THEN NOW() ELSE updated_at END
		WHERE id = $1
		RETURNING ` + deprecationColumns
	return r.findOne(ctx, query, id, technicalDebtID)
}

func (r *sqlDeprecationRepository) RemoveTechnicalDebtReferences(ctx context.Context, technicalDebtID string) ([]*Deprecation, error) {
	query := `
		UPDATE deprecations SET
			linked_technical_debt_ids = array_remove(linked_technical_debt_ids, $1),
			updated_at = NOW()
		WHERE $1 = ANY(linked_technical_debt_ids)
		RETURNING ` + deprecationColumns
	var affected []*Deprecation
	if err := sqlx.SelectContext(ctx, r.db, &affected, query, technicalDebtID); err != nil {
		return nil, err
	}
	return affected, nil
}
