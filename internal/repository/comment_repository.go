package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type TechnicalDebtComment struct {
	ID              string    `db:"id"`
	TechnicalDebtID string    `db:"technical_debt_id"`
	UserID          string    `db:"user_id"`
	Content         string    `db:"content"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`

	User *UserSummary `db:"-"`
}

type CommentRepository interface {
	Create(ctx context.Context, comment *TechnicalDebtComment) error
	FindByTechnicalDebtID(ctx context.Context, technicalDebtID string) ([]*TechnicalDebtComment, error)
}

type sqlCommentRepository struct {
	db sqlx.ExtContext
}

func NewCommentRepository(db sqlx.ExtContext) CommentRepository {
	return &sqlCommentRepository{db: db}
}

func (r *sqlCommentRepository) Create(ctx context.Context, comment *TechnicalDebtComment) error {
	query := `
		INSERT INTO technical_debt_comments (technical_debt_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		comment.TechnicalDebtID, comment.UserID, comment.Content,
	).Scan(&comment.ID, &comment.CreatedAt, &comment.UpdatedAt)
}

func (r *sqlCommentRepository) FindByTechnicalDebtID(ctx context.Context, technicalDebtID string) ([]*TechnicalDebtComment, error) {
	query := `
		SELECT id, technical_debt_id, user_id, content, created_at, updated_at
		FROM technical_debt_comments
		WHERE technical_debt_id = $1
		ORDER BY created_at ASC, id
	`
	var comments []*TechnicalDebtComment
	if err := sqlx.SelectContext(ctx, r.db, &comments, query, technicalDebtID); err != nil {
		return nil, err
	}
	return comments, nil
}
