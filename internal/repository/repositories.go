package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

type Repositories struct {
	// Accounts and projects (pgxpool)
	UserRepo    UserRepository
	ProjectRepo ProjectRepository

	// Ledger tables (sqlx)
	TechnicalDebtRepo TechnicalDebtRepository
	DeprecationRepo   DeprecationRepository
	CommentRepo       CommentRepository
	Transactor        Transactor
}

func NewRepositories(pool *pgxpool.Pool, db *sqlx.DB) *Repositories {
	return &Repositories{
		UserRepo:    NewUserRepository(pool),
		ProjectRepo: NewProjectRepository(pool),

		TechnicalDebtRepo: NewTechnicalDebtRepository(db),
		DeprecationRepo:   NewDeprecationRepository(db),
		CommentRepo:       NewCommentRepository(db),
		Transactor:        NewTransactor(db),
	}
}
