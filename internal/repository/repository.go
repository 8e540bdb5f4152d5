// internal/repository/repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ============================================
// Shared projections
// ============================================

type UserSummary struct {
	ID     string
	Name   string
	Email  string
	Avatar *string
}

func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar}
}

type ProjectSummary struct {
	ID    string
	Name  string
	Color *string
}

func (p *Project) Summary() *ProjectSummary {
	if p == nil {
		return nil
	}
	return &ProjectSummary{ID: p.ID, Name: p.Name, Color: p.Color}
}

// ============================================
// Transactions
// ============================================

// TxRepositories are bound to a single transaction.
type TxRepositories struct {
	TechnicalDebts TechnicalDebtRepository
	Deprecations   DeprecationRepository
}

// Transactor runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx TxRepositories) error) error
}

type sqlTransactor struct {
	db *sqlx.DB
}

func NewTransactor(db *sqlx.DB) Transactor {
	return &sqlTransactor{db: db}
}

func (t *sqlTransactor) WithinTx(ctx context.Context, fn func(tx TxRepositories) error) error {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(TxRepositories{
		TechnicalDebts: NewTechnicalDebtRepository(tx),
		Deprecations:   NewDeprecationRepository(tx),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
