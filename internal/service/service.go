package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamflux/teamflux-api/internal/config"
	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/socket"
)

// Error kinds. Services wrap these with detail, e.g.
// fmt.Errorf("%w: deadline must not be before timelineStart", ErrInvalidInput),
// and callers classify with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("resource not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidToken       = errors.New("invalid token")
)

// Broadcaster pushes events to a project's websocket room.
type Broadcaster interface {
	BroadcastToProject(projectID string, msgType socket.MessageType, payload map[string]interface{}, excludeUserID string)
}

// Cache stores JSON snapshots of project listings.
type Cache interface {
	GetCache(ctx context.Context, key string, dest interface{}) error
	SetCache(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	InvalidateCache(ctx context.Context, pattern string) error
}

// ============================================
// Services Container
// ============================================

type Services struct {
	Auth          AuthService
	TechnicalDebt TechnicalDebtService
	Deprecation   DeprecationService
	Conversion    ConversionService
}

// ServiceDeps contains all dependencies needed to create services.
// Broadcaster and Cache may be nil.
type ServiceDeps struct {
	Config      *config.Config
	Repos       *repository.Repositories
	Broadcaster Broadcaster
	Cache       Cache
	Logger      zerolog.Logger
}

func NewServices(deps *ServiceDeps) *Services {
	ttl := time.Minute
	if deps.Config != nil && deps.Config.CacheTTL > 0 {
		ttl = deps.Config.CacheTTL
	}
	cache := newProjectCache(deps.Cache, ttl, deps.Logger)
	events := newPublisher(deps.Broadcaster)

	return &Services{
		Auth: NewAuthService(deps.Config, deps.Repos.UserRepo),
		TechnicalDebt: NewTechnicalDebtService(
			deps.Repos.TechnicalDebtRepo,
			deps.Repos.CommentRepo,
			deps.Repos.ProjectRepo,
			deps.Repos.UserRepo,
			deps.Repos.Transactor,
			cache,
			events,
		),
		Deprecation: NewDeprecationService(
			deps.Repos.DeprecationRepo,
			deps.Repos.ProjectRepo,
			deps.Repos.Transactor,
			cache,
			events,
		),
		Conversion: NewConversionService(
			deps.Repos.TechnicalDebtRepo,
			deps.Repos.ProjectRepo,
			deps.Repos.UserRepo,
			deps.Repos.Transactor,
			cache,
			events,
			deps.Logger.With().Str("component", "conversion").Logger(),
		),
	}
}

// publisher tolerates a nil Broadcaster.
type publisher struct {
	b Broadcaster
}

func newPublisher(b Broadcaster) *publisher {
	return &publisher{b: b}
}

// publish reaches every subscriber, the actor's other sessions included.
func (p *publisher) publish(projectID string, msgType socket.MessageType, payload map[string]interface{}) {
	if p == nil || p.b == nil {
		return
	}
	p.b.BroadcastToProject(projectID, msgType, payload, "")
}

// requireActor rejects calls without an authenticated caller.
func requireActor(userID string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	return nil
}

// missingRow reports a write whose row was deleted after it was read.
func missingRow(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return err
}
