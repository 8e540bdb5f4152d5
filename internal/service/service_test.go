package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/teamflux/teamflux-api/internal/config"
	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/socket"
)

type recordedEvent struct {
	projectID string
	msgType   socket.MessageType
	payload   map[string]interface{}
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeBroadcaster) BroadcastToProject(projectID string, msgType socket.MessageType, payload map[string]interface{}, excludeUserID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{projectID: projectID, msgType: msgType, payload: payload})
}

func (f *fakeBroadcaster) types() []socket.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []socket.MessageType
	for _, e := range f.events {
		out = append(out, e.msgType)
	}
	return out
}

// fakeCache is a map-backed Cache that can be told to fail.
type fakeCache struct {
	mu          sync.Mutex
	data        map[string]interface{}
	invalidated []string
	fail        bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]interface{}{}}
}

func (c *fakeCache) GetCache(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	v, ok := c.data[key]
	if !ok {
		return redis.Nil
	}
	switch d := dest.(type) {
	case *[]*repository.TechnicalDebt:
		*d = v.([]*repository.TechnicalDebt)
	case *[]*repository.Deprecation:
		*d = v.([]*repository.Deprecation)
	}
	return nil
}

func (c *fakeCache) SetCache(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	c.data[key] = value
	return nil
}

func (c *fakeCache) InvalidateCache(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, pattern)
	if c.fail {
		return errors.New("cache down")
	}
	c.data = map[string]interface{}{}
	return nil
}

type fixture struct {
	ctx    context.Context
	repos  *repository.Repositories
	svc    *Services
	events *fakeBroadcaster
	cache  *fakeCache
	userID string
}

const (
	testUserID    = "u-1"
	testProjectID = "p-1"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repos := repository.NewMemoryRepositories()

	avatar := "https://example.com/ada.png"
	require.NoError(t, repos.UserRepo.Create(ctx, &repository.User{
		ID: testUserID, Email: "ada@example.com", Name: "Ada Lovelace", Avatar: &avatar,
	}))
	require.NoError(t, repos.ProjectRepo.Create(ctx, &repository.Project{ID: testProjectID, Name: "Platform"}))

	events := &fakeBroadcaster{}
	cache := newFakeCache()
	svc := NewServices(&ServiceDeps{
		Config: &config.Config{
			JWTSecret:     "test-secret",
			JWTExpiry:     1,
			RefreshExpiry: 1,
			CacheTTL:      time.Minute,
		},
		Repos:       repos,
		Broadcaster: events,
		Cache:       cache,
		Logger:      zerolog.Nop(),
	})

	return &fixture{ctx: ctx, repos: repos, svc: svc, events: events, cache: cache, userID: testUserID}
}

func (f *fixture) debt(t *testing.T, id, title, status string) *repository.TechnicalDebt {
	t.Helper()
	owner := testUserID
	td := &repository.TechnicalDebt{
		ID:        id,
		ProjectID: testProjectID,
		Title:     title,
		Priority:  "Medium",
		Status:    status,
		OwnerID:   &owner,
	}
	require.NoError(t, f.repos.TechnicalDebtRepo.Create(f.ctx, td))
	return td
}

func (f *fixture) deprecation(t *testing.T, id string, linked ...string) *repository.Deprecation {
	t.Helper()
	d := &repository.Deprecation{
		ID:                     id,
		ProjectID:              testProjectID,
		DeprecatedItem:         "Deprecated thing " + id,
		TimelineStart:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Deadline:               time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		ProgressStatus:         "NOT_STARTED",
		LinkedTechnicalDebtIDs: linked,
	}
	require.NoError(t, f.repos.DeprecationRepo.Create(f.ctx, d))
	return d
}

func strPtr(s string) *string { return &s }

// ============================================
// Failure injection
// ============================================

type failingDeprecations struct {
	repository.DeprecationRepository
}

func (failingDeprecations) Create(ctx context.Context, d *repository.Deprecation) error {
	return errors.New("injected: deprecation insert failed")
}

type failingDebts struct {
	repository.TechnicalDebtRepository
}

func (failingDebts) UpdateStatus(ctx context.Context, id, status string) (*repository.TechnicalDebt, error) {
	return nil, errors.New("injected: status update failed")
}

// faultyTransactor swaps in failing repositories inside the transaction.
type faultyTransactor struct {
	inner            repository.Transactor
	failCreate       bool
	failStatusUpdate bool
}

func (f *faultyTransactor) WithinTx(ctx context.Context, fn func(tx repository.TxRepositories) error) error {
	return f.inner.WithinTx(ctx, func(tx repository.TxRepositories) error {
		if f.failCreate {
			tx.Deprecations = failingDeprecations{tx.Deprecations}
		}
		if f.failStatusUpdate {
			tx.TechnicalDebts = failingDebts{tx.TechnicalDebts}
		}
		return fn(tx)
	})
}

// hookTransactor lets a test replace the repositories handed to fn.
type hookTransactor struct {
	inner  repository.Transactor
	before func()
	wrap   func(tx *repository.TxRepositories)
}

func (h *hookTransactor) WithinTx(ctx context.Context, fn func(tx repository.TxRepositories) error) error {
	if h.before != nil {
		h.before()
	}
	return h.inner.WithinTx(ctx, func(tx repository.TxRepositories) error {
		if h.wrap != nil {
			h.wrap(&tx)
		}
		return fn(tx)
	})
}

// lockHookDebts calls after once the existence check has taken its locks.
type lockHookDebts struct {
	repository.TechnicalDebtRepository
	after func()
}

func (r lockHookDebts) LockExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	found, err := r.TechnicalDebtRepository.LockExistingIDs(ctx, ids)
	r.after()
	return found, err
}

// vanishingDebts deletes the row right before writing it.
type vanishingDebts struct {
	repository.TechnicalDebtRepository
}

func (r vanishingDebts) Update(ctx context.Context, td *repository.TechnicalDebt) error {
	if err := r.TechnicalDebtRepository.Delete(ctx, td.ID); err != nil {
		return err
	}
	return r.TechnicalDebtRepository.Update(ctx, td)
}

type vanishingDeprecations struct {
	repository.DeprecationRepository
}

func (r vanishingDeprecations) Update(ctx context.Context, d *repository.Deprecation) error {
	if err := r.DeprecationRepository.Delete(ctx, d.ID); err != nil {
		return err
	}
	return r.DeprecationRepository.Update(ctx, d)
}
