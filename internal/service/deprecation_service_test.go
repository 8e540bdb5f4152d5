package service

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/socket"
)

func linked(t *testing.T, f *fixture, id string) []string {
	t.Helper()
	d, err := f.repos.DeprecationRepo.FindByID(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, d)
	return []string(d.LinkedTechnicalDebtIDs)
}

func TestLinkAppendsInRequestOrder(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "One", "open")
	f.debt(t, "td-2", "Two", "open")
	f.deprecation(t, "D1", "td-1")

	d, err := f.svc.Deprecation.Link(f.ctx, "D1", f.userID, []string{"td-2", "td-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"td-1", "td-2"}, []string(d.LinkedTechnicalDebtIDs))
	assert.Equal(t, []string{"td-1", "td-2"}, linked(t, f, "D1"))

	assert.Contains(t, f.events.types(), socket.MessageDeprecationLinksChanged)
	assert.Contains(t, f.cache.invalidated, "project:p-1:*")
}

func TestLinkIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "One", "open")
	f.debt(t, "td-2", "Two", "open")
	f.deprecation(t, "D1")

	_, err := f.svc.Deprecation.Link(f.ctx, "D1", f.userID, []string{"td-2", "td-1", "td-2"})
	require.NoError(t, err)
	first := linked(t, f, "D1")

	_, err = f.svc.Deprecation.Link(f.ctx, "D1", f.userID, []string{"td-1", "td-2"})
	require.NoError(t, err)
	assert.Equal(t, first, linked(t, f, "D1"))
	assert.Equal(t, []string{"td-2", "td-1"}, first)
}

func TestLinkAcceptsClosedDebts(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-done", "Done already", "closed")
	f.deprecation(t, "D1")

	d, err := f.svc.Deprecation.Link(f.ctx, "D1", f.userID, []string{"td-done"})
	require.NoError(t, err)
	assert.Equal(t, []string{"td-done"}, []string(d.LinkedTechnicalDebtIDs))
}

func TestLinkRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "One", "open")
	f.deprecation(t, "D1")

	cases := []struct {
		name   string
		depID  string
		userID string
		ids    []string
		want   error
	}{
		{"no principal", "D1", "", []string{"td-1"}, ErrUnauthorized},
		{"empty list", "D1", testUserID, []string{}, ErrInvalidInput},
		{"nil list", "D1", testUserID, nil, ErrInvalidInput},
		{"blank id", "D1", testUserID, []string{"td-1", "  "}, ErrInvalidInput},
		{"unknown debt", "D1", testUserID, []string{"td-1", "td-ghost"}, ErrInvalidInput},
		{"unknown deprecation", "D-missing", testUserID, []string{"td-1"}, ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Deprecation.Link(f.ctx, tc.depID, tc.userID, tc.ids)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	assert.Empty(t, linked(t, f, "D1"))
}

func TestLinkRacingDeleteLeavesNoDanglingID(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "One", "open")
	f.debt(t, "td-2", "Two", "open")
	f.deprecation(t, "D1")

	// td-2 is deleted as soon as the link has checked it exists.
	deleted := make(chan error, 1)
	var once sync.Once
	tx := &hookTransactor{inner: f.repos.Transactor, wrap: func(tx *repository.TxRepositories) {
		tx.TechnicalDebts = lockHookDebts{tx.TechnicalDebts, func() {
			once.Do(func() {
				go func() { deleted <- f.svc.TechnicalDebt.Delete(f.ctx, "td-2", f.userID) }()
			})
		}}
	}}
	svc := NewDeprecationService(f.repos.DeprecationRepo, f.repos.ProjectRepo, tx, nil, newPublisher(f.events))

	d, err := svc.Link(f.ctx, "D1", f.userID, []string{"td-1", "td-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"td-1", "td-2"}, []string(d.LinkedTechnicalDebtIDs))
	require.NoError(t, <-deleted)

	assert.Equal(t, []string{"td-1"}, linked(t, f, "D1"))
	gone, err := f.repos.TechnicalDebtRepo.FindByID(f.ctx, "td-2")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestLinkUnknownDebtWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "One", "open")
	f.deprecation(t, "D1")

	_, err := f.svc.Deprecation.Link(f.ctx, "D1", f.userID, []string{"td-1", "td-ghost"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Contains(t, err.Error(), "td-ghost")
	assert.Empty(t, linked(t, f, "D1"))
	assert.NotContains(t, f.events.types(), socket.MessageDeprecationLinksChanged)
}

func TestDeprecationUpdateOfVanishedRow(t *testing.T) {
	f := newFixture(t)
	f.deprecation(t, "D1")

	svc := NewDeprecationService(
		vanishingDeprecations{f.repos.DeprecationRepo},
		f.repos.ProjectRepo,
		f.repos.Transactor,
		nil,
		newPublisher(f.events),
	)

	item := "Renamed"
	_, err := svc.Update(f.ctx, "D1", f.userID, &UpdateDeprecationRequest{DeprecatedItem: &item})
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestUnlink(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "One", "open")
	f.debt(t, "td-2", "Two", "open")
	f.debt(t, "td-3", "Three", "open")
	f.deprecation(t, "D1", "td-1", "td-2", "td-3")

	d, err := f.svc.Deprecation.Unlink(f.ctx, "D1", f.userID, "td-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"td-1", "td-3"}, []string(d.LinkedTechnicalDebtIDs))

	t.Run("absent id leaves the set unchanged", func(t *testing.T) {
		d, err := f.svc.Deprecation.Unlink(f.ctx, "D1", f.userID, "td-2")
		require.NoError(t, err)
		assert.Equal(t, []string{"td-1", "td-3"}, []string(d.LinkedTechnicalDebtIDs))
	})

	t.Run("unknown deprecation", func(t *testing.T) {
		_, err := f.svc.Deprecation.Unlink(f.ctx, "D-missing", f.userID, "td-1")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("blank id", func(t *testing.T) {
		_, err := f.svc.Deprecation.Unlink(f.ctx, "D1", f.userID, " ")
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("no principal", func(t *testing.T) {
		_, err := f.svc.Deprecation.Unlink(f.ctx, "D1", "", "td-1")
		assert.True(t, errors.Is(err, ErrUnauthorized))
	})

	assert.Equal(t, []string{"td-1", "td-3"}, linked(t, f, "D1"))
}

func TestDeprecationCreateAndUpdate(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Deprecation.Create(f.ctx, &CreateDeprecationRequest{
		ProjectID:      testProjectID,
		DeprecatedItem: "SOAP gateway",
		TimelineStart:  "2025-02-01",
		Deadline:       "2025-05-01",
		CreatedBy:      f.userID,
	})
	require.NoError(t, err)
	assert.Equal(t, "NOT_STARTED", d.ProgressStatus)
	assert.Empty(t, d.LinkedTechnicalDebtIDs)
	assert.Contains(t, f.events.types(), socket.MessageDeprecationCreated)

	progress := "IN_PROGRESS"
	updated, err := f.svc.Deprecation.Update(f.ctx, d.ID, f.userID, &UpdateDeprecationRequest{ProgressStatus: &progress})
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", updated.ProgressStatus)

	early := "2025-01-15"
	_, err = f.svc.Deprecation.Update(f.ctx, d.ID, f.userID, &UpdateDeprecationRequest{Deadline: &early})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	bogus := "PAUSED"
	_, err = f.svc.Deprecation.Update(f.ctx, d.ID, f.userID, &UpdateDeprecationRequest{ProgressStatus: &bogus})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	stored, err := f.svc.Deprecation.GetByID(f.ctx, d.ID, f.userID)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-01", stored.Deadline.Format(dateLayout))
	assert.Equal(t, "IN_PROGRESS", stored.ProgressStatus)
}

func TestDeprecationCreateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Deprecation.Create(f.ctx, &CreateDeprecationRequest{
		ProjectID: testProjectID, DeprecatedItem: "x", TimelineStart: "2025-03-01", Deadline: "2025-02-01", CreatedBy: f.userID,
	})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = f.svc.Deprecation.Create(f.ctx, &CreateDeprecationRequest{
		ProjectID: "p-missing", DeprecatedItem: "x", TimelineStart: "2025-01-01", Deadline: "2025-02-01", CreatedBy: f.userID,
	})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.svc.Deprecation.Create(f.ctx, &CreateDeprecationRequest{
		ProjectID: testProjectID, DeprecatedItem: "x", TimelineStart: "2025-01-01", Deadline: "2025-02-01",
	})
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestDeprecationListUsesCache(t *testing.T) {
	f := newFixture(t)
	f.deprecation(t, "D1")

	first, err := f.svc.Deprecation.ListByProject(f.ctx, testProjectID, f.userID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// written behind the service's back, so only a cache miss sees it
	f.deprecation(t, "D2")
	cached, err := f.svc.Deprecation.ListByProject(f.ctx, testProjectID, f.userID)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	require.NoError(t, f.svc.Deprecation.Delete(f.ctx, "D1", f.userID))
	fresh, err := f.svc.Deprecation.ListByProject(f.ctx, testProjectID, f.userID)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "D2", fresh[0].ID)
}

func TestDeprecationListIgnoresCacheFailure(t *testing.T) {
	f := newFixture(t)
	f.deprecation(t, "D1")
	f.cache.fail = true

	list, err := f.svc.Deprecation.ListByProject(f.ctx, testProjectID, f.userID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.Deprecation.ListByProject(f.ctx, "p-missing", f.userID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNormalizeIDs(t *testing.T) {
	ids, err := normalizeIDs([]string{" a ", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	_, err = normalizeIDs(nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	assert.Equal(t, []string{"c"}, missingIDs([]string{"a", "c"}, []string{"a", "b"}))
	assert.Nil(t, missingIDs([]string{"a"}, []string{"a"}))
}
