package service

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/socket"
)

func TestTechnicalDebtCreateDefaults(t *testing.T) {
	f := newFixture(t)

	effort := decimal.RequireFromString("3.456")
	td, err := f.svc.TechnicalDebt.Create(f.ctx, &CreateTechnicalDebtRequest{
		ProjectID:       testProjectID,
		Title:           "  Remove legacy session store ",
		OwnerID:         strPtr(testUserID),
		DueDate:         "2025-04-01",
		EstimatedEffort: &effort,
		CreatedBy:       f.userID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, td.ID)
	assert.Equal(t, "Remove legacy session store", td.Title)
	assert.Equal(t, "Medium", td.Priority)
	assert.Equal(t, "open", td.Status)
	require.NotNil(t, td.DueDate)
	assert.Equal(t, "2025-04-01", td.DueDate.Format(dateLayout))
	assert.True(t, td.EstimatedEffort.Valid)
	assert.Equal(t, "3.46", td.EstimatedEffort.Decimal.StringFixed(2))
	require.NotNil(t, td.Owner)
	assert.Equal(t, "Ada Lovelace", td.Owner.Name)
	assert.Contains(t, f.events.types(), socket.MessageTechnicalDebtCreated)
}

func TestTechnicalDebtCreateValidation(t *testing.T) {
	f := newFixture(t)
	negative := decimal.NewFromInt(-1)

	cases := []struct {
		name string
		req  *CreateTechnicalDebtRequest
		want error
	}{
		{"no principal", &CreateTechnicalDebtRequest{ProjectID: testProjectID, Title: "x"}, ErrUnauthorized},
		{"blank title", &CreateTechnicalDebtRequest{ProjectID: testProjectID, Title: " ", CreatedBy: testUserID}, ErrInvalidInput},
		{"bad priority", &CreateTechnicalDebtRequest{ProjectID: testProjectID, Title: "x", Priority: "Urgent", CreatedBy: testUserID}, ErrInvalidInput},
		{"bad status", &CreateTechnicalDebtRequest{ProjectID: testProjectID, Title: "x", Status: "done", CreatedBy: testUserID}, ErrInvalidInput},
		{"bad due date", &CreateTechnicalDebtRequest{ProjectID: testProjectID, Title: "x", DueDate: "soon", CreatedBy: testUserID}, ErrInvalidInput},
		{"negative effort", &CreateTechnicalDebtRequest{ProjectID: testProjectID, Title: "x", EstimatedEffort: &negative, CreatedBy: testUserID}, ErrInvalidInput},
		{"unknown owner", &CreateTechnicalDebtRequest{ProjectID: testProjectID, Title: "x", OwnerID: strPtr("u-ghost"), CreatedBy: testUserID}, ErrInvalidInput},
		{"unknown project", &CreateTechnicalDebtRequest{ProjectID: "p-missing", Title: "x", CreatedBy: testUserID}, ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.TechnicalDebt.Create(f.ctx, tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestTechnicalDebtUpdate(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "One", "open")

	high, review, empty := "High", "in-review", ""
	td, err := f.svc.TechnicalDebt.Update(f.ctx, "td-1", f.userID, &UpdateTechnicalDebtRequest{
		Priority: &high,
		Status:   &review,
		OwnerID:  &empty,
	})
	require.NoError(t, err)
	assert.Equal(t, "High", td.Priority)
	assert.Equal(t, "in-review", td.Status)
	assert.Nil(t, td.OwnerID)
	assert.Nil(t, td.Owner)

	stored, err := f.svc.TechnicalDebt.GetByID(f.ctx, "td-1", f.userID)
	require.NoError(t, err)
	assert.Equal(t, "in-review", stored.Status)

	_, err = f.svc.TechnicalDebt.Update(f.ctx, "td-missing", f.userID, &UpdateTechnicalDebtRequest{Priority: &high})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTechnicalDebtUpdateKeepsConcurrentConversion(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "Migrate auth service", "open")

	// The conversion commits after the edit was requested but before the
	// edit's transaction reads the row.
	tx := &hookTransactor{inner: f.repos.Transactor}
	var once sync.Once
	tx.before = func() {
		once.Do(func() {
			_, err := f.svc.Conversion.Convert(f.ctx, "td-1", f.userID, legacyAuthRequest())
			require.NoError(t, err)
		})
	}
	svc := NewTechnicalDebtService(
		f.repos.TechnicalDebtRepo,
		f.repos.CommentRepo,
		f.repos.ProjectRepo,
		f.repos.UserRepo,
		tx,
		nil,
		newPublisher(f.events),
	)

	renamed := "Migrate auth service to OIDC"
	td, err := svc.Update(f.ctx, "td-1", f.userID, &UpdateTechnicalDebtRequest{Title: &renamed})
	require.NoError(t, err)
	assert.Equal(t, renamed, td.Title)
	assert.Equal(t, "closed", td.Status)

	stored, err := f.repos.TechnicalDebtRepo.FindByID(f.ctx, "td-1")
	require.NoError(t, err)
	assert.Equal(t, "closed", stored.Status)

	_, err = f.svc.Conversion.Convert(f.ctx, "td-1", f.userID, legacyAuthRequest())
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)

	deps, err := f.repos.DeprecationRepo.FindByProjectID(f.ctx, testProjectID)
	require.NoError(t, err)
	assert.Len(t, deps, 1)
}

func TestTechnicalDebtEditsRacingConversion(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "Migrate auth service", "open")

	var wg sync.WaitGroup
	var mu sync.Mutex
	converted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				title := "Migrate auth service (edit)"
				_, err := f.svc.TechnicalDebt.Update(f.ctx, "td-1", f.userID, &UpdateTechnicalDebtRequest{Title: &title})
				assert.NoError(t, err)
				return
			}
			if _, err := f.svc.Conversion.Convert(f.ctx, "td-1", f.userID, legacyAuthRequest()); err == nil {
				mu.Lock()
				converted++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, ErrConflict), "got %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, converted)
	stored, err := f.repos.TechnicalDebtRepo.FindByID(f.ctx, "td-1")
	require.NoError(t, err)
	assert.Equal(t, "closed", stored.Status)

	deps, err := f.repos.DeprecationRepo.FindByProjectID(f.ctx, testProjectID)
	require.NoError(t, err)
	assert.Len(t, deps, 1)
}

func TestTechnicalDebtUpdateCannotReopenClosed(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "Migrate auth service", "open")

	_, err := f.svc.Conversion.Convert(f.ctx, "td-1", f.userID, legacyAuthRequest())
	require.NoError(t, err)

	for _, status := range []string{"open", "in-review"} {
		status := status
		_, err := f.svc.TechnicalDebt.Update(f.ctx, "td-1", f.userID, &UpdateTechnicalDebtRequest{Status: &status})
		assert.True(t, errors.Is(err, ErrConflict), "%s: got %v", status, err)
	}

	// Closed to closed is allowed alongside other edits.
	closed, title := "closed", "Auth service migrated"
	td, err := f.svc.TechnicalDebt.Update(f.ctx, "td-1", f.userID, &UpdateTechnicalDebtRequest{Title: &title, Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, "closed", td.Status)
	assert.Equal(t, title, td.Title)

	_, err = f.svc.Conversion.Convert(f.ctx, "td-1", f.userID, legacyAuthRequest())
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)

	deps, err := f.repos.DeprecationRepo.FindByProjectID(f.ctx, testProjectID)
	require.NoError(t, err)
	assert.Len(t, deps, 1)
}

func TestTechnicalDebtUpdateOfVanishedRow(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "One", "open")

	tx := &hookTransactor{inner: f.repos.Transactor, wrap: func(tx *repository.TxRepositories) {
		tx.TechnicalDebts = vanishingDebts{tx.TechnicalDebts}
	}}
	svc := NewTechnicalDebtService(
		f.repos.TechnicalDebtRepo,
		f.repos.CommentRepo,
		f.repos.ProjectRepo,
		f.repos.UserRepo,
		tx,
		nil,
		newPublisher(f.events),
	)

	title := "Renamed"
	_, err := svc.Update(f.ctx, "td-1", f.userID, &UpdateTechnicalDebtRequest{Title: &title})
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestTechnicalDebtDeleteStripsLinks(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "One", "open")
	f.debt(t, "td-2", "Two", "open")
	f.deprecation(t, "D1", "td-1", "td-2")
	f.deprecation(t, "D2", "td-1")
	f.deprecation(t, "D3", "td-2")

	_, err := f.svc.TechnicalDebt.AddComment(f.ctx, "td-1", f.userID, "going away")
	require.NoError(t, err)

	require.NoError(t, f.svc.TechnicalDebt.Delete(f.ctx, "td-1", f.userID))

	assert.Equal(t, []string{"td-2"}, linked(t, f, "D1"))
	assert.Empty(t, linked(t, f, "D2"))
	assert.Equal(t, []string{"td-2"}, linked(t, f, "D3"))

	_, err = f.svc.TechnicalDebt.GetByID(f.ctx, "td-1", f.userID)
	assert.True(t, errors.Is(err, ErrNotFound))

	types := f.events.types()
	assert.Contains(t, types, socket.MessageTechnicalDebtDeleted)
	assert.Contains(t, types, socket.MessageDeprecationLinksChanged)

	err = f.svc.TechnicalDebt.Delete(f.ctx, "td-1", f.userID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTechnicalDebtListFiltersAndCaches(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "One", "open")
	f.debt(t, "td-2", "Two", "closed")

	all, err := f.svc.TechnicalDebt.ListByProject(f.ctx, testProjectID, "", f.userID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := f.svc.TechnicalDebt.ListByProject(f.ctx, testProjectID, "open", f.userID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "td-1", open[0].ID)
	require.NotNil(t, open[0].Owner)

	f.debt(t, "td-3", "Three", "open")
	cached, err := f.svc.TechnicalDebt.ListByProject(f.ctx, testProjectID, "open", f.userID)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	_, err = f.svc.TechnicalDebt.Create(f.ctx, &CreateTechnicalDebtRequest{ProjectID: testProjectID, Title: "Four", CreatedBy: f.userID})
	require.NoError(t, err)
	fresh, err := f.svc.TechnicalDebt.ListByProject(f.ctx, testProjectID, "open", f.userID)
	require.NoError(t, err)
	assert.Len(t, fresh, 3)

	_, err = f.svc.TechnicalDebt.ListByProject(f.ctx, testProjectID, "archived", f.userID)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestTechnicalDebtComments(t *testing.T) {
	f := newFixture(t)
	f.debt(t, "td-1", "One", "open")

	c, err := f.svc.TechnicalDebt.AddComment(f.ctx, "td-1", f.userID, "  needs a plan ")
	require.NoError(t, err)
	assert.Equal(t, "needs a plan", c.Content)
	require.NotNil(t, c.User)
	assert.Equal(t, "Ada Lovelace", c.User.Name)

	_, err = f.svc.TechnicalDebt.AddComment(f.ctx, "td-1", f.userID, "  ")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = f.svc.TechnicalDebt.AddComment(f.ctx, "td-missing", f.userID, "hi")
	assert.True(t, errors.Is(err, ErrNotFound))

	comments, err := f.svc.TechnicalDebt.ListComments(f.ctx, "td-1", f.userID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, c.ID, comments[0].ID)
	require.NotNil(t, comments[0].User)
	assert.Equal(t, testUserID, comments[0].User.ID)

	assert.Contains(t, f.events.types(), socket.MessageCommentAdded)
}

func TestNormalizeEffort(t *testing.T) {
	n, err := normalizeEffort(nil)
	require.NoError(t, err)
	assert.False(t, n.Valid)

	big := decimal.NewFromInt(1000000)
	_, err = normalizeEffort(&big)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	zero := decimal.Zero
	n, err = normalizeEffort(&zero)
	require.NoError(t, err)
	assert.True(t, n.Valid)
}
