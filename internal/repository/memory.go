package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ============================================
// In-memory store (tests and STORAGE=memory)
// ============================================

var errDuplicateEmail = errors.New("duplicate key value violates unique constraint \"users_email_lower_idx\"")

type memoryData struct {
	users         map[string]User
	refreshTokens map[string]RefreshToken
	projects      map[string]Project
	debts         map[string]TechnicalDebt
	deprecations  map[string]Deprecation
	comments      map[string]TechnicalDebtComment

	// insertion order, used to break created_at ties
	seq     map[string]int64
	nextSeq int64
}

func newMemoryData() *memoryData {
	return &memoryData{
		users:         map[string]User{},
		refreshTokens: map[string]RefreshToken{},
		projects:      map[string]Project{},
		debts:         map[string]TechnicalDebt{},
		deprecations:  map[string]Deprecation{},
		comments:      map[string]TechnicalDebtComment{},
		seq:           map[string]int64{},
	}
}

func (d *memoryData) clone() *memoryData {
	c := newMemoryData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.refreshTokens {
		c.refreshTokens[k] = v
	}
	for k, v := range d.projects {
		c.projects[k] = v
	}
	for k, v := range d.debts {
		c.debts[k] = v
	}
	for k, v := range d.deprecations {
		v.LinkedTechnicalDebtIDs = copyIDs(v.LinkedTechnicalDebtIDs)
		c.deprecations[k] = v
	}
	for k, v := range d.comments {
		c.comments[k] = v
	}
	for k, v := range d.seq {
		c.seq[k] = v
	}
	c.nextSeq = d.nextSeq
	return c
}

func (d *memoryData) track(id string) {
	d.nextSeq++
	d.seq[id] = d.nextSeq
}

type memoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

// memoryScope is either the shared store or a transaction's working copy.
type memoryScope struct {
	store *memoryStore
	tx    *memoryData
}

func (s memoryScope) run(fn func(d *memoryData) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return fn(s.store.data)
}

func NewMemoryRepositories() *Repositories {
	store := &memoryStore{data: newMemoryData()}
	scope := memoryScope{store: store}
	return &Repositories{
		UserRepo:          &memoryUserRepository{scope},
		ProjectRepo:       &memoryProjectRepository{scope},
		TechnicalDebtRepo: &memoryTechnicalDebtRepository{scope},
		DeprecationRepo:   &memoryDeprecationRepository{scope},
		CommentRepo:       &memoryCommentRepository{scope},
		Transactor:        &memoryTransactor{store: store},
	}
}

// memoryTransactor serializes transactions and applies the working copy
// only when fn succeeds.
type memoryTransactor struct {
	store *memoryStore
}

func (t *memoryTransactor) WithinTx(ctx context.Context, fn func(tx TxRepositories) error) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	work := t.store.data.clone()
	scope := memoryScope{store: t.store, tx: work}
	if err := fn(TxRepositories{
		TechnicalDebts: &memoryTechnicalDebtRepository{scope},
		Deprecations:   &memoryDeprecationRepository{scope},
	}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.data = work
	return nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

func copyIDs(ids pq.StringArray) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	copy(out, ids)
	return out
}

func newestFirst(d *memoryData, ids []string, createdAt func(string) time.Time) {
	sort.SliceStable(ids, func(i, j int) bool {
		ci, cj := createdAt(ids[i]), createdAt(ids[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return d.seq[ids[i]] > d.seq[ids[j]]
	})
}

// ============================================
// Users
// ============================================

type memoryUserRepository struct{ memoryScope }

func (r *memoryUserRepository) Create(ctx context.Context, user *User) error {
	return r.run(func(d *memoryData) error {
		for _, u := range d.users {
			if strings.EqualFold(u.Email, user.Email) {
				return errDuplicateEmail
			}
		}
		now := time.Now()
		user.ID = newID(user.ID)
		user.CreatedAt, user.UpdatedAt = now, now
		d.users[user.ID] = *user
		d.track(user.ID)
		return nil
	})
}

func (r *memoryUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	var found *User
	err := r.run(func(d *memoryData) error {
		if u, ok := d.users[id]; ok {
			found = &u
		}
		return nil
	})
	return found, err
}

func (r *memoryUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var found *User
	err := r.run(func(d *memoryData) error {
		for _, u := range d.users {
			if strings.EqualFold(u.Email, email) {
				u := u
				found = &u
				break
			}
		}
		return nil
	})
	return found, err
}

func (r *memoryUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.run(func(d *memoryData) error {
		n = len(d.users)
		return nil
	})
	return n, err
}

func (r *memoryUserRepository) SaveRefreshToken(ctx context.Context, token *RefreshToken) error {
	return r.run(func(d *memoryData) error {
		token.ID = newID(token.ID)
		token.CreatedAt = time.Now()
		d.refreshTokens[token.Token] = *token
		return nil
	})
}

func (r *memoryUserRepository) FindRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	var found *RefreshToken
	err := r.run(func(d *memoryData) error {
		if rt, ok := d.refreshTokens[token]; ok && rt.ExpiresAt.After(time.Now()) {
			found = &rt
		}
		return nil
	})
	return found, err
}

func (r *memoryUserRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	return r.run(func(d *memoryData) error {
		delete(d.refreshTokens, token)
		return nil
	})
}

// ============================================
// Projects
// ============================================

type memoryProjectRepository struct{ memoryScope }

func (r *memoryProjectRepository) Create(ctx context.Context, project *Project) error {
	return r.run(func(d *memoryData) error {
		now := time.Now()
		project.ID = newID(project.ID)
		project.CreatedAt, project.UpdatedAt = now, now
		d.projects[project.ID] = *project
		d.track(project.ID)
		return nil
	})
}

func (r *memoryProjectRepository) FindByID(ctx context.Context, id string) (*Project, error) {
	var found *Project
	err := r.run(func(d *memoryData) error {
		if p, ok := d.projects[id]; ok {
			found = &p
		}
		return nil
	})
	return found, err
}

func (r *memoryProjectRepository) FindAll(ctx context.Context) ([]*Project, error) {
	var projects []*Project
	err := r.run(func(d *memoryData) error {
		for _, p := range d.projects {
			p := p
			projects = append(projects, &p)
		}
		return nil
	})
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, err
}

// ============================================
// Technical debts
// ============================================

type memoryTechnicalDebtRepository struct{ memoryScope }

func (r *memoryTechnicalDebtRepository) Create(ctx context.Context, td *TechnicalDebt) error {
	return r.run(func(d *memoryData) error {
		now := time.Now()
		td.ID = newID(td.ID)
		td.CreatedAt, td.UpdatedAt = now, now
		stored := *td
		stored.Owner = nil
		d.debts[td.ID] = stored
		d.track(td.ID)
		return nil
	})
}

func (r *memoryTechnicalDebtRepository) FindByID(ctx context.Context, id string) (*TechnicalDebt, error) {
	var found *TechnicalDebt
	err := r.run(func(d *memoryData) error {
		if td, ok := d.debts[id]; ok {
			found = &td
		}
		return nil
	})
	return found, err
}

// FindByIDForUpdate needs no row lock here: transactions already hold the store mutex.
func (r *memoryTechnicalDebtRepository) FindByIDForUpdate(ctx context.Context, id string) (*TechnicalDebt, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryTechnicalDebtRepository) FindByProjectID(ctx context.Context, projectID, status string) ([]*TechnicalDebt, error) {
	var debts []*TechnicalDebt
	err := r.run(func(d *memoryData) error {
		var ids []string
		for id, td := range d.debts {
			if td.ProjectID == projectID && (status == "" || td.Status == status) {
				ids = append(ids, id)
			}
		}
		newestFirst(d, ids, func(id string) time.Time { return d.debts[id].CreatedAt })
		for _, id := range ids {
			td := d.debts[id]
			debts = append(debts, &td)
		}
		return nil
	})
	return debts, err
}

func (r *memoryTechnicalDebtRepository) FindExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	found := []string{}
	err := r.run(func(d *memoryData) error {
		for _, id := range ids {
			if _, ok := d.debts[id]; ok {
				found = append(found, id)
			}
		}
		return nil
	})
	return found, err
}

func (r *memoryTechnicalDebtRepository) LockExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	return r.FindExistingIDs(ctx, ids)
}

func (r *memoryTechnicalDebtRepository) Update(ctx context.Context, td *TechnicalDebt) error {
	return r.run(func(d *memoryData) error {
		existing, ok := d.debts[td.ID]
		if !ok {
			return sql.ErrNoRows
		}
		td.ProjectID, td.CreatedBy, td.CreatedAt = existing.ProjectID, existing.CreatedBy, existing.CreatedAt
		td.Status = existing.Status
		td.UpdatedAt = time.Now()
		stored := *td
		stored.Owner = nil
		d.debts[td.ID] = stored
		return nil
	})
}

func (r *memoryTechnicalDebtRepository) UpdateStatus(ctx context.Context, id, status string) (*TechnicalDebt, error) {
	var updated *TechnicalDebt
	err := r.run(func(d *memoryData) error {
		td, ok := d.debts[id]
		if !ok {
			return nil
		}
		td.Status = status
		td.UpdatedAt = time.Now()
		d.debts[id] = td
		updated = &td
		return nil
	})
	return updated, err
}

func (r *memoryTechnicalDebtRepository) Delete(ctx context.Context, id string) error {
	return r.run(func(d *memoryData) error {
		delete(d.debts, id)
		for cid, c := range d.comments {
			if c.TechnicalDebtID == id {
				delete(d.comments, cid)
			}
		}
		return nil
	})
}

// ============================================
// Deprecations
// ============================================

type memoryDeprecationRepository struct{ memoryScope }

func (r *memoryDeprecationRepository) Create(ctx context.Context, dep *Deprecation) error {
	return r.run(func(d *memoryData) error {
		now := time.Now()
		dep.ID = newID(dep.ID)
		dep.CreatedAt, dep.UpdatedAt = now, now
		dep.LinkedTechnicalDebtIDs = copyIDs(dep.LinkedTechnicalDebtIDs)
		stored := *dep
		stored.LinkedTechnicalDebtIDs = copyIDs(dep.LinkedTechnicalDebtIDs)
		d.deprecations[dep.ID] = stored
		d.track(dep.ID)
		return nil
	})
}

func (r *memoryDeprecationRepository) get(d *memoryData, id string) *Deprecation {
	dep, ok := d.deprecations[id]
	if !ok {
		return nil
	}
	dep.LinkedTechnicalDebtIDs = copyIDs(dep.LinkedTechnicalDebtIDs)
	return &dep
}

func (r *memoryDeprecationRepository) FindByID(ctx context.Context, id string) (*Deprecation, error) {
	var found *Deprecation
	err := r.run(func(d *memoryData) error {
		found = r.get(d, id)
		return nil
	})
	return found, err
}

func (r *memoryDeprecationRepository) FindByProjectID(ctx context.Context, projectID string) ([]*Deprecation, error) {
	var deprecations []*Deprecation
	err := r.run(func(d *memoryData) error {
		var ids []string
		for id, dep := range d.deprecations {
			if dep.ProjectID == projectID {
				ids = append(ids, id)
			}
		}
		newestFirst(d, ids, func(id string) time.Time { return d.deprecations[id].CreatedAt })
		for _, id := range ids {
			deprecations = append(deprecations, r.get(d, id))
		}
		return nil
	})
	return deprecations, err
}

func (r *memoryDeprecationRepository) FindOpenDueBy(ctx context.Context, day time.Time) ([]*Deprecation, error) {
	var deprecations []*Deprecation
	err := r.run(func(d *memoryData) error {
		for id, dep := range d.deprecations {
			if dep.ProgressStatus != "COMPLETED" && !dep.Deadline.After(day) {
				deprecations = append(deprecations, r.get(d, id))
			}
		}
		return nil
	})
	sort.Slice(deprecations, func(i, j int) bool {
		if !deprecations[i].Deadline.Equal(deprecations[j].Deadline) {
			return deprecations[i].Deadline.Before(deprecations[j].Deadline)
		}
		return deprecations[i].ID < deprecations[j].ID
	})
	return deprecations, err
}

func (r *memoryDeprecationRepository) Update(ctx context.Context, dep *Deprecation) error {
	return r.run(func(d *memoryData) error {
		existing, ok := d.deprecations[dep.ID]
		if !ok {
			return sql.ErrNoRows
		}
		existing.DeprecatedItem = dep.DeprecatedItem
		existing.SuggestedReplacement = dep.SuggestedReplacement
		existing.MigrationNotes = dep.MigrationNotes
		existing.TimelineStart = dep.TimelineStart
		existing.Deadline = dep.Deadline
		existing.ProgressStatus = dep.ProgressStatus
		existing.UpdatedAt = time.Now()
		d.deprecations[dep.ID] = existing
		dep.UpdatedAt = existing.UpdatedAt
		return nil
	})
}

func (r *memoryDeprecationRepository) Delete(ctx context.Context, id string) error {
	return r.run(func(d *memoryData) error {
		delete(d.deprecations, id)
		return nil
	})
}

func (r *memoryDeprecationRepository) LinkTechnicalDebts(ctx context.Context, id string, technicalDebtIDs []string) (*Deprecation, error) {
	var updated *Deprecation
	err := r.run(func(d *memoryData) error {
		dep, ok := d.deprecations[id]
		if !ok {
			return nil
		}
		merged := copyIDs(dep.LinkedTechnicalDebtIDs)
		seen := make(map[string]bool, len(merged)+len(technicalDebtIDs))
		for _, existing := range merged {
			seen[existing] = true
		}
		for _, tdID := range technicalDebtIDs {
			if !seen[tdID] {
				seen[tdID] = true
				merged = append(merged, tdID)
			}
		}
		dep.LinkedTechnicalDebtIDs = merged
		dep.UpdatedAt = time.Now()
		d.deprecations[id] = dep
		updated = r.get(d, id)
		return nil
	})
	return updated, err
}

func (r *memoryDeprecationRepository) UnlinkTechnicalDebt(ctx context.Context, id, technicalDebtID string) (*Deprecation, error) {
	var updated *Deprecation
	err := r.run(func(d *memoryData) error {
		dep, ok := d.deprecations[id]
		if !ok {
			return nil
		}
		if remaining, removed := without(dep.LinkedTechnicalDebtIDs, technicalDebtID); removed {
			dep.LinkedTechnicalDebtIDs = remaining
			dep.UpdatedAt = time.Now()
			d.deprecations[id] = dep
		}
		updated = r.get(d, id)
		return nil
	})
	return updated, err
}

func (r *memoryDeprecationRepository) RemoveTechnicalDebtReferences(ctx context.Context, technicalDebtID string) ([]*Deprecation, error) {
	var affected []*Deprecation
	err := r.run(func(d *memoryData) error {
		for id, dep := range d.deprecations {
			remaining, removed := without(dep.LinkedTechnicalDebtIDs, technicalDebtID)
			if !removed {
				continue
			}
			dep.LinkedTechnicalDebtIDs = remaining
			dep.UpdatedAt = time.Now()
			d.deprecations[id] = dep
			affected = append(affected, r.get(d, id))
		}
		return nil
	})
	return affected, err
}

func without(ids pq.StringArray, target string) (pq.StringArray, bool) {
	out := make(pq.StringArray, 0, len(ids))
	removed := false
	for _, id := range ids {
		if id == target {
			removed = true
			continue
		}
		out = append(out, id)
	}
	return out, removed
}

// ============================================
// Comments
// ============================================

type memoryCommentRepository struct{ memoryScope }

func (r *memoryCommentRepository) Create(ctx context.Context, comment *TechnicalDebtComment) error {
	return r.run(func(d *memoryData) error {
		now := time.Now()
		comment.ID = newID(comment.ID)
		comment.CreatedAt, comment.UpdatedAt = now, now
		stored := *comment
		stored.User = nil
		d.comments[comment.ID] = stored
		d.track(comment.ID)
		return nil
	})
}

func (r *memoryCommentRepository) FindByTechnicalDebtID(ctx context.Context, technicalDebtID string) ([]*TechnicalDebtComment, error) {
	var comments []*TechnicalDebtComment
	err := r.run(func(d *memoryData) error {
		for _, c := range d.comments {
			if c.TechnicalDebtID == technicalDebtID {
				c := c
				comments = append(comments, &c)
			}
		}
		sort.Slice(comments, func(i, j int) bool {
			return d.seq[comments[i].ID] < d.seq[comments[j].ID]
		})
		return nil
	})
	return comments, err
}
