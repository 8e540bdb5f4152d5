package cron

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/socket"
)

type sentReminder struct {
	projectID string
	msgType   socket.MessageType
	payload   map[string]interface{}
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sentReminder
}

func (b *recordingBroadcaster) BroadcastToProject(projectID string, msgType socket.MessageType, payload map[string]interface{}, excludeUserID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentReminder{projectID, msgType, payload})
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCheckDeadlines(t *testing.T) {
	ctx := context.Background()
	repos := repository.NewMemoryRepositories()

	create := func(id, status string, deadline time.Time) {
		require.NoError(t, repos.DeprecationRepo.Create(ctx, &repository.Deprecation{
			ID:             id,
			ProjectID:      "p-1",
			DeprecatedItem: "item " + id,
			TimelineStart:  day(2025, 1, 1),
			Deadline:       deadline,
			ProgressStatus: status,
		}))
	}
	create("overdue", "IN_PROGRESS", day(2025, 3, 1))
	create("due-today", "NOT_STARTED", day(2025, 3, 10))
	create("soon", "NOT_STARTED", day(2025, 3, 15))
	create("later", "NOT_STARTED", day(2025, 4, 30))
	create("done", "COMPLETED", day(2025, 3, 2))

	b := &recordingBroadcaster{}
	s := NewScheduler(repos.DeprecationRepo, b, 7, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }

	report, err := s.CheckDeadlines(ctx)
	require.NoError(t, err)
	assert.Equal(t, DeadlineReport{Approaching: 2, Overdue: 1}, report)

	byID := map[string]sentReminder{}
	for _, r := range b.sent {
		byID[r.payload["deprecationId"].(string)] = r
	}
	require.Len(t, byID, 3)
	assert.Equal(t, socket.MessageDeadlineOverdue, byID["overdue"].msgType)
	assert.Equal(t, 9, byID["overdue"].payload["daysOverdue"])
	assert.Equal(t, socket.MessageDeadlineApproaching, byID["due-today"].msgType)
	assert.Equal(t, 0, byID["due-today"].payload["daysLeft"])
	assert.Equal(t, 5, byID["soon"].payload["daysLeft"])
	assert.Equal(t, "p-1", byID["soon"].projectID)
}

func TestCheckDeadlinesWithoutBroadcaster(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	s := NewScheduler(repos.DeprecationRepo, nil, 7, zerolog.Nop())

	report, err := s.CheckDeadlines(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Approaching+report.Overdue)
}

func TestStartStop(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	s := NewScheduler(repos.DeprecationRepo, nil, 7, zerolog.Nop())
	require.NoError(t, s.Start())
	s.Stop()
}
