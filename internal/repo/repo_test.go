package repo_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protodesk/internal/config"
	"protodesk/internal/db"
	"protodesk/internal/domain"
	"protodesk/internal/migrate"
	"protodesk/internal/repo"
)

func openRepo(t *testing.T) (repo.Repo, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	r := repo.Repo{DB: conn}
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	seeded, err := r.SeedStatuses(ctx, tx, config.Default().Statuses)
	require.NoError(t, err)
	require.True(t, seeded)
	require.NoError(t, tx.Commit())
	return r, conn
}

func seedPeople(t *testing.T, r repo.Repo) (domain.Customer, domain.Personnel) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c, err := r.InsertCustomer(ctx, domain.Customer{FirstName: "Ana", LastName: "Silva", Email: "ana@example.com", Active: true, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	p, err := r.InsertPersonnel(ctx, domain.Personnel{FirstName: "Rui", LastName: "Costa", Email: "rui@example.com", Active: true, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	return c, p
}

func TestSeedStatusesOnlyOnce(t *testing.T) {
	r, conn := openRepo(t)
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	seeded, err := r.SeedStatuses(ctx, tx, []domain.Status{{ID: 99, Name: "Other"}})
	require.NoError(t, err)
	assert.False(t, seeded)
	require.NoError(t, tx.Commit())

	statuses, err := r.ListStatuses(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, len(config.Default().Statuses))
}

func TestProtocolRoundTrip(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	c, p := seedPeople(t, r)
	now := time.Date(2024, 3, 1, 9, 30, 0, 123, time.UTC)
	due := now.Add(72 * time.Hour)

	num, err := r.NextProtocolNumber(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, "2024-0001", num)
	num2, err := r.NextProtocolNumber(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, "2024-0002", num2)

	in := domain.Protocol{Number: num, Title: "Leak", Description: "Kitchen", CustomerID: c.ID, AssignedTo: p.ID,
		StatusID: 1, Priority: domain.PriorityHigh, DateRequired: &due, CreatedBy: p.ID, CreatedAt: now, UpdatedAt: now}
	created, err := r.InsertProtocol(ctx, in)
	require.NoError(t, err)
	got, err := r.GetProtocol(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Leak", got.Title)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
	assert.True(t, got.CreatedAt.Equal(now))
	require.NotNil(t, got.DateRequired)
	assert.True(t, got.DateRequired.Equal(due))
	assert.Nil(t, got.ClosedAt)

	closed := now.Add(time.Hour)
	got.StatusID = 4
	got.ClosedAt = &closed
	got.UpdatedAt = closed
	require.NoError(t, r.UpdateProtocolStatus(ctx, got))

	open, err := r.ListProtocols(ctx, repo.ProtocolFilters{OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
	byStatus, err := r.ListProtocols(ctx, repo.ProtocolFilters{StatusID: 4})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)

	_, err = r.GetProtocol(ctx, 4242)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemindersDueAndSent(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	c, p := seedPeople(t, r)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	proto, err := r.InsertProtocol(ctx, domain.Protocol{Number: "2024-0001", Title: "t", Description: "d", CustomerID: c.ID, AssignedTo: p.ID,
		StatusID: 1, Priority: domain.PriorityLow, CreatedBy: p.ID, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)

	past, err := r.InsertReminder(ctx, domain.Reminder{ProtocolID: proto.ID, Text: "call back", ReminderDate: now.Add(-time.Hour), CreatedBy: p.ID, CreatedAt: now})
	require.NoError(t, err)
	_, err = r.InsertReminder(ctx, domain.Reminder{ProtocolID: proto.ID, Text: "follow up", ReminderDate: now.Add(48 * time.Hour), CreatedBy: p.ID, CreatedAt: now})
	require.NoError(t, err)

	due, err := r.DueReminders(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, past.ID, due[0].ID)

	require.NoError(t, r.MarkReminderSent(ctx, past.ID))
	due, err = r.DueReminders(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	upcoming, err := r.UpcomingReminders(ctx, now, now.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "follow up", upcoming[0].Text)

	assert.ErrorIs(t, r.CompleteReminder(ctx, 999), domain.ErrNotFound)
}

func TestAPIKeyLookup(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	_, p := seedPeople(t, r)
	require.NoError(t, r.InsertAPIKey(ctx, domain.APIKey{ID: "k1", ActorID: p.ID, Name: "ci", KeyHash: repo.HashAPIKey(" secret ")}))
	key, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("secret"))
	require.NoError(t, err)
	assert.Equal(t, p.ID, key.ActorID)
	keys, err := r.ListAPIKeys(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
	require.NoError(t, r.DeleteAPIKey(ctx, "k1"))
	_, err = r.GetAPIKeyByHash(ctx, repo.HashAPIKey("secret"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScanRejectsCorruptTimestamps(t *testing.T) {
	r, conn := openRepo(t)
	ctx := context.Background()
	c, p := seedPeople(t, r)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	proto, err := r.InsertProtocol(ctx, domain.Protocol{Number: "2024-0001", Title: "t", Description: "d", CustomerID: c.ID, AssignedTo: p.ID,
		StatusID: 1, Priority: domain.PriorityLow, CreatedBy: p.ID, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	rm, err := r.InsertReminder(ctx, domain.Reminder{ProtocolID: proto.ID, Text: "call", ReminderDate: now, CreatedBy: p.ID, CreatedAt: now})
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `UPDATE protocol_reminders SET created_at='yesterday'`)
	require.NoError(t, err)
	_, err = r.GetReminder(ctx, rm.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "created_at")

	_, err = conn.ExecContext(ctx, `UPDATE protocols SET closed_at='soon'`)
	require.NoError(t, err)
	_, err = r.GetProtocol(ctx, proto.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed_at")
}

func TestDueRemindersQueueRetriesLast(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	c, p := seedPeople(t, r)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	proto, err := r.InsertProtocol(ctx, domain.Protocol{Number: "2024-0001", Title: "t", Description: "d", CustomerID: c.ID, AssignedTo: p.ID,
		StatusID: 1, Priority: domain.PriorityLow, CreatedBy: p.ID, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	older, err := r.InsertReminder(ctx, domain.Reminder{ProtocolID: proto.ID, Text: "older", ReminderDate: now.Add(-2 * time.Hour), CreatedBy: p.ID, CreatedAt: now})
	require.NoError(t, err)
	newer, err := r.InsertReminder(ctx, domain.Reminder{ProtocolID: proto.ID, Text: "newer", ReminderDate: now.Add(-time.Hour), CreatedBy: p.ID, CreatedAt: now})
	require.NoError(t, err)

	due, err := r.DueReminders(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, older.ID, due[0].ID)

	require.NoError(t, r.MarkReminderAttempted(ctx, older.ID, now))
	due, err = r.DueReminders(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, newer.ID, due[0].ID)

	require.NoError(t, r.RecordDelivery(ctx, older.ID, "http://hook", now))
	require.NoError(t, r.RecordDelivery(ctx, older.ID, "http://hook", now))
	hooks, err := r.DeliveredHooks(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"http://hook": true}, hooks)
}
