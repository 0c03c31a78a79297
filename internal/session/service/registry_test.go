package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tableside/internal/auth"
	"tableside/internal/domain"
	"tableside/internal/dto"
	apperrors "tableside/internal/errors"
	"tableside/internal/infrastructure/database"
	"tableside/internal/notify"
	"tableside/internal/session/repository"
	"tableside/internal/testutil"
)

type registryFixture struct {
	db       *database.DB
	registry *Registry
	tokens   *auth.TokenService
	notifier *testutil.RecordingNotifier
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return newRegistryFixtureWith(t, db, repository.NewSQLSessionRepository(db))
}

func newRegistryFixtureWith(t *testing.T, db *database.DB, sessions SessionRepository) *registryFixture {
	t.Helper()
	tokens := auth.NewTokenService("test-secret", 2*time.Hour, 8*time.Hour)
	notifier := &testutil.RecordingNotifier{}
	registry := NewRegistry(
		db,
		sessions,
		repository.NewSQLTableRepository(db),
		tokens,
		notifier,
		zap.NewNop(),
		5*time.Second,
		3,
	)
	return &registryFixture{db: db, registry: registry, tokens: tokens, notifier: notifier}
}

func TestRequestSession_CreatesPendingAndNotifiesStaff(t *testing.T) {
	f := newRegistryFixture(t)
	tableID := testutil.CreateTable(t, f.db, 5)

	s, created, err := f.registry.RequestSession(context.Background(), tableID, "  Alice ")

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.SessionStatusPending, s.Status)
	assert.Equal(t, "Alice", s.CustomerName)
	assert.Equal(t, 5, s.TableNumber)

	events := f.notifier.ForGroup(notify.GroupStaff)
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventNewRequest, events[0].Event)
	assert.Equal(t, dto.NewRequestEvent{
		SessionID:    s.ID,
		TableID:      tableID,
		TableNumber:  5,
		CustomerName: "Alice",
		Status:       "pending",
	}, events[0].Payload)
}

func TestRequestSession_Validation(t *testing.T) {
	f := newRegistryFixture(t)

	_, _, err := f.registry.RequestSession(context.Background(), 1, "   ")
	_, ok := apperrors.IsValidationError(err)
	assert.True(t, ok)

	_, _, err = f.registry.RequestSession(context.Background(), 404, "Alice")
	_, ok = apperrors.IsNotFoundError(err)
	assert.True(t, ok)

	assert.Empty(t, f.notifier.Events())
}

func TestRequestSession_PendingIsIdempotent(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	tableID := testutil.CreateTable(t, f.db, 2)

	first, created, err := f.registry.RequestSession(ctx, tableID, "Alice")
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := f.registry.RequestSession(ctx, tableID, "Alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, domain.SessionStatusPending, again.Status)

	assert.Equal(t, 1, testutil.CountRows(t, f.db, "sessions"))
	assert.Len(t, f.notifier.ForGroup(notify.GroupStaff), 2, "staff is re-notified on retry")
}

func TestRequestSession_ActiveTableConflicts(t *testing.T) {
	f := newRegistryFixture(t)
	tableID := testutil.CreateTable(t, f.db, 3)
	testutil.CreateSession(t, f.db, tableID, "Bob", domain.SessionStatusActive)

	_, _, err := f.registry.RequestSession(context.Background(), tableID, "Alice")

	ce, ok := apperrors.IsConflictError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ReasonTableOccupied, ce.Reason)
	assert.Empty(t, f.notifier.Events())
}

func TestRequestSession_ExclusivityUnderConcurrency(t *testing.T) {
	f := newRegistryFixture(t)
	tableID := testutil.CreateTable(t, f.db, 8)

	const callers = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[int64]int{}
		created int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, isNew, err := f.registry.RequestSession(context.Background(), tableID, "Guest")
			if err != nil {
				_, ok := apperrors.IsConflictError(err)
				assert.True(t, ok, "unexpected error: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[s.ID]++
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1, "every caller sees the same pending session")
	assert.Equal(t, 1, testutil.CountRows(t, f.db, "sessions"))
}

func TestRequestSession_DifferentTablesProceedIndependently(t *testing.T) {
	f := newRegistryFixture(t)
	tables := make([]int64, 6)
	for i := range tables {
		tables[i] = testutil.CreateTable(t, f.db, i+1)
	}

	var wg sync.WaitGroup
	for _, id := range tables {
		wg.Add(1)
		go func(tableID int64) {
			defer wg.Done()
			_, created, err := f.registry.RequestSession(context.Background(), tableID, "Guest")
			assert.NoError(t, err)
			assert.True(t, created)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, len(tables), testutil.CountRows(t, f.db, "sessions"))
}

// blindSessions hides open sessions from the locked lookup, forcing the
// insert into the unique open-slot index as if a concurrent request had
// committed first.
type blindSessions struct {
	*repository.SQLSessionRepository
}

func (b blindSessions) FindOpenByTable(ctx context.Context, q database.Querier, tableID int64, forUpdate bool) (*domain.Session, error) {
	if forUpdate {
		return nil, nil
	}
	return b.SQLSessionRepository.FindOpenByTable(ctx, q, tableID, forUpdate)
}

func TestRequestSession_UniqueViolationResolvesToWinner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := newRegistryFixtureWith(t, db, blindSessions{repository.NewSQLSessionRepository(db)})
	ctx := context.Background()

	pendingTable := testutil.CreateTable(t, db, 1)
	winner := testutil.CreateSession(t, db, pendingTable, "First", domain.SessionStatusPending)

	s, created, err := f.registry.RequestSession(ctx, pendingTable, "Second")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner, s.ID)
	assert.Equal(t, "First", s.CustomerName)

	activeTable := testutil.CreateTable(t, db, 2)
	testutil.CreateSession(t, db, activeTable, "Seated", domain.SessionStatusActive)

	_, _, err = f.registry.RequestSession(ctx, activeTable, "Second")
	ce, ok := apperrors.IsConflictError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ReasonTableOccupied, ce.Reason)

	assert.Equal(t, 2, testutil.CountRows(t, db, "sessions"))
}

func TestApproveSession_IssuesCredentialAndSeatsTable(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	tableID := testutil.CreateTable(t, f.db, 5)
	s, _, err := f.registry.RequestSession(ctx, tableID, "Alice")
	require.NoError(t, err)
	f.notifier.Reset()

	cred, err := f.registry.ApproveSession(ctx, s.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.SessionStatusActive, cred.Session.Status)
	assert.NotNil(t, cred.Session.StartTime)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), cred.ExpiresAt, time.Minute)

	identity, err := f.tokens.Verify(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, identity.Role)
	assert.Equal(t, s.ID, identity.SessionID)
	assert.Equal(t, tableID, identity.TableID)

	table, err := f.registry.GetTable(ctx, tableID)
	require.NoError(t, err)
	require.NotNil(t, table.CurrentSessionID)
	assert.Equal(t, s.ID, *table.CurrentSessionID)

	tableEvents := f.notifier.ForGroup(notify.TableGroup(tableID))
	require.Len(t, tableEvents, 1)
	assert.Equal(t, notify.EventSessionApproved, tableEvents[0].Event)
	approved := tableEvents[0].Payload.(dto.SessionApprovedEvent)
	assert.Equal(t, cred.Token, approved.Token)
	assert.Equal(t, "active", approved.Status)

	staffEvents := f.notifier.ForGroup(notify.GroupStaff)
	require.Len(t, staffEvents, 1)
	assert.Equal(t, dto.SessionUpdateEvent{SessionID: s.ID, TableID: tableID, Status: "active"}, staffEvents[0].Payload)
}

func TestApproveSession_OnlyFromPending(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	active := testutil.CreateSession(t, f.db, testutil.CreateTable(t, f.db, 1), "A", domain.SessionStatusActive)
	closed := testutil.CreateSession(t, f.db, testutil.CreateTable(t, f.db, 2), "B", domain.SessionStatusClosed)

	for _, id := range []int64{active, closed} {
		_, err := f.registry.ApproveSession(ctx, id)
		ise, ok := apperrors.IsInvalidStateError(err)
		require.True(t, ok, "session %d", id)
		assert.NotEmpty(t, ise.Current)
	}

	_, err := f.registry.ApproveSession(ctx, 999)
	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)

	assert.Empty(t, f.notifier.Events())
}

func TestCloseSession_ReleasesTable(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	tableID := testutil.CreateTable(t, f.db, 5)
	s, _, err := f.registry.RequestSession(ctx, tableID, "Alice")
	require.NoError(t, err)
	_, err = f.registry.ApproveSession(ctx, s.ID)
	require.NoError(t, err)
	f.notifier.Reset()

	closed, err := f.registry.CloseSession(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusClosed, closed.Status)
	assert.NotNil(t, closed.EndTime)

	open, err := f.registry.FindActiveOrPendingSessionForTable(ctx, tableID)
	require.NoError(t, err)
	assert.Nil(t, open)

	table, err := f.registry.GetTable(ctx, tableID)
	require.NoError(t, err)
	assert.Nil(t, table.CurrentSessionID)

	tableEvents := f.notifier.ForGroup(notify.TableGroup(tableID))
	require.Len(t, tableEvents, 1)
	assert.Equal(t, notify.EventSessionClosed, tableEvents[0].Event)
	assert.Equal(t, dto.SessionClosedEvent{SessionID: s.ID, Reason: DefaultCloseReason}, tableEvents[0].Payload)

	staffEvents := f.notifier.ForGroup(notify.GroupStaff)
	require.Len(t, staffEvents, 1)
	assert.Equal(t, dto.SessionUpdateEvent{SessionID: s.ID, TableID: tableID, Status: "closed"}, staffEvents[0].Payload)

	next, created, err := f.registry.RequestSession(ctx, tableID, "Bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, s.ID, next.ID)
}

func TestCloseSession_RejectsPendingRequest(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	tableID := testutil.CreateTable(t, f.db, 4)
	s, _, err := f.registry.RequestSession(ctx, tableID, "Alice")
	require.NoError(t, err)

	_, err = f.registry.CloseSession(ctx, s.ID, "Table reserved")
	require.NoError(t, err)

	events := f.notifier.ForGroup(notify.TableGroup(tableID))
	require.Len(t, events, 1)
	assert.Equal(t, "Table reserved", events[0].Payload.(dto.SessionClosedEvent).Reason)

	_, err = f.registry.ApproveSession(ctx, s.ID)
	_, ok := apperrors.IsInvalidStateError(err)
	assert.True(t, ok)
}

func TestCloseSession_UnknownOrAlreadyClosed(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	closed := testutil.CreateSession(t, f.db, testutil.CreateTable(t, f.db, 1), "A", domain.SessionStatusClosed)

	_, err := f.registry.CloseSession(ctx, 999, "")
	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)

	_, err = f.registry.CloseSession(ctx, closed, "")
	_, ok = apperrors.IsInvalidStateError(err)
	assert.True(t, ok)

	assert.Empty(t, f.notifier.Events())
}

func TestExpirePending_OnlyClosesPendingRequests(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	waiting := testutil.CreateTable(t, f.db, 6)
	seated := testutil.CreateTable(t, f.db, 7)

	pending, _, err := f.registry.RequestSession(ctx, waiting, "Alice")
	require.NoError(t, err)
	approved, _, err := f.registry.RequestSession(ctx, seated, "Bob")
	require.NoError(t, err)
	_, err = f.registry.ApproveSession(ctx, approved.ID)
	require.NoError(t, err)
	f.notifier.Reset()

	expired, err := f.registry.ExpirePending(ctx, pending.ID, "expired")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusClosed, expired.Status)

	_, err = f.registry.ExpirePending(ctx, approved.ID, "expired")
	ise, ok := apperrors.IsInvalidStateError(err)
	require.True(t, ok)
	assert.Equal(t, "active", ise.Current)

	still, err := f.registry.GetSession(ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, still.Status)

	table, err := f.registry.GetTable(ctx, seated)
	require.NoError(t, err)
	require.NotNil(t, table.CurrentSessionID)
	assert.Equal(t, approved.ID, *table.CurrentSessionID)

	assert.Empty(t, f.notifier.ForGroup(notify.TableGroup(seated)))
}

func TestListSessionsAndTables(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	t1 := testutil.CreateTable(t, f.db, 1)
	t2 := testutil.CreateTable(t, f.db, 2)
	a := testutil.CreateSession(t, f.db, t1, "A", domain.SessionStatusActive)
	b := testutil.CreateSession(t, f.db, t2, "B", domain.SessionStatusPending)

	all, err := f.registry.ListSessions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a, all[0].ID)
	assert.Equal(t, b, all[1].ID)

	active := domain.SessionStatusActive
	onlyActive, err := f.registry.ListSessions(ctx, &active)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, a, onlyActive[0].ID)

	tables, err := f.registry.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.True(t, tables[0].IsOccupied())
	assert.False(t, tables[1].IsOccupied())
}

func TestListStalePending(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	old := testutil.CreateSession(t, f.db, testutil.CreateTable(t, f.db, 1), "Old", domain.SessionStatusPending)
	testutil.BackdateSession(t, f.db, old, 2*time.Hour)
	testutil.CreateSession(t, f.db, testutil.CreateTable(t, f.db, 2), "Fresh", domain.SessionStatusPending)

	stale, err := f.registry.ListStalePending(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old, stale[0].ID)
}
