package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tableside/internal/domain"
	"tableside/internal/dto"
	apperrors "tableside/internal/errors"
	"tableside/internal/infrastructure/database"
	"tableside/internal/notify"
)

const DefaultCloseReason = "Session closed by staff"

type Store interface {
	database.Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	IsUniqueViolation(err error) bool
	WithRetry(ctx context.Context, maxAttempts int, logger *zap.Logger, fn func(ctx context.Context) error) error
}

type SessionRepository interface {
	FindByID(ctx context.Context, q database.Querier, id int64) (*domain.Session, error)
	FindByIDForUpdate(ctx context.Context, tx database.Querier, id int64) (*domain.Session, error)
	FindOpenByTable(ctx context.Context, q database.Querier, tableID int64, forUpdate bool) (*domain.Session, error)
	Insert(ctx context.Context, tx database.Querier, tableID int64, customerName string, createdAt time.Time) (int64, error)
	Activate(ctx context.Context, tx database.Querier, id int64, startTime time.Time) error
	Close(ctx context.Context, tx database.Querier, id int64, endTime time.Time) error
	List(ctx context.Context, status *domain.SessionStatus) ([]domain.Session, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Session, error)
}

type TableRepository interface {
	FindByID(ctx context.Context, q database.Querier, id int64) (*domain.Table, error)
	List(ctx context.Context) ([]domain.Table, error)
	SetCurrentSession(ctx context.Context, tx database.Querier, tableID, sessionID int64) error
	ClearCurrentSession(ctx context.Context, tx database.Querier, tableID, sessionID int64) error
}

type CredentialIssuer interface {
	IssueSessionCredential(sessionID, tableID int64) (string, time.Time, error)
}

type Notifier interface {
	Publish(group, event string, payload any)
}

// Credential is the signed session token handed to the table on approval.
type Credential struct {
	Token     string
	ExpiresAt time.Time
	Session   domain.Session
}

// Registry owns the session lifecycle and keeps at most one pending or active
// session per table. Each table is serialized by the store (row lock plus the
// unique open-slot index); different tables never wait on each other.
type Registry struct {
	store            Store
	sessions         SessionRepository
	tables           TableRepository
	issuer           CredentialIssuer
	notifier         Notifier
	logger           *zap.Logger
	txTimeout        time.Duration
	maxRetryAttempts int
	now              func() time.Time
}

func NewRegistry(
	store Store,
	sessions SessionRepository,
	tables TableRepository,
	issuer CredentialIssuer,
	notifier Notifier,
	logger *zap.Logger,
	txTimeout time.Duration,
	maxRetryAttempts int,
) *Registry {
	return &Registry{
		store:            store,
		sessions:         sessions,
		tables:           tables,
		issuer:           issuer,
		notifier:         notifier,
		logger:           logger,
		txTimeout:        txTimeout,
		maxRetryAttempts: maxRetryAttempts,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// RequestSession claims tableID for a customer. created is false when an
// existing pending request for the table was returned instead.
func (r *Registry) RequestSession(ctx context.Context, tableID int64, customerName string) (domain.Session, bool, error) {
	name := strings.TrimSpace(customerName)
	if name == "" {
		return domain.Session{}, false, apperrors.NewValidationError("validation failed", apperrors.ValidationDetail{
			Field:   "customerName",
			Message: "customerName is required",
		})
	}

	table, err := r.tables.FindByID(ctx, r.store, tableID)
	if err != nil {
		return domain.Session{}, false, err
	}

	var (
		session domain.Session
		created bool
	)
	err = r.store.WithRetry(ctx, r.maxRetryAttempts, r.logger, func(ctx context.Context) error {
		var err error
		session, created, err = r.requestOnce(ctx, table, name)
		return err
	})
	if err != nil {
		return domain.Session{}, false, err
	}

	if created {
		r.logger.Info("session requested", zap.Int64("sessionId", session.ID), zap.Int64("tableId", tableID))
	} else {
		r.logger.Info("pending session request repeated", zap.Int64("sessionId", session.ID), zap.Int64("tableId", tableID))
	}

	r.notifier.Publish(notify.GroupStaff, notify.EventNewRequest, dto.NewRequestEvent{
		SessionID:    session.ID,
		TableID:      session.TableID,
		TableNumber:  session.TableNumber,
		CustomerName: session.CustomerName,
		Status:       string(session.Status),
	})

	return session, created, nil
}

func (r *Registry) requestOnce(ctx context.Context, table *domain.Table, name string) (domain.Session, bool, error) {
	txCtx, cancel := context.WithTimeout(ctx, r.txTimeout)
	defer cancel()

	tx, err := r.store.BeginTx(txCtx, nil)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := r.sessions.FindOpenByTable(txCtx, tx, table.ID, true)
	if err != nil {
		return domain.Session{}, false, err
	}
	if existing != nil {
		existing.TableNumber = table.Number
		session, err := resolveExisting(*existing)
		return session, false, err
	}

	now := r.now()
	id, err := r.sessions.Insert(txCtx, tx, table.ID, name, now)
	if err != nil {
		if !r.store.IsUniqueViolation(err) {
			return domain.Session{}, false, err
		}
		// Lost the race for this table: report whatever the winner committed.
		_ = tx.Rollback()
		winner, findErr := r.sessions.FindOpenByTable(ctx, r.store, table.ID, false)
		if findErr != nil {
			return domain.Session{}, false, findErr
		}
		if winner == nil {
			return domain.Session{}, false, apperrors.NewConflictError(apperrors.ReasonTableOccupied, fmt.Sprintf("table %d is being claimed", table.Number))
		}
		session, err := resolveExisting(*winner)
		return session, false, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Session{}, false, fmt.Errorf("committing session request: %w", err)
	}

	return domain.Session{
		ID:           id,
		TableID:      table.ID,
		TableNumber:  table.Number,
		CustomerName: name,
		Status:       domain.SessionStatusPending,
		CreatedAt:    now,
	}, true, nil
}

func resolveExisting(s domain.Session) (domain.Session, error) {
	if s.Status == domain.SessionStatusActive {
		return domain.Session{}, apperrors.NewConflictError(apperrors.ReasonTableOccupied, fmt.Sprintf("table %d is already occupied", s.TableNumber))
	}
	return s, nil
}

// ApproveSession moves a pending session to active, seats it at its table and
// issues the customer credential. The credential is published to the table
// group only after commit.
func (r *Registry) ApproveSession(ctx context.Context, sessionID int64) (Credential, error) {
	var cred Credential
	err := r.store.WithRetry(ctx, r.maxRetryAttempts, r.logger, func(ctx context.Context) error {
		var err error
		cred, err = r.approveOnce(ctx, sessionID)
		return err
	})
	if err != nil {
		return Credential{}, err
	}

	r.logger.Info("session approved", zap.Int64("sessionId", sessionID), zap.Int64("tableId", cred.Session.TableID))

	r.notifier.Publish(notify.TableGroup(cred.Session.TableID), notify.EventSessionApproved, dto.SessionApprovedEvent{
		SessionID: sessionID,
		Token:     cred.Token,
		Status:    string(domain.SessionStatusActive),
		ExpiresAt: cred.ExpiresAt,
	})
	r.notifier.Publish(notify.GroupStaff, notify.EventSessionUpdate, dto.SessionUpdateEvent{
		SessionID: sessionID,
		TableID:   cred.Session.TableID,
		Status:    string(domain.SessionStatusActive),
	})

	return cred, nil
}

func (r *Registry) approveOnce(ctx context.Context, sessionID int64) (Credential, error) {
	txCtx, cancel := context.WithTimeout(ctx, r.txTimeout)
	defer cancel()

	tx, err := r.store.BeginTx(txCtx, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	session, err := r.sessions.FindByIDForUpdate(txCtx, tx, sessionID)
	if err != nil {
		return Credential{}, err
	}
	if session.Status != domain.SessionStatusPending {
		return Credential{}, apperrors.NewInvalidStateError(string(session.Status),
			fmt.Sprintf("session %d is %s; only pending sessions can be approved", sessionID, session.Status))
	}

	now := r.now()
	if err := r.sessions.Activate(txCtx, tx, sessionID, now); err != nil {
		return Credential{}, err
	}
	if err := r.tables.SetCurrentSession(txCtx, tx, session.TableID, sessionID); err != nil {
		return Credential{}, err
	}

	token, expiresAt, err := r.issuer.IssueSessionCredential(sessionID, session.TableID)
	if err != nil {
		return Credential{}, fmt.Errorf("issuing session credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Credential{}, fmt.Errorf("committing approval: %w", err)
	}

	session.Status = domain.SessionStatusActive
	session.StartTime = &now
	return Credential{Token: token, ExpiresAt: expiresAt, Session: *session}, nil
}

// CloseSession ends a pending or active session and frees its table. Closing
// a pending session is how staff reject a request.
func (r *Registry) CloseSession(ctx context.Context, sessionID int64, reason string) (domain.Session, error) {
	return r.close(ctx, sessionID, reason, false)
}

// ExpirePending closes a session only while it is still pending. A request
// approved in the meantime yields InvalidState and stays open.
func (r *Registry) ExpirePending(ctx context.Context, sessionID int64, reason string) (domain.Session, error) {
	return r.close(ctx, sessionID, reason, true)
}

func (r *Registry) close(ctx context.Context, sessionID int64, reason string, pendingOnly bool) (domain.Session, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultCloseReason
	}

	var session domain.Session
	err := r.store.WithRetry(ctx, r.maxRetryAttempts, r.logger, func(ctx context.Context) error {
		var err error
		session, err = r.closeOnce(ctx, sessionID, pendingOnly)
		return err
	})
	if err != nil {
		return domain.Session{}, err
	}

	r.logger.Info("session closed", zap.Int64("sessionId", sessionID), zap.Int64("tableId", session.TableID), zap.String("reason", reason))

	r.notifier.Publish(notify.TableGroup(session.TableID), notify.EventSessionClosed, dto.SessionClosedEvent{
		SessionID: sessionID,
		Reason:    reason,
	})
	r.notifier.Publish(notify.GroupStaff, notify.EventSessionUpdate, dto.SessionUpdateEvent{
		SessionID: sessionID,
		TableID:   session.TableID,
		Status:    string(domain.SessionStatusClosed),
	})

	return session, nil
}

func (r *Registry) closeOnce(ctx context.Context, sessionID int64, pendingOnly bool) (domain.Session, error) {
	txCtx, cancel := context.WithTimeout(ctx, r.txTimeout)
	defer cancel()

	tx, err := r.store.BeginTx(txCtx, nil)
	if err != nil {
		return domain.Session{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	session, err := r.sessions.FindByIDForUpdate(txCtx, tx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.SessionStatusClosed {
		return domain.Session{}, apperrors.NewInvalidStateError(string(session.Status),
			fmt.Sprintf("session %d is already closed", sessionID))
	}
	if pendingOnly && session.Status != domain.SessionStatusPending {
		return domain.Session{}, apperrors.NewInvalidStateError(string(session.Status),
			fmt.Sprintf("session %d is no longer pending", sessionID))
	}

	now := r.now()
	if err := r.sessions.Close(txCtx, tx, sessionID, now); err != nil {
		return domain.Session{}, err
	}
	if err := r.tables.ClearCurrentSession(txCtx, tx, session.TableID, sessionID); err != nil {
		return domain.Session{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Session{}, fmt.Errorf("committing close: %w", err)
	}

	session.Status = domain.SessionStatusClosed
	session.EndTime = &now
	return *session, nil
}

func (r *Registry) ListSessions(ctx context.Context, status *domain.SessionStatus) ([]domain.Session, error) {
	return r.sessions.List(ctx, status)
}

// FindActiveOrPendingSessionForTable returns nil when the table is free.
func (r *Registry) FindActiveOrPendingSessionForTable(ctx context.Context, tableID int64) (*domain.Session, error) {
	return r.sessions.FindOpenByTable(ctx, r.store, tableID, false)
}

func (r *Registry) GetSession(ctx context.Context, sessionID int64) (*domain.Session, error) {
	return r.sessions.FindByID(ctx, r.store, sessionID)
}

func (r *Registry) ListTables(ctx context.Context) ([]domain.Table, error) {
	return r.tables.List(ctx)
}

func (r *Registry) GetTable(ctx context.Context, tableID int64) (*domain.Table, error) {
	return r.tables.FindByID(ctx, r.store, tableID)
}

// ListStalePending returns pending requests older than maxAge.
func (r *Registry) ListStalePending(ctx context.Context, maxAge time.Duration) ([]domain.Session, error) {
	return r.sessions.ListPendingCreatedBefore(ctx, r.now().Add(-maxAge))
}
