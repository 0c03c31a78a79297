package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tableside/internal/domain"
	apperrors "tableside/internal/errors"
)

const StaleRequestReason = "Request expired before staff approval"

type SessionCloser interface {
	ListStalePending(ctx context.Context, maxAge time.Duration) ([]domain.Session, error)
	ExpirePending(ctx context.Context, sessionID int64, reason string) (domain.Session, error)
}

// Sweeper closes pending session requests that nobody approved within the
// configured TTL, freeing their tables.
type Sweeper struct {
	sessions SessionCloser
	ttl      time.Duration
	schedule string
	logger   *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewSweeper(sessions SessionCloser, ttl time.Duration, schedule string, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		ttl:      ttl,
		schedule: schedule,
		logger:   logger.Named("sweeper"),
	}
}

// Start schedules RunOnce. A zero TTL disables the sweeper.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.ttl <= 0 {
		s.logger.Info("pending session sweeper disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	runCtx := context.WithoutCancel(ctx)
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(runCtx); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("pending session sweeper started", zap.String("schedule", s.schedule), zap.Duration("ttl", s.ttl))
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce closes every stale pending session and reports how many were closed.
// Sessions approved or closed concurrently are skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	stale, err := s.sessions.ListStalePending(ctx, s.ttl)
	if err != nil {
		return 0, fmt.Errorf("listing stale sessions: %w", err)
	}

	closed := 0
	for _, session := range stale {
		if _, err := s.sessions.ExpirePending(ctx, session.ID, StaleRequestReason); err != nil {
			if _, ok := apperrors.IsInvalidStateError(err); ok {
				continue
			}
			s.logger.Warn("failed to close stale session", zap.Int64("sessionId", session.ID), zap.Error(err))
			continue
		}
		closed++
	}

	if closed > 0 {
		s.logger.Info("stale pending sessions closed", zap.Int("count", closed))
	}
	return closed, nil
}
