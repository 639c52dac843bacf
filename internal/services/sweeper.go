package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/taskhive/taskhive/backend/pkg/logger"
	"gorm.io/gorm"
)

// TokenSweeper periodically flags expired-but-unrevoked refresh tokens so the
// lazy marking done during reads stays bounded. It only updates flags; rows
// are retained for audit.
type TokenSweeper struct {
	ledger        *TokenLedger
	cronScheduler *cron.Cron
}

func NewTokenSweeper(db *gorm.DB) *TokenSweeper {
	return &TokenSweeper{ledger: NewTokenLedger(db)}
}

// Start schedules the sweep at the given interval and runs one sweep
// immediately to catch rows that expired while the service was down.
func (s *TokenSweeper) Start(interval time.Duration) error {
	s.cronScheduler = cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cronScheduler.AddFunc(spec, s.RunOnce); err != nil {
		return err
	}
	s.cronScheduler.Start()
	logger.Infof("Token sweeper started, interval: %v", interval)

	go s.RunOnce()
	return nil
}

// RunOnce executes a single sweep pass.
func (s *TokenSweeper) RunOnce() {
	affected, err := s.ledger.SweepExpired()
	if err != nil {
		logger.Error().Err(err).Msg("token sweep failed")
		return
	}
	if affected > 0 {
		logger.Info().Int64("revoked", affected).Msg("token sweep flagged expired refresh tokens")
	}
}

// Stop halts the scheduler. Safe to call when Start was never called.
func (s *TokenSweeper) Stop() {
	if s.cronScheduler != nil {
		s.cronScheduler.Stop()
	}
}
