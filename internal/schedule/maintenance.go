package schedule

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Engine is the slice of the service the maintenance loop drives
type Engine interface {
	SweepOverdue(ctx context.Context) (int, error)
	RunFollowups(ctx context.Context) (int, error)
	PurgeExpired(ctx context.Context) error
}

// Maintenance runs the periodic safety nets around the precision
// scheduler: the daily overdue sweep with retention purge, and the
// follow-up escalation sweep.
type Maintenance struct {
	cron   *cron.Cron
	engine Engine
	logger *slog.Logger

	dailySpec    string
	followupSpec string
}

// NewMaintenance creates the maintenance loop. dailySpec and followupSpec
// are standard cron expressions (descriptors like "@every 5m" work too).
func NewMaintenance(engine Engine, dailySpec, followupSpec string, logger *slog.Logger) *Maintenance {
	if dailySpec == "" {
		dailySpec = "10 0 * * *"
	}
	if followupSpec == "" {
		followupSpec = "@every 5m"
	}
	return &Maintenance{
		cron:         cron.New(),
		engine:       engine,
		logger:       logger,
		dailySpec:    dailySpec,
		followupSpec: followupSpec,
	}
}

// Start registers the cron entries and begins running them
func (m *Maintenance) Start(ctx context.Context) error {
	if _, err := m.cron.AddFunc(m.dailySpec, func() { m.daily(ctx) }); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(m.followupSpec, func() { m.followups(ctx) }); err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info("maintenance loop started", "daily", m.dailySpec, "followups", m.followupSpec)
	return nil
}

// Stop stops the cron scheduler and waits for running entries
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("maintenance loop stopped")
}

func (m *Maintenance) daily(ctx context.Context) {
	if _, err := m.engine.SweepOverdue(ctx); err != nil {
		m.logger.Error("overdue sweep failed", "error", err)
	}
	if err := m.engine.PurgeExpired(ctx); err != nil {
		m.logger.Error("retention purge failed", "error", err)
	}
}

func (m *Maintenance) followups(ctx context.Context) {
	if _, err := m.engine.RunFollowups(ctx); err != nil {
		m.logger.Error("follow-up sweep failed", "error", err)
	}
}
