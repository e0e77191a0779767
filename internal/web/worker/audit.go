package worker

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes audit entries created before a cutoff
type Pruner interface {
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
}

// DefaultRetention keeps audit entries for 90 days
const DefaultRetention = 90 * 24 * time.Hour

// AuditPruner trims the audit log to a retention window
type AuditPruner struct {
	store     Pruner
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuditPruner(store Pruner, retention time.Duration, logger *slog.Logger) *AuditPruner {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &AuditPruner{store: store, retention: retention, logger: logger, now: time.Now}
}

// Cutoff is the creation time before which entries are removed
func (a *AuditPruner) Cutoff() time.Time {
	return a.now().Add(-a.retention)
}

// Prune removes expired entries once and returns how many went
func (a *AuditPruner) Prune(ctx context.Context) (int64, error) {
	cutoff := a.Cutoff()
	n, err := a.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.logger.Info("pruned audit log", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

// Job schedules Prune every interval
func (a *AuditPruner) Job(interval time.Duration) Job {
	return Job{
		Name:     "audit-prune",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := a.Prune(ctx)
			return err
		},
	}
}
