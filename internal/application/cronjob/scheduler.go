// Package cronjob runs the cron jobs of installed modules on their schedule.
package cronjob

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/andrescamacho/takaro-connector/internal/application/common"
	"github.com/andrescamacho/takaro-connector/internal/application/trigger"
	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/module"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// FireTimeout bounds the fan-out of a single tick
const FireTimeout = 30 * time.Second

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates a five-field cron expression
func ParseSchedule(temporalValue string) (cron.Schedule, error) {
	sched, err := parser.Parse(temporalValue)
	if err != nil {
		return nil, shared.NewValidationError("temporalValue", fmt.Sprintf("invalid cron expression %q: %v", temporalValue, err))
	}
	return sched, nil
}

type entry struct {
	id   cron.EntryID
	spec string
}

// Scheduler keeps one cron entry per (installation, cron job)
type Scheduler struct {
	modules  module.Repository
	resolver *trigger.Resolver
	cronJobs *queue.Queue[queue.ExecutionJob]
	logger   *slog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]entry
}

func NewScheduler(modules module.Repository, resolver *trigger.Resolver, fabric *queue.Fabric, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		modules:  modules,
		resolver: resolver,
		cronJobs: fabric.CronJobs,
		logger:   common.OrDiscard(logger),
		cron:     cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		entries:  make(map[string]entry),
	}
}

func entryKey(ic module.InstalledCronJob) string {
	return ic.Installation.ID + "/" + ic.CronJob.ID
}

// Sync reconciles cron entries with the installed cron jobs. Entries whose
// expression is invalid are logged and skipped.
func (s *Scheduler) Sync(ctx context.Context) error {
	installed, err := s.modules.ListInstalledCronJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cron jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(installed))
	added, removed := 0, 0
	for _, ic := range installed {
		key := entryKey(ic)
		seen[key] = true

		if existing, ok := s.entries[key]; ok {
			if existing.spec == ic.CronJob.TemporalValue {
				continue
			}
			s.cron.Remove(existing.id)
			delete(s.entries, key)
			removed++
		}

		sched, err := ParseSchedule(ic.CronJob.TemporalValue)
		if err != nil {
			s.logger.Warn("skipping cron job", "cronjob_id", ic.CronJob.ID, "installation_id", ic.Installation.ID, "error", err)
			continue
		}
		ic := ic
		id := s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(ic) }))
		s.entries[key] = entry{id: id, spec: ic.CronJob.TemporalValue}
		added++
	}

	for key, e := range s.entries {
		if !seen[key] {
			s.cron.Remove(e.id)
			delete(s.entries, key)
			removed++
		}
	}

	if added > 0 || removed > 0 {
		s.logger.Info("cron jobs synced", "added", added, "removed", removed, "total", len(s.entries))
	}
	return nil
}

// SyncHook adapts Sync for connector worker notifications
func (s *Scheduler) SyncHook(ctx context.Context) {
	if err := s.Sync(ctx); err != nil {
		s.logger.Error("cron sync failed", "error", err)
	}
}

func (s *Scheduler) fire(ic module.InstalledCronJob) {
	ctx, cancel := context.WithTimeout(context.Background(), FireTimeout)
	defer cancel()

	if _, err := s.Fire(ctx, ic, time.Now()); err != nil {
		s.logger.Error("cron job fan-out failed", "cronjob_id", ic.CronJob.ID, "error", err)
	}
}

// Fire enqueues one cron job run per assigned function for the tick at.
// Firing the same tick twice yields the same job ids.
func (s *Scheduler) Fire(ctx context.Context, ic module.InstalledCronJob, at time.Time) (int, error) {
	ids, err := s.resolver.FanOut(ctx, s.cronJobs, queue.ExecutionJob{
		SourceID:     "cron:" + ic.Installation.ID + "@" + at.UTC().Truncate(time.Minute).Format(time.RFC3339),
		DomainID:     ic.Installation.DomainID,
		GameServerID: ic.Installation.GameServerID,
		ItemKind:     function.ItemKindCronJob,
		ItemID:       ic.CronJob.ID,
		Data: map[string]any{
			"module":    ic.Installation.Ref(),
			"cronjobId": ic.CronJob.ID,
		},
	})
	return len(ids), err
}

// Len returns the number of scheduled entries
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run starts the cron loop and blocks until ctx is done. A failed initial
// sync is logged; the next connector change retries it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.SyncHook(ctx)
	s.cron.Start()
	s.logger.Info("cron scheduler started", "entries", s.Len())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("cron scheduler stopped")
	return nil
}
