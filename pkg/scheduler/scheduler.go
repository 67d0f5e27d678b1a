// Package scheduler starts executions of schedule-triggered workflows on
// their cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// Entry describes one scheduled workflow.
type Entry struct {
	WorkflowID string    `json:"workflow_id"`
	Cron       string    `json:"cron"`
	Next       time.Time `json:"next"`
}

type scheduled struct {
	id   cron.EntryID
	expr string
}

type Scheduler struct {
	cron       *cron.Cron
	parser     cron.Parser
	dispatcher Dispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]scheduled
	ctx     context.Context
}

func New(dispatcher Dispatcher, logger *slog.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger = logger.With("module", "scheduler")

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DiscardLogger)),
		),
		parser:     parser,
		dispatcher: dispatcher,
		logger:     logger,
		entries:    make(map[string]scheduled),
		ctx:        context.Background(),
	}
}

// Sync makes the cron table match the schedule-triggered definitions:
// new ones are added, changed expressions replaced and removed ones dropped.
// Definitions with invalid expressions are logged and skipped.
func (s *Scheduler) Sync(ctx context.Context, lister persistence.DefinitionLister) error {
	definitions, err := lister.Workflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]string)

	for _, definition := range definitions {
		if definition.Trigger.Type != models.TriggerTypeSchedule {
			continue
		}

		expr := definition.CronExpression()

		if _, err := s.parser.Parse(expr); err != nil {
			s.logger.WarnContext(ctx, "Skipping workflow with invalid cron expression",
				"workflow_id", definition.ID, "cron", expr, "error", err)

			continue
		}

		wanted[definition.ID] = expr
	}

	for workflowID, entry := range s.entries {
		if expr, ok := wanted[workflowID]; ok && expr == entry.expr {
			continue
		}

		s.cron.Remove(entry.id)
		delete(s.entries, workflowID)
		s.logger.InfoContext(ctx, "Schedule removed", "workflow_id", workflowID, "cron", entry.expr)
	}

	for workflowID, expr := range wanted {
		if _, ok := s.entries[workflowID]; ok {
			continue
		}

		id, err := s.cron.AddJob(expr, s.job(workflowID, expr))
		if err != nil {
			return fmt.Errorf("failed to schedule workflow %s: %w", workflowID, err)
		}

		s.entries[workflowID] = scheduled{id: id, expr: expr}
		s.logger.InfoContext(ctx, "Schedule added", "workflow_id", workflowID, "cron", expr)
	}

	return nil
}

func (s *Scheduler) job(workflowID, expr string) cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		now := time.Now().UTC()

		err := s.dispatcher.Dispatch(ctx, workflowID, models.TriggerInput{
			Source: models.TriggerTypeSchedule,
			Payload: map[string]any{
				"cron":         expr,
				"scheduled_at": now.Format(time.RFC3339),
			},
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "Scheduled start failed", "workflow_id", workflowID, "error", err)

			return
		}

		s.logger.InfoContext(ctx, "Scheduled start dispatched", "workflow_id", workflowID)
	})
}

// Entries returns the scheduled workflows sorted by id.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.entries))
	for workflowID, entry := range s.entries {
		entries = append(entries, Entry{
			WorkflowID: workflowID,
			Cron:       entry.expr,
			Next:       s.cron.Entry(entry.id).Next,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].WorkflowID < entries[j].WorkflowID })

	return entries
}

// Start runs the cron loop. Jobs dispatch with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started")
}

// Stop halts the cron loop and waits for running jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.InfoContext(ctx, "Scheduler stopped")

		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}
