package core

// scheduler.go runs the follow-up reminder job.
//
// On every tick the job finds records whose NextFollowUp has passed and
// whose status is not terminal, sends them the configured template and
// clears the follow-up. A failed send leaves the follow-up in place so the
// next tick retries it. The scheduler logs failures but never stops on them.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

// DefaultFollowUpTemplate is sent when FollowUpConfig.TemplateID is empty.
const DefaultFollowUpTemplate = "follow_up"

// FollowUpConfig holds configuration for the follow-up scheduler.
type FollowUpConfig struct {
	TemplateID    string        // Template to send (default: follow_up)
	CheckInterval time.Duration // How often to run (default: 1h)
}

// StartFollowUpScheduler runs the follow-up job immediately and then every
// CheckInterval until ctx is cancelled.
func (s *Service) StartFollowUpScheduler(ctx context.Context, cfg FollowUpConfig) {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	slog.Info("follow-up scheduler started", "interval", cfg.CheckInterval, "template", cfg.TemplateID)

	s.runFollowUpJob(ctx, cfg.TemplateID)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("follow-up scheduler stopped")
			return
		case <-ticker.C:
			s.runFollowUpJob(ctx, cfg.TemplateID)
		}
	}
}

func (s *Service) runFollowUpJob(ctx context.Context, templateID string) {
	start := time.Now()
	sent, err := s.RunFollowUps(ctx, templateID)
	if err != nil {
		slog.Error("follow-up job failed", "error", err)
		return
	}
	slog.Info("follow-up job completed", "sent", sent, "duration_ms", time.Since(start).Milliseconds())
}

// DueFollowUps returns records whose follow-up time is at or before now and
// whose status still expects contact.
func (s *Service) DueFollowUps(ctx context.Context) ([]Record, error) {
	records, err := s.list(ctx, FilterSpec{})
	if err != nil {
		return nil, err
	}
	now := s.now()
	return lo.Filter(records, func(r Record, _ int) bool {
		return r.NextFollowUp != nil && !r.NextFollowUp.After(now) && !r.Status.Terminal()
	}), nil
}

// RunFollowUps sends templateID to every due record and returns how many
// were sent.
func (s *Service) RunFollowUps(ctx context.Context, templateID string) (int, error) {
	if s.dispatcher == nil {
		return 0, nil
	}
	if templateID == "" {
		templateID = DefaultFollowUpTemplate
	}
	t, err := s.dispatcher.Templates().Get(templateID)
	if err != nil {
		return 0, err
	}

	due, err := s.DueFollowUps(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		msg, err := s.dispatcher.Send(ctx, templateID, RecordVariables(r), RecipientFor(t.Type, r.Subject))
		if err != nil {
			slog.Warn("follow-up not sent", "record_id", r.ID, "error", err)
			continue
		}
		_, err = s.mutate(ctx, r.ID, func(rec *Record) error {
			rec.NextFollowUp = nil
			s.appendNote(ctx, rec, fmt.Sprintf("Follow-up %s message sent", msg.Channel))
			return nil
		})
		if err != nil {
			slog.Error("failed to clear follow-up", "record_id", r.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
