package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/docflow/pkg/domain"
)

// AuditHooks logs every transition attempt and task execution.
// Taken transitions log at info, refusals at debug and failures at warn.
func AuditHooks(logger *slog.Logger) domain.LifecycleHooks {
	transition := func(ctx context.Context, e *domain.TransitionEvent) {
		level := slog.LevelInfo
		switch e.Outcome {
		case domain.OutcomeDenied, domain.OutcomeNotApplicable:
			level = slog.LevelDebug
		case domain.OutcomeFailed:
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "transition",
			"handle_id", e.HandleID,
			"chart", e.Chart,
			"event", e.Event,
			"from", e.From,
			"to", e.To,
			"outcome", string(e.Outcome),
			"reason", e.Reason,
		)
	}
	return domain.LifecycleHooks{
		OnTransition: transition,
		OnDenied:     transition,
		OnTaskCall: func(ctx context.Context, e *domain.TaskEvent) {
			logger.DebugContext(ctx, "task_call", "handle_id", e.HandleID, "task", e.Task)
		},
		OnTaskReturn: func(ctx context.Context, e *domain.TaskEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "task_return", "handle_id", e.HandleID, "task", e.Task, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "task_return", "handle_id", e.HandleID, "task", e.Task, "duration", e.Duration)
		},
	}
}
