package runtime

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/aretw0/docflow/pkg/chart"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/task"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runAction evaluates the action properties, runs its task and stores the
// result in the working variables.
func (e *Executor) runAction(ctx context.Context, def *chart.Definition, i, j int, a domain.ActionDef, tc *task.Context, en *env) error {
	props := make(map[string]any, len(a.With)+len(a.Eval))
	maps.Copy(props, domain.CloneVariables(a.With))
	for name, expr := range def.ActionEval(i, j) {
		v, err := expr.Eval(en)
		if err != nil {
			return &domain.TaskExecutionError{
				Task:   a.Task,
				Reason: fmt.Sprintf("cannot evaluate property %s", name),
				Err:    err,
			}
		}
		props[name] = v
	}

	tk, err := e.tasks.New(a.Task, props)
	if err != nil {
		return &domain.TaskExecutionError{Task: a.Task, Reason: "invalid task properties", Err: err}
	}

	ctx, span := e.tracer.Start(ctx, "docflow.task "+a.Task, trace.WithAttributes(
		attribute.String("docflow.task", a.Task),
		attribute.String("docflow.handle_id", tc.Handle.ID),
	))
	defer span.End()

	evt := &domain.TaskEvent{
		Timestamp: e.now(),
		HandleID:  tc.Handle.ID,
		Event:     tc.Event,
		Task:      a.Task,
		Input:     props,
	}
	if e.hooks.OnTaskCall != nil {
		e.hooks.OnTaskCall(ctx, evt)
	}

	started := time.Now()
	out, err := tk.Execute(ctx, tc)

	evt.Output = out
	evt.Err = err
	evt.Duration = time.Since(started)
	if e.hooks.OnTaskReturn != nil {
		e.hooks.OnTaskReturn(ctx, evt)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var te *domain.TaskExecutionError
		if !errors.As(err, &te) {
			err = &domain.TaskExecutionError{Task: a.Task, Reason: "task failed", Err: err}
		}
		return err
	}

	if a.Result != "" {
		tc.Handle.Variables[a.Result] = out
	}
	return nil
}
