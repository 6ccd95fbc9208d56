package runtime

import (
	"fmt"
	"time"

	"github.com/aretw0/docflow/internal/guard"
	"github.com/aretw0/docflow/pkg/chart"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/task"
)

// env exposes a handle to guard and property expressions. It only reads.
type env struct {
	def      *chart.Definition
	handle   *domain.DocumentHandle
	identity string
	params   map[string]any
	state    string
	now      time.Time
	depth    int
}

var _ guard.Env = (*env)(nil)

func (e *env) Lookup(path []string) (any, bool) {
	head, rest := path[0], path[1:]
	switch head {
	case "user":
		return leaf(e.identity, rest)
	case "state":
		return leaf(e.state, rest)
	case "now":
		return leaf(e.now, rest)
	case "params":
		return walk(e.params, rest)
	case "request":
		return e.lookupRequest(rest)
	case string(domain.VariantDraft), string(domain.VariantUnpublished), string(domain.VariantPublished):
		return e.lookupVariant(domain.VariantState(head), rest)
	}
	if v, ok := e.handle.Variables[head]; ok {
		return walk(v, rest)
	}
	if v, ok := e.def.Variables[head]; ok {
		return walk(v, rest)
	}
	return nil, false
}

func (e *env) lookupRequest(rest []string) (any, bool) {
	req := e.handle.ActiveRequest()
	if req == nil || len(rest) != 1 {
		return nil, false
	}
	switch rest[0] {
	case "id":
		return req.ID, true
	case "type":
		return string(req.Type), true
	case "requester":
		return req.Requester, true
	case "status":
		return string(req.Status), true
	case "target":
		return string(req.Target), true
	case "requested":
		return req.RequestDate, true
	case "scheduled":
		if req.ScheduledDate == nil {
			return nil, false
		}
		return *req.ScheduledDate, true
	}
	return nil, false
}

func (e *env) lookupVariant(tag domain.VariantState, rest []string) (any, bool) {
	v := e.handle.Variant(tag)
	if v == nil {
		return nil, false
	}
	if len(rest) == 0 {
		return true, true
	}
	switch rest[0] {
	case "holder":
		return leaf(v.Holder, rest[1:])
	case "lastModifiedBy":
		return leaf(v.LastModifiedBy, rest[1:])
	case "live":
		return leaf(v.IsAvailable(domain.AvailabilityLive), rest[1:])
	case "content":
		return walk(v.Content, rest[1:])
	}
	return nil, false
}

func leaf(v any, rest []string) (any, bool) {
	if len(rest) > 0 {
		return nil, false
	}
	return v, true
}

func walk(v any, path []string) (any, bool) {
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = m[key]; !ok {
			return nil, false
		}
	}
	return v, true
}

func (e *env) Call(name string, args []any) (any, error) {
	if expr, ok := e.def.NamedGuards[name]; ok {
		if len(args) > 0 {
			return nil, fmt.Errorf("guard %s takes no arguments", name)
		}
		if e.depth >= guard.MaxDepth {
			return nil, fmt.Errorf("guard %s nested deeper than %d", name, guard.MaxDepth)
		}
		e.depth++
		defer func() { e.depth-- }()
		return expr.EvalBool(e)
	}

	h := e.handle
	switch name {
	case guard.FactHasRequest:
		req := h.ActiveRequest()
		if len(args) == 0 {
			return req != nil, nil
		}
		typ, err := stringArg(name, args)
		return req != nil && string(req.Type) == typ, err
	case guard.FactIsRequester:
		req := h.ActiveRequest()
		return req != nil && req.Requester == e.identity, nil
	case guard.FactHasVariant:
		tag, err := stringArg(name, args)
		return h.Variant(domain.VariantState(tag)) != nil, err
	case guard.FactIsLive:
		return h.Variant(domain.VariantPublished).IsAvailable(domain.AvailabilityLive), nil
	case guard.FactIsHeld:
		draft := h.Variant(domain.VariantDraft)
		return draft != nil && draft.Holder != "", nil
	case guard.FactIsHolder:
		draft := h.Variant(domain.VariantDraft)
		return draft != nil && draft.Holder != "" && draft.Holder == e.identity, nil
	case guard.FactIsModified:
		return task.ContentModified(h), nil
	case guard.FactHasZombie:
		for _, req := range h.Requests {
			if !req.IsZombie() {
				continue
			}
			if len(args) == 0 {
				return true, nil
			}
			typ, err := stringArg(name, args)
			if err != nil {
				return false, err
			}
			if string(req.PreviousType) == typ {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, fmt.Errorf("unknown function %s", name)
}

func stringArg(fn string, args []any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s expects one argument, got %d", fn, len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("%s expects a string argument, got %T", fn, args[0])
	}
	return s, nil
}
