package chart

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/docflow/internal/guard"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// TaskChecker reports whether a task name can be instantiated.
type TaskChecker interface {
	Has(name string) bool
}

type problem struct {
	location string
	message  string
}

type problems []problem

func (p *problems) add(location, format string, args ...any) {
	*p = append(*p, problem{location: location, message: fmt.Sprintf(format, args...)})
}

func (p problems) err(chart string) error {
	if len(p) == 0 {
		return nil
	}
	reason := p[0].message
	if len(p) > 1 {
		reason = fmt.Sprintf("%s (and %d more)", reason, len(p)-1)
	}
	details := make([]error, 0, len(p))
	for _, pr := range p {
		details = append(details, fmt.Errorf("%s: %s", pr.location, pr.message))
	}
	return &domain.ConfigurationError{
		Chart:    chart,
		Location: p[0].location,
		Reason:   reason,
		Err:      errors.Join(details...),
	}
}

// Compile validates c and compiles its guards and property expressions.
// tasks may be nil to skip the task name check.
func Compile(c *domain.Chart, tasks TaskChecker) (*Definition, error) {
	var errs problems

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs.add(fe.Namespace(), "failed %q validation", fe.Tag())
			}
		} else {
			errs.add("chart", "%v", err)
		}
		return nil, errs.err(c.Name)
	}

	checkStates(c, &errs)
	checkTransitions(c, &errs)
	if len(errs) == 0 {
		checkReachability(c, &errs)
	}

	def := &Definition{
		Chart:            c,
		NamedGuards:      make(map[string]*guard.Expr, len(c.Guards)),
		transitionGuards: make([]*guard.Expr, len(c.Transitions)),
		actionEvals:      make([][]map[string]*guard.Expr, len(c.Transitions)),
	}
	compileGuards(c, def, &errs)
	compileTransitions(c, def, tasks, &errs)
	if len(errs) == 0 {
		checkGuardCycles(def, &errs)
	}

	if err := errs.err(c.Name); err != nil {
		return nil, err
	}
	return def, nil
}

func checkStates(c *domain.Chart, errs *problems) {
	seen := make(map[string]bool)
	initial := 0
	for i, s := range c.States {
		loc := fmt.Sprintf("states[%d]", i)
		if s.ID == domain.AnyState {
			errs.add(loc, "%q is reserved", domain.AnyState)
		}
		if seen[s.ID] {
			errs.add(loc, "duplicate state %q", s.ID)
		}
		seen[s.ID] = true
		if s.Initial {
			initial++
		}
	}
	switch {
	case initial == 0:
		errs.add("states", "no initial state")
	case initial > 1:
		errs.add("states", "%d initial states, want exactly one", initial)
	}
}

func checkTransitions(c *domain.Chart, errs *problems) {
	declared := make(map[string]bool, len(c.Events))
	for i, e := range c.Events {
		declared[e] = true
		if domain.IsHintKey(e) {
			errs.add(fmt.Sprintf("events[%d]", i), "event name %q is reserved for hints", e)
		}
	}
	for i, t := range c.Transitions {
		loc := fmt.Sprintf("transitions[%d]", i)
		if domain.IsHintKey(t.Event) {
			errs.add(loc, "event name %q is reserved for hints", t.Event)
		}
		if t.From != domain.AnyState {
			if _, ok := c.State(t.From); !ok {
				errs.add(loc, "source state %q does not exist", t.From)
			} else if c.IsFinal(t.From) {
				errs.add(loc, "final state %q cannot have transitions", t.From)
			}
		}
		if t.To != "" {
			if _, ok := c.State(t.To); !ok {
				errs.add(loc, "target state %q does not exist", t.To)
			}
		}
		if len(c.Events) > 0 && !declared[t.Event] {
			errs.add(loc, "event %q is not declared", t.Event)
		}
	}
}

// checkReachability walks transitions from the initial state. A wildcard
// transition is reachable as soon as any non-final state is.
func checkReachability(c *domain.Chart, errs *problems) {
	start := c.Initial()
	reached := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if c.IsFinal(cur) {
			continue
		}
		for _, t := range c.Transitions {
			if t.From != cur && t.From != domain.AnyState {
				continue
			}
			if t.To != "" && !reached[t.To] {
				reached[t.To] = true
				queue = append(queue, t.To)
			}
		}
	}
	for i, s := range c.States {
		if !reached[s.ID] {
			errs.add(fmt.Sprintf("states[%d]", i), "state %q is unreachable from %q", s.ID, start)
		}
	}
}

func compileGuards(c *domain.Chart, def *Definition, errs *problems) {
	names := make([]string, 0, len(c.Guards))
	for name := range c.Guards {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		loc := "guards." + name
		if guard.IsFact(name) {
			errs.add(loc, "guard %q shadows a built-in fact", name)
			continue
		}
		expr, err := guard.Compile(c.Guards[name])
		if err != nil {
			errs.add(loc, "%v", err)
			continue
		}
		def.NamedGuards[name] = expr
	}
}

func compileTransitions(c *domain.Chart, def *Definition, tasks TaskChecker, errs *problems) {
	for i, t := range c.Transitions {
		loc := fmt.Sprintf("transitions[%d]", i)
		if t.Guard != "" {
			expr, err := guard.Compile(t.Guard)
			if err != nil {
				errs.add(loc+".guard", "%v", err)
			} else {
				checkCalls(c, expr, loc+".guard", errs)
				def.transitionGuards[i] = expr
			}
		}

		def.actionEvals[i] = make([]map[string]*guard.Expr, len(t.Actions))
		for j, a := range t.Actions {
			aloc := fmt.Sprintf("%s.actions[%d]", loc, j)
			if tasks != nil && !tasks.Has(a.Task) {
				errs.add(aloc, "unknown task %q", a.Task)
			}
			evals := make(map[string]*guard.Expr, len(a.Eval))
			for prop, src := range a.Eval {
				expr, err := guard.Compile(src)
				if err != nil {
					errs.add(aloc+".eval."+prop, "%v", err)
					continue
				}
				checkCalls(c, expr, aloc+".eval."+prop, errs)
				evals[prop] = expr
			}
			def.actionEvals[i][j] = evals
		}
	}
}

func checkCalls(c *domain.Chart, expr *guard.Expr, loc string, errs *problems) {
	for _, name := range expr.Calls() {
		if _, ok := c.Guards[name]; !ok && !guard.IsFact(name) {
			errs.add(loc, "unknown guard %q", name)
		}
	}
}

// checkGuardCycles rejects named guards that reference each other in a loop
// or through a chain deeper than guard.MaxDepth.
func checkGuardCycles(def *Definition, errs *problems) {
	names := make([]string, 0, len(def.NamedGuards))
	for name := range def.NamedGuards {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checkCalls(def.Chart, def.NamedGuards[name], "guards."+name, errs)
	}
	if len(*errs) > 0 {
		return
	}

	depth := make(map[string]int)
	visiting := make(map[string]bool)
	var visit func(name string) (int, error)
	visit = func(name string) (int, error) {
		if d, ok := depth[name]; ok {
			return d, nil
		}
		if visiting[name] {
			return 0, fmt.Errorf("guard reference cycle through %q", name)
		}
		// DFS cycle detection: mark
		visiting[name] = true
		deepest := 0
		for _, callee := range def.NamedGuards[name].Calls() {
			if _, named := def.NamedGuards[callee]; !named {
				continue
			}
			d, err := visit(callee)
			if err != nil {
				return 0, err
			}
			deepest = max(deepest, d)
		}
		// backtrack
		delete(visiting, name)
		depth[name] = deepest + 1
		return depth[name], nil
	}

	for _, name := range names {
		d, err := visit(name)
		if err != nil {
			errs.add("guards."+name, "%v", err)
			return
		}
		if d > guard.MaxDepth {
			errs.add("guards."+name, "guard reference chain of %d exceeds the limit of %d", d, guard.MaxDepth)
			return
		}
	}
}
