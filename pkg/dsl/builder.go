package dsl

import (
	"fmt"

	"github.com/aretw0/docflow/pkg/adapters/memory"
	"github.com/aretw0/docflow/pkg/chart"
	"github.com/aretw0/docflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Builder manages the chart construction.
type Builder struct {
	chart       domain.Chart
	transitions []*TransitionBuilder
}

// New creates a new chart builder.
func New(name string) *Builder {
	return &Builder{
		chart: domain.Chart{Name: name, Version: "1"},
	}
}

// Describe sets the chart description.
func (b *Builder) Describe(description string) *Builder {
	b.chart.Description = description
	return b
}

// Version sets the chart version.
func (b *Builder) Version(version string) *Builder {
	b.chart.Version = version
	return b
}

// Variable sets a default chart variable.
func (b *Builder) Variable(key string, value any) *Builder {
	if b.chart.Variables == nil {
		b.chart.Variables = make(map[string]any)
	}
	b.chart.Variables[key] = value
	return b
}

// Guard defines a named guard callable from other expressions as name().
func (b *Builder) Guard(name, expr string) *Builder {
	if b.chart.Guards == nil {
		b.chart.Guards = make(map[string]string)
	}
	b.chart.Guards[name] = expr
	return b
}

// Initial adds the initial state.
func (b *Builder) Initial(id string) *Builder {
	b.chart.States = append(b.chart.States, domain.StateDef{ID: id, Initial: true})
	return b
}

// State adds an ordinary state.
func (b *Builder) State(id string) *Builder {
	b.chart.States = append(b.chart.States, domain.StateDef{ID: id})
	return b
}

// Final adds a final state; no transition leaves it.
func (b *Builder) Final(id string) *Builder {
	b.chart.States = append(b.chart.States, domain.StateDef{ID: id, Final: true})
	return b
}

// On starts a transition for event from the given state. Use domain.AnyState
// for a transition available from every non-final state. Transitions keep
// the order in which they are declared.
func (b *Builder) On(from, event string) *TransitionBuilder {
	tb := &TransitionBuilder{def: domain.TransitionDef{From: from, Event: event}}
	b.transitions = append(b.transitions, tb)
	return tb
}

// Chart returns a copy of the chart as built so far, without validation.
func (b *Builder) Chart() *domain.Chart {
	c := b.chart
	c.States = append([]domain.StateDef(nil), b.chart.States...)
	c.Transitions = make([]domain.TransitionDef, 0, len(b.transitions))
	for _, tb := range b.transitions {
		c.Transitions = append(c.Transitions, tb.Build())
	}
	return &c
}

// Build validates the chart and compiles its guards. Task names are not
// checked; the engine's registry does that when the chart is loaded.
func (b *Builder) Build() (*domain.Chart, error) {
	c := b.Chart()
	if _, err := chart.Compile(c, nil); err != nil {
		return nil, err
	}
	return c, nil
}

// YAML renders the validated chart in the format chart sources hold.
func (b *Builder) YAML() ([]byte, error) {
	c, err := b.Build()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(c)
}

// Source builds every chart into an in-memory chart source.
func Source(builders ...*Builder) (*memory.Source, error) {
	data := make(map[string]string, len(builders))
	for _, b := range builders {
		raw, err := b.YAML()
		if err != nil {
			return nil, err
		}
		if _, dup := data[b.chart.Name]; dup {
			return nil, fmt.Errorf("chart %s defined twice", b.chart.Name)
		}
		data[b.chart.Name] = string(raw)
	}
	return memory.NewSource(data), nil
}
