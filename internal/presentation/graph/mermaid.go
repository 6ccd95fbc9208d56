package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/docflow/pkg/domain"
)

// Overlay contains handle data to visualize on the chart.
type Overlay struct {
	CurrentState string
	// Allowed lists the events the viewer may fire; their edges are drawn bold.
	Allowed []string
}

// GenerateMermaid produces a Mermaid flowchart of a chart.
// It applies semantic styling:
// - Initial: ((Circle))
// - Final: (((Double circle)))
// - Default: [Rectangle]
// Transitions from "*" are drawn dotted from every non-final state.
func GenerateMermaid(c *domain.Chart, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, s := range c.States {
		safeID := sanitizeMermaidID(s.ID)
		opener, closer := "[", "]"
		switch {
		case s.Initial:
			opener, closer = "((", "))"
		case s.Final:
			opener, closer = "(((", ")))"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, s.ID, closer))
	}

	allowed := make(map[string]bool)
	if overlay != nil {
		for _, e := range overlay.Allowed {
			allowed[e] = true
		}
	}

	for _, t := range c.Transitions {
		label := t.Event
		if t.Guard != "" {
			label = fmt.Sprintf("%s [%s]", t.Event, strings.ReplaceAll(t.Guard, "\"", "'"))
		}

		sources := []string{t.From}
		if t.From == domain.AnyState {
			sources = sources[:0]
			for _, s := range c.States {
				if !s.Final {
					sources = append(sources, s.ID)
				}
			}
		}
		for _, from := range sources {
			if overlay != nil && overlay.CurrentState != "" && from != overlay.CurrentState && t.From == domain.AnyState {
				continue
			}
			arrow := fmt.Sprintf("-- \"%s\" -->", label)
			switch {
			case allowed[t.Event] && (overlay.CurrentState == "" || from == overlay.CurrentState):
				arrow = fmt.Sprintf("== \"%s\" ==>", label)
			case t.From == domain.AnyState:
				arrow = fmt.Sprintf("-. \"%s\" .->", label)
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeMermaidID(from), arrow, sanitizeMermaidID(t.Target(from))))
		}
	}

	if overlay != nil && overlay.CurrentState != "" {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentState)))
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
