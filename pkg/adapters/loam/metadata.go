package loam

// ChartMetadata is the frontmatter (or data file) of a chart document.
// It uses "mapstructure" tags to match the YAML keys of a chart definition.
type ChartMetadata struct {
	Name        string               `json:"name,omitempty" mapstructure:"name"`
	Version     any                  `json:"version,omitempty" mapstructure:"version"`
	Description string               `json:"description,omitempty" mapstructure:"description"`
	Events      []string             `json:"events,omitempty" mapstructure:"events"`
	Variables   map[string]any       `json:"variables,omitempty" mapstructure:"variables"`
	Guards      map[string]string    `json:"guards,omitempty" mapstructure:"guards"`
	States      []StateMetadata      `json:"states" mapstructure:"states"`
	Transitions []TransitionMetadata `json:"transitions" mapstructure:"transitions"`
}

type StateMetadata struct {
	ID          string `json:"id" mapstructure:"id"`
	Initial     bool   `json:"initial,omitempty" mapstructure:"initial"`
	Final       bool   `json:"final,omitempty" mapstructure:"final"`
	Description string `json:"description,omitempty" mapstructure:"description"`
}

type TransitionMetadata struct {
	From    string           `json:"from" mapstructure:"from"`
	Event   string           `json:"event" mapstructure:"event"`
	Guard   string           `json:"guard,omitempty" mapstructure:"guard"`
	Reason  string           `json:"reason,omitempty" mapstructure:"reason"`
	To      string           `json:"to,omitempty" mapstructure:"to"`
	Actions []ActionMetadata `json:"actions,omitempty" mapstructure:"actions"`
}

type ActionMetadata struct {
	Task   string            `json:"task" mapstructure:"task"`
	With   map[string]any    `json:"with,omitempty" mapstructure:"with"`
	Eval   map[string]string `json:"eval,omitempty" mapstructure:"eval"`
	Result string            `json:"result,omitempty" mapstructure:"result"`
}
