package ports

import "context"

// ChartSource defines how the engine retrieves state chart definitions.
// This allows the storage layer (Loam, FS, Memory) to be decoupled.
type ChartSource interface {
	// GetChart retrieves the raw definition (YAML or JSON) of a chart by name.
	// It returns an error wrapping domain.ErrChartNotFound when the chart does not exist.
	GetChart(ctx context.Context, name string) ([]byte, error)

	// ListCharts returns the names of all charts available in the source.
	ListCharts(ctx context.Context) ([]string, error)
}

// Watchable defines an interface for sources that can notify about backend changes.
// This is typically used for hot-reload of chart definitions.
type Watchable interface {
	// Watch returns a channel that receives the name of each changed chart.
	// An empty name means the change could not be attributed to a single chart.
	Watch(ctx context.Context) (<-chan string, error)
}
