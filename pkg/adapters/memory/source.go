package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/docflow/pkg/domain"
)

// Source implements ports.ChartSource and ports.Watchable using an
// in-memory map of raw definitions.
type Source struct {
	mu       sync.RWMutex
	charts   map[string][]byte
	watchers []chan string
}

// NewSource creates a Source with the provided raw definitions (YAML or JSON).
func NewSource(data map[string]string) *Source {
	charts := make(map[string][]byte, len(data))
	for k, v := range data {
		charts[k] = []byte(v)
	}
	return &Source{charts: charts}
}

// GetChart retrieves the raw definition of a chart by name.
func (s *Source) GetChart(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.charts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrChartNotFound, name)
	}
	return slices.Clone(content), nil
}

// ListCharts returns all chart names in sorted order.
func (s *Source) ListCharts(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.charts))
	for k := range s.charts {
		names = append(names, k)
	}
	slices.Sort(names)
	return names, nil
}

// Put adds or replaces a definition and notifies watchers.
func (s *Source) Put(name, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.charts[name] = []byte(raw)
	for _, ch := range s.watchers {
		select {
		case ch <- name:
		default:
		}
	}
}

// Watch returns a channel receiving the name of every chart changed through Put.
// The channel is closed when ctx is done.
func (s *Source) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.watchers = slices.DeleteFunc(s.watchers, func(c chan string) bool { return c == ch })
		s.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
