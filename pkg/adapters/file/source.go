package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/docflow/pkg/domain"
)

var chartExtensions = []string{".yaml", ".yml", ".json"}

// Source implements ports.ChartSource over a flat directory of chart files.
// The chart name is the file name without its extension.
type Source struct {
	Dir string
}

// NewSource creates a Source reading charts from dir.
func NewSource(dir string) *Source {
	return &Source{Dir: dir}
}

// GetChart reads the first of name.yaml, name.yml or name.json that exists.
func (s *Source) GetChart(ctx context.Context, name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", domain.ErrChartNotFound, name)
	}
	for _, ext := range chartExtensions {
		data, err := os.ReadFile(filepath.Join(s.Dir, name+ext))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read chart %s: %w", name, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrChartNotFound, name)
}

// ListCharts returns the names of all chart files in sorted order.
func (s *Source) ListCharts(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list charts: %w", err)
	}

	var names []string
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || !slices.Contains(chartExtensions, ext) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}
