package loam

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
	"github.com/aretw0/loam"
)

// Source adapts a Loam repository to the ports.ChartSource interface.
// Charts are Markdown documents whose frontmatter holds the definition and
// whose body becomes the chart description, or plain JSON/YAML documents.
type Source struct {
	Repo *loam.TypedRepository[ChartMetadata]
}

var (
	_ ports.ChartSource = (*Source)(nil)
	_ ports.Watchable   = (*Source)(nil)
)

// New creates a new Loam chart source.
func New(repo *loam.TypedRepository[ChartMetadata]) *Source {
	return &Source{
		Repo: repo,
	}
}

// Open initializes a strict, read-only Loam repository at dir and wraps it.
func Open(dir string) (*Source, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chart directory: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[ChartMetadata](repo)), nil
}

// GetChart renders the chart document as JSON for the chart parser.
func (s *Source) GetChart(ctx context.Context, name string) ([]byte, error) {
	doc, err := s.Repo.Get(ctx, name)
	if err != nil {
		if !s.exists(ctx, name) {
			return nil, fmt.Errorf("%w: %s", domain.ErrChartNotFound, name)
		}
		return nil, fmt.Errorf("loam get failed for %s: %w", name, err)
	}

	meta := doc.Data
	if meta.Name == "" {
		meta.Name = trimExtension(doc.ID)
	}
	if body := strings.TrimSpace(doc.Content); meta.Description == "" && body != "" {
		meta.Description = body
	}
	if meta.Transitions == nil {
		meta.Transitions = []TransitionMetadata{}
	}
	meta.Variables = normalizeMap(meta.Variables)
	for i := range meta.Transitions {
		for j := range meta.Transitions[i].Actions {
			a := &meta.Transitions[i].Actions[j]
			a.With = normalizeMap(a.With)
		}
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chart %s: %w", name, err)
	}
	return data, nil
}

func (s *Source) exists(ctx context.Context, name string) bool {
	names, err := s.ListCharts(ctx)
	return err == nil && slices.Contains(names, name)
}

// ListCharts lists the chart names in the repository, extensions stripped.
func (s *Source) ListCharts(ctx context.Context) ([]string, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		name := trimExtension(doc.ID)
		if existingPath, ok := seen[name]; ok {
			return nil, fmt.Errorf("collision detected: chart '%s' is defined in both '%s' and '%s'", name, existingPath, doc.ID)
		}
		seen[name] = doc.ID
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Watch implements ports.Watchable.
func (s *Source) Watch(ctx context.Context) (<-chan string, error) {
	events, err := s.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- trimExtension(evt.ID):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func trimExtension(id string) string {
	return filepath.ToSlash(strings.TrimSuffix(id, filepath.Ext(id)))
}

// normalizeMap converts YAML-decoded map[any]any values so the result can be
// encoded as JSON.
func normalizeMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalizeMap(val)
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[fmt.Sprintf("%v", k)] = normalizeValue(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
