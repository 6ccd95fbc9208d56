package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
)

// Mask replaces values whose key matches a PII pattern.
const Mask = "***"

type piiMiddleware struct {
	passthrough
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks, before storage, values
// whose key matches one of the patterns, in handle variables and in the
// content of every variant. Nested maps and lists are walked. Masking is
// one-way.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.HandleStore) ports.HandleStore {
		return &piiMiddleware{passthrough: passthrough{next: next}, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, h *domain.DocumentHandle) error {
	// The caller keeps using h; mask a copy.
	masked := h.Clone()
	maskMap(masked.Variables, m.patterns)
	for _, v := range masked.Variants {
		maskMap(v.Content, m.patterns)
	}

	if err := m.next.Save(ctx, masked); err != nil {
		return err
	}
	h.Version = masked.Version
	return nil
}

func (m *piiMiddleware) Load(ctx context.Context, id string) (*domain.DocumentHandle, error) {
	return m.next.Load(ctx, id)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if !masked {
			maskValue(v, patterns)
		}
	}
}

func maskValue(v any, patterns []*regexp.Regexp) {
	switch v := v.(type) {
	case map[string]any:
		maskMap(v, patterns)
	case []any:
		for _, item := range v {
			maskValue(item, patterns)
		}
	}
}
