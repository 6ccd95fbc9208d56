package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
)

// Store implements ports.ScheduledStore using the local filesystem.
// It stores handles as JSON files in a configured directory.
//
// Version checks are serialized inside the process only. Processes sharing a
// directory must coordinate through a ports.DistributedLocker.
type Store struct {
	BasePath string

	mu sync.Mutex
}

var _ ports.ScheduledStore = (*Store)(nil)

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".docflow/handles".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".docflow", "handles")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("handle id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid handle id %q", id)
	}
	return filepath.Join(s.BasePath, id+".json"), nil
}

// Save persists the handle to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, h *domain.DocumentHandle) error {
	destPath, err := s.path(h.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	current, err := s.read(destPath)
	switch {
	case err == nil:
		stored = current.Version
	case !errors.Is(err, domain.ErrHandleNotFound):
		return err
	}
	if stored != h.Version {
		return &domain.ConflictError{HandleID: h.ID, Reason: "stale version"}
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure handle directory: %w", err)
	}

	next := *h
	next.Version = h.Version + 1
	data, err := json.MarshalIndent(&next, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal handle: %w", err)
	}

	// Same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+h.ID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	h.Version = next.Version
	return nil
}

// Load retrieves the handle from its JSON file.
func (s *Store) Load(ctx context.Context, id string) (*domain.DocumentHandle, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	return s.read(p)
}

func (s *Store) read(p string) (*domain.DocumentHandle, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrHandleNotFound
		}
		return nil, fmt.Errorf("failed to read handle file: %w", err)
	}

	var h domain.DocumentHandle
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal handle: %w", err)
	}
	if h.Variables == nil {
		h.Variables = make(map[string]any)
	}
	return &h, nil
}

// Delete removes the handle file.
func (s *Store) Delete(ctx context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete handle file: %w", err)
	}
	return nil
}

// List returns all stored handle IDs in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list handles: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	slices.Sort(ids)
	return ids, nil
}

// DueRequests scans every stored handle for a due scheduled request.
func (s *Store) DueRequests(ctx context.Context, now time.Time) ([]ports.ScheduledRequest, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var due []ports.ScheduledRequest
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, err := s.Load(ctx, id)
		if errors.Is(err, domain.ErrHandleNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if ref, ok := ports.DueFromHandle(h, now); ok {
			due = append(due, ref)
		}
	}
	slices.SortFunc(due, func(a, b ports.ScheduledRequest) int {
		return a.At.Compare(b.At)
	})
	return due, nil
}
