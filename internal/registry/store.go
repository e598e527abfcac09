package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"factory/internal/shared/util"
)

// ErrEmptyRescan is returned when a scan that found zero services would
// overwrite an existing non-empty registry. Previously merged or populated
// profiles must never be clobbered by a no-op rescan.
var ErrEmptyRescan = errors.New("rescan found no services; existing registry left unchanged")

// ErrNotFound is returned when a profile has no stored registry.
var ErrNotFound = errors.New("registry not found")

// Store persists one registry document per profile under a directory. It is
// a plain value passed through the pipeline; no process-wide state.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(profile string) string {
	return filepath.Join(s.dir, profile+".registry.json")
}

// Load reads the registry for a profile.
func (s *Store) Load(profile string) (*Registry, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return nil, fmt.Errorf("profile name is required")
	}

	data, err := os.ReadFile(s.path(profile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("profile %q: %w", profile, ErrNotFound)
		}
		return nil, fmt.Errorf("read registry for %q: %w", profile, err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry for %q: %w", profile, err)
	}
	return &reg, nil
}

// Save replaces the profile's registry wholesale. When the incoming registry
// has zero services and a non-empty registry already exists, the write is
// refused with ErrEmptyRescan.
func (s *Store) Save(reg *Registry) error {
	if reg == nil || strings.TrimSpace(reg.Profile) == "" {
		return fmt.Errorf("registry profile is required")
	}

	if reg.ServiceCount() == 0 {
		existing, err := s.Load(reg.Profile)
		if err == nil && existing.ServiceCount() > 0 {
			return fmt.Errorf("profile %q: %w", reg.Profile, ErrEmptyRescan)
		}
	}

	return s.write(reg)
}

// SaveMerged persists a merged artifact without the empty-rescan guard; the
// merge tool validates its inputs itself.
func (s *Store) SaveMerged(reg *Registry) error {
	if reg == nil || strings.TrimSpace(reg.Profile) == "" {
		return fmt.Errorf("registry profile is required")
	}
	if !reg.IsMerged() {
		return fmt.Errorf("registry %q is not a merged artifact", reg.Profile)
	}
	return s.write(reg)
}

func (s *Store) write(reg *Registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry for %q: %w", reg.Profile, err)
	}
	data = append(data, '\n')

	if err := util.WriteFileAtomic(s.path(reg.Profile), data, 0o644); err != nil {
		return fmt.Errorf("write registry for %q: %w", reg.Profile, err)
	}
	return nil
}

// Delete removes a profile's registry. Missing profiles are not an error.
func (s *Store) Delete(profile string) error {
	err := os.Remove(s.path(profile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete registry for %q: %w", profile, err)
	}
	return nil
}

// List returns the profiles with a stored registry, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list registries in %q: %w", s.dir, err)
	}

	var profiles []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".registry.json") {
			continue
		}
		profiles = append(profiles, strings.TrimSuffix(name, ".registry.json"))
	}
	return util.UniqueSorted(profiles), nil
}
