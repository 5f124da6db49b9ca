// Package fetchers contains the pluggable post sources declared in a YAML/JSON registry.
package fetchers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Source is one fetch source entry from the registry file.
type Source struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Type           string         `json:"type" yaml:"type"`
	BaseURL        string         `json:"base_url" yaml:"base_url"`
	RequestDelayMs int            `json:"request_delay_ms" yaml:"request_delay_ms"`
	DaysLookback   int            `json:"days_lookback" yaml:"days_lookback"`
	Config         map[string]any `json:"config" yaml:"config"`
}

type registryFile struct {
	Sources []Source `json:"fetchers" yaml:"fetchers"`
}

const (
	defaultRequestDelayMs = 2000
	defaultDaysLookback   = 21
)

// SourceRegistry holds the sources loaded from a registry file.
type SourceRegistry struct {
	mu      sync.RWMutex
	sources []Source
	idx     map[string]Source
}

// LoadSources loads the fetch source registry from file.
func LoadSources(path string) (*SourceRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("fetchers file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fetchers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read fetchers file: %w", err)
	}

	reg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(reg.Sources) == 0 {
		return nil, errors.New("fetchers file contains no fetchers entries")
	}

	out := &SourceRegistry{
		sources: make([]Source, len(reg.Sources)),
		idx:     make(map[string]Source, len(reg.Sources)),
	}
	for i := range reg.Sources {
		s := sanitizeSource(reg.Sources[i])
		if err := validateSource(s); err != nil {
			return nil, fmt.Errorf("fetchers[%d]: %w", i, err)
		}
		if _, exists := out.idx[s.ID]; exists {
			return nil, fmt.Errorf("duplicate fetcher id %q", s.ID)
		}
		out.sources[i] = s
		out.idx[s.ID] = s
	}
	return out, nil
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return registryFile{}, errors.New("fetchers file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (registryFile, error) {
	var reg registryFile
	if err := fn(data, &reg); err != nil {
		return registryFile{}, fmt.Errorf("decode %s fetchers: %w", name, err)
	}
	return reg, nil
}

func sanitizeSource(s Source) Source {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")

	if s.Config == nil {
		s.Config = map[string]any{}
	}
	if s.RequestDelayMs < 0 {
		s.RequestDelayMs = 0
	}
	if s.DaysLookback <= 0 {
		s.DaysLookback = defaultDaysLookback
	}
	return s
}

func validateSource(s Source) error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return fmt.Errorf("type is required for fetcher %q", s.ID)
	}
	if s.Type != TypeMock && s.BaseURL == "" {
		return fmt.Errorf("base_url is required for fetcher %q", s.ID)
	}
	return nil
}

// ByID returns the source with the given id.
func (r *SourceRegistry) ByID(id string) (Source, bool) {
	if r == nil {
		return Source{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Source{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.idx[id]
	return s, ok
}

// All returns a copy of every loaded source.
func (r *SourceRegistry) All() []Source {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// RequestDelay returns the throttle between consecutive requests to the source.
func (s Source) RequestDelay() time.Duration {
	if s.RequestDelayMs == 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}

// Lookback returns how far back posts are accepted.
func (s Source) Lookback() time.Duration {
	days := s.DaysLookback
	if days <= 0 {
		days = defaultDaysLookback
	}
	return time.Duration(days) * 24 * time.Hour
}
