package boards

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader resolves board definitions from a list of search paths. Loaded
// definitions are cached by id.
type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load returns the board definition for id, searching each path in order.
func (l *Loader) Load(id string) (*Definition, error) {
	if cached, ok := l.cache.Load(id); ok {
		return cached.(*Definition), nil
	}

	var data []byte
	var foundPath string

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, id+".yaml")
		if b, err := os.ReadFile(fullPath); err == nil {
			data = b
			foundPath = fullPath
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("board not found: %s (searched in: %v)", id, l.searchPaths)
	}

	if err := l.validator.ValidateBoard(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board definition: %w", err)
	}
	if def.ID != id {
		return nil, fmt.Errorf("board id mismatch in %s: file says %q", foundPath, def.ID)
	}

	l.cache.Store(id, &def)

	return &def, nil
}

// List returns the ids of every definition file found across the search
// paths, sorted and de-duplicated. Files are not validated here.
func (l *Loader) List() ([]string, error) {
	seen := make(map[string]struct{})

	for _, searchPath := range l.searchPaths {
		entries, err := os.ReadDir(searchPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read board directory %s: %w", searchPath, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
				continue
			}
			seen[strings.TrimSuffix(entry.Name(), ".yaml")] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ClearCache drops every cached definition, forcing reloads from disk.
func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
