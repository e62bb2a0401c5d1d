package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrPlanNotFound is returned by Find when the work dir holds no plan.
var ErrPlanNotFound = errors.New("plan: no planning file found")

// Parser turns a planning document into a Plan and its raw decoded form.
type Parser interface {
	Parse(path string) (*Plan, map[string]any, error)
}

// YAMLParser reads the YAML export of the planning sheet.
type YAMLParser struct{}

// Parse implements Parser.
func (YAMLParser) Parse(path string) (*Plan, map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("plan: read %s: %w", path, err)
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, nil, fmt.Errorf("plan: parse %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("plan: parse %s: %w", path, err)
	}
	p.SourceFile = path
	return &p, raw, nil
}

// Find locates the planning file in dir. Names containing "plan" with a
// .yml or .yaml extension qualify; the lexically first one wins.
func Find(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("plan: scan %s: %w", dir, err)
	}
	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		ext := filepath.Ext(name)
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		if strings.HasPrefix(name, "~$") || !strings.Contains(name, "plan") {
			continue
		}
		candidates = append(candidates, e.Name())
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w in %s", ErrPlanNotFound, dir)
	}
	sort.Strings(candidates)
	return filepath.Join(dir, candidates[0]), nil
}
