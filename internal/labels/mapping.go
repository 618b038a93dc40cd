package labels

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/core/tracker"
)

// Mapping is the source-name to target-name table computed once per run.
// Several source labels may share one target label.
type Mapping struct {
	names map[string]string

	// Existing lists target labels that were present before the run.
	Existing []string
	// Reused lists target labels that source labels were folded into.
	Reused []string
	// Created lists labels created by the run.
	Created []string
}

// NewMapping returns a mapping from an explicit table, mainly for tests.
func NewMapping(names map[string]string) *Mapping {
	m := &Mapping{names: make(map[string]string, len(names))}
	for k, v := range names {
		m.names[k] = v
	}
	return m
}

// Target returns the target label for a source label.
func (m *Mapping) Target(source string) (string, bool) {
	if m == nil {
		return "", false
	}
	t, ok := m.names[source]
	return t, ok
}

// Len returns the number of mapped source labels.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}

// Apply translates an item's labels. Unknown labels are dropped and
// duplicates after folding collapse to one.
func (m *Mapping) Apply(sources []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range sources {
		t, ok := m.Target(s)
		if !ok {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// Store is the part of the target that holds labels.
type Store interface {
	ListLabels(ctx context.Context) ([]tracker.Label, error)
	CreateLabel(ctx context.Context, l tracker.Label) error
}

// Migrate translates every source label and makes sure its target exists.
// Matching is case-insensitive, as GitHub treats "Bug" and "bug" as one label.
func Migrate(ctx context.Context, source []tracker.Label, store Store, tr *Translator, logger *zap.Logger) (*Mapping, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	existing, err := store.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list target labels: %w", err)
	}

	m := &Mapping{names: make(map[string]string, len(source))}
	known := make(map[string]string, len(existing)) // lowercase -> actual
	for _, l := range existing {
		known[strings.ToLower(l.Name)] = l.Name
		m.Existing = append(m.Existing, l.Name)
	}
	reused := make(map[string]bool)

	for _, l := range source {
		name := tr.Translate(l.Name)
		key := strings.ToLower(name)

		if actual, ok := known[key]; ok {
			m.names[l.Name] = actual
			if !reused[key] && !containsFold(m.Created, actual) {
				reused[key] = true
				m.Reused = append(m.Reused, actual)
			}
			logger.Debug("using existing label", zap.String("source", l.Name), zap.String("target", actual))
			continue
		}

		if err := store.CreateLabel(ctx, tracker.Label{
			Name:        name,
			Color:       strings.TrimPrefix(l.Color, "#"),
			Description: l.Description,
		}); err != nil {
			return nil, fmt.Errorf("failed to create label %q: %w", name, err)
		}
		known[key] = name
		m.names[l.Name] = name
		m.Created = append(m.Created, name)
		logger.Debug("created label", zap.String("source", l.Name), zap.String("target", name))
	}

	logger.Info("labels mapped",
		zap.Int("mapped", len(m.names)),
		zap.Int("created", len(m.Created)),
		zap.Int("reused", len(m.Reused)))
	return m, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
