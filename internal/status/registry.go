// Package status holds the immutable set of protocol statuses loaded at startup.
package status

import (
	"fmt"
	"sort"
	"strings"

	"protodesk/internal/domain"
)

// Registry is safe for concurrent use; it is never mutated after New returns.
type Registry struct {
	ordered []domain.Status
	byID    map[int64]domain.Status
	def     domain.Status
}

// New builds a registry. defaultName selects the initial status for new protocols.
func New(statuses []domain.Status, defaultName string) (*Registry, error) {
	if len(statuses) == 0 {
		return nil, fmt.Errorf("status registry: no statuses")
	}
	r := &Registry{
		ordered: make([]domain.Status, len(statuses)),
		byID:    make(map[int64]domain.Status, len(statuses)),
	}
	copy(r.ordered, statuses)
	names := map[string]bool{}
	for _, s := range r.ordered {
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("status registry: duplicate id %d", s.ID)
		}
		key := strings.ToLower(s.Name)
		if names[key] {
			return nil, fmt.Errorf("status registry: duplicate name %s", s.Name)
		}
		names[key] = true
		r.byID[s.ID] = s
	}
	sort.SliceStable(r.ordered, func(i, j int) bool {
		if r.ordered[i].OrderSequence != r.ordered[j].OrderSequence {
			return r.ordered[i].OrderSequence < r.ordered[j].OrderSequence
		}
		return r.ordered[i].ID < r.ordered[j].ID
	})
	found := false
	for _, s := range r.ordered {
		if strings.EqualFold(s.Name, defaultName) {
			r.def = s
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("status registry: default status %q not defined", defaultName)
	}
	if r.def.IsTerminal {
		return nil, fmt.Errorf("status registry: default status %q is terminal", defaultName)
	}
	return r, nil
}

// List returns statuses by order sequence, ties broken by id.
func (r *Registry) List() []domain.Status {
	out := make([]domain.Status, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) Get(id int64) (domain.Status, error) {
	s, ok := r.byID[id]
	if !ok {
		return domain.Status{}, domain.NotFound("status", id)
	}
	return s, nil
}

// Default is the status assigned to protocols created without an explicit one.
func (r *Registry) Default() domain.Status {
	return r.def
}

// Name implements timeline.StatusNamer.
func (r *Registry) Name(id int64) (string, bool) {
	s, ok := r.byID[id]
	return s.Name, ok
}
