package template

import (
	"fmt"
	"sort"
)

// Set is an immutable collection of templates grouped by family. Family
// listings are ordered by CompareIDs.
type Set struct {
	byID     map[string]*Template
	families map[string][]*Template
	names    []string
}

// NewSet groups templates by family. Duplicate ids are rejected.
func NewSet(templates ...*Template) (*Set, error) {
	s := &Set{
		byID:     make(map[string]*Template, len(templates)),
		families: map[string][]*Template{},
	}
	for _, t := range templates {
		if t == nil {
			continue
		}
		if _, exists := s.byID[t.ID]; exists {
			return nil, fmt.Errorf("template: duplicate id %q", t.ID)
		}
		s.byID[t.ID] = t
		if _, ok := s.families[t.Family]; !ok {
			s.names = append(s.names, t.Family)
		}
		s.families[t.Family] = append(s.families[t.Family], t)
	}
	for _, list := range s.families {
		sort.Slice(list, func(i, j int) bool { return CompareIDs(list[i].ID, list[j].ID) < 0 })
	}
	sort.Slice(s.names, func(i, j int) bool { return CompareIDs(s.names[i], s.names[j]) < 0 })
	return s, nil
}

// Get returns the template with the given id.
func (s *Set) Get(id string) (*Template, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.byID[id]
	return t, ok
}

// Family returns the templates of a family in id order. The returned slice
// must not be modified.
func (s *Set) Family(name string) []*Template {
	if s == nil {
		return nil
	}
	return s.families[name]
}

// Families lists the known family names in order.
func (s *Set) Families() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len reports the number of templates.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byID)
}
