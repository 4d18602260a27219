package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// validate checks ids are unique, dependencies exist and the dependency
// graph has no cycle.
func validate(descs []Descriptor) (map[string]Descriptor, error) {
	byID := make(map[string]Descriptor, len(descs))
	for _, d := range descs {
		if strings.TrimSpace(d.ID) == "" {
			return nil, errors.New("service with empty id")
		}
		if _, dup := byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate service id %q", d.ID)
		}
		byID[d.ID] = d
	}
	for _, d := range descs {
		for _, dep := range d.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("service %s depends on unknown service %q", d.ID, dep)
			}
		}
	}
	if _, err := topoOrder(byID); err != nil {
		return nil, err
	}
	return byID, nil
}

// topoOrder returns ids with dependencies before dependents. Ties are
// broken by id so the order is stable.
func topoOrder(byID map[string]Descriptor) ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	mark := make(map[string]int, len(byID))
	out := make([]string, 0, len(byID))
	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch mark[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(append(path, id), " -> "))
		}
		mark[id] = visiting
		deps := append([]string(nil), byID[id].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		mark[id] = done
		out = append(out, id)
		return nil
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}
