// Package memory provides an in-memory graph store used by tests and by the
// loader's dry-run mode. It implements both the read and write interfaces.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/store"
)

type Store struct {
	mu       sync.RWMutex
	entities map[string]common.Entity
	edges    []common.Edge
	events   map[string][]common.TimelineEvent
}

func NewStore() *Store {
	return &Store{
		entities: make(map[string]common.Entity),
		events:   make(map[string][]common.TimelineEvent),
	}
}

func (s *Store) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entities[id]
	if !ok {
		return common.Entity{}, store.ErrEntityNotFound
	}
	return ent, nil
}

func (s *Store) Neighbors(
	ctx context.Context,
	id string,
	types []common.EdgeType,
	dir store.Direction,
) ([]store.Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entities[id]; !ok {
		return nil, store.ErrEntityNotFound
	}

	var neighbors []store.Neighbor
	for _, edge := range s.edges {
		if !matchesType(edge.Type, types) {
			continue
		}

		var otherID string
		switch {
		case dir == store.Outgoing && edge.FromID == id:
			otherID = edge.ToID
		case dir == store.Incoming && edge.ToID == id:
			otherID = edge.FromID
		default:
			continue
		}

		other, ok := s.entities[otherID]
		if !ok {
			// Dangling edge target; the caller treats this path as dead.
			continue
		}
		neighbors = append(neighbors, store.Neighbor{Entity: other, Edge: edge})
	}

	return neighbors, nil
}

func (s *Store) Sanctions(ctx context.Context, id string) ([]common.SanctionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entities[id]
	if !ok {
		return nil, store.ErrEntityNotFound
	}

	sanctions := make([]common.SanctionEntry, len(ent.Sanctions))
	copy(sanctions, ent.Sanctions)
	return sanctions, nil
}

func (s *Store) Events(ctx context.Context, id string) ([]common.TimelineEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entities[id]; !ok {
		return nil, store.ErrEntityNotFound
	}

	events := make([]common.TimelineEvent, len(s.events[id]))
	copy(events, s.events[id])
	sort.Slice(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
	return events, nil
}

func (s *Store) Search(
	ctx context.Context,
	query string,
	kind common.EntityKind,
	limit int,
) ([]store.SearchMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var matches []store.SearchMatch
	for _, ent := range s.entities {
		if kind != "" && ent.Kind != kind {
			continue
		}
		if !strings.Contains(strings.ToLower(ent.Name), q) &&
			!strings.Contains(strings.ToLower(ent.NameLocal), q) {
			continue
		}
		matches = append(matches, store.SearchMatch{
			Entity: ent,
			Score:  store.MatchScore(ent, query),
		})
	}

	store.SortMatches(matches)

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) SaveEntities(ctx context.Context, entities []common.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ent := range entities {
		s.entities[ent.ID] = ent
	}
	return nil
}

func (s *Store) SaveEdges(ctx context.Context, edges []common.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.edges = append(s.edges, edges...)
	return nil
}

func (s *Store) SaveEvents(ctx context.Context, events []common.TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		s.events[ev.EntityID] = append(s.events[ev.EntityID], ev)
	}
	return nil
}

func matchesType(t common.EdgeType, types []common.EdgeType) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

