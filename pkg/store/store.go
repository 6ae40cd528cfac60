package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/cleargate-io/cleargate/pkg/common"
)

// ErrEntityNotFound is returned when a looked-up entity id does not exist in
// the graph. Callers rely on it to tell "no owners" apart from "unknown
// entity", so implementations must never map unknown ids to empty results.
var ErrEntityNotFound = errors.New("entity not found")

// Direction selects which end of an edge the queried entity sits on.
type Direction string

const (
	// Outgoing returns edges where the entity is the source (owner side).
	Outgoing Direction = "outgoing"
	// Incoming returns edges where the entity is the target (owned side).
	Incoming Direction = "incoming"
)

// Neighbor pairs an adjacent entity with the edge connecting it to the
// queried entity.
type Neighbor struct {
	Entity common.Entity
	Edge   common.Edge
}

// SearchMatch is a candidate entity for a free-text name query.
type SearchMatch struct {
	Entity common.Entity `json:"entity"`
	Score  float64       `json:"score"`
}

// GraphReader is the read-only view of the entity/edge store consumed by the
// risk engine. Implementations must not silently drop edges; neighbor results
// include inactive (historical) edges, and callers filter by validity where
// capture math requires it.
type GraphReader interface {
	// GetEntity returns the entity with the given id, including its sanction
	// entries, or ErrEntityNotFound.
	GetEntity(ctx context.Context, id string) (common.Entity, error)

	// Neighbors returns the entities adjacent to id via edges of the given
	// types in the given direction. An empty types slice matches all edge
	// types. Returns ErrEntityNotFound for unknown ids.
	Neighbors(ctx context.Context, id string, types []common.EdgeType, dir Direction) ([]Neighbor, error)

	// Sanctions returns the entity's sanction entries, or ErrEntityNotFound.
	Sanctions(ctx context.Context, id string) ([]common.SanctionEntry, error)

	// Events returns the entity's timeline events ordered by date ascending.
	Events(ctx context.Context, id string) ([]common.TimelineEvent, error)

	// Search matches entities whose canonical or secondary-script name
	// contains the query, ordered by risk score descending.
	Search(ctx context.Context, query string, kind common.EntityKind, limit int) ([]SearchMatch, error)
}

// MatchScore grades how well an entity matches a name query: 1.0 for an
// exact (case-insensitive) match on either name, 0.8 for a partial match.
// All backends use it so ranking stays consistent across stores.
func MatchScore(ent common.Entity, query string) float64 {
	q := strings.ToLower(query)
	if strings.ToLower(ent.Name) == q || (ent.NameLocal != "" && strings.ToLower(ent.NameLocal) == q) {
		return 1.0
	}
	return 0.8
}

// SortMatches orders matches by score, then risk score, then name, so search
// results are deterministic regardless of backend iteration order.
func SortMatches(matches []SearchMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		si, sj := 0, 0
		if matches[i].Entity.RiskScore != nil {
			si = *matches[i].Entity.RiskScore
		}
		if matches[j].Entity.RiskScore != nil {
			sj = *matches[j].Entity.RiskScore
		}
		if si != sj {
			return si > sj
		}
		return matches[i].Entity.Name < matches[j].Entity.Name
	})
}

// GraphWriter is the ingestion-side interface used by the data loader. The
// engine itself never writes to the graph.
type GraphWriter interface {
	SaveEntities(ctx context.Context, entities []common.Entity) error
	SaveEdges(ctx context.Context, edges []common.Edge) error
	SaveEvents(ctx context.Context, events []common.TimelineEvent) error
}
