// Package pgx implements the graph store on Postgres via pgx. It is the
// primary backend; the schema lives in migrations/.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	conn *pgxpool.Pool
}

func NewStore(conn *pgxpool.Pool) *Store {
	return &Store{conn: conn}
}

const entityColumns = `
	id, kind, name, name_local, description, risk_flags, risk_score,
	registration_id, jurisdiction, industry, status, founded,
	nationality, is_pep, gov_level, body_type`

func (s *Store) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)

	ent, err := scanEntity(row)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Entity{}, store.ErrEntityNotFound
	}
	if err != nil {
		return common.Entity{}, fmt.Errorf("failed to get entity %s: %w", id, err)
	}

	sanctions, err := s.sanctionsFor(ctx, id)
	if err != nil {
		return common.Entity{}, err
	}
	ent.Sanctions = sanctions
	return ent, nil
}

func (s *Store) Neighbors(
	ctx context.Context,
	id string,
	types []common.EdgeType,
	dir store.Direction,
) ([]store.Neighbor, error) {
	if err := s.requireEntity(ctx, id); err != nil {
		return nil, err
	}

	entityJoin, entityMatch := "e.from_id", "e.to_id"
	if dir == store.Outgoing {
		entityJoin, entityMatch = "e.to_id", "e.from_id"
	}

	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}

	query := fmt.Sprintf(`
		SELECT
			e.id, e.from_id, e.to_id, e.type, e.percentage, e.role,
			e.valid_from, e.valid_to,
			%s
		FROM edges e
		JOIN entities n ON n.id = %s
		WHERE %s = $1
		  AND (cardinality($2::text[]) = 0 OR e.type = ANY($2::text[]))
		ORDER BY n.id, e.id`,
		prefixColumns("n"), entityJoin, entityMatch)

	rows, err := s.conn.Query(ctx, query, id, typeNames)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbors of %s: %w", id, err)
	}
	defer rows.Close()

	var neighbors []store.Neighbor
	for rows.Next() {
		nb, err := scanNeighbor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan neighbor of %s: %w", id, err)
		}
		neighbors = append(neighbors, nb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read neighbors of %s: %w", id, err)
	}

	return neighbors, nil
}

func (s *Store) Sanctions(ctx context.Context, id string) ([]common.SanctionEntry, error) {
	if err := s.requireEntity(ctx, id); err != nil {
		return nil, err
	}
	return s.sanctionsFor(ctx, id)
}

func (s *Store) Events(ctx context.Context, id string) ([]common.TimelineEvent, error) {
	if err := s.requireEntity(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, entity_id, date, type, title, description, source,
		       old_percentage, new_percentage, counterparty_id
		FROM timeline_events
		WHERE entity_id = $1
		ORDER BY date, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query events of %s: %w", id, err)
	}
	defer rows.Close()

	var events []common.TimelineEvent
	for rows.Next() {
		var ev common.TimelineEvent
		var evType string
		err := rows.Scan(
			&ev.ID, &ev.EntityID, &ev.Date, &evType, &ev.Title, &ev.Description,
			&ev.Source, &ev.OldPercentage, &ev.NewPercentage, &ev.CounterpartyID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event of %s: %w", id, err)
		}
		ev.Type = common.EventType(evType)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events of %s: %w", id, err)
	}

	return events, nil
}

func (s *Store) Search(
	ctx context.Context,
	query string,
	kind common.EntityKind,
	limit int,
) ([]store.SearchMatch, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE (name ILIKE '%' || $1 || '%' OR name_local ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR kind = $2)
		ORDER BY risk_score DESC NULLS LAST, name
		LIMIT $3`, query, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search entities: %w", err)
	}
	defer rows.Close()

	var matches []store.SearchMatch
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		matches = append(matches, store.SearchMatch{
			Entity: ent,
			Score:  store.MatchScore(ent, query),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	store.SortMatches(matches)
	return matches, nil
}

func (s *Store) requireEntity(ctx context.Context, id string) error {
	var exists bool
	err := s.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check entity %s: %w", id, err)
	}
	if !exists {
		return store.ErrEntityNotFound
	}
	return nil
}

func (s *Store) sanctionsFor(ctx context.Context, id string) ([]common.SanctionEntry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, entity_id, list_name, program, listed, delisted, citation
		FROM sanctions
		WHERE entity_id = $1
		ORDER BY listed NULLS LAST, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query sanctions of %s: %w", id, err)
	}
	defer rows.Close()

	var sanctions []common.SanctionEntry
	for rows.Next() {
		var entry common.SanctionEntry
		err := rows.Scan(
			&entry.ID, &entry.EntityID, &entry.ListName, &entry.Program,
			&entry.Listed, &entry.Delisted, &entry.Citation,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sanction of %s: %w", id, err)
		}
		sanctions = append(sanctions, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sanctions of %s: %w", id, err)
	}

	return sanctions, nil
}
