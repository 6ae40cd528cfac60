package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/cleargate-io/cleargate/pkg/common"
)

// SaveEntities upserts entities and their sanction entries in one
// transaction. Sanctions are replaced wholesale per entity so delistings in
// the source data do not leave stale rows behind.
func (s *Store) SaveEntities(ctx context.Context, entities []common.Entity) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin entity upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ent := range entities {
		var (
			registrationID, jurisdiction, industry, status *string
			founded                                        *time.Time
			nationality                                    *string
			isPEP                                          *bool
			govLevel, bodyType                             *string
		)
		if c := ent.Company; c != nil {
			registrationID = optional(c.RegistrationID)
			jurisdiction = optional(c.Jurisdiction)
			industry = optional(c.Industry)
			status = optional(c.Status)
			founded = c.Founded
		}
		if p := ent.Person; p != nil {
			nationality = optional(p.Nationality)
			isPEP = &p.IsPEP
		}
		if g := ent.Government; g != nil {
			govLevel = optional(g.Level)
			bodyType = optional(g.BodyType)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO entities (
				id, kind, name, name_local, description, risk_flags, risk_score,
				registration_id, jurisdiction, industry, status, founded,
				nationality, is_pep, gov_level, body_type
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (id) DO UPDATE SET
				kind = EXCLUDED.kind,
				name = EXCLUDED.name,
				name_local = EXCLUDED.name_local,
				description = EXCLUDED.description,
				risk_flags = EXCLUDED.risk_flags,
				risk_score = EXCLUDED.risk_score,
				registration_id = EXCLUDED.registration_id,
				jurisdiction = EXCLUDED.jurisdiction,
				industry = EXCLUDED.industry,
				status = EXCLUDED.status,
				founded = EXCLUDED.founded,
				nationality = EXCLUDED.nationality,
				is_pep = EXCLUDED.is_pep,
				gov_level = EXCLUDED.gov_level,
				body_type = EXCLUDED.body_type`,
			ent.ID, string(ent.Kind), ent.Name, ent.NameLocal, ent.Description,
			ent.RiskFlags, ent.RiskScore,
			registrationID, jurisdiction, industry, status, founded,
			nationality, isPEP, govLevel, bodyType,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert entity %s: %w", ent.ID, err)
		}

		_, err = tx.Exec(ctx, `DELETE FROM sanctions WHERE entity_id = $1`, ent.ID)
		if err != nil {
			return fmt.Errorf("failed to clear sanctions of %s: %w", ent.ID, err)
		}
		for _, entry := range ent.Sanctions {
			_, err := tx.Exec(ctx, `
				INSERT INTO sanctions (id, entity_id, list_name, program, listed, delisted, citation)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				entry.ID, ent.ID, entry.ListName, entry.Program,
				entry.Listed, entry.Delisted, entry.Citation,
			)
			if err != nil {
				return fmt.Errorf("failed to insert sanction %s: %w", entry.ID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit entity upsert: %w", err)
	}
	return nil
}

func (s *Store) SaveEdges(ctx context.Context, edges []common.Edge) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin edge upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, edge := range edges {
		_, err := tx.Exec(ctx, `
			INSERT INTO edges (id, from_id, to_id, type, percentage, role, valid_from, valid_to)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				from_id = EXCLUDED.from_id,
				to_id = EXCLUDED.to_id,
				type = EXCLUDED.type,
				percentage = EXCLUDED.percentage,
				role = EXCLUDED.role,
				valid_from = EXCLUDED.valid_from,
				valid_to = EXCLUDED.valid_to`,
			edge.ID, edge.FromID, edge.ToID, string(edge.Type),
			edge.Percentage, edge.Role, edge.ValidFrom, edge.ValidTo,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert edge %s: %w", edge.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit edge upsert: %w", err)
	}
	return nil
}

func (s *Store) SaveEvents(ctx context.Context, events []common.TimelineEvent) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin event upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO timeline_events (
				id, entity_id, date, type, title, description, source,
				old_percentage, new_percentage, counterparty_id
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				entity_id = EXCLUDED.entity_id,
				date = EXCLUDED.date,
				type = EXCLUDED.type,
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				source = EXCLUDED.source,
				old_percentage = EXCLUDED.old_percentage,
				new_percentage = EXCLUDED.new_percentage,
				counterparty_id = EXCLUDED.counterparty_id`,
			ev.ID, ev.EntityID, ev.Date, string(ev.Type), ev.Title,
			ev.Description, ev.Source,
			ev.OldPercentage, ev.NewPercentage, ev.CounterpartyID,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit event upsert: %w", err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
