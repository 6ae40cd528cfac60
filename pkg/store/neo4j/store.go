// Package neo4j implements the read side of the graph store on a Neo4j
// database. It is selected with GRAPH_BACKEND=neo4j and serves deployments
// that keep the ownership graph in a native graph database; ingestion into
// Neo4j happens outside this service, so only store.GraphReader is
// implemented.
//
// Temporal properties are stored as RFC 3339 strings to keep the dataset
// portable across backends.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Store struct {
	driver neo4j.DriverWithContext
	dbName string
}

func NewStore(ctx context.Context, uri, username, password, dbName string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach neo4j: %w", err)
	}
	return &Store{driver: driver, dbName: dbName}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		s.driver,
		query,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.dbName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute neo4j query: %w", err)
	}
	return result, nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	result, err := s.run(ctx, `
		MATCH (e:Entity {id: $id})
		OPTIONAL MATCH (e)-[:LISTED_ON]->(s:Sanction)
		RETURN e, collect(s) AS sanctions`,
		map[string]any{"id": id})
	if err != nil {
		return common.Entity{}, err
	}
	if len(result.Records) == 0 {
		return common.Entity{}, store.ErrEntityNotFound
	}

	record := result.Records[0]
	node, ok := nodeValue(record, "e")
	if !ok {
		return common.Entity{}, store.ErrEntityNotFound
	}

	ent := entityFromProps(node.Props)
	if raw, found := record.Get("sanctions"); found {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				sn, ok := item.(neo4j.Node)
				if !ok {
					continue
				}
				ent.Sanctions = append(ent.Sanctions, sanctionFromProps(ent.ID, sn.Props))
			}
		}
	}
	return ent, nil
}

func (s *Store) Neighbors(
	ctx context.Context,
	id string,
	types []common.EdgeType,
	dir store.Direction,
) ([]store.Neighbor, error) {
	if _, err := s.GetEntity(ctx, id); err != nil {
		return nil, err
	}

	pattern := `(n:Entity)-[r]->(e:Entity {id: $id})`
	if dir == store.Outgoing {
		pattern = `(e:Entity {id: $id})-[r]->(n:Entity)`
	}

	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}

	result, err := s.run(ctx, fmt.Sprintf(`
		MATCH %s
		WHERE size($types) = 0 OR type(r) IN $types
		RETURN r, n, type(r) AS rel_type
		ORDER BY n.id`, pattern),
		map[string]any{"id": id, "types": typeNames})
	if err != nil {
		return nil, err
	}

	var neighbors []store.Neighbor
	for _, record := range result.Records {
		node, ok := nodeValue(record, "n")
		if !ok {
			continue
		}
		rel, ok := relationshipValue(record, "r")
		if !ok {
			continue
		}

		other := entityFromProps(node.Props)
		edge := edgeFromProps(rel.Props)
		edge.Type = common.EdgeType(stringValue(record, "rel_type"))
		if dir == store.Outgoing {
			edge.FromID, edge.ToID = id, other.ID
		} else {
			edge.FromID, edge.ToID = other.ID, id
		}
		neighbors = append(neighbors, store.Neighbor{Entity: other, Edge: edge})
	}
	return neighbors, nil
}

func (s *Store) Sanctions(ctx context.Context, id string) ([]common.SanctionEntry, error) {
	ent, err := s.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	return ent.Sanctions, nil
}

func (s *Store) Events(ctx context.Context, id string) ([]common.TimelineEvent, error) {
	if _, err := s.GetEntity(ctx, id); err != nil {
		return nil, err
	}

	result, err := s.run(ctx, `
		MATCH (e:Entity {id: $id})-[:HAS_EVENT]->(ev:Event)
		RETURN ev
		ORDER BY ev.date, ev.id`,
		map[string]any{"id": id})
	if err != nil {
		return nil, err
	}

	var events []common.TimelineEvent
	for _, record := range result.Records {
		node, ok := nodeValue(record, "ev")
		if !ok {
			continue
		}
		events = append(events, eventFromProps(id, node.Props))
	}
	return events, nil
}

func (s *Store) Search(
	ctx context.Context,
	query string,
	kind common.EntityKind,
	limit int,
) ([]store.SearchMatch, error) {
	result, err := s.run(ctx, `
		MATCH (e:Entity)
		WHERE (toLower(e.name) CONTAINS toLower($q)
		   OR toLower(coalesce(e.name_local, '')) CONTAINS toLower($q))
		  AND ($kind = '' OR e.kind = $kind)
		RETURN e
		ORDER BY coalesce(e.risk_score, -1) DESC, e.name
		LIMIT $limit`,
		map[string]any{"q": query, "kind": string(kind), "limit": limit})
	if err != nil {
		return nil, err
	}

	var matches []store.SearchMatch
	for _, record := range result.Records {
		node, ok := nodeValue(record, "e")
		if !ok {
			continue
		}
		ent := entityFromProps(node.Props)
		matches = append(matches, store.SearchMatch{
			Entity: ent,
			Score:  store.MatchScore(ent, query),
		})
	}

	store.SortMatches(matches)
	return matches, nil
}

func nodeValue(record *neo4j.Record, key string) (neo4j.Node, bool) {
	raw, found := record.Get(key)
	if !found {
		return neo4j.Node{}, false
	}
	node, ok := raw.(neo4j.Node)
	return node, ok
}

func relationshipValue(record *neo4j.Record, key string) (neo4j.Relationship, bool) {
	raw, found := record.Get(key)
	if !found {
		return neo4j.Relationship{}, false
	}
	rel, ok := raw.(neo4j.Relationship)
	return rel, ok
}

func stringValue(record *neo4j.Record, key string) string {
	raw, found := record.Get(key)
	if !found {
		return ""
	}
	s, _ := raw.(string)
	return s
}

func entityFromProps(props map[string]any) common.Entity {
	ent := common.Entity{
		ID:          propString(props, "id"),
		Kind:        common.EntityKind(propString(props, "kind")),
		Name:        propString(props, "name"),
		NameLocal:   propString(props, "name_local"),
		Description: propString(props, "description"),
		RiskFlags:   propStrings(props, "risk_flags"),
		RiskScore:   propInt(props, "risk_score"),
	}

	switch ent.Kind {
	case common.KindCompany:
		ent.Company = &common.CompanyInfo{
			RegistrationID: propString(props, "registration_id"),
			Jurisdiction:   propString(props, "jurisdiction"),
			Industry:       propString(props, "industry"),
			Status:         propString(props, "status"),
			Founded:        propTime(props, "founded"),
		}
	case common.KindPerson:
		ent.Person = &common.PersonInfo{
			Nationality: propString(props, "nationality"),
			IsPEP:       propBool(props, "is_pep"),
		}
	case common.KindGovernment:
		ent.Government = &common.GovernmentInfo{
			Level:    propString(props, "level"),
			BodyType: propString(props, "body_type"),
		}
	}
	return ent
}

func edgeFromProps(props map[string]any) common.Edge {
	return common.Edge{
		ID:         propString(props, "id"),
		Percentage: propFloat(props, "percentage"),
		Role:       propString(props, "role"),
		ValidFrom:  propTime(props, "valid_from"),
		ValidTo:    propTime(props, "valid_to"),
	}
}

func sanctionFromProps(entityID string, props map[string]any) common.SanctionEntry {
	return common.SanctionEntry{
		ID:       propString(props, "id"),
		EntityID: entityID,
		ListName: propString(props, "list_name"),
		Program:  propString(props, "program"),
		Listed:   propTime(props, "listed"),
		Delisted: propTime(props, "delisted"),
		Citation: propString(props, "citation"),
	}
}

func eventFromProps(entityID string, props map[string]any) common.TimelineEvent {
	ev := common.TimelineEvent{
		ID:             propString(props, "id"),
		EntityID:       entityID,
		Type:           common.EventType(propString(props, "type")),
		Title:          propString(props, "title"),
		Description:    propString(props, "description"),
		Source:         propString(props, "source"),
		OldPercentage:  propFloat(props, "old_percentage"),
		NewPercentage:  propFloat(props, "new_percentage"),
		CounterpartyID: propString(props, "counterparty_id"),
	}
	if t := propTime(props, "date"); t != nil {
		ev.Date = *t
	}
	return ev
}

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func propStrings(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func propInt(props map[string]any, key string) *int {
	v, ok := props[key].(int64)
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}

func propFloat(props map[string]any, key string) *float64 {
	switch v := props[key].(type) {
	case float64:
		return &v
	case int64:
		f := float64(v)
		return &f
	}
	return nil
}

func propBool(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}

func propTime(props map[string]any, key string) *time.Time {
	s, ok := props[key].(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
