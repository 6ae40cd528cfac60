package pgx

import (
	"strings"
	"time"

	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/store"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntity reads one row in entityColumns order and folds the kind-specific
// columns into the matching payload struct.
func scanEntity(row rowScanner) (common.Entity, error) {
	var (
		ent            common.Entity
		kind           string
		registrationID *string
		jurisdiction   *string
		industry       *string
		status         *string
		founded        *time.Time
		nationality    *string
		isPEP          *bool
		govLevel       *string
		bodyType       *string
	)

	err := row.Scan(
		&ent.ID, &kind, &ent.Name, &ent.NameLocal, &ent.Description,
		&ent.RiskFlags, &ent.RiskScore,
		&registrationID, &jurisdiction, &industry, &status, &founded,
		&nationality, &isPEP,
		&govLevel, &bodyType,
	)
	if err != nil {
		return common.Entity{}, err
	}

	ent.Kind = common.EntityKind(kind)
	if ent.RiskFlags == nil {
		ent.RiskFlags = []string{}
	}

	switch ent.Kind {
	case common.KindCompany:
		ent.Company = &common.CompanyInfo{
			RegistrationID: deref(registrationID),
			Jurisdiction:   deref(jurisdiction),
			Industry:       deref(industry),
			Status:         deref(status),
			Founded:        founded,
		}
	case common.KindPerson:
		ent.Person = &common.PersonInfo{
			Nationality: deref(nationality),
			IsPEP:       isPEP != nil && *isPEP,
		}
	case common.KindGovernment:
		ent.Government = &common.GovernmentInfo{
			Level:    deref(govLevel),
			BodyType: deref(bodyType),
		}
	}

	return ent, nil
}

// scanNeighbor reads an edge row followed by the joined entity columns.
func scanNeighbor(row rowScanner) (store.Neighbor, error) {
	var (
		nb             store.Neighbor
		edgeType       string
		entKind        string
		registrationID *string
		jurisdiction   *string
		industry       *string
		status         *string
		founded        *time.Time
		nationality    *string
		isPEP          *bool
		govLevel       *string
		bodyType       *string
	)

	err := row.Scan(
		&nb.Edge.ID, &nb.Edge.FromID, &nb.Edge.ToID, &edgeType,
		&nb.Edge.Percentage, &nb.Edge.Role,
		&nb.Edge.ValidFrom, &nb.Edge.ValidTo,
		&nb.Entity.ID, &entKind, &nb.Entity.Name, &nb.Entity.NameLocal,
		&nb.Entity.Description, &nb.Entity.RiskFlags, &nb.Entity.RiskScore,
		&registrationID, &jurisdiction, &industry, &status, &founded,
		&nationality, &isPEP,
		&govLevel, &bodyType,
	)
	if err != nil {
		return store.Neighbor{}, err
	}

	nb.Edge.Type = common.EdgeType(edgeType)
	nb.Entity.Kind = common.EntityKind(entKind)
	if nb.Entity.RiskFlags == nil {
		nb.Entity.RiskFlags = []string{}
	}

	switch nb.Entity.Kind {
	case common.KindCompany:
		nb.Entity.Company = &common.CompanyInfo{
			RegistrationID: deref(registrationID),
			Jurisdiction:   deref(jurisdiction),
			Industry:       deref(industry),
			Status:         deref(status),
			Founded:        founded,
		}
	case common.KindPerson:
		nb.Entity.Person = &common.PersonInfo{
			Nationality: deref(nationality),
			IsPEP:       isPEP != nil && *isPEP,
		}
	case common.KindGovernment:
		nb.Entity.Government = &common.GovernmentInfo{
			Level:    deref(govLevel),
			BodyType: deref(bodyType),
		}
	}

	return nb, nil
}

// prefixColumns qualifies the entity column list with a table alias for joins.
func prefixColumns(alias string) string {
	cols := strings.Split(entityColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
