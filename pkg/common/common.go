package common

import "time"

// EntityKind identifies the closed set of node kinds in the ownership graph.
// Traversal logic is kind-agnostic; the kind only matters for display and for
// the kind-specific payload attached to an entity.
type EntityKind string

const (
	KindCompany    EntityKind = "company"
	KindPerson     EntityKind = "person"
	KindGovernment EntityKind = "government"
)

// EdgeType identifies the typed relations between entities.
//
//   - OWNS carries an equity percentage in (0, 100].
//   - CONTROLS is non-equity control and counts as 100% for capture purposes.
//   - OFFICER_OF is a role relation and is not used in capture math.
type EdgeType string

const (
	EdgeOwns      EdgeType = "OWNS"
	EdgeControls  EdgeType = "CONTROLS"
	EdgeOfficerOf EdgeType = "OFFICER_OF"
)

// Risk flags attached to entities by the list ingestion pipelines.
const (
	FlagEntityList            = "entity_list"
	FlagMEUList               = "meu_list"
	FlagSDN                   = "sdn"
	FlagNSCMIC                = "ns_cmic"
	FlagCMC1260H              = "cmc_1260h"
	FlagMilitaryCivilFusion   = "military_civil_fusion"
	FlagCentralSOE            = "central_soe"
	FlagDefenseIndustrialBase = "defense_industrial_base"
	FlagXinjiangUyghur        = "xinjiang_uyghur"
)

// TriggeringFlags are the flags whose presence means the entity itself is on a
// capture-triggering restricted-party list.
var TriggeringFlags = []string{FlagEntityList, FlagMEUList, FlagSDN}

// SignificantFlags elevate risk without triggering ownership capture
// (investment restrictions rather than export restrictions).
var SignificantFlags = []string{FlagNSCMIC, FlagCMC1260H}

// TriggeringLists are the sanction list names that trigger ownership capture.
var TriggeringLists = []string{"Entity List", "MEU List", "SDN List"}

// Entity is a node in the ownership graph. Shared fields cover every kind;
// exactly one of Company, Person, or Government is set depending on Kind.
// Entities never reference other entities directly, relations are edges
// resolved through the graph store.
type Entity struct {
	ID          string     `json:"id"`
	Kind        EntityKind `json:"kind"`
	Name        string     `json:"name"`
	NameLocal   string     `json:"name_local,omitempty"`
	Description string     `json:"description,omitempty"`
	RiskFlags   []string   `json:"risk_flags"`
	RiskScore   *int       `json:"risk_score,omitempty"`

	Company    *CompanyInfo    `json:"company,omitempty"`
	Person     *PersonInfo     `json:"person,omitempty"`
	Government *GovernmentInfo `json:"government,omitempty"`

	Sanctions []SanctionEntry `json:"sanctions,omitempty"`
}

// CompanyInfo holds company-specific attributes.
type CompanyInfo struct {
	RegistrationID string     `json:"registration_id,omitempty"`
	Jurisdiction   string     `json:"jurisdiction,omitempty"`
	Industry       string     `json:"industry,omitempty"`
	Status         string     `json:"status,omitempty"`
	Founded        *time.Time `json:"founded,omitempty"`
}

// PersonInfo holds person-specific attributes.
type PersonInfo struct {
	Nationality string `json:"nationality,omitempty"`
	IsPEP       bool   `json:"is_pep,omitempty"`
}

// GovernmentInfo holds government-body attributes.
type GovernmentInfo struct {
	Level    string `json:"level,omitempty"`
	BodyType string `json:"body_type,omitempty"`
}

// HasFlag reports whether the entity carries the given risk flag.
func (e Entity) HasFlag(flag string) bool {
	for _, f := range e.RiskFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// HasAnyFlag reports whether the entity carries at least one of the flags.
func (e Entity) HasAnyFlag(flags ...string) bool {
	for _, f := range flags {
		if e.HasFlag(f) {
			return true
		}
	}
	return false
}

// DirectlyListed reports whether the entity itself appears on a
// capture-triggering list at the given time. A dated sanction entry counts if
// it is in force at t; entities loaded from flag-only sources carry no dated
// entries, so triggering risk flags count as well.
func (e Entity) DirectlyListed(t time.Time) bool {
	for _, s := range e.Sanctions {
		if s.Triggering() && s.ActiveAt(t) {
			return true
		}
	}
	return e.HasAnyFlag(TriggeringFlags...)
}

// Edge is a directed, typed relation from one entity to another. Historical
// edges carry validity intervals; only edges whose interval is open or
// contains "now" participate in capture computation.
type Edge struct {
	ID         string     `json:"id"`
	FromID     string     `json:"from_id"`
	ToID       string     `json:"to_id"`
	Type       EdgeType   `json:"type"`
	Percentage *float64   `json:"percentage,omitempty"`
	Role       string     `json:"role,omitempty"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidTo    *time.Time `json:"valid_to,omitempty"`
}

// ActiveAt reports whether the edge's validity interval contains t.
func (e Edge) ActiveAt(t time.Time) bool {
	if e.ValidFrom != nil && t.Before(*e.ValidFrom) {
		return false
	}
	if e.ValidTo != nil && !t.Before(*e.ValidTo) {
		return false
	}
	return true
}

// CapturePercentage returns the ownership percentage the edge contributes to
// capture math: the equity percentage for OWNS, 100 for CONTROLS, and 0 for
// role relations.
func (e Edge) CapturePercentage() float64 {
	switch e.Type {
	case EdgeControls:
		return 100
	case EdgeOwns:
		if e.Percentage != nil {
			return *e.Percentage
		}
	}
	return 0
}

// SanctionEntry records a listing of an entity on a restricted-party list.
type SanctionEntry struct {
	ID       string     `json:"id"`
	EntityID string     `json:"entity_id"`
	ListName string     `json:"list_name"`
	Program  string     `json:"program,omitempty"`
	Listed   *time.Time `json:"listed,omitempty"`
	Delisted *time.Time `json:"delisted,omitempty"`
	Citation string     `json:"citation,omitempty"`
}

// Triggering reports whether the entry's list triggers ownership capture.
func (s SanctionEntry) Triggering() bool {
	for _, l := range TriggeringLists {
		if s.ListName == l {
			return true
		}
	}
	return false
}

// ActiveAt reports whether the listing is in force at t.
func (s SanctionEntry) ActiveAt(t time.Time) bool {
	if s.Listed != nil && t.Before(*s.Listed) {
		return false
	}
	return s.Delisted == nil || s.Delisted.After(t)
}

// EventType identifies the kinds of timeline events in an entity's history.
type EventType string

const (
	EventFounding         EventType = "founding"
	EventNameChange       EventType = "name_change"
	EventOwnershipChange  EventType = "ownership_change"
	EventSanctionsListing EventType = "sanctions_listing"
	EventSanctionsRemoval EventType = "sanctions_removal"
	EventRestructuring    EventType = "restructuring"
	EventInvestigation    EventType = "investigation"
	EventProductLaunch    EventType = "product_launch"
)

// TimelineEvent is an append-only fact in an entity's history. Ownership
// change events additionally carry the old and new percentage and the
// counterparty (the owner whose stake changed).
type TimelineEvent struct {
	ID          string    `json:"id"`
	EntityID    string    `json:"entity_id"`
	Date        time.Time `json:"date"`
	Type        EventType `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source,omitempty"`

	OldPercentage  *float64 `json:"old_percentage,omitempty"`
	NewPercentage  *float64 `json:"new_percentage,omitempty"`
	CounterpartyID string   `json:"counterparty_id,omitempty"`
}
