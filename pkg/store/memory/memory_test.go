package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/store"
)

func pct(p float64) *float64 { return &p }

func seed(t *testing.T) *Store {
	t.Helper()
	st := NewStore()
	ctx := context.Background()

	err := st.SaveEntities(ctx, []common.Entity{
		{ID: "a", Kind: common.KindCompany, Name: "Alpha Holdings", RiskFlags: []string{}},
		{ID: "b", Kind: common.KindCompany, Name: "Beta Industries", NameLocal: "贝塔", RiskFlags: []string{}},
		{ID: "p", Kind: common.KindPerson, Name: "Beta Chen", RiskFlags: []string{}},
	})
	if err != nil {
		t.Fatalf("failed to save entities: %v", err)
	}

	err = st.SaveEdges(ctx, []common.Edge{
		{ID: "e1", FromID: "a", ToID: "b", Type: common.EdgeOwns, Percentage: pct(60)},
		{ID: "e2", FromID: "p", ToID: "b", Type: common.EdgeOfficerOf, Role: "CEO"},
	})
	if err != nil {
		t.Fatalf("failed to save edges: %v", err)
	}
	return st
}

func TestGetEntity_NotFound(t *testing.T) {
	st := seed(t)
	_, err := st.GetEntity(context.Background(), "ghost")
	if !errors.Is(err, store.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestNeighbors_DirectionAndTypeFilter(t *testing.T) {
	st := seed(t)
	ctx := context.Background()

	owners, err := st.Neighbors(ctx, "b", []common.EdgeType{common.EdgeOwns}, store.Incoming)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(owners) != 1 || owners[0].Entity.ID != "a" {
		t.Fatalf("expected single owner a, got %+v", owners)
	}

	all, err := st.Neighbors(ctx, "b", nil, store.Incoming)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 incoming neighbors, got %d", len(all))
	}

	holdings, err := st.Neighbors(ctx, "a", nil, store.Outgoing)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(holdings) != 1 || holdings[0].Entity.ID != "b" {
		t.Fatalf("expected single holding b, got %+v", holdings)
	}
}

func TestNeighbors_UnknownEntity(t *testing.T) {
	st := seed(t)
	_, err := st.Neighbors(context.Background(), "ghost", nil, store.Incoming)
	if !errors.Is(err, store.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestSearch_ScoringAndKindFilter(t *testing.T) {
	st := seed(t)
	ctx := context.Background()

	matches, err := st.Search(ctx, "beta", "", 10)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}

	companies, err := st.Search(ctx, "beta", common.KindCompany, 10)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(companies) != 1 || companies[0].Entity.ID != "b" {
		t.Fatalf("expected only company b, got %+v", companies)
	}

	exact, err := st.Search(ctx, "Beta Industries", "", 10)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if exact[0].Score != 1.0 {
		t.Fatalf("expected exact score 1.0, got %f", exact[0].Score)
	}

	local, err := st.Search(ctx, "贝塔", "", 10)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(local) != 1 || local[0].Score != 1.0 {
		t.Fatalf("expected exact match on secondary-script name, got %+v", local)
	}
}

func TestSanctions_UnknownEntity(t *testing.T) {
	st := seed(t)
	_, err := st.Sanctions(context.Background(), "ghost")
	if !errors.Is(err, store.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestSanctions_ReturnsEntries(t *testing.T) {
	st := seed(t)
	ctx := context.Background()

	listed := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	err := st.SaveEntities(ctx, []common.Entity{{
		ID: "s", Kind: common.KindCompany, Name: "Sigma Corp", RiskFlags: []string{},
		Sanctions: []common.SanctionEntry{
			{ID: "sn1", EntityID: "s", ListName: "Entity List", Listed: &listed},
		},
	}})
	if err != nil {
		t.Fatalf("failed to save entity: %v", err)
	}

	sanctions, err := st.Sanctions(ctx, "s")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(sanctions) != 1 || sanctions[0].ListName != "Entity List" {
		t.Fatalf("expected single Entity List entry, got %+v", sanctions)
	}
}

func TestEvents_SortedByDate(t *testing.T) {
	st := seed(t)
	ctx := context.Background()

	later := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)
	err := st.SaveEvents(ctx, []common.TimelineEvent{
		{ID: "ev2", EntityID: "a", Date: later, Type: common.EventNameChange, Title: "Renamed"},
		{ID: "ev1", EntityID: "a", Date: earlier, Type: common.EventFounding, Title: "Founded"},
	})
	if err != nil {
		t.Fatalf("failed to save events: %v", err)
	}

	events, err := st.Events(ctx, "a")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(events) != 2 || events[0].ID != "ev1" || events[1].ID != "ev2" {
		t.Fatalf("expected date-ascending order, got %+v", events)
	}
}
