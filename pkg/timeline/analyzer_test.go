package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/store"
	"github.com/cleargate-io/cleargate/pkg/store/memory"
)

var base = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

func pct(p float64) *float64 { return &p }

func seedStore(t *testing.T, entities []common.Entity, events []common.TimelineEvent) *memory.Store {
	t.Helper()
	st := memory.NewStore()
	ctx := context.Background()
	if err := st.SaveEntities(ctx, entities); err != nil {
		t.Fatalf("failed to save entities: %v", err)
	}
	if err := st.SaveEvents(ctx, events); err != nil {
		t.Fatalf("failed to save events: %v", err)
	}
	return st
}

func TestDetectPatterns_RenameNearListing(t *testing.T) {
	st := seedStore(t,
		[]common.Entity{{ID: "x", Kind: common.KindCompany, Name: "X Co", RiskFlags: []string{}}},
		[]common.TimelineEvent{
			{ID: "ev1", EntityID: "x", Date: base, Type: common.EventSanctionsListing, Title: "Added to Entity List"},
			{ID: "ev2", EntityID: "x", Date: base.AddDate(0, 0, 30), Type: common.EventNameChange, Title: "Renamed"},
		},
	)

	patterns, err := NewAnalyzer(st).DetectPatterns(context.Background(), "x")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Type != PatternRenameNearListing {
		t.Fatalf("expected rename_near_listing, got %s", p.Type)
	}
	if p.Severity != SeverityHigh {
		t.Fatalf("expected high severity, got %s", p.Severity)
	}
	if len(p.RelatedEventIDs) != 2 {
		t.Fatalf("expected both event ids, got %v", p.RelatedEventIDs)
	}
}

func TestDetectPatterns_RenameOutsideWindow(t *testing.T) {
	st := seedStore(t,
		[]common.Entity{{ID: "x", Kind: common.KindCompany, Name: "X Co", RiskFlags: []string{}}},
		[]common.TimelineEvent{
			{ID: "ev1", EntityID: "x", Date: base, Type: common.EventSanctionsListing, Title: "Added to Entity List"},
			{ID: "ev2", EntityID: "x", Date: base.AddDate(0, 0, 400), Type: common.EventNameChange, Title: "Renamed"},
		},
	)

	patterns, err := NewAnalyzer(st).DetectPatterns(context.Background(), "x")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(patterns) != 0 {
		t.Fatalf("expected no patterns at 400 days, got %+v", patterns)
	}
}

func TestDetectPatterns_RenameBeforeListingCounts(t *testing.T) {
	// Proximity is symmetric: renaming shortly before the listing is as
	// suspicious as after it.
	st := seedStore(t,
		[]common.Entity{{ID: "x", Kind: common.KindCompany, Name: "X Co", RiskFlags: []string{}}},
		[]common.TimelineEvent{
			{ID: "ev1", EntityID: "x", Date: base, Type: common.EventNameChange, Title: "Renamed"},
			{ID: "ev2", EntityID: "x", Date: base.AddDate(0, 0, 45), Type: common.EventSanctionsListing, Title: "Added to Entity List"},
		},
	)

	patterns, err := NewAnalyzer(st).DetectPatterns(context.Background(), "x")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
}

func TestDetectPatterns_ListingFromSanctionEntry(t *testing.T) {
	// No listing event, but a dated triggering sanction entry supplies the
	// listing date.
	listed := base
	ent := common.Entity{
		ID: "x", Kind: common.KindCompany, Name: "X Co", RiskFlags: []string{},
		Sanctions: []common.SanctionEntry{{
			ID: "s1", EntityID: "x", ListName: "Entity List", Listed: &listed,
		}},
	}
	st := seedStore(t,
		[]common.Entity{ent},
		[]common.TimelineEvent{
			{ID: "ev1", EntityID: "x", Date: base.AddDate(0, 0, 20), Type: common.EventNameChange, Title: "Renamed"},
		},
	)

	patterns, err := NewAnalyzer(st).DetectPatterns(context.Background(), "x")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	if got := patterns[0].RelatedEventIDs; len(got) != 1 || got[0] != "ev1" {
		t.Fatalf("expected only the rename event id, got %v", got)
	}
}

func TestDetectPatterns_CustomWindow(t *testing.T) {
	st := seedStore(t,
		[]common.Entity{{ID: "x", Kind: common.KindCompany, Name: "X Co", RiskFlags: []string{}}},
		[]common.TimelineEvent{
			{ID: "ev1", EntityID: "x", Date: base, Type: common.EventSanctionsListing, Title: "Listed"},
			{ID: "ev2", EntityID: "x", Date: base.AddDate(0, 0, 30), Type: common.EventNameChange, Title: "Renamed"},
		},
	)

	patterns, err := NewAnalyzer(st, WithWindow(7*24*time.Hour)).DetectPatterns(context.Background(), "x")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(patterns) != 0 {
		t.Fatalf("expected no patterns with 7-day window, got %+v", patterns)
	}
}

func TestDetectPatterns_ThresholdEvasion(t *testing.T) {
	st := seedStore(t,
		[]common.Entity{
			{ID: "x", Kind: common.KindCompany, Name: "X Co", RiskFlags: []string{}},
			{ID: "owner", Kind: common.KindCompany, Name: "Owner Co", RiskFlags: []string{common.FlagEntityList}},
		},
		[]common.TimelineEvent{{
			ID: "ev1", EntityID: "x", Date: base, Type: common.EventOwnershipChange,
			Title:         "Stake reduced",
			OldPercentage: pct(60), NewPercentage: pct(30), CounterpartyID: "owner",
		}},
	)

	patterns, err := NewAnalyzer(st).DetectPatterns(context.Background(), "x")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	if patterns[0].Type != PatternThresholdEvasion {
		t.Fatalf("expected threshold_evasion, got %s", patterns[0].Type)
	}
}

func TestDetectPatterns_ReductionByUnlistedOwner(t *testing.T) {
	st := seedStore(t,
		[]common.Entity{
			{ID: "x", Kind: common.KindCompany, Name: "X Co", RiskFlags: []string{}},
			{ID: "owner", Kind: common.KindCompany, Name: "Owner Co", RiskFlags: []string{}},
		},
		[]common.TimelineEvent{{
			ID: "ev1", EntityID: "x", Date: base, Type: common.EventOwnershipChange,
			Title:         "Stake reduced",
			OldPercentage: pct(60), NewPercentage: pct(30), CounterpartyID: "owner",
		}},
	)

	patterns, err := NewAnalyzer(st).DetectPatterns(context.Background(), "x")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(patterns) != 0 {
		t.Fatalf("expected no patterns for unlisted owner, got %+v", patterns)
	}
}

func TestDetectPatterns_ReductionStillAboveThreshold(t *testing.T) {
	st := seedStore(t,
		[]common.Entity{
			{ID: "x", Kind: common.KindCompany, Name: "X Co", RiskFlags: []string{}},
			{ID: "owner", Kind: common.KindCompany, Name: "Owner Co", RiskFlags: []string{common.FlagEntityList}},
		},
		[]common.TimelineEvent{{
			ID: "ev1", EntityID: "x", Date: base, Type: common.EventOwnershipChange,
			Title:         "Stake reduced",
			OldPercentage: pct(80), NewPercentage: pct(55), CounterpartyID: "owner",
		}},
	)

	patterns, err := NewAnalyzer(st).DetectPatterns(context.Background(), "x")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(patterns) != 0 {
		t.Fatalf("expected no patterns when stake stays above 50, got %+v", patterns)
	}
}

func TestDetectPatterns_UnknownEntity(t *testing.T) {
	st := seedStore(t, nil, nil)

	_, err := NewAnalyzer(st).DetectPatterns(context.Background(), "ghost")
	if !errors.Is(err, store.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}
