package risk

import (
	"context"
	"reflect"
	"testing"

	"github.com/cleargate-io/cleargate/pkg/capture"
	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/store/memory"
)

func intp(n int) *int { return &n }

func entity(id string, score *int, flags ...string) common.Entity {
	if flags == nil {
		flags = []string{}
	}
	return common.Entity{
		ID:        id,
		Kind:      common.KindCompany,
		Name:      id,
		RiskFlags: flags,
		RiskScore: score,
	}
}

func seedStore(t *testing.T, entities ...common.Entity) *memory.Store {
	t.Helper()
	st := memory.NewStore()
	if err := st.SaveEntities(context.Background(), entities); err != nil {
		t.Fatalf("failed to save entities: %v", err)
	}
	return st
}

func TestAssess_TriggeringFlagIsCritical(t *testing.T) {
	st := seedStore(t)
	ent := entity("x", nil, common.FlagEntityList)

	got := NewAggregator(st).Assess(context.Background(), ent, &capture.Result{
		EntityID: "x",
		Captured: true,
		Reason:   capture.ReasonDirect,
	})
	if got.Level != LevelCritical {
		t.Fatalf("expected critical, got %s", got.Level)
	}
}

func TestAssess_SignificantFlagIsHigh(t *testing.T) {
	st := seedStore(t)
	ent := entity("x", nil, common.FlagNSCMIC)

	got := NewAggregator(st).Assess(context.Background(), ent, &capture.Result{EntityID: "x", Reason: capture.ReasonNone})
	if got.Level != LevelHigh {
		t.Fatalf("expected high, got %s", got.Level)
	}
}

func TestAssess_CapturedFloorsScore(t *testing.T) {
	st := seedStore(t, entity("seed", nil, common.FlagEntityList))
	ent := entity("x", intp(20))

	cap := &capture.Result{
		EntityID: "x",
		Captured: true,
		Reason:   capture.ReasonChain,
		Chains: []capture.Chain{{
			SeedID:              "seed",
			SeedName:            "seed",
			EffectivePercentage: 60,
		}},
	}

	got := NewAggregator(st).Assess(context.Background(), ent, cap)
	if got.Score != CapturedScoreFloor {
		t.Fatalf("expected score %d, got %d", CapturedScoreFloor, got.Score)
	}
	if got.Level != LevelHigh {
		t.Fatalf("expected high, got %s", got.Level)
	}
}

func TestAssess_CapturedKeepsHigherScore(t *testing.T) {
	st := seedStore(t, entity("seed", nil, common.FlagEntityList))
	ent := entity("x", intp(85))

	cap := &capture.Result{
		EntityID: "x",
		Captured: true,
		Reason:   capture.ReasonChain,
		Chains:   []capture.Chain{{SeedID: "seed", SeedName: "seed"}},
	}

	got := NewAggregator(st).Assess(context.Background(), ent, cap)
	if got.Score != 85 {
		t.Fatalf("expected score 85, got %d", got.Score)
	}
}

func TestAssess_InheritsSeedFlags(t *testing.T) {
	st := seedStore(t, entity("seed", nil, common.FlagEntityList, common.FlagMilitaryCivilFusion))
	ent := entity("x", nil, common.FlagCentralSOE)

	cap := &capture.Result{
		EntityID: "x",
		Captured: true,
		Reason:   capture.ReasonChain,
		Chains:   []capture.Chain{{SeedID: "seed", SeedName: "seed"}},
	}

	got := NewAggregator(st).Assess(context.Background(), ent, cap)

	want := []Flag{
		{Name: common.FlagCentralSOE},
		{Name: common.FlagEntityList, Inherited: true, SeedID: "seed"},
		{Name: common.FlagMilitaryCivilFusion, Inherited: true, SeedID: "seed"},
	}
	if !reflect.DeepEqual(got.Flags, want) {
		t.Fatalf("unexpected flags: %+v", got.Flags)
	}
}

func TestAssess_AggregateOwnersContributeFlags(t *testing.T) {
	st := seedStore(t,
		entity("a", nil, common.FlagEntityList),
		entity("b", nil, common.FlagSDN),
	)
	ent := entity("x", nil)

	cap := &capture.Result{
		EntityID:            "x",
		Captured:            true,
		Reason:              capture.ReasonAggregate,
		AggregatePercentage: 55,
		AggregateOwners: []capture.AggregateOwner{
			{ID: "a", Name: "a", Percentage: 30},
			{ID: "b", Name: "b", Percentage: 25},
		},
	}

	got := NewAggregator(st).Assess(context.Background(), ent, cap)

	names := got.FlagNames()
	want := []string{common.FlagEntityList, common.FlagSDN}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("expected flags %v, got %v", want, names)
	}
	if got.Level != LevelHigh {
		t.Fatalf("expected high, got %s", got.Level)
	}
}

func TestAssess_MissingSeedDropsInheritedFlags(t *testing.T) {
	st := seedStore(t)
	ent := entity("x", nil)

	cap := &capture.Result{
		EntityID: "x",
		Captured: true,
		Reason:   capture.ReasonChain,
		Chains:   []capture.Chain{{SeedID: "gone", SeedName: "gone"}},
	}

	got := NewAggregator(st).Assess(context.Background(), ent, cap)
	if len(got.Flags) != 0 {
		t.Fatalf("expected no flags, got %+v", got.Flags)
	}
	// Capture still drives the level even when the seed read fails.
	if got.Level != LevelHigh {
		t.Fatalf("expected high, got %s", got.Level)
	}
}

func TestAssess_ScoreClassification(t *testing.T) {
	st := seedStore(t)

	cases := []struct {
		name  string
		score *int
		flags []string
		want  Level
	}{
		{"high score is medium", intp(75), nil, LevelMedium},
		{"mid score is low", intp(45), nil, LevelLow},
		{"flag only is low", nil, []string{common.FlagXinjiangUyghur}, LevelLow},
		{"nothing is clear", nil, nil, LevelClear},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ent := entity("x", tc.score, tc.flags...)
			got := NewAggregator(st).Assess(context.Background(), ent, &capture.Result{EntityID: "x", Reason: capture.ReasonNone})
			if got.Level != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.Level)
			}
		})
	}
}
