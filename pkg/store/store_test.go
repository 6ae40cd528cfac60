package store

import (
	"testing"

	"github.com/cleargate-io/cleargate/pkg/common"
)

func intp(n int) *int { return &n }

func TestMatchScore(t *testing.T) {
	ent := common.Entity{Name: "Huawei Technologies", NameLocal: "华为"}

	if got := MatchScore(ent, "huawei technologies"); got != 1.0 {
		t.Fatalf("case-insensitive exact match should score 1.0, got %f", got)
	}
	if got := MatchScore(ent, "华为"); got != 1.0 {
		t.Fatalf("secondary-script exact match should score 1.0, got %f", got)
	}
	if got := MatchScore(ent, "huawei"); got != 0.8 {
		t.Fatalf("partial match should score 0.8, got %f", got)
	}
}

func TestSortMatches(t *testing.T) {
	matches := []SearchMatch{
		{Entity: common.Entity{ID: "c", Name: "Zeta", RiskScore: intp(10)}, Score: 0.8},
		{Entity: common.Entity{ID: "a", Name: "Alpha"}, Score: 1.0},
		{Entity: common.Entity{ID: "b", Name: "Beta", RiskScore: intp(90)}, Score: 0.8},
		{Entity: common.Entity{ID: "d", Name: "Delta", RiskScore: intp(10)}, Score: 0.8},
	}

	SortMatches(matches)

	want := []string{"a", "b", "d", "c"}
	for i, id := range want {
		if matches[i].Entity.ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, matches[i].Entity.ID)
		}
	}
}
