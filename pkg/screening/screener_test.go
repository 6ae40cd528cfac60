package screening

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/risk"
	"github.com/cleargate-io/cleargate/pkg/store/memory"
)

func pct(p float64) *float64 { return &p }

func seedGraph(t *testing.T) *memory.Store {
	t.Helper()
	st := memory.NewStore()
	ctx := context.Background()

	entities := []common.Entity{
		{ID: "huawei", Kind: common.KindCompany, Name: "Huawei", RiskFlags: []string{common.FlagEntityList}},
		{ID: "hisilicon", Kind: common.KindCompany, Name: "HiSilicon", RiskFlags: []string{}},
		{ID: "avic", Kind: common.KindCompany, Name: "AVIC", RiskFlags: []string{common.FlagNSCMIC}},
		{ID: "acme", Kind: common.KindCompany, Name: "Acme Trading", RiskFlags: []string{}},
	}
	if err := st.SaveEntities(ctx, entities); err != nil {
		t.Fatalf("failed to save entities: %v", err)
	}

	edges := []common.Edge{
		{ID: "e1", FromID: "huawei", ToID: "hisilicon", Type: common.EdgeOwns, Percentage: pct(100)},
	}
	if err := st.SaveEdges(ctx, edges); err != nil {
		t.Fatalf("failed to save edges: %v", err)
	}
	return st
}

func TestScreen_BatchIsolation(t *testing.T) {
	st := seedGraph(t)
	screener := NewScreener(st)

	names := []string{"Huawei", "HiSilicon", "AVIC", "Acme Trading", "Nonexistent Widgets"}
	report := screener.Screen(context.Background(), names)

	if report.ScreenedCount != 5 {
		t.Fatalf("expected 5 screened, got %d", report.ScreenedCount)
	}
	if len(report.Results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(report.Results))
	}

	// Order preserved, one result per input.
	for i, name := range names {
		if report.Results[i].InputName != name {
			t.Fatalf("result %d: expected %q, got %q", i, name, report.Results[i].InputName)
		}
	}

	byName := make(map[string]Result)
	for _, r := range report.Results {
		byName[r.InputName] = r
	}

	if got := byName["Huawei"]; got.Status != StatusOK || got.RiskLevel != risk.LevelCritical {
		t.Fatalf("Huawei: expected ok/critical, got %s/%s", got.Status, got.RiskLevel)
	}
	if got := byName["HiSilicon"]; got.Status != StatusOK || got.RiskLevel != risk.LevelHigh || !got.Captured {
		t.Fatalf("HiSilicon: expected ok/high/captured, got %s/%s/%v", got.Status, got.RiskLevel, got.Captured)
	}
	if got := byName["AVIC"]; got.RiskLevel != risk.LevelHigh {
		t.Fatalf("AVIC: expected high, got %s", got.RiskLevel)
	}
	if got := byName["Acme Trading"]; got.RiskLevel != risk.LevelClear {
		t.Fatalf("Acme: expected clear, got %s", got.RiskLevel)
	}
	if got := byName["Nonexistent Widgets"]; got.Status != StatusUnknown {
		t.Fatalf("unknown input: expected unknown status, got %s", got.Status)
	}

	if report.Summary.UnknownEntities != 1 {
		t.Fatalf("expected 1 unknown, got %d", report.Summary.UnknownEntities)
	}
	if report.HighRiskCount != 3 {
		t.Fatalf("expected 3 high risk (critical+high), got %d", report.HighRiskCount)
	}
	if report.Summary.RequiresAction != report.HighRiskCount {
		t.Fatalf("requires_action should equal high risk count")
	}
}

func TestScreen_SummaryCoversAllLevels(t *testing.T) {
	st := seedGraph(t)
	report := NewScreener(st).Screen(context.Background(), []string{"Acme Trading"})

	for _, level := range []risk.Level{
		risk.LevelCritical, risk.LevelHigh, risk.LevelMedium,
		risk.LevelLow, risk.LevelClear, risk.LevelUnknown,
	} {
		if _, ok := report.Summary.ByRiskLevel[level]; !ok {
			t.Fatalf("summary missing level %s", level)
		}
	}
	if report.Summary.ByRiskLevel[risk.LevelClear] != 1 {
		t.Fatalf("expected 1 clear, got %d", report.Summary.ByRiskLevel[risk.LevelClear])
	}
}

func TestScreen_ExpiredDeadlineYieldsTimeouts(t *testing.T) {
	st := seedGraph(t)
	screener := NewScreener(st)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	report := screener.Screen(ctx, []string{"Huawei", "Acme Trading"})
	for _, r := range report.Results {
		if r.Status != StatusTimeout {
			t.Fatalf("expected timeout for %q, got %s", r.InputName, r.Status)
		}
	}
}

func TestScreen_AmbiguousExactMatches(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()
	err := st.SaveEntities(ctx, []common.Entity{
		{ID: "a1", Kind: common.KindCompany, Name: "Apex Industries", RiskFlags: []string{}},
		{ID: "a2", Kind: common.KindCompany, Name: "Apex Industries", RiskFlags: []string{common.FlagEntityList}},
	})
	if err != nil {
		t.Fatalf("failed to save entities: %v", err)
	}

	report := NewScreener(st).Screen(ctx, []string{"Apex Industries"})
	got := report.Results[0]
	if got.Status != StatusAmbiguous {
		t.Fatalf("expected ambiguous, got %s", got.Status)
	}
	if len(got.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got.Candidates))
	}
	if got.RiskLevel != risk.LevelUnknown {
		t.Fatalf("ambiguous result should stay unknown, got %s", got.RiskLevel)
	}
}

func TestScreen_PartialMatchResolves(t *testing.T) {
	st := seedGraph(t)
	report := NewScreener(st).Screen(context.Background(), []string{"huawei"})

	got := report.Results[0]
	if got.Status != StatusOK {
		t.Fatalf("expected ok, got %s", got.Status)
	}
	if got.MatchedEntityID != "huawei" {
		t.Fatalf("expected match huawei, got %s", got.MatchedEntityID)
	}
	if got.MatchScore != 1.0 {
		t.Fatalf("case-insensitive exact match should score 1.0, got %f", got.MatchScore)
	}
}

func TestScreen_BoundedConcurrency(t *testing.T) {
	st := seedGraph(t)
	screener := NewScreener(st, WithConcurrency(2))

	names := make([]string, 40)
	for i := range names {
		names[i] = fmt.Sprintf("input %d", i)
	}
	report := screener.Screen(context.Background(), names)
	if report.ScreenedCount != 40 {
		t.Fatalf("expected 40 screened, got %d", report.ScreenedCount)
	}
}

func TestNormalizeNames(t *testing.T) {
	got := NormalizeNames([]string{"  Huawei ", "", "   ", "Acme"})
	want := []string{"Huawei", "Acme"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
