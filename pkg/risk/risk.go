// Package risk merges an entity's own risk flags, flags inherited through
// capturing ownership chains, and the capture determination into one
// composite assessment.
package risk

import (
	"context"

	"github.com/cleargate-io/cleargate/pkg/capture"
	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/logger"
	"github.com/cleargate-io/cleargate/pkg/store"
)

// Level is the derived risk classification for screening output.
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
	LevelClear    Level = "clear"
	LevelUnknown  Level = "unknown"
)

const (
	// CapturedScoreFloor is the minimum composite score of a captured entity.
	// Capture raises the score to the floor but never lowers a curated base
	// score above it.
	CapturedScoreFloor = 70

	mediumScoreThreshold = 70
	lowScoreThreshold    = 40
)

// Flag is a risk flag on an assessment. Inherited flags come from the
// directly-listed seed of a capturing chain or a counted aggregate owner;
// SeedID names the entity they were inherited from.
type Flag struct {
	Name      string `json:"name"`
	Inherited bool   `json:"inherited,omitempty"`
	SeedID    string `json:"seed_id,omitempty"`
}

// Assessment is the composite risk record for one entity.
type Assessment struct {
	EntityID string          `json:"entity_id"`
	Score    int             `json:"score"`
	Level    Level           `json:"level"`
	Flags    []Flag          `json:"flags"`
	Capture  *capture.Result `json:"capture,omitempty"`
}

// FlagNames returns the flag names, own and inherited, in order.
func (a Assessment) FlagNames() []string {
	names := make([]string, 0, len(a.Flags))
	for _, f := range a.Flags {
		names = append(names, f.Name)
	}
	return names
}

// Aggregator builds assessments, reading seed entities through the graph
// store to union their flags into captured entities.
type Aggregator struct {
	store store.GraphReader
}

func NewAggregator(s store.GraphReader) *Aggregator {
	return &Aggregator{store: s}
}

// Assess combines the entity's flags, the flags of its capturing seeds, and
// the capture result. A failed seed lookup drops that seed's inherited flags
// rather than failing the assessment.
func (a *Aggregator) Assess(ctx context.Context, ent common.Entity, cap *capture.Result) Assessment {
	assessment := Assessment{
		EntityID: ent.ID,
		Capture:  cap,
	}

	seen := make(map[string]struct{})
	for _, name := range ent.RiskFlags {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		assessment.Flags = append(assessment.Flags, Flag{Name: name})
	}

	if cap != nil && cap.Captured {
		for _, seedID := range seedIDs(cap) {
			seed, err := a.store.GetEntity(ctx, seedID)
			if err != nil {
				logger.Warn("seed lookup failed, inherited flags dropped", "entity", ent.ID, "seed", seedID, "err", err)
				continue
			}
			for _, name := range seed.RiskFlags {
				if _, ok := seen[name]; ok {
					continue
				}
				seen[name] = struct{}{}
				assessment.Flags = append(assessment.Flags, Flag{
					Name:      name,
					Inherited: true,
					SeedID:    seedID,
				})
			}
		}
	}

	assessment.Score = compositeScore(ent, cap)
	assessment.Level = classify(ent, cap, assessment.Score)
	return assessment
}

// seedIDs collects the unique entities a captured entity inherits flags from:
// chain seeds plus counted aggregate owners.
func seedIDs(cap *capture.Result) []string {
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, c := range cap.Chains {
		add(c.SeedID)
	}
	if cap.Reason == capture.ReasonAggregate {
		for _, o := range cap.AggregateOwners {
			add(o.ID)
		}
	}
	return ids
}

func compositeScore(ent common.Entity, cap *capture.Result) int {
	score := 0
	if ent.RiskScore != nil {
		score = *ent.RiskScore
	}
	if cap != nil && cap.Captured && score < CapturedScoreFloor {
		score = CapturedScoreFloor
	}
	return score
}

func classify(ent common.Entity, cap *capture.Result, score int) Level {
	captured := cap != nil && cap.Captured

	switch {
	case ent.HasAnyFlag(common.TriggeringFlags...),
		captured && cap.Reason == capture.ReasonDirect:
		return LevelCritical
	case ent.HasAnyFlag(common.SignificantFlags...), captured:
		return LevelHigh
	case score >= mediumScoreThreshold:
		return LevelMedium
	case score >= lowScoreThreshold, len(ent.RiskFlags) > 0:
		return LevelLow
	default:
		return LevelClear
	}
}
