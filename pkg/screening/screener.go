// Package screening resolves free-text names to entities and runs the
// capture resolver and risk aggregator across a batch of inputs, bounded by a
// worker limit. Every input yields exactly one result; one failing input
// never aborts the batch.
package screening

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/cleargate-io/cleargate/pkg/capture"
	"github.com/cleargate-io/cleargate/pkg/risk"
	"github.com/cleargate-io/cleargate/pkg/store"

	"golang.org/x/sync/errgroup"
)

// Status is the per-input outcome, independent of the batch.
type Status string

const (
	StatusOK        Status = "ok"
	StatusUnknown   Status = "unknown"
	StatusAmbiguous Status = "ambiguous"
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"
)

// Candidate is one of several equally-scored matches for an ambiguous input.
type Candidate struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Result is the screening outcome for one input name.
type Result struct {
	InputName       string           `json:"input_name"`
	Status          Status           `json:"status"`
	MatchedEntityID string           `json:"matched_entity_id,omitempty"`
	MatchedName     string           `json:"matched_name,omitempty"`
	MatchScore      float64          `json:"match_score"`
	RiskLevel       risk.Level       `json:"risk_level"`
	Flags           []string         `json:"flags"`
	Captured        bool             `json:"captured"`
	Details         string           `json:"details,omitempty"`
	Candidates      []Candidate      `json:"candidates,omitempty"`
	Assessment      *risk.Assessment `json:"assessment,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// Summary aggregates a batch for the caller's dashboard.
type Summary struct {
	ByRiskLevel     map[risk.Level]int `json:"by_risk_level"`
	RequiresAction  int                `json:"requires_action"`
	UnknownEntities int                `json:"unknown_entities"`
}

// Report is the full batch output, one result per input in input order.
type Report struct {
	ScreenedCount int      `json:"screened_count"`
	HighRiskCount int      `json:"high_risk_count"`
	Results       []Result `json:"results"`
	Summary       Summary  `json:"summary"`
}

const searchCandidates = 5

// Screener fans screening work out over a bounded worker pool.
type Screener struct {
	store         store.GraphReader
	resolver      *capture.Resolver
	aggregator    *risk.Aggregator
	maxConcurrent int
}

// Option configures a Screener.
type Option func(*Screener)

// WithConcurrency bounds the number of inputs screened in parallel.
func WithConcurrency(n int) Option {
	return func(s *Screener) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithResolver replaces the default capture resolver, e.g. to change the hop
// bound or the clock.
func WithResolver(r *capture.Resolver) Option {
	return func(s *Screener) {
		s.resolver = r
	}
}

func NewScreener(st store.GraphReader, opts ...Option) *Screener {
	s := &Screener{
		store:         st,
		resolver:      capture.NewResolver(st),
		aggregator:    risk.NewAggregator(st),
		maxConcurrent: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Screen screens the given names and returns one result per input,
// order-preserving. Concurrency is bounded; a caller-supplied deadline on ctx
// turns still-pending inputs into timeout results instead of blocking the
// batch. Each capture resolution runs with its own memo, so items never share
// traversal state.
func (s *Screener) Screen(ctx context.Context, names []string) *Report {
	results := make([]Result, len(names))

	eg := errgroup.Group{}
	eg.SetLimit(s.maxConcurrent)

	for i, name := range names {
		eg.Go(func() error {
			results[i] = s.screenOne(ctx, name)
			return nil
		})
	}
	// Workers never return errors; failures live inside each result.
	_ = eg.Wait()

	return buildReport(results)
}

func (s *Screener) screenOne(ctx context.Context, name string) Result {
	res := Result{
		InputName: name,
		RiskLevel: risk.LevelUnknown,
		Flags:     []string{},
	}

	if ctx.Err() != nil {
		res.Status = StatusTimeout
		res.Details = "Screening deadline exceeded before this input was processed."
		return res
	}

	matches, err := s.store.Search(ctx, name, "", searchCandidates)
	if err != nil {
		return failedResult(res, err)
	}
	if len(matches) == 0 {
		res.Status = StatusUnknown
		res.Details = "UNKNOWN - Entity not found in database. Manual review required."
		return res
	}

	if exact := exactMatches(matches); len(exact) > 1 {
		res.Status = StatusAmbiguous
		res.Details = fmt.Sprintf("AMBIGUOUS - %d entities match %q exactly. Manual disambiguation required.", len(exact), name)
		for _, m := range exact {
			res.Candidates = append(res.Candidates, Candidate{
				ID:    m.Entity.ID,
				Name:  m.Entity.Name,
				Score: m.Score,
			})
		}
		return res
	}

	best := matches[0]
	res.MatchedEntityID = best.Entity.ID
	res.MatchedName = best.Entity.Name
	res.MatchScore = best.Score

	capRes, err := s.resolver.Resolve(ctx, best.Entity.ID)
	if err != nil {
		return failedResult(res, err)
	}

	assessment := s.aggregator.Assess(ctx, best.Entity, capRes)

	res.Status = StatusOK
	res.RiskLevel = assessment.Level
	res.Flags = assessment.FlagNames()
	res.Captured = capRes.Captured
	res.Assessment = &assessment
	res.Details = details(assessment.Level, capRes)
	return res
}

func failedResult(res Result, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		res.Status = StatusTimeout
		res.Details = "Screening deadline exceeded while processing this input."
		return res
	}
	res.Status = StatusError
	res.Error = err.Error()
	res.Details = "ERROR - Screening failed for this input. Retry or review manually."
	return res
}

func exactMatches(matches []store.SearchMatch) []store.SearchMatch {
	var exact []store.SearchMatch
	for _, m := range matches {
		if m.Score >= 1.0 {
			exact = append(exact, m)
		}
	}
	return exact
}

func details(level risk.Level, cap *capture.Result) string {
	switch {
	case level == risk.LevelCritical:
		return "BLOCKED - Entity is on a restricted-party list. All transactions prohibited."
	case level == risk.LevelHigh && cap != nil && cap.Captured:
		return "HIGH RISK - Entity captured by the 50% rule through ownership by listed parties."
	case level == risk.LevelHigh:
		return "HIGH RISK - Entity carries military-industrial designations. Investment restrictions apply."
	case level == risk.LevelMedium:
		return "ELEVATED RISK - Enhanced due diligence recommended."
	case level == risk.LevelLow:
		return "LOW RISK - Standard due diligence recommended."
	default:
		return "CLEAR - No significant risk indicators found."
	}
}

func buildReport(results []Result) *Report {
	byLevel := map[risk.Level]int{
		risk.LevelCritical: 0,
		risk.LevelHigh:     0,
		risk.LevelMedium:   0,
		risk.LevelLow:      0,
		risk.LevelClear:    0,
		risk.LevelUnknown:  0,
	}
	for _, r := range results {
		byLevel[r.RiskLevel]++
	}

	highRisk := byLevel[risk.LevelCritical] + byLevel[risk.LevelHigh]
	return &Report{
		ScreenedCount: len(results),
		HighRiskCount: highRisk,
		Results:       results,
		Summary: Summary{
			ByRiskLevel:     byLevel,
			RequiresAction:  highRisk,
			UnknownEntities: byLevel[risk.LevelUnknown],
		},
	}
}

// NormalizeNames trims inputs and drops empties while preserving order; the
// HTTP layer applies it before screening.
func NormalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
