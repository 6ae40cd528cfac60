// Package capture determines whether an entity is subject to restricted-party
// restrictions through ownership: directly listed, captured through a single
// ownership chain where every hop is >=50%, or captured through the aggregate
// ownership of multiple listed parties.
package capture

import (
	"context"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/logger"
	"github.com/cleargate-io/cleargate/pkg/store"
)

// Reason classifies how an entity came to be captured.
type Reason string

const (
	ReasonDirect    Reason = "direct"
	ReasonChain     Reason = "chain"
	ReasonAggregate Reason = "aggregate"
	ReasonNone      Reason = "none"
)

const (
	// DefaultMaxDepth bounds the upward traversal so it terminates regardless
	// of cycles in the ownership graph.
	DefaultMaxDepth = 10

	// CaptureThreshold is the ownership percentage at which restrictions
	// propagate to an owned entity.
	CaptureThreshold = 50.0

	// thresholdEpsilon absorbs floating-point noise so a stored 49.999999999
	// that is meant to be 50 is not excluded.
	thresholdEpsilon = 1e-6
)

// MeetsThreshold reports whether pct counts as >=50% under the numeric policy.
func MeetsThreshold(pct float64) bool {
	return pct >= CaptureThreshold-thresholdEpsilon
}

// ChainNode is one entity on an ownership chain.
type ChainNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Chain is an ownership path from a directly-listed seed down to the target.
// Nodes runs seed-first; Percentages[i] is the ownership percentage on the
// edge from Nodes[i] to Nodes[i+1]. EffectivePercentage is the multiplicative
// composition of the per-hop percentages and may fall below 50 even though
// every individual hop is >=50.
type Chain struct {
	SeedID              string      `json:"seed_id"`
	SeedName            string      `json:"seed_name"`
	Nodes               []ChainNode `json:"nodes"`
	Percentages         []float64   `json:"percentages"`
	EffectivePercentage float64     `json:"effective_percentage"`
}

// AggregateOwner is an immediate owner whose stake counted toward the
// aggregate-ownership sum.
type AggregateOwner struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
}

// Result is the capture determination for one entity. It is derived state,
// recomputed from current edges on every request and never persisted as
// ground truth.
type Result struct {
	EntityID            string           `json:"entity_id"`
	Captured            bool             `json:"captured"`
	Reason              Reason           `json:"reason"`
	Chains              []Chain          `json:"chains,omitempty"`
	AggregatePercentage float64          `json:"aggregate_percentage"`
	AggregateOwners     []AggregateOwner `json:"aggregate_owners,omitempty"`

	// DepthExceeded marks a conservative answer: some ownership path was cut
	// off at the hop bound, so additional capture may exist beyond it.
	DepthExceeded bool `json:"depth_exceeded,omitempty"`
}

// Resolver computes capture results against a graph snapshot.
type Resolver struct {
	store    store.GraphReader
	maxDepth int
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth overrides the traversal hop bound.
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithClock overrides the time source used for edge and sanction validity.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

func NewResolver(s store.GraphReader, opts ...Option) *Resolver {
	r := &Resolver{
		store:    s,
		maxDepth: DefaultMaxDepth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve computes the capture result for one entity. Each call is one
// traversal run with its own memo, so shared ancestors in diamond-shaped
// ownership graphs are resolved once and concurrent calls never share state.
func (r *Resolver) Resolve(ctx context.Context, entityID string) (*Result, error) {
	rn := &run{
		resolver: r,
		now:      r.now(),
		memo:     make(map[string]*Result),
		onPath:   make(map[string]struct{}),
	}

	res, _, err := rn.resolve(ctx, entityID, 0)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// run holds the state of one top-level resolution: the memo of finished
// sub-results and the set of entities on the current traversal path.
type run struct {
	resolver *Resolver
	now      time.Time
	memo     map[string]*Result
	onPath   map[string]struct{}
}

// resolve computes the result for id at the given hop depth. The second
// return value reports whether the result is complete, i.e. not truncated by
// the hop bound, a cycle skip, or a failed store read anywhere in its
// subtree. Only complete results are memoized, which keeps the outcome
// independent of the order in which shared ancestors are first visited.
func (rn *run) resolve(ctx context.Context, id string, depth int) (*Result, bool, error) {
	if res, ok := rn.memo[id]; ok {
		return res, true, nil
	}

	ent, err := rn.resolver.store.GetEntity(ctx, id)
	if err != nil {
		return nil, false, err
	}

	res := &Result{EntityID: id, Reason: ReasonNone}

	if ent.DirectlyListed(rn.now) {
		res.Captured = true
		res.Reason = ReasonDirect
		rn.memo[id] = res
		return res, true, nil
	}

	if depth >= rn.resolver.maxDepth {
		res.DepthExceeded = true
		return res, false, nil
	}

	owners, err := rn.resolver.store.Neighbors(
		ctx, id,
		[]common.EdgeType{common.EdgeOwns, common.EdgeControls},
		store.Incoming,
	)
	if err != nil {
		return nil, false, err
	}

	// Deterministic traversal order regardless of store iteration order.
	sort.Slice(owners, func(i, j int) bool {
		return owners[i].Entity.ID < owners[j].Entity.ID
	})

	complete := true
	var chains []Chain
	var aggTotal float64
	var aggOwners []AggregateOwner

	for _, nb := range owners {
		if !nb.Edge.ActiveAt(rn.now) {
			continue
		}
		pct := nb.Edge.CapturePercentage()
		if pct <= 0 {
			continue
		}

		ownerID := nb.Entity.ID
		if _, on := rn.onPath[ownerID]; on {
			// Ownership cycle back onto the current path; skipping it is
			// sound because any capture through the cycle is already being
			// established on the outer path.
			complete = false
			continue
		}

		rn.onPath[id] = struct{}{}
		sub, subComplete, err := rn.resolve(ctx, ownerID, depth+1)
		delete(rn.onPath, id)
		if err != nil {
			// A failed read on one path degrades to "no capture via this
			// path" so a partial graph under-approximates instead of failing
			// the whole determination.
			logger.Warn("owner lookup failed, path dropped", "entity", id, "owner", ownerID, "err", err)
			complete = false
			continue
		}
		if !subComplete {
			complete = false
		}
		if sub.DepthExceeded {
			res.DepthExceeded = true
		}

		if MeetsThreshold(pct) {
			if sub.Reason == ReasonDirect {
				chains = append(chains, Chain{
					SeedID:   ownerID,
					SeedName: nb.Entity.Name,
					Nodes: []ChainNode{
						{ID: ownerID, Name: nb.Entity.Name},
						{ID: id, Name: ent.Name},
					},
					Percentages:         []float64{pct},
					EffectivePercentage: pct,
				})
			} else {
				for _, c := range sub.Chains {
					chains = append(chains, Chain{
						SeedID:              c.SeedID,
						SeedName:            c.SeedName,
						Nodes:               append(slices.Clone(c.Nodes), ChainNode{ID: id, Name: ent.Name}),
						Percentages:         append(slices.Clone(c.Percentages), pct),
						EffectivePercentage: c.EffectivePercentage * pct / 100,
					})
				}
			}
		}

		if sub.Captured {
			aggTotal += pct
			aggOwners = append(aggOwners, AggregateOwner{
				ID:         ownerID,
				Name:       nb.Entity.Name,
				Percentage: pct,
			})
		}
	}

	sort.Slice(chains, func(i, j int) bool {
		if chains[i].SeedID != chains[j].SeedID {
			return chains[i].SeedID < chains[j].SeedID
		}
		return chains[i].EffectivePercentage > chains[j].EffectivePercentage
	})

	res.Chains = chains
	res.AggregatePercentage = roundPercentage(aggTotal)
	res.AggregateOwners = aggOwners

	switch {
	case len(chains) > 0:
		res.Captured = true
		res.Reason = ReasonChain
	case MeetsThreshold(aggTotal):
		res.Captured = true
		res.Reason = ReasonAggregate
	}

	if complete {
		rn.memo[id] = res
	}
	return res, complete, nil
}

// roundPercentage trims float accumulation noise for display; threshold
// comparisons happen on the raw sum.
func roundPercentage(pct float64) float64 {
	return math.Round(pct*1e6) / 1e6
}
