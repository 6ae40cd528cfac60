// Package timeline inspects an entity's event history for temporal patterns
// that suggest sanctions evasion. Patterns are advisory; they never feed back
// into capture results, which are always computed from current-state edges.
package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cleargate-io/cleargate/pkg/capture"
	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/logger"
	"github.com/cleargate-io/cleargate/pkg/store"
)

// PatternType identifies a detector.
type PatternType string

const (
	PatternRenameNearListing PatternType = "rename_near_listing"
	PatternThresholdEvasion  PatternType = "threshold_evasion"
)

// Severity grades a detected pattern.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Pattern is one detected temporal pattern with the events that produced it.
type Pattern struct {
	Type            PatternType `json:"type"`
	Severity        Severity    `json:"severity"`
	Description     string      `json:"description"`
	RelatedEventIDs []string    `json:"related_event_ids,omitempty"`
}

// DefaultWindow is the proximity window within which a rename and a listing
// are considered related.
const DefaultWindow = 180 * 24 * time.Hour

// Analyzer runs the pattern detectors against the event store.
type Analyzer struct {
	store  store.GraphReader
	window time.Duration
	now    func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWindow overrides the proximity window.
func WithWindow(window time.Duration) Option {
	return func(a *Analyzer) {
		if window > 0 {
			a.window = window
		}
	}
}

// WithClock overrides the time source used for listing checks.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

func NewAnalyzer(s store.GraphReader, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:  s,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DetectPatterns reads the entity's ordered events plus its sanction entries
// and returns every detected pattern. Unknown entity ids yield
// store.ErrEntityNotFound.
func (a *Analyzer) DetectPatterns(ctx context.Context, entityID string) ([]Pattern, error) {
	ent, err := a.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	events, err := a.store.Events(ctx, entityID)
	if err != nil {
		return nil, err
	}

	patterns := a.detectRenameNearListing(ent, events)
	patterns = append(patterns, a.detectThresholdEvasion(ctx, ent, events)...)
	return patterns, nil
}

// listing is a sanctions-listing date, from a timeline event or a dated
// sanction entry.
type listing struct {
	date    time.Time
	eventID string
}

// listingDates merges listing events with dated sanction entries, one listing
// per calendar day so an event and its matching entry do not double-report.
func listingDates(ent common.Entity, events []common.TimelineEvent) []listing {
	byDay := make(map[string]listing)
	for _, ev := range events {
		if ev.Type != common.EventSanctionsListing {
			continue
		}
		byDay[dayKey(ev.Date)] = listing{date: ev.Date, eventID: ev.ID}
	}
	for _, s := range ent.Sanctions {
		if s.Listed == nil || !s.Triggering() {
			continue
		}
		key := dayKey(*s.Listed)
		if _, ok := byDay[key]; !ok {
			byDay[key] = listing{date: *s.Listed}
		}
	}

	listings := make([]listing, 0, len(byDay))
	for _, l := range byDay {
		listings = append(listings, l)
	}
	return listings
}

func (a *Analyzer) detectRenameNearListing(ent common.Entity, events []common.TimelineEvent) []Pattern {
	listings := listingDates(ent, events)
	if len(listings) == 0 {
		return nil
	}

	var patterns []Pattern
	for _, ev := range events {
		if ev.Type != common.EventNameChange {
			continue
		}
		for _, l := range listings {
			gap := ev.Date.Sub(l.date)
			if gap < 0 {
				gap = -gap
			}
			if gap > a.window {
				continue
			}

			related := []string{ev.ID}
			if l.eventID != "" {
				related = append(related, l.eventID)
			}
			patterns = append(patterns, Pattern{
				Type:     PatternRenameNearListing,
				Severity: SeverityHigh,
				Description: fmt.Sprintf(
					"Name change on %s within %d days of sanctions listing on %s.",
					ev.Date.Format("2006-01-02"),
					int(gap.Hours()/24),
					l.date.Format("2006-01-02"),
				),
				RelatedEventIDs: related,
			})
		}
	}
	return patterns
}

func (a *Analyzer) detectThresholdEvasion(ctx context.Context, ent common.Entity, events []common.TimelineEvent) []Pattern {
	now := a.now()

	var patterns []Pattern
	for _, ev := range events {
		if ev.Type != common.EventOwnershipChange {
			continue
		}
		if ev.OldPercentage == nil || ev.NewPercentage == nil || ev.CounterpartyID == "" {
			continue
		}
		if !capture.MeetsThreshold(*ev.OldPercentage) || capture.MeetsThreshold(*ev.NewPercentage) {
			continue
		}

		owner, err := a.store.GetEntity(ctx, ev.CounterpartyID)
		if err != nil {
			logger.Warn("counterparty lookup failed, evasion check skipped", "entity", ent.ID, "counterparty", ev.CounterpartyID, "err", err)
			continue
		}
		if !owner.DirectlyListed(now) {
			continue
		}

		patterns = append(patterns, Pattern{
			Type:     PatternThresholdEvasion,
			Severity: SeverityHigh,
			Description: fmt.Sprintf(
				"Listed owner %s reduced its stake from %.1f%% to %.1f%% on %s, dropping below the 50%% capture threshold.",
				owner.Name,
				*ev.OldPercentage,
				*ev.NewPercentage,
				ev.Date.Format("2006-01-02"),
			),
			RelatedEventIDs: []string{ev.ID},
		})
	}
	return patterns
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
