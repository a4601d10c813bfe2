package index

import (
	"context"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/plugin-index/plugin-index/internal/batch"
	"github.com/plugin-index/plugin-index/internal/metrics"
	"github.com/plugin-index/plugin-index/pkg/registry"
)

type ChangeKind string

const (
	KindNew       ChangeKind = "new"
	KindUpdated   ChangeKind = "updated"
	KindUnchanged ChangeKind = "unchanged"
	KindStale     ChangeKind = "stale"
	KindFailed    ChangeKind = "failed"
)

// Change describes how one listing entry compares to the prior index.
// Previous is nil for new entries, Current is nil for failed ones.
type Change struct {
	Kind     ChangeKind
	Source   registry.Source
	Current  *registry.Record
	Previous *registry.Record
	Err      error
}

func (c *Change) Name() string {
	if c.Current != nil {
		if n := c.Current.FullName(); n != "" {
			return n
		}
	}
	return c.Source.Name
}

// VersionRegressed reports whether an updated entry declares a lower
// semantic version than the one it replaces.
func (c *Change) VersionRegressed() bool {
	if c.Current == nil || c.Previous == nil {
		return false
	}
	cur, err := semver.NewVersion(c.Current.Version())
	if err != nil {
		return false
	}
	prev, err := semver.NewVersion(c.Previous.Version())
	if err != nil {
		return false
	}
	return cur.LessThan(prev)
}

type Report struct {
	New       []*Change
	Updated   []*Change
	Unchanged []*Change
	Stale     []*Change
	Failed    []*Change
}

func (r *Report) add(c *Change) {
	switch c.Kind {
	case KindNew:
		r.New = append(r.New, c)
	case KindUpdated:
		r.Updated = append(r.Updated, c)
	case KindUnchanged:
		r.Unchanged = append(r.Unchanged, c)
	case KindStale:
		r.Stale = append(r.Stale, c)
	case KindFailed:
		r.Failed = append(r.Failed, c)
	}
}

// Changed reports whether the run produced new or updated entries.
func (r *Report) Changed() bool {
	return len(r.New) > 0 || len(r.Updated) > 0
}

func classify(fresh, prev *registry.Record) ChangeKind {
	if prev == nil {
		return KindNew
	}
	if fresh.LastUpdated > prev.LastUpdated {
		return KindUpdated
	}
	return KindUnchanged
}

func lowerFullNames(prior registry.Index) map[string]*registry.Record {
	ret := make(map[string]*registry.Record, len(prior))
	for name, r := range prior.ByFullName() {
		ret[strings.ToLower(name)] = r
	}
	return ret
}

// Merge builds the new index from the fetch results in listing order and
// classifies every entry against the prior index by upstream full name.
// Failed sources are left out unless keepStale is set and a prior record
// exists, in which case that record is kept.
func Merge(ctx context.Context, results []*batch.Result, prior registry.Index, keepStale bool) (registry.Index, *Report) {
	priorByName := prior.ByFullName()
	priorByLowerName := lowerFullNames(prior)

	merged := make(registry.Index, 0, len(results))
	report := &Report{}
	for _, res := range results {
		var c *Change
		if res.Failed() {
			prev := priorByLowerName[strings.ToLower(res.Source.Name)]
			c = &Change{Kind: KindFailed, Source: res.Source, Previous: prev, Err: res.Err}
			if keepStale && prev != nil {
				c.Kind = KindStale
				c.Current = prev
				merged = append(merged, prev)
			}
		} else {
			prev := priorByName[res.Record.FullName()]
			c = &Change{
				Kind:     classify(res.Record, prev),
				Source:   res.Source,
				Current:  res.Record,
				Previous: prev,
			}
			merged = append(merged, res.Record)
		}
		report.add(c)
		metrics.RecordChange(ctx, string(c.Kind))
	}
	return merged, report
}
