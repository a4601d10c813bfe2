package metrics

import (
	"context"
	"fmt"

	"contrib.go.opencensus.io/exporter/stackdriver"
	"github.com/plugin-index/plugin-index/internal/config"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

var (
	CounterSourcesFetched = stats.Int64("sources_fetched", "Number of plugin sources fetched", "1")
	CounterIndexChanges   = stats.Int64("index_changes", "Number of index entries per change kind", "1")

	TagStatus = tag.MustNewKey("status")
	TagStage  = tag.MustNewKey("stage")
	TagKind   = tag.MustNewKey("kind")
)

var views = []*view.View{
	{
		Name:        "sources_fetched",
		Measure:     CounterSourcesFetched,
		Description: "Number of plugin sources fetched",
		TagKeys:     []tag.Key{TagStatus, TagStage},
		Aggregation: view.Count(),
	},
	{
		Name:        "index_changes",
		Measure:     CounterIndexChanges,
		Description: "Number of index entries per change kind",
		TagKeys:     []tag.Key{TagKind},
		Aggregation: view.Count(),
	},
}

// Register is safe to call more than once.
func Register() error {
	return view.Register(views...)
}

// RecordFetch counts one processed source. An empty failedStage means success.
func RecordFetch(ctx context.Context, failedStage string) {
	status := StatusOK
	if failedStage != "" {
		status = StatusFailed
	}
	ctx, _ = tag.New(ctx, tag.Upsert(TagStatus, status), tag.Upsert(TagStage, failedStage))
	stats.Record(ctx, CounterSourcesFetched.M(1))
}

func RecordChange(ctx context.Context, kind string) {
	ctx, _ = tag.New(ctx, tag.Upsert(TagKind, kind))
	stats.Record(ctx, CounterIndexChanges.M(1))
}

type Summary struct {
	Fetched       int64
	Failed        int64
	FailedByStage map[string]int64
	Changes       map[string]int64
}

func (s *Summary) String() string {
	return fmt.Sprintf("fetched=%d failed=%d failed_by_stage=%v changes=%v", s.Fetched, s.Failed, s.FailedByStage, s.Changes)
}

func tagValue(tags []tag.Tag, k tag.Key) string {
	for _, t := range tags {
		if t.Key == k {
			return t.Value
		}
	}
	return ""
}

func count(row *view.Row) int64 {
	if cd, ok := row.Data.(*view.CountData); ok {
		return cd.Value
	}
	return 0
}

// CollectSummary reads back the counters recorded in this process.
func CollectSummary() (*Summary, error) {
	s := &Summary{
		FailedByStage: make(map[string]int64),
		Changes:       make(map[string]int64),
	}
	rows, err := view.RetrieveData("sources_fetched")
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		n := count(row)
		if tagValue(row.Tags, TagStatus) == StatusFailed {
			s.Failed += n
			s.FailedByStage[tagValue(row.Tags, TagStage)] += n
			continue
		}
		s.Fetched += n
	}
	rows, err = view.RetrieveData("index_changes")
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		s.Changes[tagValue(row.Tags, TagKind)] += count(row)
	}
	return s, nil
}

// NewExporter starts a stackdriver exporter. It returns nil when no project
// is configured.
func NewExporter(cfg *config.IndexerConfig) (*stackdriver.Exporter, error) {
	if cfg.StackdriverProjectID == "" {
		return nil, nil
	}
	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:    cfg.StackdriverProjectID,
		MetricPrefix: fmt.Sprintf("plugin-index/%s", cfg.Stage),
	})
	if err != nil {
		return nil, err
	}
	err = exporter.StartMetricsExporter()
	if err != nil {
		return nil, err
	}
	return exporter, nil
}
