package indexer

import (
	"context"
	"fmt"

	"github.com/plugin-index/plugin-index/internal/batch"
	"github.com/plugin-index/plugin-index/internal/config"
	"github.com/plugin-index/plugin-index/internal/index"
	"github.com/plugin-index/plugin-index/internal/metrics"
	"github.com/plugin-index/plugin-index/internal/publish"
	"github.com/sirupsen/logrus"
)

// Indexer runs one complete index build.
type Indexer struct {
	log       *logrus.Logger
	config    *config.IndexerConfig
	fetcher   batch.Fetcher
	publisher *publish.Publisher
}

// New creates an Indexer. publisher may be nil to skip publishing.
func New(log *logrus.Logger, cfg *config.IndexerConfig, fetcher batch.Fetcher, publisher *publish.Publisher) *Indexer {
	return &Indexer{
		log:       log,
		config:    cfg,
		fetcher:   fetcher,
		publisher: publisher,
	}
}

func (ix *Indexer) logChanges(title string, changes []*index.Change) {
	ix.log.Infof("%d %s plugins:", len(changes), title)
	for i, c := range changes {
		ix.log.Infof("\t%d %s", i, c.Name())
	}
}

func (ix *Indexer) logReport(report *index.Report) {
	ix.logChanges("new", report.New)
	ix.logChanges("updated", report.Updated)
	for _, c := range report.Updated {
		if c.VersionRegressed() {
			ix.log.Warnf("%s: version went from %s to %s", c.Name(), c.Previous.Version(), c.Current.Version())
		}
	}
	for _, c := range report.Stale {
		ix.log.Warnf("%s: could not be fetched, keeping the previous entry", c.Name())
	}
	if len(report.Failed) > 0 {
		ix.log.Warnf("%d plugins could not be fetched and are not part of the index", len(report.Failed))
	}
}

func (ix *Indexer) logMetricsSummary() {
	if ix.config.DisableMetricsSummary {
		return
	}
	summary, err := metrics.CollectSummary()
	if err != nil {
		ix.log.Warnf("could not collect metrics: %v", err)
		return
	}
	ix.log.Infof("run summary: %s", summary)
}

// Run fetches every listed source, merges the result into the prior index
// and writes the artifacts. Individual sources failing is not an error.
func (ix *Indexer) Run(ctx context.Context) (*index.Report, error) {
	if err := metrics.Register(); err != nil {
		return nil, fmt.Errorf("could not register metrics views: %w", err)
	}

	sources, err := config.LoadListing(ix.config.ListingPath)
	if err != nil {
		return nil, err
	}
	sources, duplicates := config.DedupeSources(sources)
	for _, name := range duplicates {
		ix.log.Warnf("%s is listed more than once, using the last entry", name)
	}
	prior, err := index.Load(ix.config.IndexPath)
	if err != nil {
		return nil, err
	}

	ix.log.Infof("collecting plugin manifests for %d sources (concurrency=%d)...", len(sources), ix.config.Concurrency)
	results := batch.FetchAll(ctx, ix.log, ix.fetcher, sources, ix.config.Concurrency)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("index build aborted: %w", err)
	}

	merged, report := index.Merge(ctx, results, prior, ix.config.KeepStale)
	ix.logReport(report)

	ix.log.Infof("writing %s", ix.config.IndexPath)
	indexData, err := index.Write(ix.config.IndexPath, merged)
	if err != nil {
		return nil, err
	}
	artifacts := []publish.Artifact{
		{Name: "plugins.json", Data: indexData, ContentType: publish.ContentTypeJSON},
	}

	if ix.config.GenerateReadme {
		ix.log.Infof("writing %s", ix.config.ReadmePath)
		readmeData, err := index.WriteReadme(ix.config.ReadmePath, merged)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, publish.Artifact{Name: "README.md", Data: readmeData, ContentType: publish.ContentTypeMarkdown})
	}

	if ix.publisher != nil {
		if err := ix.publisher.Publish(ctx, artifacts...); err != nil {
			return nil, fmt.Errorf("could not publish index: %w", err)
		}
	}

	ix.logMetricsSummary()
	return report, nil
}
