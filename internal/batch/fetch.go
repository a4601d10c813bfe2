package batch

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/plugin-index/plugin-index/internal/metrics"
	"github.com/plugin-index/plugin-index/internal/plugin"
	"github.com/plugin-index/plugin-index/pkg/registry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Fetcher interface {
	Fetch(ctx context.Context, src registry.Source) (*registry.Record, error)
}

// Result is the outcome for one listing entry. Exactly one of Record and Err is set.
type Result struct {
	Source registry.Source
	Record *registry.Record
	Err    error
}

func (r *Result) Failed() bool {
	return r.Err != nil
}

func failureFields(src registry.Source, err error) logrus.Fields {
	fields := logrus.Fields{
		"plugin": src.Name,
		"tag":    src.Tag,
	}
	var fetchErr *plugin.FetchError
	if errors.As(err, &fetchErr) {
		fields["stage"] = fetchErr.Stage
		if fetchErr.URL != "" {
			fields["url"] = fetchErr.URL
		}
	}
	return fields
}

func failedStage(err error) string {
	var fetchErr *plugin.FetchError
	if errors.As(err, &fetchErr) {
		return string(fetchErr.Stage)
	}
	return "unknown"
}

// FetchAll fetches every source with at most concurrency requests in flight.
// Results are returned in listing order and a failing source never stops
// the others.
func FetchAll(ctx context.Context, log *logrus.Logger, f Fetcher, sources []registry.Source, concurrency int) []*Result {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]*Result, len(sources))
	var done atomic.Int64

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res := &Result{Source: src}
			if err := ctx.Err(); err != nil {
				res.Err = err
			} else {
				res.Record, res.Err = f.Fetch(ctx, src)
			}
			results[i] = res

			stage := ""
			if res.Err != nil {
				stage = failedStage(res.Err)
				log.WithFields(failureFields(src, res.Err)).Errorf("skipping plugin: %v", res.Err)
			}
			metrics.RecordFetch(ctx, stage)
			log.WithField("plugin", src.Name).Debugf("collected plugin manifest %d/%d", done.Add(1), len(sources))
			return nil
		})
	}
	_ = g.Wait()
	return results
}
