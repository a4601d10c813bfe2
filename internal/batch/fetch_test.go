package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/plugin-index/plugin-index/internal/plugin"
	"github.com/plugin-index/plugin-index/pkg/registry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	fail     map[string]bool
}

func (f *fakeFetcher) Fetch(_ context.Context, src registry.Source) (*registry.Record, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	time.Sleep(5 * time.Millisecond)
	if f.fail[src.Name] {
		return nil, &plugin.FetchError{Source: src.Name, Stage: plugin.StageRelease, URL: "https://api.github.com/x", Err: fmt.Errorf("boom")}
	}
	return &registry.Record{
		Name:        src.Name,
		ProjectData: json.RawMessage(fmt.Sprintf(`{"full_name": %q}`, src.Name)),
	}, nil
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func createSources(n int) []registry.Source {
	sources := make([]registry.Source, 0, n)
	for i := 0; i < n; i++ {
		sources = append(sources, registry.Source{Name: fmt.Sprintf("acme/plugin-%d", i), Tag: "v1.0.0"})
	}
	return sources
}

func TestFetchAllKeepsListingOrder(t *testing.T) {
	f := &fakeFetcher{fail: map[string]bool{"acme/plugin-3": true, "acme/plugin-7": true}}
	sources := createSources(10)
	results := FetchAll(context.Background(), newTestLogger(), f, sources, 4)
	require.Len(t, results, 10)
	for i, res := range results {
		require.Equal(t, sources[i], res.Source)
		if i == 3 || i == 7 {
			require.True(t, res.Failed())
			require.Nil(t, res.Record)
			require.ErrorContains(t, res.Err, "boom")
			continue
		}
		require.NoError(t, res.Err)
		require.Equal(t, sources[i].Name, res.Record.Name)
	}
	require.LessOrEqual(t, f.maxSeen, 4)
}

func TestFetchAllSequential(t *testing.T) {
	f := &fakeFetcher{}
	results := FetchAll(context.Background(), newTestLogger(), f, createSources(5), 0)
	require.Len(t, results, 5)
	require.Equal(t, 1, f.maxSeen)
}

func TestFetchAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := FetchAll(ctx, newTestLogger(), &fakeFetcher{}, createSources(3), 2)
	for _, res := range results {
		require.ErrorIs(t, res.Err, context.Canceled)
	}
}

func TestFailedStage(t *testing.T) {
	require.Equal(t, "manifest", failedStage(&plugin.FetchError{Stage: plugin.StageManifest}))
	require.Equal(t, "unknown", failedStage(fmt.Errorf("other")))
}
