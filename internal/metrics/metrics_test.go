package metrics

import (
	"context"
	"testing"

	"github.com/plugin-index/plugin-index/internal/config"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
)

func resetViews(t *testing.T) {
	view.Unregister(views...)
	require.NoError(t, Register())
}

func TestCollectSummary(t *testing.T) {
	resetViews(t)
	ctx := context.Background()

	RecordFetch(ctx, "")
	RecordFetch(ctx, "")
	RecordFetch(ctx, "release")
	RecordFetch(ctx, "manifest")
	RecordFetch(ctx, "manifest")
	RecordChange(ctx, "new")
	RecordChange(ctx, "unchanged")
	RecordChange(ctx, "unchanged")

	s, err := CollectSummary()
	require.NoError(t, err)
	require.EqualValues(t, 2, s.Fetched)
	require.EqualValues(t, 3, s.Failed)
	require.EqualValues(t, 1, s.FailedByStage["release"])
	require.EqualValues(t, 2, s.FailedByStage["manifest"])
	require.EqualValues(t, 1, s.Changes["new"])
	require.EqualValues(t, 2, s.Changes["unchanged"])
	require.Contains(t, s.String(), "fetched=2 failed=3")
}

func TestRegisterTwice(t *testing.T) {
	require.NoError(t, Register())
	require.NoError(t, Register())
}

func TestNewExporterDisabled(t *testing.T) {
	exporter, err := NewExporter(&config.IndexerConfig{})
	require.NoError(t, err)
	require.Nil(t, exporter)
}
