package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/plugin-index/plugin-index/internal/config"
	"github.com/plugin-index/plugin-index/internal/indexer"
	"github.com/plugin-index/plugin-index/internal/metrics"
	"github.com/plugin-index/plugin-index/internal/plugin"
	"github.com/plugin-index/plugin-index/internal/publish"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	cmd := newCommand(log)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand(log *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plugin-index [username] token",
		Short:   "Build plugins.json from a listing of GitHub plugin releases",
		Version: version,
		Args:    cobra.RangeArgs(0, 2),
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(log, cmd, args); err != nil {
				log.Errorf("ERROR: %v", err)
				os.Exit(1)
			}
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	cmd.Flags().StringP("listing", "l", "listing.json", "the listing of plugin sources (JSON or TOML)")
	cmd.Flags().BoolP("readme", "r", false, "generate the README listing page")
	cmd.Flags().BoolP("initialize", "i", false, "reserved, has no effect")
	cmd.Flags().StringP("output", "o", "plugins.json", "the index file to read and update")
	cmd.Flags().String("readme-path", "plugins/README.md", "where to write the README")
	cmd.Flags().Bool("keep-stale", false, "keep the previous entry of plugins that fail to fetch")
	cmd.Flags().IntP("concurrency", "c", 4, "number of plugins fetched in parallel")
	cmd.Flags().String("github-api-url", "", "GitHub API base URL")
	cmd.Flags().Int("http-retries", 0, "retries for failed GitHub requests")
	cmd.Flags().String("publish-bucket", "", "upload the artifacts to this S3 bucket")
	cmd.Flags().String("publish-prefix", "", "object key prefix for uploads")
	cmd.Flags().Bool("verbose", false, "enable debug logging")
	cmd.Flags().SortFlags = false
	return cmd
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// applyFlags lets explicitly set flags and positional credentials override
// the environment.
func applyFlags(cfg *config.IndexerConfig, cmd *cobra.Command, args []string) {
	flags := cmd.Flags()
	if flags.Changed("listing") {
		cfg.ListingPath = must(flags.GetString("listing"))
	}
	if flags.Changed("readme") {
		cfg.GenerateReadme = must(flags.GetBool("readme"))
	}
	if flags.Changed("output") {
		cfg.IndexPath = must(flags.GetString("output"))
	}
	if flags.Changed("readme-path") {
		cfg.ReadmePath = must(flags.GetString("readme-path"))
	}
	if flags.Changed("keep-stale") {
		cfg.KeepStale = must(flags.GetBool("keep-stale"))
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = must(flags.GetInt("concurrency"))
	}
	if flags.Changed("github-api-url") {
		cfg.GitHubAPIURL = must(flags.GetString("github-api-url"))
	}
	if flags.Changed("http-retries") {
		cfg.HTTPRetries = must(flags.GetInt("http-retries"))
	}
	if flags.Changed("publish-bucket") {
		cfg.PublishBucket = must(flags.GetString("publish-bucket"))
	}
	if flags.Changed("publish-prefix") {
		cfg.PublishPrefix = must(flags.GetString("publish-prefix"))
	}

	switch len(args) {
	case 2:
		cfg.GitHubUsername = args[0]
		cfg.GitHubToken = args[1]
	case 1:
		cfg.GitHubToken = args[0]
	}
	cfg.Version = version
}

func run(log *logrus.Logger, cmd *cobra.Command, args []string) error {
	if must(cmd.Flags().GetBool("verbose")) {
		log.SetLevel(logrus.DebugLevel)
	}
	log.Infof("starting plugin-index (version=%s)", version)

	cfg, err := config.NewIndexerConfigFromEnv()
	if err != nil {
		return err
	}
	applyFlags(cfg, cmd, args)

	if must(cmd.Flags().GetBool("initialize")) {
		log.Warn("--initialize is reserved and has no effect")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exporter, err := metrics.NewExporter(cfg)
	if err != nil {
		return err
	}
	if exporter != nil {
		defer func() {
			exporter.Flush()
			exporter.StopMetricsExporter()
		}()
	}

	ghClient, err := cfg.CreateGitHubClient()
	if err != nil {
		return err
	}

	var publisher *publish.Publisher
	if cfg.PublishEnabled() {
		s3Client, err := cfg.CreateS3Client(ctx)
		if err != nil {
			return err
		}
		publisher = publish.New(log, s3Client, *cfg.GetBucket(), cfg.GetObjectKey)
	}

	_, err = indexer.New(log, cfg, plugin.NewFetcher(ghClient), publisher).Run(ctx)
	return err
}
