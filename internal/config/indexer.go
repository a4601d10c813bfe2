package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-github/v59/github"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/oauth2"
)

type IndexerConfig struct {
	Stage          string        `envconfig:"PLUGIN_INDEX_STAGE" default:"dev"`
	GitHubUsername string        `envconfig:"GITHUB_USERNAME"`
	GitHubToken    string        `envconfig:"GITHUB_TOKEN"`
	GitHubAPIURL   string        `envconfig:"GITHUB_API_URL"`
	ListingPath    string        `envconfig:"PLUGIN_INDEX_LISTING" default:"listing.json"`
	IndexPath      string        `envconfig:"PLUGIN_INDEX_OUTPUT" default:"plugins.json"`
	ReadmePath     string        `envconfig:"PLUGIN_INDEX_README_PATH" default:"plugins/README.md"`
	GenerateReadme bool          `envconfig:"PLUGIN_INDEX_README"`
	KeepStale      bool          `envconfig:"PLUGIN_INDEX_KEEP_STALE"`
	Concurrency    int           `envconfig:"PLUGIN_INDEX_CONCURRENCY" default:"4"`
	HTTPRetries    int           `envconfig:"PLUGIN_INDEX_HTTP_RETRIES" default:"0"`
	HTTPTimeout    time.Duration `envconfig:"PLUGIN_INDEX_HTTP_TIMEOUT" default:"1m"`

	PublishBucket         string `envconfig:"PLUGIN_INDEX_PUBLISH_BUCKET"`
	PublishPrefix         string `envconfig:"PLUGIN_INDEX_PUBLISH_PREFIX"`
	S3Endpoint            string `envconfig:"PLUGIN_INDEX_S3_ENDPOINT"`
	CloudflareAccountID   string `envconfig:"CLOUDFLARE_ACCOUNT_ID"`
	S3AccessKeyID         string `envconfig:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	S3SecretAccessKey     string `envconfig:"CLOUDFLARE_R2_SECRET_ACCESS_KEY"`
	StackdriverProjectID  string `envconfig:"PLUGIN_INDEX_STACKDRIVER_PROJECT_ID"`
	DisableMetricsSummary bool   `envconfig:"PLUGIN_INDEX_DISABLE_METRICS_SUMMARY"`
	Version               string `ignored:"true"`
}

func NewIndexerConfigFromEnv() (*IndexerConfig, error) {
	var iCfg IndexerConfig
	err := envconfig.Process("", &iCfg)
	if err != nil {
		return nil, err
	}
	return &iCfg, nil
}

func (c *IndexerConfig) newRetryableClient() *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = c.HTTPRetries
	// hand non-2xx responses to go-github so it can build an ErrorResponse
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if c.HTTPTimeout > 0 {
		rc.HTTPClient.Timeout = c.HTTPTimeout
	}
	return rc
}

// CreateGitHubClient authenticates every request with the configured
// credentials: basic auth when a username is set, a bearer token otherwise.
func (c *IndexerConfig) CreateGitHubClient() (*github.Client, error) {
	if c.GitHubToken == "" {
		return nil, errors.New("no GitHub token provided")
	}
	transport := c.newRetryableClient().StandardClient().Transport
	var httpClient *http.Client
	if c.GitHubUsername != "" {
		basicAuth := &github.BasicAuthTransport{
			Username:  c.GitHubUsername,
			Password:  c.GitHubToken,
			Transport: transport,
		}
		httpClient = basicAuth.Client()
	} else {
		httpClient = &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.GitHubToken}),
				Base:   transport,
			},
		}
	}
	ghClient := github.NewClient(httpClient)
	if c.GitHubAPIURL != "" {
		baseURL, err := url.Parse(strings.TrimSuffix(c.GitHubAPIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
		}
		ghClient.BaseURL = baseURL
	}
	return ghClient, nil
}

func (c *IndexerConfig) PublishEnabled() bool {
	return c.PublishBucket != ""
}

func (c *IndexerConfig) s3EndpointResolver(_, _ string, _ ...interface{}) (aws.Endpoint, error) {
	if c.S3Endpoint != "" {
		return aws.Endpoint{
			URL:               c.S3Endpoint,
			HostnameImmutable: true,
		}, nil
	}
	return aws.Endpoint{
		URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.CloudflareAccountID),
	}, nil
}

func (c *IndexerConfig) CreateS3Client(ctx context.Context) (*s3.Client, error) {
	if c.S3Endpoint == "" && c.CloudflareAccountID == "" {
		return nil, errors.New("publishing requires an S3 endpoint or a Cloudflare account id")
	}
	staticCredentialsProvider := credentials.NewStaticCredentialsProvider(
		c.S3AccessKeyID,
		c.S3SecretAccessKey,
		"",
	)
	s3Cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("auto"),
		awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(c.s3EndpointResolver)),
		awsConfig.WithCredentialsProvider(staticCredentialsProvider),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(s3Cfg), nil
}

func (c *IndexerConfig) GetBucket() *string {
	return &c.PublishBucket
}

// GetObjectKey places name below the configured publish prefix.
func (c *IndexerConfig) GetObjectKey(name string) string {
	prefix := strings.Trim(c.PublishPrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
