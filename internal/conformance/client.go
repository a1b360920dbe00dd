package conformance

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kumasuke/s3check/internal/config"
)

// NewClient builds an S3 client for the configured target endpoint.
func NewClient(ctx context.Context, target config.TargetConfig) (*s3.Client, error) {
	u, err := url.Parse(target.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint URL %q", target.Endpoint)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(target.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			target.AccessKey,
			target.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(target.Endpoint)
		o.UsePathStyle = true
	})

	return client, nil
}
