package publishers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// loadAWSConfig resolves the SDK config for region, using static credentials when both
// key parts are configured.
func loadAWSConfig(ctx context.Context, region string, creds AWSCredentials) (aws.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		))
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

func stringAttributes(attrs map[string]string, fn func(k, v string)) {
	for k, v := range attrs {
		if v == "" {
			continue
		}
		fn(k, v)
	}
}

// isFIFO reports whether a queue URL or topic ARN names a FIFO resource.
func isFIFO(name string) bool {
	return strings.HasSuffix(strings.TrimSpace(name), ".fifo")
}

// fifoIDs returns the message group and deduplication ids for FIFO sinks. Events for one
// keyword share a group, and the post id lets the broker drop redeliveries.
func fifoIDs(evt Event) (group, dedup string) {
	group = evt.Keyword
	if group == "" {
		group = "radar"
	}
	dedup = evt.Post.ID
	if dedup == "" {
		dedup = evt.RunID
	}
	return group, dedup
}
