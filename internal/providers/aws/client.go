package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// EC2API is the slice of the EC2 client the provider uses; narrowed for
// mocking in tests.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// ClientConfig holds AWS client creation parameters.
type ClientConfig struct {
	Region          string
	Profile         string
	AccessKeyID     string
	AccessKeySecret string
	MaxRetries      int
	Timeout         time.Duration
}

// loadConfig builds an aws.Config from static keys, a shared profile, or
// the default credential chain, in that precedence order.
func loadConfig(ctx context.Context, cc ClientConfig) (aws.Config, error) {
	if cc.MaxRetries == 0 {
		cc.MaxRetries = 3
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cc.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cc.Region))
	}
	if cc.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cc.AccessKeyID, cc.AccessKeySecret, "")))
	} else if cc.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cc.Profile))
	}
	opts = append(opts, awsconfig.WithRetryer(func() aws.Retryer {
		return retry.AddWithMaxAttempts(retry.NewStandard(), cc.MaxRetries)
	}))

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// validateCredentials makes an STS GetCallerIdentity call to surface bad
// credentials at startup instead of mid-collection.
func validateCredentials(ctx context.Context, cfg aws.Config) error {
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("failed to validate AWS credentials: %w", err)
	}
	if out.Account == nil || out.Arn == nil {
		return fmt.Errorf("received invalid identity information from AWS")
	}
	return nil
}
