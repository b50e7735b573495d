package aws

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/cloudreg/regsync/internal/providers"
	"github.com/cloudreg/regsync/pkg/config"
)

func init() {
	providers.DefaultRegistry().Register("aws", New)
}

// Provider lists EC2 instances for one AWS account. Region is passed per
// call; the client is region-agnostic and overridden per request.
type Provider struct {
	name string
	ec2  EC2API
}

// New builds an AWS provider from configuration, validating credentials
// up front.
func New(ctx context.Context, cfg config.ProviderConfig) (providers.Provider, error) {
	awsCfg, err := loadConfig(ctx, ClientConfig{
		Profile:         cfg.Profile,
		AccessKeyID:     cfg.AccessKeyID,
		AccessKeySecret: cfg.AccessKeySecret,
	})
	if err != nil {
		return nil, err
	}
	if err := validateCredentials(ctx, awsCfg); err != nil {
		return nil, err
	}
	return &Provider{name: cfg.Name, ec2: ec2.NewFromConfig(awsCfg)}, nil
}

func (p *Provider) Type() string { return "aws" }
func (p *Provider) Name() string { return p.name }

// ListInstances pages through DescribeInstances for the region, skipping
// terminated instances.
func (p *Provider) ListInstances(ctx context.Context, region string) ([]providers.Instance, error) {
	var instances []providers.Instance
	var nextToken *string

	for {
		input := &ec2.DescribeInstancesInput{NextToken: nextToken}
		out, err := p.ec2.DescribeInstances(ctx, input, func(o *ec2.Options) {
			o.Region = region
		})
		if err != nil {
			return nil, describeError(region, err)
		}

		for _, reservation := range out.Reservations {
			for _, inst := range reservation.Instances {
				if inst.State != nil && inst.State.Name == ec2types.InstanceStateNameTerminated {
					continue
				}
				instances = append(instances, normalizeInstance(inst))
			}
		}

		nextToken = out.NextToken
		if nextToken == nil {
			break
		}
	}

	return instances, nil
}

// describeError surfaces the API error code so permission problems read
// as such instead of a generic SDK failure.
func describeError(region string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "UnauthorizedOperation", "AuthFailure":
			return fmt.Errorf("not authorized to describe instances in %s: %s", region, apiErr.ErrorMessage())
		case "RequestLimitExceeded":
			return fmt.Errorf("rate limited describing instances in %s: %s", region, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("failed to describe instances in %s: %w", region, err)
}

func normalizeInstance(inst ec2types.Instance) providers.Instance {
	i := providers.Instance{
		ID:        awssdk.ToString(inst.InstanceId),
		PrivateIP: awssdk.ToString(inst.PrivateIpAddress),
		PublicIP:  awssdk.ToString(inst.PublicIpAddress),
		Extra:     map[string]any{},
	}

	if inst.State != nil {
		i.State = string(inst.State.Name)
	}

	// Platform is only set for Windows; PlatformDetails carries the
	// long OS description for everything else.
	if inst.Platform == ec2types.PlatformValuesWindows {
		i.OS = "Windows"
	} else {
		i.OS = awssdk.ToString(inst.PlatformDetails)
	}

	for _, tag := range inst.Tags {
		if awssdk.ToString(tag.Key) == "Name" {
			i.Name = awssdk.ToString(tag.Value)
		}
	}
	if i.Name == "" {
		i.Name = i.ID
	}

	i.Extra["instance_type"] = string(inst.InstanceType)
	if inst.VpcId != nil {
		i.Extra["vpc_id"] = awssdk.ToString(inst.VpcId)
	}
	if inst.ImageId != nil {
		i.Extra["image_id"] = awssdk.ToString(inst.ImageId)
	}

	return i
}
