package aws

import (
	"context"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEC2 struct {
	pages []*ec2.DescribeInstancesOutput
	calls int
}

func (m *mockEC2) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	out := m.pages[m.calls]
	m.calls++
	return out, nil
}

func instance(id, ip, state string) ec2types.Instance {
	return ec2types.Instance{
		InstanceId:       awssdk.String(id),
		PrivateIpAddress: awssdk.String(ip),
		InstanceType:     ec2types.InstanceTypeT3Micro,
		State:            &ec2types.InstanceState{Name: ec2types.InstanceStateName(state)},
		PlatformDetails:  awssdk.String("Linux/UNIX"),
		Tags: []ec2types.Tag{
			{Key: awssdk.String("Name"), Value: awssdk.String("host-" + id)},
		},
	}
}

func TestListInstancesPagesAndSkipsTerminated(t *testing.T) {
	mock := &mockEC2{pages: []*ec2.DescribeInstancesOutput{
		{
			Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{
				instance("i-1", "10.0.0.1", "running"),
				instance("i-2", "10.0.0.2", "terminated"),
			}}},
			NextToken: awssdk.String("page2"),
		},
		{
			Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{
				instance("i-3", "10.0.0.3", "stopped"),
			}}},
		},
	}}

	p := &Provider{name: "prod", ec2: mock}
	got, err := p.ListInstances(context.Background(), "us-east-1")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "i-1", got[0].ID)
	assert.Equal(t, "host-i-1", got[0].Name)
	assert.Equal(t, "i-3", got[1].ID)
	assert.Equal(t, 2, mock.calls)
}

func TestNormalizeInstanceWindows(t *testing.T) {
	inst := instance("i-9", "10.0.0.9", "running")
	inst.Platform = ec2types.PlatformValuesWindows

	got := normalizeInstance(inst)
	assert.Equal(t, "Windows", got.OS)
	assert.Equal(t, "t3.micro", got.Extra["instance_type"])
}

func TestNormalizeInstanceFallsBackToID(t *testing.T) {
	inst := instance("i-5", "10.0.0.5", "running")
	inst.Tags = nil

	got := normalizeInstance(inst)
	assert.Equal(t, "i-5", got.Name)
}
