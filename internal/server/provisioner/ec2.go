package provisioner

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	sc "github.com/dmitrijs2005/worldkeeper/internal/server/config"
)

// ec2API is the subset of the EC2 client the provisioner uses; a seam for
// tests. It includes DescribeInstances so the same value feeds the SDK
// waiters.
type ec2API interface {
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// EC2Provisioner stamps world machines from one launch template. Each
// mutating call blocks until the instance reaches its terminal state, so
// a nil return means the remote side effect is complete, not merely
// requested.
type EC2Provisioner struct {
	client         ec2API
	launchTemplate string
	waitTimeout    time.Duration
}

// NewEC2Provisioner builds the EC2 client from server config. Credentials
// come from the ambient AWS credential chain.
func NewEC2Provisioner(ctx context.Context, c *sc.Config) (*EC2Provisioner, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(c.ComputeRegion))
	if err != nil {
		return nil, fmt.Errorf("loading compute config: %w", err)
	}

	return &EC2Provisioner{
		client:         ec2.NewFromConfig(cfg),
		launchTemplate: c.ComputeLaunchTemplate,
		waitTimeout:    c.ProvisionerTimeout,
	}, nil
}

func (p *EC2Provisioner) Create(ctx context.Context) (*Machine, error) {
	out, err := p.client.RunInstances(ctx, &ec2.RunInstancesInput{
		MinCount: aws.Int32(1),
		MaxCount: aws.Int32(1),
		LaunchTemplate: &types.LaunchTemplateSpecification{
			LaunchTemplateName: aws.String(p.launchTemplate),
		},
		ClientToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return nil, fmt.Errorf("creating machine: %w", err)
	}
	if len(out.Instances) == 0 {
		return nil, fmt.Errorf("creating machine: empty reservation")
	}
	id := aws.ToString(out.Instances[0].InstanceId)

	// The address is only assigned once the instance is running.
	waiter := ec2.NewInstanceRunningWaiter(p.client)
	desc, err := waiter.WaitForOutput(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	}, p.waitTimeout)
	if err != nil {
		return nil, fmt.Errorf("waiting for machine %s: %w", id, err)
	}

	return &Machine{Ref: id, Address: firstAddress(desc)}, nil
}

func (p *EC2Provisioner) Delete(ctx context.Context, ref string) error {
	_, err := p.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{ref},
	})
	if err != nil {
		return fmt.Errorf("deleting machine %s: %w", ref, err)
	}

	waiter := ec2.NewInstanceTerminatedWaiter(p.client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{ref},
	}, p.waitTimeout); err != nil {
		return fmt.Errorf("waiting for machine %s to terminate: %w", ref, err)
	}
	return nil
}

func (p *EC2Provisioner) Start(ctx context.Context, ref string) error {
	_, err := p.client.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{ref},
	})
	if err != nil {
		return fmt.Errorf("starting machine %s: %w", ref, err)
	}

	waiter := ec2.NewInstanceRunningWaiter(p.client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{ref},
	}, p.waitTimeout); err != nil {
		return fmt.Errorf("waiting for machine %s to start: %w", ref, err)
	}
	return nil
}

func (p *EC2Provisioner) Stop(ctx context.Context, ref string) error {
	_, err := p.client.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{ref},
	})
	if err != nil {
		return fmt.Errorf("stopping machine %s: %w", ref, err)
	}

	waiter := ec2.NewInstanceStoppedWaiter(p.client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{ref},
	}, p.waitTimeout); err != nil {
		return fmt.Errorf("waiting for machine %s to stop: %w", ref, err)
	}
	return nil
}

func (p *EC2Provisioner) ListRunning(ctx context.Context) ([]*Machine, error) {
	var machines []*Machine

	pg := ec2.NewDescribeInstancesPaginator(p.client, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{string(types.InstanceStateNameRunning)},
			},
		},
	})
	for pg.HasMorePages() {
		page, err := pg.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing running machines: %w", err)
		}
		for _, r := range page.Reservations {
			for _, inst := range r.Instances {
				machines = append(machines, &Machine{
					Ref:     aws.ToString(inst.InstanceId),
					Address: aws.ToString(inst.PublicIpAddress),
				})
			}
		}
	}

	return machines, nil
}

func firstAddress(out *ec2.DescribeInstancesOutput) string {
	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			if inst.PublicIpAddress != nil {
				return aws.ToString(inst.PublicIpAddress)
			}
		}
	}
	return ""
}
