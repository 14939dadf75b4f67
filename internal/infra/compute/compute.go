// Package compute runs one Fargate service per customer behind the shared
// load balancer.
package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/lock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logstypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-multierror"
)

const (
	// target group names are capped by ELB
	maxTargetGroupName = 32
	targetGroupHashLen = 8
)

type ECSClient interface {
	RegisterTaskDefinition(ctx context.Context, params *ecs.RegisterTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error)
	CreateService(ctx context.Context, params *ecs.CreateServiceInput, optFns ...func(*ecs.Options)) (*ecs.CreateServiceOutput, error)
	UpdateService(ctx context.Context, params *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
	DeleteService(ctx context.Context, params *ecs.DeleteServiceInput, optFns ...func(*ecs.Options)) (*ecs.DeleteServiceOutput, error)
}

type ELBClient interface {
	CreateTargetGroup(ctx context.Context, params *elb.CreateTargetGroupInput, optFns ...func(*elb.Options)) (*elb.CreateTargetGroupOutput, error)
	DescribeTargetGroups(ctx context.Context, params *elb.DescribeTargetGroupsInput, optFns ...func(*elb.Options)) (*elb.DescribeTargetGroupsOutput, error)
	DeleteTargetGroup(ctx context.Context, params *elb.DeleteTargetGroupInput, optFns ...func(*elb.Options)) (*elb.DeleteTargetGroupOutput, error)
	DescribeRules(ctx context.Context, params *elb.DescribeRulesInput, optFns ...func(*elb.Options)) (*elb.DescribeRulesOutput, error)
	CreateRule(ctx context.Context, params *elb.CreateRuleInput, optFns ...func(*elb.Options)) (*elb.CreateRuleOutput, error)
	DeleteRule(ctx context.Context, params *elb.DeleteRuleInput, optFns ...func(*elb.Options)) (*elb.DeleteRuleOutput, error)
}

type LogsClient interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
}

// Tenant carries what the container needs at boot.
type Tenant struct {
	Slug             string
	DatabaseName     string
	DatabasePassword string
	SecretKey        string
	Passphrase       string
}

// Routing identifies the load balancer resources bound to a customer.
type Routing struct {
	TargetGroupARN string
	RuleARN        string
}

type Provisioner struct {
	cfg    *Config
	ecs    ECSClient
	elb    ELBClient
	logs   LogsClient
	locker lock.Locker
}

func NewProvisioner(cfg *Config, ecsClient ECSClient, elbClient ELBClient, logsClient LogsClient, locker lock.Locker) *Provisioner {
	return &Provisioner{cfg: cfg, ecs: ecsClient, elb: elbClient, logs: logsClient, locker: locker}
}

func (p *Provisioner) name(slug string) string {
	return p.cfg.NamePrefix + "-" + slug
}

// targetGroupName fits the service name into the ELB limit. Names that do not
// fit keep a hash of the full name as their tail, so two slugs sharing a long
// prefix never map to the same target group.
func (p *Provisioner) targetGroupName(slug string) string {
	name := p.name(slug)
	if len(name) <= maxTargetGroupName {
		return strings.TrimRight(name, "-")
	}
	sum := fmt.Sprintf("%016x", xxhash.Sum64String(name))[:targetGroupHashLen]
	head := strings.TrimRight(name[:maxTargetGroupName-targetGroupHashLen-1], "-")
	return head + "-" + sum
}

// DatabaseURL is the connection string handed to the tenant container.
func (p *Provisioner) DatabaseURL(name, password string) string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(name, password),
		Host:   p.cfg.DBHost + ":" + p.cfg.DBPort,
		Path:   "/" + name,
	}
	return u.String()
}

// CreateService brings up the tenant container and routes {slug}.{domain} to it.
// Resources created before a failing call are left in place.
func (p *Provisioner) CreateService(ctx context.Context, t Tenant) (Routing, error) {
	var routing Routing

	if err := p.ensureLogGroup(ctx); err != nil {
		return routing, err
	}

	tg, err := p.elb.CreateTargetGroup(ctx, &elb.CreateTargetGroupInput{
		Name:                       aws.String(p.targetGroupName(t.Slug)),
		Protocol:                   elbtypes.ProtocolEnumHttp,
		Port:                       aws.Int32(p.cfg.ContainerPort),
		VpcId:                      aws.String(p.cfg.VPCID),
		TargetType:                 elbtypes.TargetTypeEnumIp,
		HealthCheckPath:            aws.String(p.cfg.HealthCheckPath),
		HealthCheckIntervalSeconds: aws.Int32(30),
		HealthyThresholdCount:      aws.Int32(2),
	})
	if err != nil {
		return routing, fmt.Errorf("creating target group: %w", err)
	}
	if len(tg.TargetGroups) == 0 {
		return routing, errors.New("creating target group: empty response")
	}
	routing.TargetGroupARN = aws.ToString(tg.TargetGroups[0].TargetGroupArn)

	taskDefARN, err := p.registerTaskDefinition(ctx, t)
	if err != nil {
		return routing, err
	}

	_, err = p.ecs.CreateService(ctx, &ecs.CreateServiceInput{
		Cluster:        aws.String(p.cfg.Cluster),
		ServiceName:    aws.String(p.name(t.Slug)),
		TaskDefinition: aws.String(taskDefARN),
		DesiredCount:   aws.Int32(1),
		LaunchType:     ecstypes.LaunchTypeFargate,
		LoadBalancers: []ecstypes.LoadBalancer{{
			TargetGroupArn: aws.String(routing.TargetGroupARN),
			ContainerName:  aws.String(p.cfg.NamePrefix),
			ContainerPort:  aws.Int32(p.cfg.ContainerPort),
		}},
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        p.cfg.Subnets,
				SecurityGroups: p.cfg.SecurityGroups,
				AssignPublicIp: ecstypes.AssignPublicIpEnabled,
			},
		},
	})
	if err != nil {
		return routing, fmt.Errorf("creating service: %w", err)
	}

	routing.RuleARN, err = p.addHostRule(ctx, t.Slug, routing.TargetGroupARN)
	if err != nil {
		return routing, err
	}

	slog.Info("compute created", "slug", t.Slug, "targetGroup", routing.TargetGroupARN, "rule", routing.RuleARN)
	return routing, nil
}

func (p *Provisioner) ensureLogGroup(ctx context.Context) error {
	_, err := p.logs.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(p.cfg.LogGroup),
	})
	var exists *logstypes.ResourceAlreadyExistsException
	if err != nil && !errors.As(err, &exists) {
		return fmt.Errorf("creating log group: %w", err)
	}
	return nil
}

func (p *Provisioner) registerTaskDefinition(ctx context.Context, t Tenant) (string, error) {
	out, err := p.ecs.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(p.name(t.Slug)),
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		Cpu:                     aws.String(p.cfg.CPU),
		Memory:                  aws.String(p.cfg.Memory),
		ExecutionRoleArn:        aws.String(p.cfg.ExecutionRoleARN),
		ContainerDefinitions: []ecstypes.ContainerDefinition{{
			Name:      aws.String(p.cfg.NamePrefix),
			Image:     aws.String(p.cfg.Image),
			Essential: aws.Bool(true),
			PortMappings: []ecstypes.PortMapping{{
				ContainerPort: aws.Int32(p.cfg.ContainerPort),
				Protocol:      ecstypes.TransportProtocolTcp,
			}},
			Environment: []ecstypes.KeyValuePair{
				{Name: aws.String("DATABASE_URL"), Value: aws.String(p.DatabaseURL(t.DatabaseName, t.DatabasePassword))},
				{Name: aws.String("SECRET_KEY"), Value: aws.String(t.SecretKey)},
				{Name: aws.String("PASSPHRASE"), Value: aws.String(t.Passphrase)},
			},
			LogConfiguration: &ecstypes.LogConfiguration{
				LogDriver: ecstypes.LogDriverAwslogs,
				Options: map[string]string{
					"awslogs-group":         p.cfg.LogGroup,
					"awslogs-region":        p.cfg.Region,
					"awslogs-stream-prefix": t.Slug,
				},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("registering task definition: %w", err)
	}
	if out.TaskDefinition == nil {
		return "", errors.New("registering task definition: empty response")
	}
	return aws.ToString(out.TaskDefinition.TaskDefinitionArn), nil
}

// DeleteService scales the service down and removes it with its routing.
// Missing resources count as deleted. targetGroupARN may be empty, in which
// case the group is looked up by name.
func (p *Provisioner) DeleteService(ctx context.Context, slug, targetGroupARN string) error {
	var result *multierror.Error
	service := p.name(slug)

	_, err := p.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:      aws.String(p.cfg.Cluster),
		Service:      aws.String(service),
		DesiredCount: aws.Int32(0),
	})
	if err != nil && !isServiceGone(err) {
		result = multierror.Append(result, fmt.Errorf("scaling down %s: %w", service, err))
	}

	_, err = p.ecs.DeleteService(ctx, &ecs.DeleteServiceInput{
		Cluster: aws.String(p.cfg.Cluster),
		Service: aws.String(service),
		Force:   aws.Bool(true),
	})
	if err != nil && !isServiceGone(err) {
		result = multierror.Append(result, fmt.Errorf("deleting service %s: %w", service, err))
	}

	if targetGroupARN == "" {
		targetGroupARN, err = p.lookupTargetGroup(ctx, slug)
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if targetGroupARN == "" {
		return result.ErrorOrNil()
	}

	if err := p.deleteRulesFor(ctx, targetGroupARN); err != nil {
		result = multierror.Append(result, err)
	}

	// frequently still in use while the service drains
	if _, err := p.elb.DeleteTargetGroup(ctx, &elb.DeleteTargetGroupInput{
		TargetGroupArn: aws.String(targetGroupARN),
	}); err != nil {
		slog.Warn("deleting target group", "slug", slug, "targetGroup", targetGroupARN, "err", err)
	}

	return result.ErrorOrNil()
}

func (p *Provisioner) lookupTargetGroup(ctx context.Context, slug string) (string, error) {
	out, err := p.elb.DescribeTargetGroups(ctx, &elb.DescribeTargetGroupsInput{
		Names: []string{p.targetGroupName(slug)},
	})
	var notFound *elbtypes.TargetGroupNotFoundException
	if errors.As(err, &notFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up target group: %w", err)
	}
	if len(out.TargetGroups) == 0 {
		return "", nil
	}
	return aws.ToString(out.TargetGroups[0].TargetGroupArn), nil
}

func (p *Provisioner) deleteRulesFor(ctx context.Context, targetGroupARN string) error {
	rules, err := p.listRules(ctx)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, rule := range rules {
		if !forwardsTo(rule, targetGroupARN) {
			continue
		}
		_, err := p.elb.DeleteRule(ctx, &elb.DeleteRuleInput{RuleArn: rule.RuleArn})
		var notFound *elbtypes.RuleNotFoundException
		if err != nil && !errors.As(err, &notFound) {
			result = multierror.Append(result, fmt.Errorf("deleting rule %s: %w", aws.ToString(rule.RuleArn), err))
		}
	}
	return result.ErrorOrNil()
}

func isServiceGone(err error) bool {
	var notFound *ecstypes.ServiceNotFoundException
	var notActive *ecstypes.ServiceNotActiveException
	return errors.As(err, &notFound) || errors.As(err, &notActive)
}
