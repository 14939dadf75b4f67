package compute

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/lock"
	"github.com/aws/aws-sdk-go-v2/aws"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Cluster:          "crimata",
		Image:            "123.dkr.ecr.us-east-1.amazonaws.com/hub:latest",
		VPCID:            "vpc-1",
		Subnets:          []string{"subnet-a", "subnet-b"},
		SecurityGroups:   []string{"sg-1"},
		ListenerARN:      "arn:aws:listener/front",
		ExecutionRoleARN: "arn:aws:iam::role/exec",
		LogGroup:         "/crimata/customers",
		Region:           "us-east-1",
		NamePrefix:       "crimata",
		Domain:           "crimata.com",
		DBHost:           "db.internal",
		DBPort:           "5432",
		ContainerPort:    8000,
		HealthCheckPath:  "/api/health",
		CPU:              "256",
		Memory:           "512",
	}
}

func newTestProvisioner(cloud *fakeCloud) *Provisioner {
	return NewProvisioner(testConfig(), cloud, cloud, cloud, lock.NewLocal())
}

func tenant(slug string) Tenant {
	return Tenant{
		Slug:             slug,
		DatabaseName:     "crimata_" + slug,
		DatabasePassword: "pw",
		SecretKey:        "key",
		Passphrase:       "phrase",
	}
}

func rule(priority string) elbtypes.Rule {
	return elbtypes.Rule{Priority: aws.String(priority)}
}

func TestNextPriority(t *testing.T) {
	tests := []struct {
		name  string
		rules []elbtypes.Rule
		want  int32
	}{
		{"only default", []elbtypes.Rule{{Priority: aws.String("default"), IsDefault: aws.Bool(true)}}, 100},
		{"empty", nil, 100},
		{"max plus one", []elbtypes.Rule{rule("101"), rule("105"), rule("99")}, 106},
		{"below floor", []elbtypes.Rule{rule("1"), rule("5")}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NextPriority(tt.rules))
		})
	}
}

func TestCreateService(t *testing.T) {
	cloud := newFakeCloud()
	p := newTestProvisioner(cloud)

	routing, err := p.CreateService(context.Background(), tenant("jane-doe"))
	require.NoError(t, err)
	require.NotEmpty(t, routing.TargetGroupARN)
	require.NotEmpty(t, routing.RuleARN)

	require.True(t, cloud.logGroups["/crimata/customers"])

	tg := cloud.targetGroups[routing.TargetGroupARN]
	require.Equal(t, "crimata-jane-doe", aws.ToString(tg.Name))
	require.Equal(t, "/api/health", aws.ToString(tg.HealthCheckPath))
	require.Equal(t, int32(30), aws.ToInt32(tg.HealthCheckIntervalSeconds))
	require.Equal(t, int32(2), aws.ToInt32(tg.HealthyThresholdCount))
	require.Equal(t, elbtypes.TargetTypeEnumIp, tg.TargetType)

	svc := cloud.services["crimata-jane-doe"]
	require.NotNil(t, svc)
	require.Equal(t, int32(1), aws.ToInt32(svc.DesiredCount))
	require.Equal(t, ecstypes.LaunchTypeFargate, svc.LaunchType)
	require.Equal(t, routing.TargetGroupARN, aws.ToString(svc.LoadBalancers[0].TargetGroupArn))
	require.Equal(t, []string{"subnet-a", "subnet-b"}, svc.NetworkConfiguration.AwsvpcConfiguration.Subnets)

	td := cloud.taskDefs[aws.ToString(svc.TaskDefinition)]
	require.NotNil(t, td)
	env := map[string]string{}
	for _, kv := range td.ContainerDefinitions[0].Environment {
		env[aws.ToString(kv.Name)] = aws.ToString(kv.Value)
	}
	require.Equal(t, "postgresql://crimata_jane-doe:pw@db.internal:5432/crimata_jane-doe", env["DATABASE_URL"])
	require.Equal(t, "key", env["SECRET_KEY"])
	require.Equal(t, "phrase", env["PASSPHRASE"])
	require.Equal(t, "jane-doe", td.ContainerDefinitions[0].LogConfiguration.Options["awslogs-stream-prefix"])

	created := cloud.rules[len(cloud.rules)-1]
	require.Equal(t, routing.RuleARN, aws.ToString(created.RuleArn))
	require.Equal(t, "100", aws.ToString(created.Priority))
	require.Equal(t, []string{"jane-doe.crimata.com"}, created.Conditions[0].HostHeaderConfig.Values)
}

func TestCreateServiceToleratesExistingLogGroup(t *testing.T) {
	cloud := newFakeCloud()
	cloud.logGroups["/crimata/customers"] = true

	_, err := newTestProvisioner(cloud).CreateService(context.Background(), tenant("jane"))
	require.NoError(t, err)
}

func TestCreateServiceUsesMaxPriorityPlusOne(t *testing.T) {
	cloud := newFakeCloud()
	cloud.addRule(101, "arn:aws:targetgroup/a")
	cloud.addRule(105, "arn:aws:targetgroup/b")
	cloud.addRule(99, "arn:aws:targetgroup/c")

	routing, err := newTestProvisioner(cloud).CreateService(context.Background(), tenant("jane"))
	require.NoError(t, err)

	for _, r := range cloud.rules {
		if aws.ToString(r.RuleArn) == routing.RuleARN {
			require.Equal(t, "106", aws.ToString(r.Priority))
			return
		}
	}
	t.Fatal("rule not created")
}

func TestCreateServiceRetriesPriorityConflict(t *testing.T) {
	cloud := newFakeCloud()
	cloud.stealPriority = 2

	routing, err := newTestProvisioner(cloud).CreateService(context.Background(), tenant("jane"))
	require.NoError(t, err)
	require.Equal(t, 3, cloud.createRuleCalls)

	for _, r := range cloud.rules {
		if aws.ToString(r.RuleArn) == routing.RuleARN {
			require.Equal(t, "102", aws.ToString(r.Priority))
		}
	}
}

func TestConcurrentCreateServiceGetsDistinctPriorities(t *testing.T) {
	cloud := newFakeCloud()
	p := newTestProvisioner(cloud)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.CreateService(context.Background(), tenant(fmt.Sprintf("c%d", i)))
			if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	var priorities []string
	for _, r := range cloud.rules {
		if !aws.ToBool(r.IsDefault) {
			priorities = append(priorities, aws.ToString(r.Priority))
		}
	}
	sort.Strings(priorities)
	require.Equal(t, []string{"100", "101", "102", "103", "104", "105"}, priorities)
	require.Equal(t, 6, cloud.createRuleCalls, "the lock leaves nothing to retry")
}

func TestCreateServiceFailureKeepsEarlierResources(t *testing.T) {
	cloud := newFakeCloud()
	cloud.serviceErr = errors.New("capacity")

	routing, err := newTestProvisioner(cloud).CreateService(context.Background(), tenant("jane"))
	require.ErrorContains(t, err, "creating service")
	require.NotEmpty(t, routing.TargetGroupARN)
	require.Len(t, cloud.targetGroups, 1)
	require.Len(t, cloud.rules, 1)
}

func TestDeleteService(t *testing.T) {
	cloud := newFakeCloud()
	p := newTestProvisioner(cloud)
	ctx := context.Background()

	other, err := p.CreateService(ctx, tenant("other"))
	require.NoError(t, err)
	routing, err := p.CreateService(ctx, tenant("jane"))
	require.NoError(t, err)

	// weighted forward referencing the same group
	cloud.rules = append(cloud.rules, elbtypes.Rule{
		RuleArn:  aws.String("arn:rule/weighted"),
		Priority: aws.String("300"),
		Actions: []elbtypes.Action{{
			Type: elbtypes.ActionTypeEnumForward,
			ForwardConfig: &elbtypes.ForwardActionConfig{TargetGroups: []elbtypes.TargetGroupTuple{
				{TargetGroupArn: aws.String(routing.TargetGroupARN)},
			}},
		}},
	})

	require.NoError(t, p.DeleteService(ctx, "jane", routing.TargetGroupARN))

	require.NotContains(t, cloud.services, "crimata-jane")
	require.Contains(t, cloud.services, "crimata-other")
	require.NotContains(t, cloud.targetGroups, routing.TargetGroupARN)
	require.Contains(t, cloud.targetGroups, other.TargetGroupARN)
	for _, r := range cloud.rules {
		require.False(t, forwardsTo(r, routing.TargetGroupARN))
	}
	require.Len(t, cloud.rules, 2)

	require.NoError(t, p.DeleteService(ctx, "jane", routing.TargetGroupARN), "teardown must be repeatable")
}

func TestDeleteServiceLooksUpTargetGroupByName(t *testing.T) {
	cloud := newFakeCloud()
	p := newTestProvisioner(cloud)
	ctx := context.Background()

	routing, err := p.CreateService(ctx, tenant("jane"))
	require.NoError(t, err)

	require.NoError(t, p.DeleteService(ctx, "jane", ""))
	require.NotContains(t, cloud.targetGroups, routing.TargetGroupARN)
	require.Len(t, cloud.rules, 1)
}

func TestDeleteServiceOnNothing(t *testing.T) {
	cloud := newFakeCloud()
	require.NoError(t, newTestProvisioner(cloud).DeleteService(context.Background(), "ghost", ""))
}

func TestTargetGroupNameIsTruncated(t *testing.T) {
	p := newTestProvisioner(newFakeCloud())
	name := p.targetGroupName("abcdefghijklmnopqrst-22")
	require.LessOrEqual(t, len(name), 32)
	require.Equal(t, "crimata-abcdefghijklmnopqrst-22", name)

	p.cfg.NamePrefix = "a-much-longer-prefix"
	name = p.targetGroupName("abcdefghijk-tail")
	require.Len(t, name, 32)
	require.True(t, strings.HasPrefix(name, "a-much-longer-prefix-ab-"), name)
	require.Equal(t, name, p.targetGroupName("abcdefghijk-tail"), "stable across calls")
}

func TestTargetGroupNamesStayDistinctUnderLongPrefix(t *testing.T) {
	p := newTestProvisioner(newFakeCloud())
	p.cfg.NamePrefix = "crimata-prod"
	base := "abcdefghijklmnopqrst"

	seen := map[string]string{}
	for _, s := range []string{base, base + "-2", base + "-3", base + "-10"} {
		name := p.targetGroupName(s)
		require.LessOrEqual(t, len(name), 32, name)
		require.False(t, strings.HasSuffix(name, "-"), name)
		prev, dup := seen[name]
		require.False(t, dup, "%s and %s share target group %s", prev, s, name)
		seen[name] = s
	}
}

func TestCreateServiceKeepsTenantsApartUnderLongPrefix(t *testing.T) {
	cloud := newFakeCloud()
	p := newTestProvisioner(cloud)
	p.cfg.NamePrefix = "crimata-prod"
	ctx := context.Background()

	first, err := p.CreateService(ctx, Tenant{Slug: "abcdefghijklmnopqrst-2", DatabaseName: "crimata_a2"})
	require.NoError(t, err)
	second, err := p.CreateService(ctx, Tenant{Slug: "abcdefghijklmnopqrst-3", DatabaseName: "crimata_a3"})
	require.NoError(t, err)
	require.NotEqual(t, first.TargetGroupARN, second.TargetGroupARN)
}
