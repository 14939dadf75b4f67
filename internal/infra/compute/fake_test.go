package compute

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logstypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

// fakeCloud is an in-memory ECS, ELBv2 and CloudWatch Logs.
type fakeCloud struct {
	mu sync.Mutex

	seq          int
	logGroups    map[string]bool
	targetGroups map[string]*elb.CreateTargetGroupInput // by arn
	taskDefs     map[string]*ecs.RegisterTaskDefinitionInput
	services     map[string]*ecs.CreateServiceInput // by name
	desired      map[string]int32
	rules        []elbtypes.Rule

	// stealPriority, when > 0, makes that many CreateRule calls lose the race to
	// another writer that grabs the requested priority first.
	stealPriority   int
	createRuleCalls int
	serviceErr      error
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		logGroups:    make(map[string]bool),
		targetGroups: make(map[string]*elb.CreateTargetGroupInput),
		taskDefs:     make(map[string]*ecs.RegisterTaskDefinitionInput),
		services:     make(map[string]*ecs.CreateServiceInput),
		desired:      make(map[string]int32),
		rules: []elbtypes.Rule{{
			RuleArn:   aws.String("arn:rule/default"),
			Priority:  aws.String("default"),
			IsDefault: aws.Bool(true),
		}},
	}
}

func (f *fakeCloud) arn(kind string) string {
	f.seq++
	return fmt.Sprintf("arn:aws:%s/%d", kind, f.seq)
}

func (f *fakeCloud) addRule(priority int, tgARN string) string {
	arn := f.arn("rule")
	f.rules = append(f.rules, elbtypes.Rule{
		RuleArn:  aws.String(arn),
		Priority: aws.String(strconv.Itoa(priority)),
		Actions: []elbtypes.Action{{
			Type:           elbtypes.ActionTypeEnumForward,
			TargetGroupArn: aws.String(tgARN),
		}},
	})
	return arn
}

func (f *fakeCloud) CreateLogGroup(_ context.Context, in *cloudwatchlogs.CreateLogGroupInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.LogGroupName)
	if f.logGroups[name] {
		return nil, &logstypes.ResourceAlreadyExistsException{Message: aws.String("exists")}
	}
	f.logGroups[name] = true
	return &cloudwatchlogs.CreateLogGroupOutput{}, nil
}

func (f *fakeCloud) CreateTargetGroup(_ context.Context, in *elb.CreateTargetGroupInput, _ ...func(*elb.Options)) (*elb.CreateTargetGroupOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// ELB hands back the existing group when the name and settings match
	for existing, tg := range f.targetGroups {
		if aws.ToString(tg.Name) == aws.ToString(in.Name) {
			return &elb.CreateTargetGroupOutput{TargetGroups: []elbtypes.TargetGroup{{
				TargetGroupArn:  aws.String(existing),
				TargetGroupName: tg.Name,
			}}}, nil
		}
	}
	arn := f.arn("targetgroup/" + aws.ToString(in.Name))
	f.targetGroups[arn] = in
	return &elb.CreateTargetGroupOutput{TargetGroups: []elbtypes.TargetGroup{{
		TargetGroupArn:  aws.String(arn),
		TargetGroupName: in.Name,
	}}}, nil
}

func (f *fakeCloud) DescribeTargetGroups(_ context.Context, in *elb.DescribeTargetGroupsInput, _ ...func(*elb.Options)) (*elb.DescribeTargetGroupsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out elb.DescribeTargetGroupsOutput
	for arn, tg := range f.targetGroups {
		for _, name := range in.Names {
			if aws.ToString(tg.Name) == name {
				out.TargetGroups = append(out.TargetGroups, elbtypes.TargetGroup{TargetGroupArn: aws.String(arn), TargetGroupName: tg.Name})
			}
		}
	}
	if len(out.TargetGroups) == 0 {
		return nil, &elbtypes.TargetGroupNotFoundException{Message: aws.String("not found")}
	}
	return &out, nil
}

func (f *fakeCloud) DeleteTargetGroup(_ context.Context, in *elb.DeleteTargetGroupInput, _ ...func(*elb.Options)) (*elb.DeleteTargetGroupOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	arn := aws.ToString(in.TargetGroupArn)
	if _, ok := f.targetGroups[arn]; !ok {
		return nil, &elbtypes.TargetGroupNotFoundException{Message: aws.String("not found")}
	}
	delete(f.targetGroups, arn)
	return &elb.DeleteTargetGroupOutput{}, nil
}

// DescribeRules pages two rules at a time to exercise marker handling.
func (f *fakeCloud) DescribeRules(_ context.Context, in *elb.DescribeRulesInput, _ ...func(*elb.Options)) (*elb.DescribeRulesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := 0
	if in.Marker != nil {
		start, _ = strconv.Atoi(*in.Marker)
	}
	end := min(start+2, len(f.rules))
	out := &elb.DescribeRulesOutput{Rules: append([]elbtypes.Rule(nil), f.rules[start:end]...)}
	if end < len(f.rules) {
		out.NextMarker = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeCloud) CreateRule(_ context.Context, in *elb.CreateRuleInput, _ ...func(*elb.Options)) (*elb.CreateRuleOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createRuleCalls++
	want := strconv.Itoa(int(aws.ToInt32(in.Priority)))
	if f.stealPriority > 0 {
		f.stealPriority--
		f.addRule(int(aws.ToInt32(in.Priority)), "arn:aws:targetgroup/intruder")
	}
	for _, r := range f.rules {
		if aws.ToString(r.Priority) == want {
			return nil, &elbtypes.PriorityInUseException{Message: aws.String("priority in use")}
		}
	}
	rule := elbtypes.Rule{
		RuleArn:    aws.String(f.arn("rule")),
		Priority:   aws.String(want),
		Conditions: in.Conditions,
		Actions:    in.Actions,
	}
	f.rules = append(f.rules, rule)
	return &elb.CreateRuleOutput{Rules: []elbtypes.Rule{rule}}, nil
}

func (f *fakeCloud) DeleteRule(_ context.Context, in *elb.DeleteRuleInput, _ ...func(*elb.Options)) (*elb.DeleteRuleOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rules {
		if aws.ToString(r.RuleArn) == aws.ToString(in.RuleArn) {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return &elb.DeleteRuleOutput{}, nil
		}
	}
	return nil, &elbtypes.RuleNotFoundException{Message: aws.String("not found")}
}

func (f *fakeCloud) RegisterTaskDefinition(_ context.Context, in *ecs.RegisterTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	arn := f.arn("task-definition/" + aws.ToString(in.Family))
	f.taskDefs[arn] = in
	return &ecs.RegisterTaskDefinitionOutput{TaskDefinition: &ecstypes.TaskDefinition{
		TaskDefinitionArn: aws.String(arn),
		Family:            in.Family,
	}}, nil
}

func (f *fakeCloud) CreateService(_ context.Context, in *ecs.CreateServiceInput, _ ...func(*ecs.Options)) (*ecs.CreateServiceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.serviceErr != nil {
		return nil, f.serviceErr
	}
	name := aws.ToString(in.ServiceName)
	f.services[name] = in
	f.desired[name] = aws.ToInt32(in.DesiredCount)
	return &ecs.CreateServiceOutput{Service: &ecstypes.Service{ServiceName: in.ServiceName}}, nil
}

func (f *fakeCloud) UpdateService(_ context.Context, in *ecs.UpdateServiceInput, _ ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Service)
	if _, ok := f.services[name]; !ok {
		return nil, &ecstypes.ServiceNotFoundException{Message: aws.String("not found")}
	}
	f.desired[name] = aws.ToInt32(in.DesiredCount)
	return &ecs.UpdateServiceOutput{}, nil
}

func (f *fakeCloud) DeleteService(_ context.Context, in *ecs.DeleteServiceInput, _ ...func(*ecs.Options)) (*ecs.DeleteServiceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Service)
	if _, ok := f.services[name]; !ok {
		return nil, &ecstypes.ServiceNotFoundException{Message: aws.String("not found")}
	}
	delete(f.services, name)
	delete(f.desired, name)
	return &ecs.DeleteServiceOutput{}, nil
}
