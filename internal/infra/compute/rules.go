package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/cenkalti/backoff/v4"
)

// customer rules start right after the highest hand-managed priority
const defaultMaxPriority = 99

// NextPriority returns one above the highest non-default rule priority.
func NextPriority(rules []elbtypes.Rule) int32 {
	highest := defaultMaxPriority
	for _, r := range rules {
		if aws.ToBool(r.IsDefault) {
			continue
		}
		n, err := strconv.Atoi(aws.ToString(r.Priority))
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return int32(highest + 1)
}

func (p *Provisioner) listRules(ctx context.Context) ([]elbtypes.Rule, error) {
	var (
		rules  []elbtypes.Rule
		marker *string
	)
	for {
		out, err := p.elb.DescribeRules(ctx, &elb.DescribeRulesInput{
			ListenerArn: aws.String(p.cfg.ListenerARN),
			Marker:      marker,
		})
		if err != nil {
			return nil, fmt.Errorf("describing listener rules: %w", err)
		}
		rules = append(rules, out.Rules...)
		if out.NextMarker == nil || aws.ToString(out.NextMarker) == "" {
			return rules, nil
		}
		marker = out.NextMarker
	}
}

// addHostRule reads the rule list and claims the next priority under the
// listener lock. A concurrent writer outside the lock surfaces as
// PriorityInUse and the read is repeated.
func (p *Provisioner) addHostRule(ctx context.Context, slug, targetGroupARN string) (string, error) {
	release, err := p.locker.Acquire(ctx, "listener-priority:"+p.cfg.ListenerARN)
	if err != nil {
		return "", fmt.Errorf("locking listener: %w", err)
	}
	defer release()

	host := slug + "." + p.cfg.Domain
	op := func() (string, error) {
		rules, err := p.listRules(ctx)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		priority := NextPriority(rules)

		out, err := p.elb.CreateRule(ctx, &elb.CreateRuleInput{
			ListenerArn: aws.String(p.cfg.ListenerARN),
			Priority:    aws.Int32(priority),
			Conditions: []elbtypes.RuleCondition{{
				Field:            aws.String("host-header"),
				HostHeaderConfig: &elbtypes.HostHeaderConditionConfig{Values: []string{host}},
			}},
			Actions: []elbtypes.Action{{
				Type:           elbtypes.ActionTypeEnumForward,
				TargetGroupArn: aws.String(targetGroupARN),
			}},
		})
		var inUse *elbtypes.PriorityInUseException
		if errors.As(err, &inUse) {
			slog.Warn("listener priority taken, retrying", "slug", slug, "priority", priority)
			return "", err
		}
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("creating listener rule: %w", err))
		}
		if len(out.Rules) == 0 {
			return "", backoff.Permanent(errors.New("creating listener rule: empty response"))
		}
		return aws.ToString(out.Rules[0].RuleArn), nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	ruleARN, err := backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(b, 5), ctx))
	if err != nil {
		return "", fmt.Errorf("adding host rule for %s: %w", host, err)
	}
	return ruleARN, nil
}

func forwardsTo(rule elbtypes.Rule, targetGroupARN string) bool {
	for _, a := range rule.Actions {
		if aws.ToString(a.TargetGroupArn) == targetGroupARN {
			return true
		}
		if a.ForwardConfig == nil {
			continue
		}
		for _, tg := range a.ForwardConfig.TargetGroups {
			if aws.ToString(tg.TargetGroupArn) == targetGroupARN {
				return true
			}
		}
	}
	return false
}
