package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Builder-Lawyers/hub-provisioner/pkg/env"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	rTypes "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"
)

type Config struct {
	HostedZoneID string
	Domain       string
	// the shared load balancer every customer record aliases
	AliasDNSName string
	AliasZoneID  string
}

func NewConfig() *Config {
	return &Config{
		HostedZoneID: env.GetEnv("HOSTED_ZONE_ID", ""),
		Domain:       env.GetEnv("P_DOMAIN", "crimata.com"),
		AliasDNSName: env.GetEnv("ALB_DNS_NAME", ""),
		AliasZoneID:  env.GetEnv("ALB_ZONE_ID", ""),
	}
}

type Route53Client interface {
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

type DNSProvisioner struct {
	cfg    *Config
	client Route53Client
}

func NewDNSProvisioner(cfg *Config, client Route53Client) *DNSProvisioner {
	return &DNSProvisioner{cfg: cfg, client: client}
}

func (d *DNSProvisioner) host(slug string) string {
	return slug + "." + d.cfg.Domain
}

// CreateRecord points {slug}.{domain} at the front door.
func (d *DNSProvisioner) CreateRecord(ctx context.Context, slug string) error {
	changeID, err := d.change(ctx, rTypes.ChangeActionCreate, slug)
	if err != nil {
		return fmt.Errorf("failed to create alias record: %w", err)
	}
	slog.Info("record change submitted", "host", d.host(slug), "changeID", changeID)
	return nil
}

// DeleteRecord removes the alias; a record that is already gone is not an error.
func (d *DNSProvisioner) DeleteRecord(ctx context.Context, slug string) error {
	changeID, err := d.change(ctx, rTypes.ChangeActionDelete, slug)
	if isRecordMissing(err) {
		slog.Info("record already absent", "host", d.host(slug))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete alias record: %w", err)
	}
	slog.Info("record change submitted", "host", d.host(slug), "changeID", changeID)
	return nil
}

func (d *DNSProvisioner) change(ctx context.Context, action rTypes.ChangeAction, slug string) (string, error) {
	resp, err := d.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(d.cfg.HostedZoneID),
		ChangeBatch: &rTypes.ChangeBatch{
			Comment: aws.String(string(action) + " " + slug),
			Changes: []rTypes.Change{
				{
					Action: action,
					ResourceRecordSet: &rTypes.ResourceRecordSet{
						Name: aws.String(d.host(slug)),
						Type: rTypes.RRTypeA,
						AliasTarget: &rTypes.AliasTarget{
							DNSName:              aws.String(d.cfg.AliasDNSName),
							HostedZoneId:         aws.String(d.cfg.AliasZoneID),
							EvaluateTargetHealth: true,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if resp.ChangeInfo == nil {
		return "", nil
	}
	return aws.ToString(resp.ChangeInfo.Id), nil
}

func isRecordMissing(err error) bool {
	var msgs []string
	var invalid *rTypes.InvalidChangeBatch
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &invalid):
		msgs = append([]string{aws.ToString(invalid.Message)}, invalid.Messages...)
	case errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidChangeBatch":
		// some endpoints answer with an untyped error body
		msgs = []string{apiErr.ErrorMessage()}
	default:
		return false
	}
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m), "not found") {
			return true
		}
	}
	return false
}
