package certs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/acm/types"
)

type ACMClient interface {
	DescribeCertificate(ctx context.Context, params *acm.DescribeCertificateInput, optFns ...func(*acm.Options)) (*acm.DescribeCertificateOutput, error)
}

type ACMCertificates struct {
	client ACMClient
}

func NewACMCertificates(client ACMClient) *ACMCertificates {
	return &ACMCertificates{client: client}
}

func (a *ACMCertificates) Status(ctx context.Context, arn string) (types.CertificateStatus, error) {
	res, err := a.client.DescribeCertificate(ctx, &acm.DescribeCertificateInput{CertificateArn: aws.String(arn)})
	if err != nil {
		return "", fmt.Errorf("describe certificate %s: %w", arn, err)
	}
	if res.Certificate == nil {
		return "", fmt.Errorf("describe certificate %s: empty response", arn)
	}
	return res.Certificate.Status, nil
}

// Preflight warns when the front door certificate cannot serve customer hosts.
// It never blocks startup.
func (a *ACMCertificates) Preflight(ctx context.Context, arn string) bool {
	if arn == "" {
		slog.Warn("FRONT_DOOR_CERT_ARN not set, skipping certificate check")
		return false
	}
	status, err := a.Status(ctx, arn)
	if err != nil {
		slog.Warn("certificate check failed", "arn", arn, "err", err)
		return false
	}
	if status != types.CertificateStatusIssued {
		slog.Warn("front door certificate is not issued", "arn", arn, "status", status)
		return false
	}
	slog.Info("front door certificate issued", "arn", arn)
	return true
}
