package cmd

import (
	"context"
	"fmt"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/commands"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/processors"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/query"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/certs"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/compute"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/config"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/db/repo"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/dns"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/lock"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/mail"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/metrics"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/secrets"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/storage"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/tenantdb"
	"github.com/Builder-Lawyers/hub-provisioner/pkg/db"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// container holds everything the commands share. Build it with initContainer
// and release it with Close.
type container struct {
	pool       *pgxpool.Pool
	tenantPool *pgxpool.Pool
	uowFactory *db.UOWFactory
	awsCfg     aws.Config
	registry   *prometheus.Registry
	certs      *certs.ACMCertificates
	processors *application.Processors
	handlers   *application.Handlers
}

func connectControlPlane(ctx context.Context) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.NewConfig())
}

func initContainer(ctx context.Context) (*container, error) {
	c := &container{}
	var err error

	// DB
	c.pool, err = connectControlPlane(ctx)
	if err != nil {
		return nil, err
	}
	c.uowFactory = db.NewUoWFactory(c.pool)

	tenantCfg := tenantdb.NewConfig()
	c.tenantPool, err = db.NewPool(ctx, db.Config{DSN: tenantCfg.AdminDSN, MaxConns: 4, PingTimeout: db.NewConfig().PingTimeout})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("tenant admin db, %w", err)
	}

	// AWS
	c.awsCfg, err = awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("can't load aws config, %w", err)
	}

	// Configs
	provisionConfig := config.NewProvisionConfig()
	mailConfig := mail.NewMailConfig()

	sender, err := mail.NewSender(mailConfig, c.awsCfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New().MustRegister(c.registry)

	locker := lock.New()
	archive := storage.NewStorage(storage.NewS3Client(c.awsCfg))
	c.certs = certs.NewACMCertificates(acm.NewFromConfig(c.awsCfg))

	deps := &processors.Deps{
		Cfg:      provisionConfig,
		Store:    repo.NewStore(c.pool),
		Secrets:  secrets.CryptoGenerator{},
		Database: tenantdb.NewProvisioner(c.tenantPool),
		Compute: compute.NewProvisioner(
			compute.NewConfig(),
			ecs.NewFromConfig(c.awsCfg),
			elasticloadbalancingv2.NewFromConfig(c.awsCfg),
			cloudwatchlogs.NewFromConfig(c.awsCfg),
			locker,
		),
		DNS:      dns.NewDNSProvisioner(dns.NewConfig(), route53.NewFromConfig(c.awsCfg)),
		Notifier: mail.NewNotifier(sender, provisionConfig.Domain),
		Archiver: archive,
		Metrics:  m,
	}

	c.processors = &application.Processors{
		ProvisionCustomer:   processors.NewProvisionCustomer(deps),
		DeprovisionCustomer: processors.NewDeprovisionCustomer(deps),
	}
	c.handlers = &application.Handlers{
		Payment:     commands.NewPayment(commands.NewPaymentConfig(), commands.NewOutboxPublisher(c.uowFactory)),
		GetCustomer: query.NewGetCustomer(provisionConfig, repo.NewStore(c.pool), archive),
	}
	return c, nil
}

func (c *container) Close() {
	if c.tenantPool != nil {
		c.tenantPool.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}
