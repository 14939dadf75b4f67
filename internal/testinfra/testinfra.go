package testinfra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/db"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	pgOnce  sync.Once
	pool    *pgxpool.Pool
	pgErr   error
	lsOnce  sync.Once
	awsCfg  aws.Config
	lsErr   error
	rdsOnce sync.Once
	rdsAddr string
	rdsErr  error
)

// Pool starts (once per test binary) a postgres container with the control schema
// migrated. Tests are skipped when docker is not reachable.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	pgOnce.Do(func() {
		pool, pgErr = setupDB()
	})
	if pgErr != nil {
		t.Fatalf("postgres: %v", pgErr)
	}
	return pool
}

// AdminDSN returns the superuser DSN of the shared test container.
func AdminDSN(t *testing.T) string {
	p := Pool(t)
	return p.Config().ConnString()
}

func setupDB() (*pgxpool.Pool, error) {
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:17.2-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	pgHostPort, err := pgC.Endpoint(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("postgres endpoint: %w", err)
	}
	pgDSN := fmt.Sprintf("postgres://postgres:password@%s/testdb?sslmode=disable", pgHostPort)

	p, err := pgxpool.New(ctx, pgDSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool connect: %w", err)
	}

	ok := false
	for i := 0; i < 20; i++ {
		slog.Info("ping db", "try", i)
		ctxPing, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		err = p.Ping(ctxPing)
		cancel()
		if err == nil {
			ok = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !ok {
		return nil, fmt.Errorf("db did not respond after 20 attempts")
	}

	if err = db.Migrate(ctx, p); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return p, nil
}

// AWS starts a localstack container and returns a config pointing at it.
func AWS(t *testing.T, services string) aws.Config {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	lsOnce.Do(func() {
		awsCfg, lsErr = setupAWS(services)
	})
	if lsErr != nil {
		t.Fatalf("localstack: %v", lsErr)
	}
	return awsCfg
}

func setupAWS(services string) (aws.Config, error) {
	ctx := context.Background()
	slog.Info("SETUP AWS CONFIG")

	ls, err := localstack.Run(ctx,
		"localstack/localstack:3.8",
		testcontainers.WithEnv(map[string]string{"SERVICES": services}),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to start localstack: %w", err)
	}
	endpoint, err := ls.PortEndpoint(ctx, "4566/tcp", "http")
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to get endpoint: %w", err)
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		awsConfig.WithBaseEndpoint(endpoint),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("can't load aws config: %w", err)
	}
	return cfg, nil
}

// Redis starts a redis container and returns its address.
func Redis(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	rdsOnce.Do(func() {
		ctx := context.Background()
		c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections"),
			},
			Started: true,
		})
		if err != nil {
			rdsErr = fmt.Errorf("start redis: %w", err)
			return
		}
		rdsAddr, rdsErr = c.Endpoint(ctx, "")
	})
	if rdsErr != nil {
		t.Fatalf("redis: %v", rdsErr)
	}
	return rdsAddr
}
