package compute

import (
	"github.com/Builder-Lawyers/hub-provisioner/pkg/env"
)

type Config struct {
	Cluster          string
	Image            string
	VPCID            string
	Subnets          []string
	SecurityGroups   []string
	ListenerARN      string
	ExecutionRoleARN string
	LogGroup         string
	Region           string

	// NamePrefix is prepended to every family, service and target group name.
	NamePrefix string
	Domain     string

	// the tenant database endpoint baked into DATABASE_URL
	DBHost string
	DBPort string

	ContainerPort   int32
	HealthCheckPath string
	CPU             string
	Memory          string
}

func NewConfig() *Config {
	return &Config{
		Cluster:          env.GetEnv("ECS_CLUSTER", "crimata"),
		Image:            env.GetEnv("ECR_IMAGE", ""),
		VPCID:            env.GetEnv("VPC_ID", ""),
		Subnets:          env.GetEnvSlice("VPC_SUBNETS", nil),
		SecurityGroups:   env.GetEnvSlice("SECURITY_GROUP", nil),
		ListenerARN:      env.GetEnv("ALB_LISTENER_ARN", ""),
		ExecutionRoleARN: env.GetEnv("TASK_EXECUTION_ROLE_ARN", ""),
		LogGroup:         env.GetEnv("LOG_GROUP", "/crimata/customers"),
		Region:           env.GetEnv("AWS_REGION", "us-east-1"),
		NamePrefix:       env.GetEnv("P_NAME_PREFIX", "crimata"),
		Domain:           env.GetEnv("P_DOMAIN", "crimata.com"),
		DBHost:           env.GetEnv("TENANT_DB_HOST", "localhost"),
		DBPort:           env.GetEnv("TENANT_DB_PORT", "5432"),
		ContainerPort:    8000,
		HealthCheckPath:  "/api/health",
		CPU:              "256",
		Memory:           "512",
	}
}
